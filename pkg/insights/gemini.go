package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/chatlens/chatlens/pkg/chatstats"
	"github.com/chatlens/chatlens/pkg/config"
)

// GeminiAugmenter generates insights with a Gemini model in JSON mode.
type GeminiAugmenter struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	chatModel  *genai.GenerativeModel
	maxRetries int
	timeout    time.Duration
}

// NewGeminiAugmenter creates an augmenter from the insights config. The
// caller should Close it when done.
func NewGeminiAugmenter(ctx context.Context, cfg config.InsightsConfig, apiKey string) (*GeminiAugmenter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("insights augmenter requires an API key")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	chatModel := client.GenerativeModel(modelName)

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GeminiAugmenter{
		client:     client,
		model:      model,
		chatModel:  chatModel,
		maxRetries: maxRetries,
		timeout:    timeout,
	}, nil
}

// Augment asks the model for the qualitative fields, retrying transient
// failures with exponential backoff.
func (g *GeminiAugmenter) Augment(ctx context.Context, stats *chatstats.ChatStats, sample []chatstats.NormalizedMessage) (*Insights, error) {
	prompt := buildPrompt(stats, sample)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying insights generation")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ins, err := g.generate(ctx, prompt)
		if err == nil {
			return ins, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("generating insights after %d attempts: %w", g.maxRetries+1, lastErr)
}

func (g *GeminiAugmenter) generate(ctx context.Context, prompt string) (*Insights, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("calling model: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("model returned no text")
	}

	var ins Insights
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &ins); err != nil {
		return nil, fmt.Errorf("parsing insights JSON: %w", err)
	}
	return &ins, nil
}

// Close releases the underlying API client.
func (g *GeminiAugmenter) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// stripCodeFences removes a wrapping ```json ... ``` block if present.
// JSON mode usually prevents fences, but not on every model version.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildPrompt(stats *chatstats.ChatStats, sample []chatstats.NormalizedMessage) string {
	users := make([]string, 0, len(stats.MessagesByUser))
	for user := range stats.MessagesByUser {
		users = append(users, user)
	}

	summary, _ := json.Marshal(map[string]any{
		"totalMessages":  stats.TotalMessages,
		"totalWords":     stats.TotalWords,
		"messagesByUser": stats.MessagesByUser,
		"wordsByUser":    stats.WordsByUser,
		"sorryByUser":    stats.SorryByUser,
		"mediaTotal":     stats.MediaStats.Total,
	})

	var b strings.Builder
	b.WriteString("You are analyzing a chat conversation between: ")
	b.WriteString(strings.Join(users, ", "))
	b.WriteString("\n\nAggregate statistics:\n")
	b.Write(summary)
	b.WriteString("\n\nRecent messages:\n")
	b.WriteString(Transcript(sample))
	b.WriteString(`
Respond with a single JSON object using exactly these keys:
{
  "aiSummary": "2-3 sentence summary of the conversation dynamic",
  "relationshipHealthScore": {"overall": 0-100, "details": {"balance": 0-100, "engagement": 0-100, "positivity": 0-100, "consistency": 0-100}, "redFlags": ["..."]},
  "interestPercentage": {"<participant>": {"score": 0-100, "reasoning": "..."}},
  "cookedStatus": {"isCooked": true|false, "user": "<participant>", "confidence": 0-100},
  "attachmentStyles": {"<participant>": {"primaryStyle": "secure|anxious|avoidant|fearful-avoidant", "secondaryStyle": "...", "confidence": 0-100, "description": "..."}},
  "matchPercentage": {"score": 0-100, "reasoning": "..."}
}
Every participant listed above must appear in interestPercentage and attachmentStyles.`)
	return b.String()
}
