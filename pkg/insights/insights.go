// Package insights adds qualitative, model-generated fields to a ChatStats:
// a summary, a relationship health score, per-user interest readings, and
// the rest of the verdict fields. Augmentation is strictly best-effort; a
// failed augmenter leaves the stats untouched.
package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatlens/chatlens/pkg/chatstats"
	"github.com/chatlens/chatlens/pkg/util"
)

// maxTranscriptLine keeps a single giant message from eating the prompt.
const maxTranscriptLine = 500

// Insights is the augmenter's full output.
type Insights struct {
	AISummary               string                                  `json:"aiSummary"`
	RelationshipHealthScore *chatstats.RelationshipHealthScore      `json:"relationshipHealthScore"`
	InterestPercentage      map[string]chatstats.InterestPercentage `json:"interestPercentage"`
	CookedStatus            *chatstats.CookedStatus                 `json:"cookedStatus"`
	AttachmentStyles        map[string]chatstats.AttachmentStyle    `json:"attachmentStyles"`
	MatchPercentage         *chatstats.MatchPercentage              `json:"matchPercentage"`
}

// Augmenter produces qualitative insights from the aggregate stats and a
// sample of recent messages.
type Augmenter interface {
	Augment(ctx context.Context, stats *chatstats.ChatStats, sample []chatstats.NormalizedMessage) (*Insights, error)
}

// Apply merges insights into the stats. Nil or empty fields are skipped, so
// a partial response still contributes what it has.
func Apply(stats *chatstats.ChatStats, ins *Insights) {
	if ins == nil {
		return
	}
	if ins.AISummary != "" {
		stats.AISummary = ins.AISummary
	}
	if ins.RelationshipHealthScore != nil {
		stats.RelationshipHealthScore = ins.RelationshipHealthScore
	}
	if len(ins.InterestPercentage) > 0 {
		stats.InterestPercentage = ins.InterestPercentage
	}
	if ins.CookedStatus != nil {
		stats.CookedStatus = ins.CookedStatus
	}
	if len(ins.AttachmentStyles) > 0 {
		stats.AttachmentStyles = ins.AttachmentStyles
	}
	if ins.MatchPercentage != nil {
		stats.MatchPercentage = ins.MatchPercentage
	}
}

// Sample returns the n most recent text messages, oldest first.
func Sample(messages []chatstats.NormalizedMessage, n int) []chatstats.NormalizedMessage {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// Transcript renders a message sample as prompt text.
func Transcript(messages []chatstats.NormalizedMessage) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.From, util.Truncate(m.Text, maxTranscriptLine))
	}
	return b.String()
}
