// Package chunking slices a normalized message list into overlapping,
// embedding-ready windows. Splitting is deterministic: the same input and
// settings always produce the same chunks.
package chunking

import (
	"fmt"
	"strings"
	"time"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

const (
	// DefaultSize is the number of messages per chunk.
	DefaultSize = 7
	// DefaultOverlap is the number of messages shared between neighbors.
	DefaultOverlap = 2
)

// Chunk is one window of conversation, formatted for embedding.
type Chunk struct {
	Content          string
	Sender           string
	ChunkIndex       int
	StartTimestampMs int64
	EndTimestampMs   int64
	MessageCount     int
}

// Split windows messages into chunks of size messages advancing by
// size-overlap each step, so consecutive chunks share overlap messages.
// A window starts at every stride offset below len(messages), so the final
// chunk may be shorter. An empty input yields no chunks.
func Split(messages []chatstats.NormalizedMessage, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	stride := size - overlap
	if stride <= 0 {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, size)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	header := conversationHeader(messages)

	var chunks []Chunk
	for start := 0; start < len(messages); start += stride {
		end := start + size
		if end > len(messages) {
			end = len(messages)
		}
		window := messages[start:end]
		chunks = append(chunks, buildChunk(header, window, len(chunks)))
	}
	return chunks, nil
}

// conversationHeader names every participant of the whole conversation, in
// order of first appearance.
func conversationHeader(messages []chatstats.NormalizedMessage) string {
	seen := make(map[string]bool)
	var participants []string
	for _, m := range messages {
		if m.From == "" || seen[m.From] {
			continue
		}
		seen[m.From] = true
		participants = append(participants, m.From)
	}
	return fmt.Sprintf("[Conversation between %s]", strings.Join(participants, " and "))
}

func buildChunk(header string, window []chatstats.NormalizedMessage, index int) Chunk {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	sender := window[0].From
	for _, m := range window {
		if m.From != sender {
			sender = "mixed"
		}
		fmt.Fprintf(&b, "\n[%s] %s: %s", displayDate(m.Date), m.From, m.Text)
	}

	return Chunk{
		Content:          b.String(),
		Sender:           sender,
		ChunkIndex:       index,
		StartTimestampMs: timestampMs(window[0].Date),
		EndTimestampMs:   timestampMs(window[len(window)-1].Date),
		MessageCount:     len(window),
	}
}

func displayDate(date string) string {
	if date == "" {
		return "unknown time"
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Format("Jan 2, 2006 15:04")
	}
	return date
}

func timestampMs(date string) int64 {
	t, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
