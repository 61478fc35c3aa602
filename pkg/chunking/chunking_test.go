package chunking

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

func makeMessages(n int) []chatstats.NormalizedMessage {
	base := time.Date(2023, time.March, 10, 14, 0, 0, 0, time.UTC)
	out := make([]chatstats.NormalizedMessage, n)
	for i := range out {
		sender := "Alice"
		if i%2 == 1 {
			sender = "Bob"
		}
		out[i] = chatstats.NormalizedMessage{
			From: sender,
			Text: fmt.Sprintf("message %d", i),
			Date: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
	}
	return out
}

func TestSplitChunkCount(t *testing.T) {
	tests := []struct {
		n, size, overlap int
		want             int
	}{
		{0, 7, 2, 0},
		{1, 7, 2, 1},
		{5, 7, 2, 1},
		{7, 7, 2, 2},
		{8, 7, 2, 2},
		{20, 7, 2, 4},
		{25, 10, 2, 4},
		{10, 5, 0, 2},
	}
	for _, tt := range tests {
		chunks, err := Split(makeMessages(tt.n), tt.size, tt.overlap)
		if err != nil {
			t.Fatalf("Split(%d, %d, %d): %v", tt.n, tt.size, tt.overlap, err)
		}
		if len(chunks) != tt.want {
			t.Errorf("Split(%d, %d, %d) = %d chunks, want %d", tt.n, tt.size, tt.overlap, len(chunks), tt.want)
		}
	}
}

func TestSplitOffsetsAndOverlap(t *testing.T) {
	msgs := makeMessages(25)
	chunks, err := Split(msgs, 10, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	// Stride 8: windows start at 0, 8, 16, 24; the last holds one message.
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	wantCounts := []int{10, 10, 9, 1}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.MessageCount != wantCounts[i] {
			t.Errorf("chunk %d holds %d messages, want %d", i, c.MessageCount, wantCounts[i])
		}
	}
	// Chunk 1 starts at message 8.
	if !strings.Contains(chunks[1].Content, "message 8") {
		t.Errorf("chunk 1 content missing message 8:\n%s", chunks[1].Content)
	}
	// The overlap messages 8 and 9 also close chunk 0.
	if !strings.Contains(chunks[0].Content, "message 9") {
		t.Errorf("chunk 0 content missing overlap message 9:\n%s", chunks[0].Content)
	}
	if strings.Contains(chunks[0].Content, "message 10") {
		t.Errorf("chunk 0 content leaked past its window:\n%s", chunks[0].Content)
	}
}

func TestSplitDeterministic(t *testing.T) {
	msgs := makeMessages(30)
	a, err := Split(msgs, 7, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	b, err := Split(msgs, 7, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Split is not deterministic")
	}
}

func TestSplitHeaderAndSender(t *testing.T) {
	msgs := makeMessages(4)
	chunks, err := Split(msgs, 7, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, "[Conversation between Alice and Bob]") {
		t.Errorf("header missing:\n%s", chunks[0].Content)
	}
	if chunks[0].Sender != "mixed" {
		t.Errorf("sender = %q, want mixed", chunks[0].Sender)
	}

	solo := []chatstats.NormalizedMessage{
		{From: "Alice", Text: "one", Date: "2023-03-10T14:00:00Z"},
		{From: "Alice", Text: "two", Date: "2023-03-10T14:01:00Z"},
	}
	soloChunks, err := Split(solo, 7, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if soloChunks[0].Sender != "Alice" {
		t.Errorf("sender = %q, want Alice", soloChunks[0].Sender)
	}
}

func TestSplitTimestamps(t *testing.T) {
	msgs := makeMessages(3)
	chunks, err := Split(msgs, 7, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	start := time.Date(2023, time.March, 10, 14, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2023, time.March, 10, 14, 2, 0, 0, time.UTC).UnixMilli()
	if chunks[0].StartTimestampMs != start || chunks[0].EndTimestampMs != end {
		t.Errorf("timestamps = %d..%d, want %d..%d",
			chunks[0].StartTimestampMs, chunks[0].EndTimestampMs, start, end)
	}
}

func TestSplitRejectsBadSettings(t *testing.T) {
	msgs := makeMessages(5)
	if _, err := Split(msgs, 0, 0); err == nil {
		t.Error("size 0 accepted")
	}
	if _, err := Split(msgs, 5, 5); err == nil {
		t.Error("overlap equal to size accepted")
	}
	if _, err := Split(msgs, 5, 9); err == nil {
		t.Error("overlap larger than size accepted")
	}
}
