package parser

import (
	"strings"
	"testing"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

const whatsAppDashSample = `2/15/23, 4:20 PM - Alice created group "Trip Planning"
2/15/23, 4:21 PM - Alice: hey everyone, sorry for the late invite
2/15/23, 4:22 PM - Bob: no problem at all
still packing my bags though
2/15/23, 4:25 PM - Alice: <Media omitted>
2/15/23, 4:30 PM - Bob: check https://example.com/itinerary
2/15/23, 4:31 PM - Bob: final plan attached <This message was edited>`

const whatsAppBracketSample = `[2/15/23, 4:20:15 PM] Alice: hello from the bracket format
[2/15/23, 4:21:02 PM] Bob: image omitted
[2/15/23, 4:22:40 PM] Alice: and a reply`

func whatsAppParse(t *testing.T, raw string) (*chatstats.ChatStats, []chatstats.NormalizedMessage) {
	t.Helper()
	p, err := ForPlatform(chatstats.PlatformWhatsApp)
	if err != nil {
		t.Fatalf("ForPlatform: %v", err)
	}
	stats, messages, err := p.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return stats, messages
}

func TestWhatsAppDashFormat(t *testing.T) {
	stats, messages := whatsAppParse(t, whatsAppDashSample)

	if stats.TotalMessages != 6 {
		t.Errorf("totalMessages = %d, want 6", stats.TotalMessages)
	}
	if stats.MessagesByUser["Alice"] != 3 || stats.MessagesByUser["Bob"] != 3 {
		t.Errorf("messagesByUser = %v", stats.MessagesByUser)
	}

	// The group notice counts toward totals but not words.
	if stats.WordFrequency["group"] != 0 {
		t.Error("group notice leaked into wordFrequency")
	}

	if stats.MediaStats.ByType.Documents != 1 {
		t.Errorf("media omitted not classified: %+v", stats.MediaStats.ByType)
	}
	if stats.MediaStats.ByType.Links != 1 {
		t.Errorf("link not counted: %+v", stats.MediaStats.ByType)
	}
	if stats.EditedMessages.ByUser["Bob"] != 1 {
		t.Errorf("edited marker not detected: %+v", stats.EditedMessages)
	}
	if stats.SorryByUser["Alice"] != 1 {
		t.Errorf("sorryByUser = %v", stats.SorryByUser)
	}

	var bob string
	for _, m := range messages {
		if m.From == "Bob" && strings.Contains(m.Text, "no problem") {
			bob = m.Text
		}
	}
	if !strings.Contains(bob, "still packing my bags though") {
		t.Errorf("continuation line not merged: %q", bob)
	}
}

func TestWhatsAppBracketFormat(t *testing.T) {
	stats, messages := whatsAppParse(t, whatsAppBracketSample)

	if stats.TotalMessages != 3 {
		t.Errorf("totalMessages = %d, want 3", stats.TotalMessages)
	}
	if stats.MediaStats.ByType.Images != 1 {
		t.Errorf("image omitted not classified: %+v", stats.MediaStats.ByType)
	}
	if len(messages) != 2 {
		t.Fatalf("normalized messages = %d, want 2", len(messages))
	}
	if messages[0].Date != "2023-02-15T16:20:15Z" {
		t.Errorf("date = %q", messages[0].Date)
	}
}

func TestWhatsAppEditedMarkerStripped(t *testing.T) {
	_, messages := whatsAppParse(t, `2/15/23, 4:31 PM - Bob: final plan attached <This message was edited>`)
	if len(messages) != 1 {
		t.Fatalf("normalized messages = %d, want 1", len(messages))
	}
	if messages[0].Text != "final plan attached" {
		t.Errorf("edited marker left in text: %q", messages[0].Text)
	}
}

func TestWhatsAppGarbageInput(t *testing.T) {
	stats, messages := whatsAppParse(t, "no headers anywhere\njust prose\n")
	if stats.TotalMessages != 0 {
		t.Errorf("totalMessages = %d, want 0", stats.TotalMessages)
	}
	if len(messages) != 0 {
		t.Errorf("messages = %v, want none", messages)
	}
}
