package parser

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

// WhatsAppParser reads the plain-text transcript produced by WhatsApp's
// "Export chat" feature. Two header shapes exist in the wild:
//
//	[2/15/23, 4:20:15 PM] Alice: message
//	2/15/23, 4:20 PM - Alice: message
//
// Lines without a header continue the previous message.
type WhatsAppParser struct {
	opts options
}

var whatsAppLayouts = []string{
	"1/2/06, 3:04:05 PM",
	"1/2/06, 3:04 PM",
	"2/1/06, 15:04:05",
	"2/1/06, 15:04",
	"02/01/2006, 15:04",
	"1/2/2006, 3:04 PM",
}

var whatsAppMediaMarkers = map[string]chatstats.MediaKind{
	"image omitted":    chatstats.MediaImage,
	"video omitted":    chatstats.MediaVideo,
	"document omitted": chatstats.MediaDocument,
	"audio omitted":    chatstats.MediaDocument,
	"sticker omitted":  chatstats.MediaSticker,
	"gif omitted":      chatstats.MediaAnimation,
	"<media omitted>":  chatstats.MediaDocument,
}

const whatsAppEditedMarker = "<This message was edited>"

func (p *WhatsAppParser) Parse(raw []byte) (*chatstats.ChatStats, []chatstats.NormalizedMessage, error) {
	var recs []chatstats.Record

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "‎")
		if line == "" {
			continue
		}
		rec, ok := parseWhatsAppLine(line)
		if !ok {
			// Continuation of the previous message body.
			if len(recs) > 0 {
				recs[len(recs)-1].Text += "\n" + line
			}
			continue
		}
		recs = append(recs, rec)
	}

	for i := range recs {
		finishWhatsAppRecord(&recs[i])
	}

	stats, messages := p.opts.aggregate(chatstats.PlatformWhatsApp, recs)
	return stats, messages, nil
}

// parseWhatsAppLine splits one header line into timestamp, sender, and body.
// Returns ok=false when the line carries no recognizable header.
func parseWhatsAppLine(line string) (chatstats.Record, bool) {
	var stamp, rest string

	switch {
	case strings.HasPrefix(line, "["):
		end := strings.Index(line, "]")
		if end < 0 {
			return chatstats.Record{}, false
		}
		stamp = line[1:end]
		rest = strings.TrimSpace(line[end+1:])
	default:
		sep := strings.Index(line, " - ")
		if sep < 0 {
			return chatstats.Record{}, false
		}
		stamp = line[:sep]
		rest = line[sep+3:]
	}

	ts, ok := parseWhatsAppTime(stamp)
	if !ok {
		return chatstats.Record{}, false
	}

	rec := chatstats.Record{Timestamp: ts}
	if colon := strings.Index(rest, ": "); colon >= 0 {
		rec.Sender = rest[:colon]
		rec.Text = rest[colon+2:]
	} else {
		// Group notices have no "sender: " part; WhatsApp names the subject
		// inside the text itself.
		rec.Sender = whatsAppNoticeActor(rest)
		rec.Text = rest
		rec.System = true
	}
	return rec, true
}

func parseWhatsAppTime(stamp string) (time.Time, bool) {
	stamp = strings.ReplaceAll(stamp, " ", " ")
	stamp = strings.TrimSpace(stamp)
	for _, layout := range whatsAppLayouts {
		if t, err := time.Parse(layout, stamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// whatsAppNoticeActor pulls the leading name out of a group notice like
// "Alice created the group". Falls back to empty for impersonal notices.
func whatsAppNoticeActor(text string) string {
	for _, verb := range []string{" created ", " added ", " removed ", " changed ", " left", " joined", " pinned "} {
		if idx := strings.Index(text, verb); idx > 0 {
			return text[:idx]
		}
	}
	return ""
}

func finishWhatsAppRecord(rec *chatstats.Record) {
	if strings.Contains(rec.Text, whatsAppEditedMarker) {
		rec.Edited = true
		rec.Text = strings.TrimSpace(strings.ReplaceAll(rec.Text, whatsAppEditedMarker, ""))
	}

	lower := strings.ToLower(strings.TrimPrefix(rec.Text, "‎"))
	if kind, ok := whatsAppMediaMarkers[strings.TrimSpace(lower)]; ok {
		rec.Media = kind
		rec.Text = ""
		return
	}
	if strings.Contains(lower, "http://") || strings.Contains(lower, "https://") {
		rec.Media = chatstats.MediaLink
	}
}
