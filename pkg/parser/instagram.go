package parser

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

// InstagramParser reads the message_N.json files from an Instagram data
// download. Messages arrive newest first and are reversed into
// chronological order before aggregation.
type InstagramParser struct {
	opts options
}

func (p *InstagramParser) Parse(raw []byte) (*chatstats.ChatStats, []chatstats.NormalizedMessage, error) {
	root := gjson.ParseBytes(raw)
	list := root.Get("messages")
	if !list.IsArray() {
		return chatstats.Empty(chatstats.PlatformInstagram), []chatstats.NormalizedMessage{}, nil
	}

	items := list.Array()
	recs := make([]chatstats.Record, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		recs = append(recs, instagramRecord(items[i]))
	}

	stats, messages := p.opts.aggregate(chatstats.PlatformInstagram, recs)
	return stats, messages, nil
}

func instagramRecord(msg gjson.Result) chatstats.Record {
	rec := chatstats.Record{
		Sender: fixMojibake(msg.Get("sender_name").String()),
		Text:   fixMojibake(msg.Get("content").String()),
	}
	if ms := msg.Get("timestamp_ms").Int(); ms > 0 {
		rec.Timestamp = time.UnixMilli(ms).UTC()
	}

	rec.Media = instagramMedia(msg)
	// Placeholder contents like "You sent an attachment." add nothing.
	if rec.Media != chatstats.MediaNone && strings.HasSuffix(rec.Text, "an attachment.") {
		rec.Text = ""
	}

	msg.Get("reactions").ForEach(func(_, r gjson.Result) bool {
		if e := fixMojibake(r.Get("reaction").String()); e != "" {
			rec.ExtraEmojis = append(rec.ExtraEmojis, e)
		}
		return true
	})

	// Reaction notices are export chrome, not something the user typed.
	if isInstagramReactionNotice(rec.Text) {
		rec.System = true
	}

	return rec
}

func isInstagramReactionNotice(text string) bool {
	t := strings.TrimSuffix(strings.TrimSpace(text), ".")
	return strings.HasPrefix(t, "Reacted ") && strings.HasSuffix(t, " to your message")
}

func instagramMedia(msg gjson.Result) chatstats.MediaKind {
	switch {
	case msg.Get("photos").IsArray():
		return chatstats.MediaImage
	case msg.Get("videos").IsArray():
		return chatstats.MediaVideo
	case msg.Get("audio_files").IsArray():
		return chatstats.MediaDocument
	case msg.Get("sticker").Exists():
		return chatstats.MediaSticker
	case strings.Contains(msg.Get("share.link").String(), "/media/"):
		return chatstats.MediaAnimation
	case msg.Get("share").Exists():
		return chatstats.MediaLink
	}
	return chatstats.MediaNone
}

// fixMojibake repairs Instagram's double-encoded strings: the export writes
// UTF-8 byte values as individual Latin-1 code points. Reassembling those
// bytes and re-reading them as UTF-8 restores the original text; strings
// that were fine to begin with pass through unchanged.
func fixMojibake(s string) string {
	buf := make([]byte, 0, len(s))
	ascii := true
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		if r > 0x7F {
			ascii = false
		}
		buf = append(buf, byte(r))
	}
	if ascii {
		return s
	}
	if utf8.Valid(buf) {
		return string(buf)
	}
	return s
}
