package parser

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

// telegramDateLayout is the zoneless ISO form Telegram's JSON export uses.
const telegramDateLayout = "2006-01-02T15:04:05"

// TelegramParser reads the JSON produced by Telegram Desktop's
// "Export chat history" feature.
type TelegramParser struct {
	opts options
}

func (p *TelegramParser) Parse(raw []byte) (*chatstats.ChatStats, []chatstats.NormalizedMessage, error) {
	root := gjson.ParseBytes(raw)
	list := root.Get("messages")
	if !list.IsArray() {
		return chatstats.Empty(chatstats.PlatformTelegram), []chatstats.NormalizedMessage{}, nil
	}

	var recs []chatstats.Record
	list.ForEach(func(_, msg gjson.Result) bool {
		recs = append(recs, telegramRecord(msg))
		return true
	})

	stats, messages := p.opts.aggregate(chatstats.PlatformTelegram, recs)
	return stats, messages, nil
}

func telegramRecord(msg gjson.Result) chatstats.Record {
	rec := chatstats.Record{
		Sender:    msg.Get("from").String(),
		Timestamp: telegramTime(msg),
		Edited:    msg.Get("edited").Exists(),
	}

	if msg.Get("type").String() == "service" {
		rec.System = true
		if rec.Sender == "" {
			rec.Sender = msg.Get("actor").String()
		}
	}

	text, hasLink := telegramText(msg.Get("text"))
	rec.Text = text

	rec.Media, rec.FileSize = telegramMedia(msg)
	if rec.Media == chatstats.MediaNone && hasLink {
		rec.Media = chatstats.MediaLink
	}

	if e := msg.Get("sticker_emoji"); e.Exists() {
		rec.ExtraEmojis = append(rec.ExtraEmojis, e.String())
	}
	msg.Get("reactions").ForEach(func(_, r gjson.Result) bool {
		if e := r.Get("emoji"); e.Exists() {
			rec.ExtraEmojis = append(rec.ExtraEmojis, e.String())
		}
		return true
	})

	return rec
}

// telegramText flattens the text field, which is either a plain string or an
// array mixing strings with typed entity objects. It also reports whether a
// link entity was present.
func telegramText(field gjson.Result) (string, bool) {
	if field.Type == gjson.String {
		return field.String(), false
	}
	if !field.IsArray() {
		return "", false
	}
	var out []byte
	hasLink := false
	field.ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Type == gjson.String:
			out = append(out, part.String()...)
		default:
			if part.Get("type").String() == "link" {
				hasLink = true
			}
			out = append(out, part.Get("text").String()...)
		}
		return true
	})
	return string(out), hasLink
}

func telegramTime(msg gjson.Result) time.Time {
	if unix := msg.Get("date_unixtime").String(); unix != "" {
		if secs, err := strconv.ParseInt(unix, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
	}
	if t, err := time.Parse(telegramDateLayout, msg.Get("date").String()); err == nil {
		return t
	}
	return time.Time{}
}

func telegramMedia(msg gjson.Result) (chatstats.MediaKind, int64) {
	size := msg.Get("file_size").Int() + msg.Get("photo_file_size").Int()

	if msg.Get("photo").Exists() {
		return chatstats.MediaImage, size
	}
	switch msg.Get("media_type").String() {
	case "video_file", "video_message":
		return chatstats.MediaVideo, size
	case "sticker":
		return chatstats.MediaSticker, size
	case "animation":
		return chatstats.MediaAnimation, size
	case "voice_message", "audio_file":
		return chatstats.MediaDocument, size
	}
	if msg.Get("file").Exists() || msg.Get("file_name").Exists() {
		return chatstats.MediaDocument, size
	}
	return chatstats.MediaNone, 0
}
