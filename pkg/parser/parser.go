// Package parser turns platform-native chat exports into ChatStats plus a
// normalized message list. Each supported platform has its own parser;
// ForPlatform picks the right one.
//
// Parsers never fail on malformed input: anything unreadable produces
// zero-valued stats and an empty message list so the rest of the pipeline
// can proceed.
package parser

import (
	"fmt"
	"strings"

	"github.com/chatlens/chatlens/pkg/chatstats"
)

// Parser converts one raw export into aggregate stats and the normalized
// messages used for chunking and retrieval.
type Parser interface {
	Parse(raw []byte) (*chatstats.ChatStats, []chatstats.NormalizedMessage, error)
}

// DefaultSystemPhrases mark a message as a platform notice rather than
// something a participant actually typed. Matching is by substring on the
// lowercased text.
var DefaultSystemPhrases = []string{
	"joined the group",
	"created the group",
	"changed the group",
	"pinned a message",
	"left the group",
	"invited",
	"banned",
}

type options struct {
	systemPhrases  []string
	apologyPhrases []string
}

// Option adjusts parser behavior.
type Option func(*options)

// WithSystemPhrases overrides the substrings used to classify system notices.
func WithSystemPhrases(phrases []string) Option {
	return func(o *options) { o.systemPhrases = phrases }
}

// WithApologyPhrases overrides the substrings used to detect apologies.
func WithApologyPhrases(phrases []string) Option {
	return func(o *options) { o.apologyPhrases = phrases }
}

func buildOptions(opts []Option) options {
	o := options{systemPhrases: DefaultSystemPhrases}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ForPlatform returns the parser for the given platform.
func ForPlatform(platform chatstats.Platform, opts ...Option) (Parser, error) {
	o := buildOptions(opts)
	switch platform {
	case chatstats.PlatformTelegram:
		return &TelegramParser{opts: o}, nil
	case chatstats.PlatformWhatsApp:
		return &WhatsAppParser{opts: o}, nil
	case chatstats.PlatformInstagram:
		return &InstagramParser{opts: o}, nil
	default:
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
}

func (o options) isSystem(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range o.systemPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// aggregate runs the records through the accumulator, applying the system
// classifier to each one first.
func (o options) aggregate(source chatstats.Platform, recs []chatstats.Record) (*chatstats.ChatStats, []chatstats.NormalizedMessage) {
	acc := chatstats.NewAccumulator(source, o.apologyPhrases)
	for _, rec := range recs {
		if !rec.System && o.isSystem(rec.Text) {
			rec.System = true
		}
		acc.Add(rec)
	}
	return acc.Finalize()
}
