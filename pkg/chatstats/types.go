// Package chatstats defines the normalized statistics model for an analyzed
// chat export and the aggregation engine that produces it.
//
// Platform parsers (pkg/parser) translate their native export formats into a
// stream of Record values; the Accumulator folds that stream into a ChatStats
// in a single forward pass, with a second pass only for response-time gaps.
package chatstats

import (
	"strconv"
	"time"
)

// Platform identifies the chat export source.
type Platform string

const (
	PlatformTelegram  Platform = "telegram"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
)

// NormalizedMessage is the platform-agnostic message shape shared by the
// chunking and retrieval layers. Date is RFC 3339, or empty when the export
// carried no usable timestamp.
type NormalizedMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
	Date string `json:"date"`
}

// MediaKind is the six-bucket media taxonomy plus a none value.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
	MediaDocument
	MediaSticker
	MediaAnimation
	MediaLink
)

// Record is one raw export entry after per-platform field extraction.
// A zero Timestamp means the entry had no parseable date.
type Record struct {
	Sender    string
	Text      string
	Timestamp time.Time
	Media     MediaKind
	FileSize  int64
	Edited    bool
	System    bool
	// ExtraEmojis carries platform-specific emoji contributions that are not
	// part of the text body (sticker emoji, reaction emoji).
	ExtraEmojis []string
}

// WordCount is one entry of the top-words ranking.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// EmojiCount is one entry of the top-emojis ranking.
type EmojiCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Response-time distribution bucket labels.
const (
	BucketUnder5 = "0-5min"
	Bucket5to15  = "5-15min"
	Bucket15to30 = "15-30min"
	Bucket30to60 = "30min-1hour"
	BucketOver1h = "1hour+"
)

// ResponseTimeStats holds per-user response timing, in minutes.
type ResponseTimeStats struct {
	Average      float64        `json:"average"`
	Longest      float64        `json:"longest"`
	Distribution map[string]int `json:"distribution"`
}

// MediaBreakdown counts media by bucket.
type MediaBreakdown struct {
	Images     int `json:"images"`
	Videos     int `json:"videos"`
	Documents  int `json:"documents"`
	Stickers   int `json:"stickers"`
	Animations int `json:"animations"`
	Links      int `json:"links"`
}

// UserMediaStats is the per-user slice of MediaStats.
type UserMediaStats struct {
	Total     int            `json:"total"`
	ByType    MediaBreakdown `json:"byType"`
	TotalSize int64          `json:"totalSize"`
}

// MediaStats accounts for media messages globally and per user.
type MediaStats struct {
	Total     int                        `json:"total"`
	ByType    MediaBreakdown             `json:"byType"`
	TotalSize int64                      `json:"totalSize"`
	ByUser    map[string]*UserMediaStats `json:"byUser"`
}

// SentimentBuckets is reserved for externally-populated emoji sentiment.
type SentimentBuckets struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// EmojiStats holds emoji counters beyond the flat frequency map.
type EmojiStats struct {
	Frequency map[string]int            `json:"frequency"`
	ByUser    map[string]map[string]int `json:"byUser"`
	Sentiment SentimentBuckets          `json:"sentiment"`
}

// EditedMessages tracks message edits.
type EditedMessages struct {
	Total  int            `json:"total"`
	ByUser map[string]int `json:"byUser"`
}

// GapEntry is one response gap, Duration in minutes, Time as YYYY-MM-DD.
type GapEntry struct {
	Time     string  `json:"time"`
	Duration float64 `json:"duration"`
}

// GapRecord is one entry of the biggest-gaps ranking.
type GapRecord struct {
	User     string  `json:"user"`
	Duration float64 `json:"duration"`
	Date     string  `json:"date"`
}

// LongMessage is one entry of a user's longest-messages list. Length is in
// words; Text is the complete message, never truncated.
type LongMessage struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
	Date   string `json:"date"`
}

// MonthCount is one chronologically-ordered month bucket. Month is the
// display form ("Jan 2023"); ordering follows the underlying YYYY-MM key.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// MostApologeticUser is only set when there is a clear winner (no tie).
type MostApologeticUser struct {
	User            string `json:"user"`
	Apologies       int    `json:"apologies"`
	Percentage      int    `json:"percentage"`
	MostCommonSorry string `json:"mostCommonSorry"`
}

// HealthDetails breaks the relationship health score down by dimension.
type HealthDetails struct {
	Balance     int `json:"balance"`
	Engagement  int `json:"engagement"`
	Positivity  int `json:"positivity"`
	Consistency int `json:"consistency"`
}

// RelationshipHealthScore is populated by the insights augmenter.
type RelationshipHealthScore struct {
	Overall  int           `json:"overall"`
	Details  HealthDetails `json:"details"`
	RedFlags []string      `json:"redFlags"`
}

// InterestPercentage scores one participant's engagement.
type InterestPercentage struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

// CookedStatus is the augmenter's verdict on whether someone is cooked.
type CookedStatus struct {
	IsCooked   bool   `json:"isCooked"`
	User       string `json:"user"`
	Confidence int    `json:"confidence"`
}

// AttachmentStyle describes one participant's inferred attachment style.
type AttachmentStyle struct {
	PrimaryStyle   string `json:"primaryStyle"`
	SecondaryStyle string `json:"secondaryStyle,omitempty"`
	Confidence     int    `json:"confidence,omitempty"`
	Description    string `json:"description,omitempty"`
}

// MatchPercentage is the augmenter's overall compatibility score.
type MatchPercentage struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ChatStats is the canonical aggregate for one analysis. It is persisted as a
// single JSON value and overwritten in full on each successful parse.
type ChatStats struct {
	Source        Platform `json:"source"`
	TotalMessages int      `json:"totalMessages"`
	TotalWords    int      `json:"totalWords"`

	MessagesByUser map[string]int `json:"messagesByUser"`
	WordsByUser    map[string]int `json:"wordsByUser"`

	MostUsedWords  []WordCount  `json:"mostUsedWords"`
	MostUsedEmojis []EmojiCount `json:"mostUsedEmojis"`

	WordFrequency       map[string]int            `json:"wordFrequency"`
	WordFrequencyByUser map[string]map[string]int `json:"wordFrequencyByUser"`
	EmojiFrequency      map[string]int            `json:"emojiFrequency"`
	EmojiStats          EmojiStats                `json:"emojiStats"`

	MediaStats     MediaStats     `json:"mediaStats"`
	EditedMessages EditedMessages `json:"editedMessages"`

	ResponseTimes map[string]*ResponseTimeStats `json:"responseTimes"`
	GapTrends     []GapEntry                    `json:"gapTrends"`
	GapAnalysis   map[string][]GapEntry         `json:"gapAnalysis"`
	BiggestGaps   []GapRecord                   `json:"biggestGaps"`

	LongestMessages map[string][]LongMessage `json:"longestMessages"`

	MessagesByHour  map[string]int `json:"messagesByHour"`
	MessagesByDay   map[string]int `json:"messagesByDay"`
	MessagesByMonth []MonthCount   `json:"messagesByMonth"`

	SorryByUser        map[string]int      `json:"sorryByUser"`
	MostApologeticUser *MostApologeticUser `json:"mostApologeticUser,omitempty"`
	EqualApologies     bool                `json:"equalApologies"`

	// Qualitative fields, populated by the insights augmenter. Left unset
	// when augmentation is disabled or fails.
	AISummary               string                        `json:"aiSummary,omitempty"`
	RelationshipHealthScore *RelationshipHealthScore      `json:"relationshipHealthScore,omitempty"`
	InterestPercentage      map[string]InterestPercentage `json:"interestPercentage,omitempty"`
	CookedStatus            *CookedStatus                 `json:"cookedStatus,omitempty"`
	AttachmentStyles        map[string]AttachmentStyle    `json:"attachmentStyles,omitempty"`
	MatchPercentage         *MatchPercentage              `json:"matchPercentage,omitempty"`
}

var weekdayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// New returns a ChatStats with every counter zeroed, every map allocated,
// and the hour/weekday buckets pre-seeded.
func New(source Platform) *ChatStats {
	s := &ChatStats{
		Source:         source,
		MessagesByUser: make(map[string]int),
		WordsByUser:    make(map[string]int),
		MostUsedWords:  []WordCount{},
		MostUsedEmojis: []EmojiCount{},

		WordFrequency:       make(map[string]int),
		WordFrequencyByUser: make(map[string]map[string]int),
		EmojiFrequency:      make(map[string]int),
		EmojiStats: EmojiStats{
			Frequency: make(map[string]int),
			ByUser:    make(map[string]map[string]int),
		},

		MediaStats: MediaStats{
			ByUser: make(map[string]*UserMediaStats),
		},
		EditedMessages: EditedMessages{
			ByUser: make(map[string]int),
		},

		ResponseTimes: make(map[string]*ResponseTimeStats),
		GapTrends:     []GapEntry{},
		GapAnalysis:   make(map[string][]GapEntry),
		BiggestGaps:   []GapRecord{},

		LongestMessages: make(map[string][]LongMessage),

		MessagesByHour:  make(map[string]int, 24),
		MessagesByDay:   make(map[string]int, 7),
		MessagesByMonth: []MonthCount{},

		SorryByUser:    make(map[string]int),
		EqualApologies: true,
	}

	for hour := 0; hour < 24; hour++ {
		s.MessagesByHour[strconv.Itoa(hour)] = 0
	}
	for _, day := range weekdayNames {
		s.MessagesByDay[day] = 0
	}

	return s
}

// Empty returns the zero-valued fallback stats used when an export is
// malformed: all counters zero, qualitative fields set to explicit
// "no data" sentinels.
func Empty(source Platform) *ChatStats {
	s := New(source)
	s.AISummary = "No data available for AI analysis."
	s.RelationshipHealthScore = &RelationshipHealthScore{
		RedFlags: []string{"No data provided"},
	}
	s.CookedStatus = &CookedStatus{User: "Unknown"}
	return s
}
