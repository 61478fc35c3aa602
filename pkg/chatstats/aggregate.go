package chatstats

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultApologyPhrases are the substrings that mark a message as an
// apology. A message counts at most once no matter how many it contains.
var DefaultApologyPhrases = []string{"sorry", "apolog", "regret", "forgive", "my bad", "my fault"}

const (
	maxGapMinutes      = 24 * 60
	topWordCount       = 10
	topEmojiCount      = 10
	topBiggestGaps     = 10
	longestPerUser     = 3
	minRankedWordRunes = 3
)

type gapAgg struct {
	sum     float64
	longest float64
	count   int
	dist    map[string]int
}

// Accumulator folds a stream of Records into a ChatStats in one forward
// pass. It is not safe for concurrent use.
type Accumulator struct {
	stats          *ChatStats
	apologyPhrases []string

	months   map[string]int
	wordSeq  map[string]int
	emojiSeq map[string]int
	seq      int

	userGaps map[string]*gapAgg

	prevSender string
	prevTime   time.Time
	prevOK     bool

	messages []NormalizedMessage
}

// NewAccumulator returns an Accumulator for the given source platform.
// A nil apologyPhrases falls back to DefaultApologyPhrases.
func NewAccumulator(source Platform, apologyPhrases []string) *Accumulator {
	if apologyPhrases == nil {
		apologyPhrases = DefaultApologyPhrases
	}
	return &Accumulator{
		stats:          New(source),
		apologyPhrases: apologyPhrases,
		months:         make(map[string]int),
		wordSeq:        make(map[string]int),
		emojiSeq:       make(map[string]int),
		userGaps:       make(map[string]*gapAgg),
	}
}

// Add folds one record into the running aggregate. Records without a
// resolvable sender are skipped entirely, though they still break the
// adjacency used for response gaps.
func (a *Accumulator) Add(rec Record) {
	hasTime := !rec.Timestamp.IsZero()

	if rec.Sender == "" {
		a.prevOK = false
		return
	}

	s := a.stats
	s.TotalMessages++
	s.MessagesByUser[rec.Sender]++

	if hasTime {
		s.MessagesByHour[strconv.Itoa(rec.Timestamp.Hour())]++
		s.MessagesByDay[rec.Timestamp.Weekday().String()]++
		a.months[rec.Timestamp.Format("2006-01")]++
	}

	// System notices never pair with a reply, they only break adjacency.
	if rec.System {
		a.prevOK = false
	} else {
		a.recordGap(rec, hasTime)
		a.prevSender = rec.Sender
		a.prevTime = rec.Timestamp
		a.prevOK = hasTime
	}

	if rec.Edited {
		s.EditedMessages.Total++
		s.EditedMessages.ByUser[rec.Sender]++
	}

	if rec.Media != MediaNone {
		a.recordMedia(rec)
	}

	// System notices count toward totals and time buckets only.
	if rec.System {
		return
	}

	if rec.Text != "" {
		a.recordText(rec)
		a.messages = append(a.messages, NormalizedMessage{
			From: rec.Sender,
			Text: rec.Text,
			Date: isoDate(rec.Timestamp),
		})
	}

	for _, e := range append(ExtractEmojis(rec.Text), rec.ExtraEmojis...) {
		a.recordEmoji(rec.Sender, e)
	}
}

func (a *Accumulator) recordGap(rec Record, hasTime bool) {
	if !a.prevOK || !hasTime || a.prevSender == rec.Sender {
		return
	}
	gap := rec.Timestamp.Sub(a.prevTime).Minutes()
	if gap < 0 || gap > maxGapMinutes {
		return
	}

	agg := a.userGaps[rec.Sender]
	if agg == nil {
		agg = &gapAgg{dist: newDistribution()}
		a.userGaps[rec.Sender] = agg
	}
	agg.sum += gap
	agg.count++
	if gap > agg.longest {
		agg.longest = gap
	}
	agg.dist[gapBucket(gap)]++

	day := rec.Timestamp.Format("2006-01-02")
	entry := GapEntry{Time: day, Duration: gap}
	a.stats.GapTrends = append(a.stats.GapTrends, entry)
	a.stats.GapAnalysis[rec.Sender] = append(a.stats.GapAnalysis[rec.Sender], entry)

	s := a.stats
	s.BiggestGaps = append(s.BiggestGaps, GapRecord{User: rec.Sender, Duration: gap, Date: day})
	sort.SliceStable(s.BiggestGaps, func(i, j int) bool {
		return s.BiggestGaps[i].Duration > s.BiggestGaps[j].Duration
	})
	if len(s.BiggestGaps) > topBiggestGaps {
		s.BiggestGaps = s.BiggestGaps[:topBiggestGaps]
	}
}

func (a *Accumulator) recordMedia(rec Record) {
	s := a.stats
	s.MediaStats.Total++
	s.MediaStats.TotalSize += rec.FileSize
	bumpBreakdown(&s.MediaStats.ByType, rec.Media)

	u := s.MediaStats.ByUser[rec.Sender]
	if u == nil {
		u = &UserMediaStats{}
		s.MediaStats.ByUser[rec.Sender] = u
	}
	u.Total++
	u.TotalSize += rec.FileSize
	bumpBreakdown(&u.ByType, rec.Media)
}

func (a *Accumulator) recordText(rec Record) {
	s := a.stats
	tokens := Tokenize(rec.Text)

	s.TotalWords += len(tokens)
	s.WordsByUser[rec.Sender] += len(tokens)

	userFreq := s.WordFrequencyByUser[rec.Sender]
	if userFreq == nil {
		userFreq = make(map[string]int)
		s.WordFrequencyByUser[rec.Sender] = userFreq
	}
	for _, tok := range tokens {
		if _, seen := s.WordFrequency[tok]; !seen {
			a.wordSeq[tok] = a.seq
			a.seq++
		}
		s.WordFrequency[tok]++
		userFreq[tok]++
	}

	a.recordLongest(rec, len(tokens))

	lower := strings.ToLower(rec.Text)
	for _, phrase := range a.apologyPhrases {
		if strings.Contains(lower, phrase) {
			s.SorryByUser[rec.Sender]++
			break
		}
	}
}

func (a *Accumulator) recordLongest(rec Record, words int) {
	if words == 0 {
		return
	}
	entry := LongMessage{Text: rec.Text, Length: words, Date: displayDate(rec.Timestamp)}
	list := append(a.stats.LongestMessages[rec.Sender], entry)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Length > list[j].Length })
	if len(list) > longestPerUser {
		list = list[:longestPerUser]
	}
	a.stats.LongestMessages[rec.Sender] = list
}

func (a *Accumulator) recordEmoji(sender, emoji string) {
	s := a.stats
	if _, seen := s.EmojiFrequency[emoji]; !seen {
		a.emojiSeq[emoji] = a.seq
		a.seq++
	}
	s.EmojiFrequency[emoji]++
	s.EmojiStats.Frequency[emoji]++

	byUser := s.EmojiStats.ByUser[sender]
	if byUser == nil {
		byUser = make(map[string]int)
		s.EmojiStats.ByUser[sender] = byUser
	}
	byUser[emoji]++
}

// Finalize derives the ranked and per-user summaries and returns the
// completed stats along with the normalized message list. The Accumulator
// must not be reused afterwards.
func (a *Accumulator) Finalize() (*ChatStats, []NormalizedMessage) {
	s := a.stats

	s.MostUsedWords = a.topWords()
	s.MostUsedEmojis = a.topEmojis()
	a.finalizeResponseTimes()
	a.finalizeMonths()
	a.finalizeApologies()

	if a.messages == nil {
		a.messages = []NormalizedMessage{}
	}
	return s, a.messages
}

func (a *Accumulator) topWords() []WordCount {
	ranked := make([]WordCount, 0, len(a.stats.WordFrequency))
	for word, count := range a.stats.WordFrequency {
		if len([]rune(word)) < minRankedWordRunes {
			continue
		}
		ranked = append(ranked, WordCount{Word: word, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return a.wordSeq[ranked[i].Word] < a.wordSeq[ranked[j].Word]
	})
	if len(ranked) > topWordCount {
		ranked = ranked[:topWordCount]
	}
	return ranked
}

func (a *Accumulator) topEmojis() []EmojiCount {
	ranked := make([]EmojiCount, 0, len(a.stats.EmojiFrequency))
	for emoji, count := range a.stats.EmojiFrequency {
		if !rankableEmoji(emoji) {
			continue
		}
		ranked = append(ranked, EmojiCount{Emoji: emoji, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return a.emojiSeq[ranked[i].Emoji] < a.emojiSeq[ranked[j].Emoji]
	})
	if len(ranked) > topEmojiCount {
		ranked = ranked[:topEmojiCount]
	}
	return ranked
}

func (a *Accumulator) finalizeResponseTimes() {
	s := a.stats
	for user := range s.MessagesByUser {
		rt := &ResponseTimeStats{Distribution: newDistribution()}
		if agg := a.userGaps[user]; agg != nil && agg.count > 0 {
			rt.Average = round1(agg.sum / float64(agg.count))
			rt.Longest = round1(agg.longest)
			rt.Distribution = agg.dist
		}
		s.ResponseTimes[user] = rt
	}
}

func (a *Accumulator) finalizeMonths() {
	keys := make([]string, 0, len(a.months))
	for k := range a.months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		display := k
		if t, err := time.Parse("2006-01", k); err == nil {
			display = t.Format("Jan 2006")
		}
		a.stats.MessagesByMonth = append(a.stats.MessagesByMonth, MonthCount{Month: display, Count: a.months[k]})
	}
}

func (a *Accumulator) finalizeApologies() {
	s := a.stats
	var top, total int
	var topUser string
	tied := false
	for user, count := range s.SorryByUser {
		total += count
		switch {
		case count > top:
			top, topUser, tied = count, user, false
		case count == top && count > 0:
			tied = true
		}
	}
	if top == 0 || tied {
		s.EqualApologies = true
		return
	}
	s.EqualApologies = false
	s.MostApologeticUser = &MostApologeticUser{
		User:            topUser,
		Apologies:       top,
		Percentage:      int(math.Round(float64(top) / float64(total) * 100)),
		MostCommonSorry: "sorry",
	}
}

func bumpBreakdown(b *MediaBreakdown, kind MediaKind) {
	switch kind {
	case MediaImage:
		b.Images++
	case MediaVideo:
		b.Videos++
	case MediaDocument:
		b.Documents++
	case MediaSticker:
		b.Stickers++
	case MediaAnimation:
		b.Animations++
	case MediaLink:
		b.Links++
	}
}

func newDistribution() map[string]int {
	return map[string]int{
		BucketUnder5: 0,
		Bucket5to15:  0,
		Bucket15to30: 0,
		Bucket30to60: 0,
		BucketOver1h: 0,
	}
}

func gapBucket(minutes float64) string {
	switch {
	case minutes <= 5:
		return BucketUnder5
	case minutes <= 15:
		return Bucket5to15
	case minutes <= 30:
		return Bucket15to30
	case minutes <= 60:
		return Bucket30to60
	default:
		return BucketOver1h
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func displayDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.Format("Jan 2, 2006")
}
