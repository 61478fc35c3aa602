package chatstats

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

var base = time.Date(2023, time.March, 10, 14, 0, 0, 0, time.UTC)

func textRecord(sender, text string, minutesAfterBase int) Record {
	return Record{
		Sender:    sender,
		Text:      text,
		Timestamp: base.Add(time.Duration(minutesAfterBase) * time.Minute),
	}
}

func finalize(t *testing.T, recs []Record) (*ChatStats, []NormalizedMessage) {
	t.Helper()
	acc := NewAccumulator(PlatformTelegram, nil)
	for _, r := range recs {
		acc.Add(r)
	}
	return acc.Finalize()
}

func TestTotalsMatchPerUserSums(t *testing.T) {
	stats, _ := finalize(t, []Record{
		textRecord("alice", "hello there friend", 0),
		textRecord("bob", "hi", 1),
		textRecord("alice", "how are you doing today", 2),
		textRecord("bob", "pretty good thanks", 3),
	})

	sumMessages := 0
	for _, n := range stats.MessagesByUser {
		sumMessages += n
	}
	if sumMessages != stats.TotalMessages {
		t.Errorf("messagesByUser sums to %d, totalMessages is %d", sumMessages, stats.TotalMessages)
	}

	sumWords := 0
	for _, n := range stats.WordsByUser {
		sumWords += n
	}
	if sumWords != stats.TotalWords {
		t.Errorf("wordsByUser sums to %d, totalWords is %d", sumWords, stats.TotalWords)
	}
	if stats.TotalWords != 12 {
		t.Errorf("totalWords = %d, want 12", stats.TotalWords)
	}
}

func TestSystemMessagesCountTowardTotalsOnly(t *testing.T) {
	recs := []Record{
		{Sender: "alice", Text: "alice created the group", Timestamp: base, System: true},
		{Sender: "alice", Text: "alice pinned a message", Timestamp: base.Add(time.Minute), System: true},
		{Sender: "bob", Text: "bob joined the group 🎉", Timestamp: base.Add(2 * time.Minute), System: true},
	}
	stats, messages := finalize(t, recs)

	if stats.TotalMessages != 3 {
		t.Errorf("totalMessages = %d, want 3", stats.TotalMessages)
	}
	if stats.TotalWords != 0 {
		t.Errorf("totalWords = %d, want 0", stats.TotalWords)
	}
	if len(stats.WordFrequency) != 0 {
		t.Errorf("wordFrequency has %d entries, want none", len(stats.WordFrequency))
	}
	if len(stats.EmojiFrequency) != 0 {
		t.Errorf("emojiFrequency has %d entries, want none", len(stats.EmojiFrequency))
	}
	if len(messages) != 0 {
		t.Errorf("normalized messages = %d, want none", len(messages))
	}
	if got := stats.MessagesByHour["14"]; got != 3 {
		t.Errorf("hour bucket 14 = %d, want 3", got)
	}
	if got := stats.MessagesByDay["Friday"]; got != 3 {
		t.Errorf("Friday bucket = %d, want 3", got)
	}
}

func TestUnknownSenderSkippedAndBreaksAdjacency(t *testing.T) {
	recs := []Record{
		textRecord("alice", "first", 0),
		{Text: "orphaned", Timestamp: base.Add(5 * time.Minute)},
		textRecord("bob", "second", 10),
	}
	stats, _ := finalize(t, recs)

	if stats.TotalMessages != 2 {
		t.Errorf("totalMessages = %d, want 2", stats.TotalMessages)
	}
	if len(stats.GapTrends) != 0 {
		t.Errorf("gapTrends = %v, want none: the unknown record sits between the pair", stats.GapTrends)
	}
}

func TestAlternatingTwoMinuteConversation(t *testing.T) {
	recs := make([]Record, 0, 100)
	for i := 0; i < 100; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		recs = append(recs, textRecord(sender, fmt.Sprintf("message %d", i), i*2))
	}
	stats, _ := finalize(t, recs)

	for _, user := range []string{"alice", "bob"} {
		rt := stats.ResponseTimes[user]
		if rt == nil {
			t.Fatalf("no response times for %s", user)
		}
		if rt.Longest != 2 {
			t.Errorf("%s longest = %v, want 2", user, rt.Longest)
		}
		if rt.Average != 2 {
			t.Errorf("%s average = %v, want 2", user, rt.Average)
		}
		for bucket, n := range rt.Distribution {
			if bucket == BucketUnder5 {
				continue
			}
			if n != 0 {
				t.Errorf("%s bucket %s = %d, want 0", user, bucket, n)
			}
		}
	}

	total := 0
	for _, rt := range stats.ResponseTimes {
		total += rt.Distribution[BucketUnder5]
	}
	if total != 99 {
		t.Errorf("gaps in %s = %d, want 99", BucketUnder5, total)
	}
}

func TestGapBucketBoundariesInclusive(t *testing.T) {
	recs := []Record{
		textRecord("alice", "one", 0),
		textRecord("bob", "two", 5),      // 5 min gap
		textRecord("alice", "three", 20), // 15
		textRecord("bob", "four", 50),    // 30
		textRecord("alice", "five", 110), // 60
	}
	stats, _ := finalize(t, recs)

	bob := stats.ResponseTimes["bob"]
	alice := stats.ResponseTimes["alice"]
	if bob == nil || alice == nil {
		t.Fatalf("responseTimes = %v", stats.ResponseTimes)
	}
	// Exact boundaries land in the lower bucket.
	if n := bob.Distribution[BucketUnder5]; n != 1 {
		t.Errorf("bob %s = %d, want 1 (the 5-minute gap)", BucketUnder5, n)
	}
	if n := bob.Distribution[Bucket15to30]; n != 1 {
		t.Errorf("bob %s = %d, want 1 (the 30-minute gap)", Bucket15to30, n)
	}
	if n := alice.Distribution[Bucket5to15]; n != 1 {
		t.Errorf("alice %s = %d, want 1 (the 15-minute gap)", Bucket5to15, n)
	}
	if n := alice.Distribution[Bucket30to60]; n != 1 {
		t.Errorf("alice %s = %d, want 1 (the 60-minute gap)", Bucket30to60, n)
	}
	if n := alice.Distribution[BucketOver1h] + bob.Distribution[BucketOver1h]; n != 0 {
		t.Errorf("%s = %d, want 0", BucketOver1h, n)
	}
}

func TestZeroMinuteGapCounted(t *testing.T) {
	recs := []Record{
		textRecord("alice", "ping", 0),
		textRecord("bob", "pong", 0),
	}
	stats, _ := finalize(t, recs)

	bob := stats.ResponseTimes["bob"]
	if bob == nil || bob.Distribution[BucketUnder5] != 1 {
		t.Errorf("responseTimes[bob] = %+v, want one %s gap", bob, BucketUnder5)
	}
	if len(stats.GapTrends) != 1 {
		t.Errorf("gapTrends = %v, want one entry", stats.GapTrends)
	}
}

func TestSystemNoticesBreakGapAdjacency(t *testing.T) {
	recs := []Record{
		textRecord("alice", "heading out", 0),
		{Sender: "bob", Text: "bob pinned a message", Timestamp: base.Add(2 * time.Minute), System: true},
		textRecord("bob", "ok leaving now", 4),
	}
	stats, _ := finalize(t, recs)

	if len(stats.GapTrends) != 0 {
		t.Errorf("gapTrends = %v, want none: the notice sits between the pair", stats.GapTrends)
	}
	if len(stats.BiggestGaps) != 0 {
		t.Errorf("biggestGaps = %v, want none", stats.BiggestGaps)
	}
}

func TestGapsOverOneDayDiscarded(t *testing.T) {
	recs := []Record{
		textRecord("alice", "see you tomorrow", 0),
		textRecord("bob", "sure", 25*60), // 25 hours later
		textRecord("alice", "morning", 25*60+30),
	}
	stats, _ := finalize(t, recs)

	if len(stats.GapTrends) != 1 {
		t.Fatalf("gapTrends has %d entries, want 1", len(stats.GapTrends))
	}
	if stats.GapTrends[0].Duration != 30 {
		t.Errorf("surviving gap = %v minutes, want 30", stats.GapTrends[0].Duration)
	}
	if len(stats.BiggestGaps) != 1 {
		t.Errorf("biggestGaps has %d entries, want 1", len(stats.BiggestGaps))
	}
}

func TestBiggestGapsRankedAndTrimmed(t *testing.T) {
	recs := []Record{textRecord("alice", "start", 0)}
	offset := 0
	for i := 1; i <= 12; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		offset += i * 10
		recs = append(recs, textRecord(sender, "reply", offset))
	}
	stats, _ := finalize(t, recs)

	if len(stats.BiggestGaps) != topBiggestGaps {
		t.Fatalf("biggestGaps has %d entries, want %d", len(stats.BiggestGaps), topBiggestGaps)
	}
	for i := 1; i < len(stats.BiggestGaps); i++ {
		if stats.BiggestGaps[i].Duration > stats.BiggestGaps[i-1].Duration {
			t.Fatalf("biggestGaps not sorted descending at %d: %v", i, stats.BiggestGaps)
		}
	}
	if stats.BiggestGaps[0].Duration != 120 {
		t.Errorf("largest gap = %v, want 120", stats.BiggestGaps[0].Duration)
	}
}

func TestApologyDetection(t *testing.T) {
	stats, _ := finalize(t, []Record{
		textRecord("alice", "sorry sorry sorry, I really apologize", 0), // one message, one apology
		textRecord("bob", "no worries", 1),
		textRecord("alice", "I still regret it", 2),
		textRecord("bob", "my bad too actually", 3),
	})

	if stats.SorryByUser["alice"] != 2 {
		t.Errorf("alice apologies = %d, want 2", stats.SorryByUser["alice"])
	}
	if stats.SorryByUser["bob"] != 1 {
		t.Errorf("bob apologies = %d, want 1", stats.SorryByUser["bob"])
	}
	if stats.EqualApologies {
		t.Error("equalApologies set despite a clear winner")
	}
	top := stats.MostApologeticUser
	if top == nil {
		t.Fatal("mostApologeticUser not set")
	}
	if top.User != "alice" || top.Apologies != 2 {
		t.Errorf("mostApologeticUser = %+v", top)
	}
	if top.Percentage != 67 {
		t.Errorf("percentage = %d, want 67", top.Percentage)
	}
	if top.MostCommonSorry != "sorry" {
		t.Errorf("mostCommonSorry = %q", top.MostCommonSorry)
	}
}

func TestApologyTieLeavesWinnerUnset(t *testing.T) {
	stats, _ := finalize(t, []Record{
		textRecord("alice", "sorry about that", 0),
		textRecord("bob", "forgive me as well", 1),
	})

	if !stats.EqualApologies {
		t.Error("equalApologies not set on a tie")
	}
	if stats.MostApologeticUser != nil {
		t.Errorf("mostApologeticUser = %+v, want nil on a tie", stats.MostApologeticUser)
	}
}

func TestTopWordsFilterShortTokens(t *testing.T) {
	recs := []Record{
		textRecord("alice", "go go go to the lighthouse", 0),
		textRecord("bob", "lighthouse is it the lighthouse", 1),
	}
	stats, _ := finalize(t, recs)

	for _, wc := range stats.MostUsedWords {
		if len([]rune(wc.Word)) < minRankedWordRunes {
			t.Errorf("short token %q made the ranking", wc.Word)
		}
	}
	if stats.WordFrequency["go"] != 3 {
		t.Errorf("wordFrequency[go] = %d, want 3", stats.WordFrequency["go"])
	}
	if len(stats.MostUsedWords) == 0 || stats.MostUsedWords[0].Word != "lighthouse" {
		t.Errorf("mostUsedWords = %v, want lighthouse first", stats.MostUsedWords)
	}
}

func TestLongestMessagesKeepFullText(t *testing.T) {
	long := strings.Repeat("word ", 60)
	recs := []Record{
		textRecord("alice", "short one", 0),
		textRecord("alice", long, 1),
		textRecord("alice", "medium sized message right here", 2),
		textRecord("alice", "another medium sized message here now", 3),
	}
	stats, _ := finalize(t, recs)

	list := stats.LongestMessages["alice"]
	if len(list) != longestPerUser {
		t.Fatalf("longest list has %d entries, want %d", len(list), longestPerUser)
	}
	if list[0].Length != 60 {
		t.Errorf("top length = %d, want 60", list[0].Length)
	}
	if list[0].Text != long {
		t.Error("longest message text was truncated")
	}
	if list[0].Date != "Mar 10, 2023" {
		t.Errorf("date = %q, want %q", list[0].Date, "Mar 10, 2023")
	}
}

func TestEmojiTallies(t *testing.T) {
	recs := []Record{
		textRecord("alice", "love this 😍😍", 0),
		{Sender: "bob", Timestamp: base.Add(time.Minute), Media: MediaSticker, ExtraEmojis: []string{"😍"}},
		textRecord("alice", "thanks ❤ and 🎉", 2),
	}
	stats, _ := finalize(t, recs)

	if stats.EmojiFrequency["😍"] != 3 {
		t.Errorf("😍 count = %d, want 3", stats.EmojiFrequency["😍"])
	}
	if stats.EmojiStats.ByUser["bob"]["😍"] != 1 {
		t.Errorf("bob 😍 count = %d, want 1", stats.EmojiStats.ByUser["bob"]["😍"])
	}
	if len(stats.MostUsedEmojis) == 0 || stats.MostUsedEmojis[0].Emoji != "😍" {
		t.Errorf("mostUsedEmojis = %v, want 😍 first", stats.MostUsedEmojis)
	}
	if stats.MediaStats.ByType.Stickers != 1 {
		t.Errorf("stickers = %d, want 1", stats.MediaStats.ByType.Stickers)
	}
}

func TestMediaAccounting(t *testing.T) {
	recs := []Record{
		{Sender: "alice", Timestamp: base, Media: MediaImage, FileSize: 1000},
		{Sender: "alice", Timestamp: base.Add(time.Minute), Media: MediaVideo, FileSize: 5000},
		{Sender: "bob", Timestamp: base.Add(2 * time.Minute), Media: MediaLink, Text: "https://example.com"},
	}
	stats, _ := finalize(t, recs)

	if stats.MediaStats.Total != 3 {
		t.Errorf("media total = %d, want 3", stats.MediaStats.Total)
	}
	if stats.MediaStats.TotalSize != 6000 {
		t.Errorf("media size = %d, want 6000", stats.MediaStats.TotalSize)
	}
	alice := stats.MediaStats.ByUser["alice"]
	if alice == nil || alice.Total != 2 || alice.ByType.Images != 1 || alice.ByType.Videos != 1 {
		t.Errorf("alice media = %+v", alice)
	}
	if stats.MediaStats.ByType.Links != 1 {
		t.Errorf("links = %d, want 1", stats.MediaStats.ByType.Links)
	}
}

func TestMonthsSortedChronologically(t *testing.T) {
	recs := []Record{
		{Sender: "alice", Text: "dec", Timestamp: time.Date(2022, time.December, 1, 10, 0, 0, 0, time.UTC)},
		{Sender: "alice", Text: "feb", Timestamp: time.Date(2023, time.February, 1, 10, 0, 0, 0, time.UTC)},
		{Sender: "alice", Text: "jan", Timestamp: time.Date(2023, time.January, 1, 10, 0, 0, 0, time.UTC)},
		{Sender: "alice", Text: "jan again", Timestamp: time.Date(2023, time.January, 5, 10, 0, 0, 0, time.UTC)},
	}
	stats, _ := finalize(t, recs)

	want := []MonthCount{
		{Month: "Dec 2022", Count: 1},
		{Month: "Jan 2023", Count: 2},
		{Month: "Feb 2023", Count: 1},
	}
	if len(stats.MessagesByMonth) != len(want) {
		t.Fatalf("messagesByMonth = %v, want %v", stats.MessagesByMonth, want)
	}
	for i, w := range want {
		if stats.MessagesByMonth[i] != w {
			t.Errorf("month %d = %+v, want %+v", i, stats.MessagesByMonth[i], w)
		}
	}
}

func TestEditedMessages(t *testing.T) {
	recs := []Record{
		textRecord("alice", "typo", 0),
		{Sender: "alice", Text: "fixed now", Timestamp: base.Add(time.Minute), Edited: true},
		{Sender: "bob", Text: "me too", Timestamp: base.Add(2 * time.Minute), Edited: true},
	}
	stats, _ := finalize(t, recs)

	if stats.EditedMessages.Total != 2 {
		t.Errorf("edited total = %d, want 2", stats.EditedMessages.Total)
	}
	if stats.EditedMessages.ByUser["alice"] != 1 || stats.EditedMessages.ByUser["bob"] != 1 {
		t.Errorf("edited byUser = %v", stats.EditedMessages.ByUser)
	}
}

func TestNewPreSeedsBuckets(t *testing.T) {
	s := New(PlatformWhatsApp)
	if len(s.MessagesByHour) != 24 {
		t.Errorf("hour buckets = %d, want 24", len(s.MessagesByHour))
	}
	if len(s.MessagesByDay) != 7 {
		t.Errorf("day buckets = %d, want 7", len(s.MessagesByDay))
	}
	if !s.EqualApologies {
		t.Error("equalApologies should default to true")
	}
}

func TestEmptyFallbackSentinels(t *testing.T) {
	s := Empty(PlatformTelegram)
	if s.AISummary != "No data available for AI analysis." {
		t.Errorf("aiSummary = %q", s.AISummary)
	}
	if s.RelationshipHealthScore == nil || len(s.RelationshipHealthScore.RedFlags) != 1 {
		t.Errorf("relationshipHealthScore = %+v", s.RelationshipHealthScore)
	}
	if s.CookedStatus == nil || s.CookedStatus.User != "Unknown" {
		t.Errorf("cookedStatus = %+v", s.CookedStatus)
	}
	if s.TotalMessages != 0 {
		t.Errorf("totalMessages = %d, want 0", s.TotalMessages)
	}
}

func TestNormalizedMessagesCarryISODates(t *testing.T) {
	_, messages := finalize(t, []Record{
		textRecord("alice", "dated", 0),
		{Sender: "bob", Text: "undated"},
	})
	if len(messages) != 2 {
		t.Fatalf("normalized messages = %d, want 2", len(messages))
	}
	if messages[0].Date != "2023-03-10T14:00:00Z" {
		t.Errorf("date = %q", messages[0].Date)
	}
	if messages[1].Date != "" {
		t.Errorf("undated message got date %q", messages[1].Date)
	}
}
