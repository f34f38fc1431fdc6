package local

import (
	"sort"
	"strings"
)

// extractInsights derives summary, action items, key topics and sentiment
// from a transcript with plain text heuristics. No network calls.
func extractInsights(transcript string) (summary string, actionItems, keyTopics []string, sentiment string) {
	sentences := splitSentences(transcript)
	summary = leadSummary(sentences, 3)
	actionItems = findActionItems(sentences)
	keyTopics = topTopics(transcript, 5)
	sentiment = scoreSentiment(transcript)
	return summary, actionItems, keyTopics, sentiment
}

func splitSentences(text string) []string {
	var out []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(sb.String()); len(s) > 1 {
				out = append(out, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); len(s) > 1 {
		out = append(out, s)
	}
	return out
}

// leadSummary takes the opening sentences as the summary. Meeting openers
// usually state the purpose, which beats trying to be clever offline.
func leadSummary(sentences []string, n int) string {
	if len(sentences) < n {
		n = len(sentences)
	}
	return strings.Join(sentences[:n], " ")
}

// actionCues are phrases that typically introduce a commitment.
var actionCues = []string{
	"action item",
	"we will",
	"we'll",
	"i will",
	"i'll",
	"need to",
	"needs to",
	"have to",
	"todo",
	"to-do",
	"follow up",
	"follow-up",
	"by friday",
	"by monday",
	"by next week",
	"assigned to",
}

func findActionItems(sentences []string) []string {
	var out []string
	for _, s := range sentences {
		lower := strings.ToLower(s)
		for _, cue := range actionCues {
			if strings.Contains(lower, cue) {
				out = append(out, s)
				break
			}
		}
		if len(out) == 10 {
			break
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "was": true, "are": true, "have": true, "but": true,
	"you": true, "not": true, "from": true, "they": true, "will": true,
	"what": true, "all": true, "can": true, "had": true, "her": true,
	"his": true, "our": true, "out": true, "has": true, "about": true,
	"just": true, "like": true, "them": true, "then": true, "there": true,
	"were": true, "when": true, "which": true, "would": true, "been": true,
	"going": true, "think": true, "know": true, "yeah": true, "okay": true,
	"right": true, "really": true, "well": true, "also": true, "some": true,
	"more": true, "into": true, "because": true, "could": true, "should": true,
}

func topTopics(text string, n int) []string {
	counts := map[string]int{}
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,!?;:\"'()[]")
		if len(word) < 3 || stopwords[word] {
			continue
		}
		counts[word]++
	}

	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(counts))
	for w, c := range counts {
		if c > 1 {
			ranked = append(ranked, wc{w, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.word
	}
	return out
}

var positiveWords = map[string]bool{
	"great": true, "good": true, "excellent": true, "agree": true,
	"agreed": true, "perfect": true, "happy": true, "thanks": true,
	"love": true, "awesome": true, "excited": true, "progress": true,
	"success": true, "resolved": true, "approved": true,
}

var negativeWords = map[string]bool{
	"bad": true, "problem": true, "issue": true, "blocked": true,
	"concern": true, "worried": true, "fail": true, "failed": true,
	"delay": true, "delayed": true, "wrong": true, "risk": true,
	"unhappy": true, "frustrated": true, "broken": true,
}

func scoreSentiment(text string) string {
	pos, neg := 0, 0
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,!?;:\"'")
		if positiveWords[word] {
			pos++
		}
		if negativeWords[word] {
			neg++
		}
	}
	switch {
	case pos > neg*2 && pos > 0:
		return "positive"
	case neg > pos*2 && neg > 0:
		return "negative"
	default:
		return "neutral"
	}
}
