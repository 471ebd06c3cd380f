package service

import "strings"

// Classification is the outcome of reply analysis. Polarity is in
// [-1, 1]; replies beyond ±0.3 count as positive/negative.
type Classification struct {
	Polarity   float64
	IsQuestion bool
}

// SentimentClassifier is the external NLP capability. LexiconClassifier
// is the built-in fallback when no external classifier is wired.
type SentimentClassifier interface {
	Classify(text string) Classification
}

// LexiconClassifier scores replies with a small word list. Phrases are
// matched before single words so "not interested" never counts as
// "interested".
type LexiconClassifier struct{}

var negativePhrases = []string{
	"not interested", "no thanks", "no thank you", "remove me",
	"unsubscribe", "stop contacting", "don't contact", "leave me alone",
}

var negativeWords = []string{
	"no", "never", "spam", "annoying", "stop", "decline", "pass",
}

var positiveWords = []string{
	"yes", "interested", "great", "love", "awesome", "sure", "definitely",
	"excited", "sounds good", "keen", "perfect", "absolutely",
}

func (LexiconClassifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	isQuestion := strings.Contains(text, "?")

	var pos, neg int
	for _, phrase := range negativePhrases {
		for strings.Contains(lower, phrase) {
			lower = strings.Replace(lower, phrase, " ", 1)
			neg++
		}
	}
	for _, w := range positiveWords {
		if containsWord(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if containsWord(lower, w) {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return Classification{Polarity: 0, IsQuestion: isQuestion}
	}
	return Classification{
		Polarity:   float64(pos-neg) / float64(total),
		IsQuestion: isQuestion,
	}
}

func containsWord(text, word string) bool {
	if strings.Contains(word, " ") {
		return strings.Contains(text, word)
	}
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if field == word {
			return true
		}
	}
	return false
}

var _ SentimentClassifier = LexiconClassifier{}
