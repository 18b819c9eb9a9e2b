// Package tone maps the latest message of a conversation to a risk/tone label.
package tone

import (
	"strings"

	"companion/app/service/conversation"

	"github.com/elliotchance/pie/v2"
)

type Label string

const (
	Angry             Label = "angry"
	Sad               Label = "sad"
	Anxious           Label = "anxious"
	Crisis            Label = "crisis"
	NeutralOrPositive Label = "neutral_or_positive"
	Negative          Label = "negative"
)

// Rule assigns Label when the message contains any of Keywords.
type Rule struct {
	Label    Label
	Keywords []string
}

// Rules are evaluated in order, first hit wins. Crisis must stay first.
var Rules = []Rule{
	{Label: Crisis, Keywords: []string{"suicide", "self-harm", "end it all"}},
	{Label: Angry, Keywords: []string{"angry", "mad", "furious", "pissed"}},
	{Label: Sad, Keywords: []string{"sad", "depressed", "lonely", "hopeless"}},
	{Label: Anxious, Keywords: []string{"anxious", "nervous", "stressed", "panic"}},
}

var (
	positiveWords = []string{"happy", "excited", "good", "great", "relieved"}
	negativeWords = []string{"angry", "sad", "anxious", "stress", "fear"}
)

// Classify labels the conversation by its latest turn.
func Classify(turns []conversation.Turn) Label {
	return ClassifyText(conversation.Latest(turns))
}

func ClassifyText(text string) Label {
	text = strings.ToLower(text)

	idx := pie.FindFirstUsing(Rules, func(r Rule) bool {
		return containsAny(text, r.Keywords)
	})
	if idx >= 0 {
		return Rules[idx].Label
	}

	if Score(text) >= 0 {
		return NeutralOrPositive
	}

	return Negative
}

// Score is the count of positive lexicon hits minus negative ones.
func Score(text string) int {
	text = strings.ToLower(text)

	return countHits(text, positiveWords) - countHits(text, negativeWords)
}

func countHits(text string, words []string) int {
	return len(pie.Filter(words, func(w string) bool {
		return strings.Contains(text, w)
	}))
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}

	return false
}

func (l Label) String() string {
	return string(l)
}

// Labels lists every label the classifier can produce.
var Labels = []Label{Angry, Sad, Anxious, Crisis, NeutralOrPositive, Negative}

// Parse resolves a label name, ignoring case and surrounding space.
func Parse(s string) (Label, bool) {
	label := Label(strings.ToLower(strings.TrimSpace(s)))
	return label, pie.Contains(Labels, label)
}
