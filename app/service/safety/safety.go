package safety

import (
	"regexp"

	"github.com/elliotchance/pie/v2"
)

// CrisisResponse replaces any draft that matched a crisis pattern.
const CrisisResponse = "I'm deeply concerned. Please contact the 24/7 Suicide & Crisis Lifeline at 988 or visit 988lifeline.org immediately."

// CrisisPatterns are checked in order against the draft and the user's last message.
var CrisisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)suicid(e|al)`),
	regexp.MustCompile(`(?i)self[\s-]?harm`),
	regexp.MustCompile(`(?i)cutting|burning`),
	regexp.MustCompile(`(?i)overdose`),
	regexp.MustCompile(`(?i)kill\s(my)?self`),
	regexp.MustCompile(`(?i)(end\s?it\s?all)`),
}

type Result struct {
	Text      string
	Triggered bool
}

// Check returns the draft unchanged unless either input matches a crisis
// pattern, in which case the whole draft is swapped for CrisisResponse.
func Check(draft, lastUserMessage string) Result {
	if Matches(draft) || Matches(lastUserMessage) {
		return Result{Text: CrisisResponse, Triggered: true}
	}

	return Result{Text: draft}
}

func Matches(text string) bool {
	return pie.FindFirstUsing(CrisisPatterns, func(p *regexp.Regexp) bool {
		return p.MatchString(text)
	}) >= 0
}
