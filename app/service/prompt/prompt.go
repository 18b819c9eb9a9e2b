package prompt

import (
	"strings"

	"companion/app/service/tone"

	_ "embed"
)

//go:embed system_prompt_template.txt
var systemPromptTemplate string

const (
	CrisisFlag   = "!! RED FLAG - DIRECT TO CRISIS RESOURCES !!"
	StyleCalming = "calming"
	StyleSupport = "supportive"
)

// Compose builds the system instruction for a tone. The result depends on
// the label only, conversation text never reaches it.
func Compose(label tone.Label) string {
	crisisFlag := ""
	if label == tone.Crisis {
		crisisFlag = CrisisFlag
	}

	style := StyleSupport
	if label == tone.Angry {
		style = StyleCalming
	}

	templateValues := map[string]string{
		"tone":        label.String(),
		"crisis_flag": crisisFlag,
		"style":       style,
	}

	result := systemPromptTemplate
	for key, value := range templateValues {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}

	return strings.TrimSpace(result)
}
