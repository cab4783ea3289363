package recurrence

import (
	"regexp"
	"strings"
)

// Match is a task text split into the pattern text and its recurrence kind.
type Match struct {
	Kind Kind
	Text string
}

type phrase struct {
	kind Kind
	re   *regexp.Regexp
}

// Order matters: "every other week" must win over "every week".
var phrases = []phrase{
	{Daily, regexp.MustCompile(`(?i)\s+every\s+day\s*$`)},
	{Biweekly, regexp.MustCompile(`(?i)\s+every\s+other\s+week\s*$`)},
	{Weekly, regexp.MustCompile(`(?i)\s+every\s+week\s*$`)},
	{Monthly, regexp.MustCompile(`(?i)\s+every\s+month\s*$`)},
	{Yearly, regexp.MustCompile(`(?i)\s+every\s+year\s*$`)},
}

// Parse detects a trailing recurrence phrase. ok is false when the text does
// not end in one of the supported phrases, or when nothing is left once the
// phrase is removed.
func Parse(text string) (m Match, ok bool) {
	if strings.TrimSpace(text) == "" {
		return Match{}, false
	}
	for _, p := range phrases {
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		stripped := strings.TrimSpace(text[:loc[0]])
		if stripped == "" {
			return Match{}, false
		}
		return Match{Kind: p.kind, Text: stripped}, true
	}
	return Match{}, false
}

// Phrase renders the trailing phrase that produces k.
func Phrase(k Kind) string {
	switch k {
	case Daily:
		return "every day"
	case Weekly:
		return "every week"
	case Biweekly:
		return "every other week"
	case Monthly:
		return "every month"
	case Yearly:
		return "every year"
	}
	return ""
}
