package roadmap

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Key is the canonical form used whenever topics or node labels are compared
// or stored as lookup keys: trimmed, inner whitespace collapsed, case-folded.
func Key(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// DisplayTopic title-cases a topic ("machine learning" -> "Machine Learning").
// Stored roadmaps use this form so two spellings of a topic share one folder.
func DisplayTopic(s string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}

// SameTopic reports whether two topic strings name the same roadmap.
func SameTopic(a, b string) bool {
	return Key(a) == Key(b)
}
