package assistant

import (
	"regexp"
	"strings"
)

var (
	boxedRe   = regexp.MustCompile(`\\boxed\{(.*?)\}`)
	mathRe    = regexp.MustCompile(`\\[\[(](.*?)\\[\])]`)
	commandRe = regexp.MustCompile(`\\[a-zA-Z]+`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// CleanLaTeX strips LaTeX markup from a model reply: \boxed{x} and \(x\)
// or \[x\] keep their contents, other backslash commands are removed, and
// whitespace runs collapse to one space.
func CleanLaTeX(text string) string {
	text = boxedRe.ReplaceAllString(text, "$1")
	text = mathRe.ReplaceAllString(text, "$1")
	text = commandRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
