package assistant

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UntitledChat names a chat whose first message yields no usable words.
const UntitledChat = "Untitled Chat"

const (
	nameWords     = 5
	stampLayout   = "20060102_150405"
	placeholderAt = "Chat_"
)

var (
	placeholderRe = regexp.MustCompile(`^Chat_\d{8}_\d{6}$`)
	nonWordRe     = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

	upper = cases.Upper(language.Und)
	lower = cases.Lower(language.Und)
)

// PlaceholderName is the synthetic name a chat carries until its first
// reply.
func PlaceholderName(now time.Time) string {
	return placeholderAt + now.Format(stampLayout)
}

func IsPlaceholder(name string) bool {
	return placeholderRe.MatchString(name)
}

// DeriveChatName builds a chat name from the first five words of message.
func DeriveChatName(message string) string {
	words := strings.Fields(message)
	if len(words) > nameWords {
		words = words[:nameWords]
	}
	name := nonWordRe.ReplaceAllString(capitalize(strings.Join(words, " ")), "")
	name = strings.TrimSpace(name)
	if name == "" {
		return UntitledChat
	}
	return name
}

// uniqueName suffixes name with a timestamp.
func uniqueName(name string, now time.Time) string {
	return name + "_" + now.Format(stampLayout)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return upper.String(s[:size]) + lower.String(s[size:])
}
