package assistant

import (
	"fmt"
	"strings"

	"github.com/shubham07069/chatgod/internal/models"
)

const styleRules = "Answer in a casual, conversational tone using simple language and Hindi slang like 'bhai' and 'dhang se'. " +
	"Use Markdown formatting for better readability:\n" +
	"- Use ## for headings\n" +
	"- Use **bold** for emphasis\n" +
	"- Use *italic* for subtle emphasis\n" +
	"- Use - for bullet points\n" +
	"- Use ```code``` for code blocks\n" +
	"Break your answers into small paragraphs for easy reading. " +
	"Add emojis to make it fun 😎🚀. " +
	"Keep replies engaging, like you're talking to a friend. "

const transcriptIntro = "Here is the user's chat history to provide context:\n"

// BuildSystemPrompt assembles the mode persona, the model persona, the
// shared style rules and the transcript, in that order.
func BuildSystemPrompt(mode Mode, model Model, transcript string) string {
	var b strings.Builder
	b.WriteString(mode.Persona())
	b.WriteByte('\n')
	b.WriteString(model.Persona)
	b.WriteByte('\n')
	b.WriteString(styleRules)
	b.WriteString(transcriptIntro)
	b.WriteString(transcript)
	return b.String()
}

// RenderTranscript renders turns, oldest first, as a User/Bot transcript.
func RenderTranscript(turns []models.ChatTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nBot: %s\n", t.UserMessage, t.BotReply)
	}
	return b.String()
}
