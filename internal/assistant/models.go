package assistant

import (
	"github.com/shubham07069/chatgod/internal/apperr"
)

// Model is a supported model label with the upstream id it maps to and
// the persona it speaks with.
type Model struct {
	Label   string
	ID      string
	Persona string
}

var catalog = []Model{
	{"ChatGPT", "openai/gpt-4.1-nano", "Act like a witty and knowledgeable friend who explains things with a bit of humor. Use a cheerful tone! 😄"},
	{"Grok", "x-ai/grok-3-mini-beta", "Act like a cool, desi bhai who gives straightforward and practical advice with a touch of sarcasm. 😎"},
	{"DeepSeek", "perplexity/llama-3.1-sonar-small-128k-online", "Act like a curious and enthusiastic friend who loves digging deep into topics. Keep it exciting! 🤓"},
	{"Claude", "anthropic/claude-3.5-haiku", "Act like a wise and patient friend who explains things calmly but with a fun twist. 🧘"},
	{"MetaAI", "meta-llama/llama-4-maverick:free", "Act like a tech-savvy friend who loves breaking down complex stuff into simple bits. Use a confident tone! 💪"},
	{"Gemini", "google/gemini-2.5-flash-lite-preview-06-17", "Act like a playful and energetic friend who makes learning fun with lots of excitement. 🎉"},
}

// LookupModel returns the catalog entry for label.
func LookupModel(label string) (Model, error) {
	for _, m := range catalog {
		if m.Label == label {
			return m, nil
		}
	}
	return Model{}, apperr.Validationf("unknown model %q", label)
}

// Models lists the supported models in display order.
func Models() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}
