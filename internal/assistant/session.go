package assistant

import "github.com/shubham07069/chatgod/internal/auth"

// Phase is where a session sits in the chat naming lifecycle.
type Phase int

const (
	// PhaseIdle has no active chat.
	PhaseIdle Phase = iota
	// PhaseNaming holds a placeholder name until the first reply.
	PhaseNaming
	// PhaseNamed has a derived or chosen name.
	PhaseNamed
)

func (p Phase) String() string {
	switch p {
	case PhaseNaming:
		return "naming"
	case PhaseNamed:
		return "named"
	default:
		return "idle"
	}
}

func PhaseOf(ac *auth.Context) Phase {
	switch {
	case ac == nil || ac.ChatName == "":
		return PhaseIdle
	case IsPlaceholder(ac.ChatName):
		return PhaseNaming
	default:
		return PhaseNamed
	}
}
