package assistant

type Mode string

const (
	ModeNormal Mode = "Normal"
	ModePro    Mode = "Pro"
	ModeFun    Mode = "Fun"
)

// ParseMode maps s onto a mode. Anything unrecognised is Normal.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModePro:
		return ModePro
	case ModeFun:
		return ModeFun
	default:
		return ModeNormal
	}
}

func (m Mode) Persona() string {
	switch m {
	case ModePro:
		return "You are ChatGod, a knowledgeable AI who gives detailed and accurate answers. " +
			"Focus on explaining things thoroughly but keep it simple, clean and engaging."
	case ModeFun:
		return "You are ChatGod, a dark-humored AI who roasts the user in good fun. " +
			"Keep it max 4-5 lines, use lots of roasting, and add emojis for fun."
	default:
		return "You are ChatGod, a friendly and witty AI with a desi vibe. " +
			"Focus on giving simple and fun answers with a casual tone."
	}
}
