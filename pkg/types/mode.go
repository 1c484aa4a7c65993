package types

import "strings"

// Mode selects the search strategy used by a façade
type Mode int

const (
	ModeHybrid Mode = iota
	ModeFuzzy
	ModeSemantic
)

// ParseMode converts a mode name into a Mode. The empty string means hybrid.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return ModeHybrid, nil
	case "fuzzy":
		return ModeFuzzy, nil
	case "semantic":
		return ModeSemantic, nil
	default:
		return ModeHybrid, ErrInvalidMode
	}
}

func (m Mode) String() string {
	switch m {
	case ModeHybrid:
		return "hybrid"
	case ModeFuzzy:
		return "fuzzy"
	case ModeSemantic:
		return "semantic"
	}
	return "unknown"
}

// ModeNames lists the accepted mode names
func ModeNames() []string {
	return []string{ModeHybrid.String(), ModeFuzzy.String(), ModeSemantic.String()}
}
