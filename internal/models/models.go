package models

import "fmt"

// GameID is an 8 character game identifier. Equality is byte-exact.
type GameID string

const gameIDLength = 8

func ParseGameID(s string) (GameID, error) {
	if len(s) != gameIDLength {
		return "", fmt.Errorf("invalid game id: %q", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return "", fmt.Errorf("invalid game id: %q", s)
		}
	}
	return GameID(s), nil
}

func (g GameID) String() string {
	return string(g)
}

// UserID is a case-preserved user identifier of 1 to 30 characters.
type UserID string

func ParseUserID(s string) (UserID, error) {
	if len(s) < 1 || len(s) > 30 {
		return "", fmt.Errorf("invalid user id: %q", s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return "", fmt.Errorf("invalid user id: %q", s)
		}
	}
	return UserID(s), nil
}

func (u UserID) String() string {
	return string(u)
}

// Flag is a coarse broadcast category selected via URL query at handshake.
// The values are used as dense array indexes.
type Flag int

const (
	FlagSimul Flag = iota
	FlagTournament

	FlagCount = 2
)

func ParseFlag(s string) (Flag, error) {
	switch s {
	case "simul":
		return FlagSimul, nil
	case "tournament":
		return FlagTournament, nil
	}
	return 0, fmt.Errorf("unknown flag: %q", s)
}

func (f Flag) String() string {
	switch f {
	case FlagSimul:
		return "simul"
	case FlagTournament:
		return "tournament"
	}
	return "unknown"
}

// SocketID identifies one WebSocket connection. IDs are allocated from a
// monotonically increasing counter and never reused within a process.
type SocketID uint64
