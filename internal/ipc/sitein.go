package ipc

import (
	"fmt"
	"strconv"
	"strings"

	"chess-gateway/internal/models"
)

// SiteIn is a record the gateway publishes on "site-in".
type SiteIn interface {
	siteIn()
	Encode() string
}

// Connect reports that the first socket of a user came online.
type Connect struct {
	User models.UserID
}

// Disconnect reports that the last socket of a user went offline.
type Disconnect struct {
	User models.UserID
}

// DisconnectAll is emitted once at startup so the backend can clear stale
// presence state left over from a previous gateway process.
type DisconnectAll struct{}

// Watch reports that the first watcher subscribed to a game.
type Watch struct {
	Game models.GameID
}

// Unwatch reports that the last watcher left a game.
type Unwatch struct {
	Game models.GameID
}

// Notified reports that a user viewed their notifications.
type Notified struct {
	User models.UserID
}

// Friends requests the friend-online list for a user.
type Friends struct {
	User models.UserID
}

// Lag carries a client-reported one-way latency in milliseconds.
type Lag struct {
	User   models.UserID
	Millis uint32
}

// Connections reports the current connection count, in response to each
// mlat tick.
type Connections struct {
	Count uint32
}

func (Connect) siteIn()       {}
func (Disconnect) siteIn()    {}
func (DisconnectAll) siteIn() {}
func (Watch) siteIn()         {}
func (Unwatch) siteIn()       {}
func (Notified) siteIn()      {}
func (Friends) siteIn()       {}
func (Lag) siteIn()           {}
func (Connections) siteIn()   {}

func (m Connect) Encode() string       { return "connect/" + m.User.String() }
func (m Disconnect) Encode() string    { return "disconnect/" + m.User.String() }
func (m DisconnectAll) Encode() string { return "disconnect/all" }
func (m Watch) Encode() string         { return "watch/" + m.Game.String() }
func (m Unwatch) Encode() string       { return "unwatch/" + m.Game.String() }
func (m Notified) Encode() string      { return "notified/" + m.User.String() }
func (m Friends) Encode() string       { return "friends/" + m.User.String() }

func (m Lag) Encode() string {
	return "lag/" + m.User.String() + "/" + strconv.FormatUint(uint64(m.Millis), 10)
}

func (m Connections) Encode() string {
	return "connections/" + strconv.FormatUint(uint64(m.Count), 10)
}

// ParseSiteIn decodes one backend-bound record. The gateway itself only
// encodes; the decoder keeps the codec symmetric and testable.
func ParseSiteIn(msg string) (SiteIn, error) {
	if msg == "disconnect/all" {
		return DisconnectAll{}, nil
	}
	cmd, rest, ok := strings.Cut(msg, "/")
	if !ok || rest == "" {
		return nil, fmt.Errorf("malformed site-in record: %q", msg)
	}
	switch cmd {
	case "connect":
		uid, err := models.ParseUserID(rest)
		if err != nil {
			return nil, err
		}
		return Connect{User: uid}, nil
	case "disconnect":
		uid, err := models.ParseUserID(rest)
		if err != nil {
			return nil, err
		}
		return Disconnect{User: uid}, nil
	case "watch":
		g, err := models.ParseGameID(rest)
		if err != nil {
			return nil, err
		}
		return Watch{Game: g}, nil
	case "unwatch":
		g, err := models.ParseGameID(rest)
		if err != nil {
			return nil, err
		}
		return Unwatch{Game: g}, nil
	case "notified":
		uid, err := models.ParseUserID(rest)
		if err != nil {
			return nil, err
		}
		return Notified{User: uid}, nil
	case "friends":
		uid, err := models.ParseUserID(rest)
		if err != nil {
			return nil, err
		}
		return Friends{User: uid}, nil
	case "lag":
		user, millis, ok := strings.Cut(rest, "/")
		if !ok {
			return nil, fmt.Errorf("malformed lag record: %q", msg)
		}
		uid, err := models.ParseUserID(user)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(millis, 10, 32)
		if err != nil {
			return nil, err
		}
		return Lag{User: uid, Millis: uint32(n)}, nil
	case "connections":
		n, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return nil, err
		}
		return Connections{Count: uint32(n)}, nil
	}
	return nil, fmt.Errorf("unknown site-in record: %q", msg)
}
