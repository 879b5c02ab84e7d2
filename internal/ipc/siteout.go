// Package ipc implements the wire codec between the gateway and the site
// backend. Backend-bound records travel on the "site-in" pub/sub channel,
// gateway-bound records on "site-out". Payloads of tell-* records are opaque
// and are carried as raw bytes; the gateway never re-serialises them.
package ipc

import (
	"fmt"
	"strconv"
	"strings"

	"chess-gateway/internal/models"
)

// SiteOut is a record published by the site backend on "site-out".
type SiteOut interface {
	siteOut()
}

// MoveLatency is the backend's average move latency in milliseconds. The
// backend emits it at roughly 1 Hz, so it doubles as a heartbeat.
type MoveLatency struct {
	Millis uint32
}

// Move is an authoritative board update for one game.
type Move struct {
	Game    models.GameID
	Fen     string
	LastUCI string
}

// TellUsers delivers a verbatim payload to all sockets of the listed users.
type TellUsers struct {
	Users   []models.UserID
	Payload []byte
}

// TellAll delivers a verbatim payload to every socket.
type TellAll struct {
	Payload []byte
}

// TellFlag delivers a verbatim payload to sockets subscribed to a flag.
type TellFlag struct {
	Flag    models.Flag
	Payload []byte
}

func (MoveLatency) siteOut() {}
func (Move) siteOut()        {}
func (TellUsers) siteOut()   {}
func (TellAll) siteOut()     {}
func (TellFlag) siteOut()    {}

// ParseSiteOut decodes one record from the site-out channel.
func ParseSiteOut(msg string) (SiteOut, error) {
	switch {
	case strings.HasPrefix(msg, "mlat "):
		n, err := strconv.ParseUint(msg[len("mlat "):], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("mlat: %w", err)
		}
		return MoveLatency{Millis: uint32(n)}, nil

	case strings.HasPrefix(msg, "move/"):
		// The game id is fixed width and the uci never contains a slash,
		// so the fen may contain its rank separators freely.
		rest := msg[len("move/"):]
		if len(rest) < 10 || rest[8] != '/' {
			return nil, fmt.Errorf("move: malformed record")
		}
		game, err := models.ParseGameID(rest[:8])
		if err != nil {
			return nil, fmt.Errorf("move: %w", err)
		}
		body := rest[9:]
		i := strings.LastIndexByte(body, '/')
		if i <= 0 || i == len(body)-1 {
			return nil, fmt.Errorf("move: malformed record")
		}
		return Move{Game: game, Fen: body[:i], LastUCI: body[i+1:]}, nil

	case strings.HasPrefix(msg, "tell-user/"):
		rest := msg[len("tell-user/"):]
		i := strings.IndexByte(rest, '/')
		if i <= 0 || i == len(rest)-1 {
			return nil, fmt.Errorf("tell-user: malformed record")
		}
		var users []models.UserID
		for _, raw := range strings.Split(rest[:i], ",") {
			uid, err := models.ParseUserID(raw)
			if err != nil {
				return nil, fmt.Errorf("tell-user: %w", err)
			}
			users = append(users, uid)
		}
		return TellUsers{Users: users, Payload: []byte(rest[i+1:])}, nil

	case strings.HasPrefix(msg, "tell-all/"):
		payload := msg[len("tell-all/"):]
		if payload == "" {
			return nil, fmt.Errorf("tell-all: empty payload")
		}
		return TellAll{Payload: []byte(payload)}, nil

	case strings.HasPrefix(msg, "tell-flag/"):
		rest := msg[len("tell-flag/"):]
		i := strings.IndexByte(rest, '/')
		if i <= 0 || i == len(rest)-1 {
			return nil, fmt.Errorf("tell-flag: malformed record")
		}
		flag, err := models.ParseFlag(rest[:i])
		if err != nil {
			return nil, fmt.Errorf("tell-flag: %w", err)
		}
		return TellFlag{Flag: flag, Payload: []byte(rest[i+1:])}, nil
	}
	return nil, fmt.Errorf("unknown site-out record: %q", msg)
}
