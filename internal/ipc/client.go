package ipc

import (
	"encoding/json"
	"fmt"

	"chess-gateway/internal/models"
)

// ClientMsg is the tagged envelope of a client-to-gateway JSON message.
// The ping lag field sits at the top level next to the tag.
type ClientMsg struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
	L *uint32         `json:"l,omitempty"`
}

// Client message tags. The taxonomy is closed; anything else is a protocol
// violation.
const (
	TagPing             = "p"
	TagNotified         = "notified"
	TagFollowingOnlines = "following_onlines"
	TagStartWatching    = "startWatching"
	TagMoveLatency      = "moveLat"
	TagOpening          = "opening"
	TagAnaDests         = "anaDests"
	TagAnaMove          = "anaMove"
	TagAnaDrop          = "anaDrop"
	TagEvalGet          = "evalGet"
	TagEvalPut          = "evalPut"
)

// KnownTag reports whether t belongs to the inbound taxonomy.
func KnownTag(t string) bool {
	switch t {
	case TagPing, TagNotified, TagFollowingOnlines, TagStartWatching,
		TagMoveLatency, TagOpening, TagAnaDests, TagAnaMove, TagAnaDrop,
		TagEvalGet, TagEvalPut:
		return true
	}
	return false
}

// ParseClientMsg decodes a client envelope and rejects unknown tags.
func ParseClientMsg(data []byte) (ClientMsg, error) {
	var msg ClientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMsg{}, err
	}
	if !KnownTag(msg.T) {
		return ClientMsg{}, fmt.Errorf("unknown tag: %q", msg.T)
	}
	return msg, nil
}

type fenData struct {
	ID  models.GameID `json:"id"`
	Fen string        `json:"fen"`
	Lm  string        `json:"lm"`
}

// FenMsg builds a {"t":"fen"} board update for one game.
func FenMsg(id models.GameID, fen, lm string) []byte {
	return Envelope("fen", fenData{ID: id, Fen: fen, Lm: lm})
}

// MlatMsg builds a {"t":"mlat"} latency update.
func MlatMsg(millis uint32) []byte {
	return Envelope("mlat", millis)
}

// Envelope builds a {"t":tag,"d":data} client-bound message. A nil data
// yields a bare {"t":tag} envelope.
func Envelope(tag string, data any) []byte {
	var msg []byte
	var err error
	if data == nil {
		msg, err = json.Marshal(struct {
			T string `json:"t"`
		}{T: tag})
	} else {
		msg, err = json.Marshal(struct {
			T string `json:"t"`
			D any    `json:"d"`
		}{T: tag, D: data})
	}
	if err != nil {
		// All envelope payloads are plain data types; this cannot fail.
		panic(fmt.Sprintf("encode %s envelope: %v", tag, err))
	}
	return msg
}

// Pong is the reply to both the "null" ping shortcut and the "p" envelope.
const Pong = "0"

// PingShortcut is the bare-string ping some clients send instead of an
// envelope.
const PingShortcut = "null"
