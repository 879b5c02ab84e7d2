// Package analysis implements the synchronous chess analysis responder:
// opening lookups, legal destination enumeration and single-step move
// application for the analysis board. Everything here is pure computation
// and runs inline in the socket handler, so it must stay cheap.
package analysis

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"chess-gateway/internal/game"
	"chess-gateway/internal/opening"
)

// VariantKey is the variant name as sent by clients.
type VariantKey string

const (
	KeyStandard      VariantKey = "standard"
	KeyFromPosition  VariantKey = "fromPosition"
	KeyChess960      VariantKey = "chess960"
	KeyAntichess     VariantKey = "antichess"
	KeyKingOfTheHill VariantKey = "kingOfTheHill"
	KeyThreeCheck    VariantKey = "threeCheck"
	KeyAtomic        VariantKey = "atomic"
	KeyHorde         VariantKey = "horde"
	KeyRacingKings   VariantKey = "racingKings"
	KeyCrazyhouse    VariantKey = "crazyhouse"
)

// Effective collapses variant keys that share classical move legality onto
// Standard. The empty key defaults to standard.
func (k VariantKey) Effective() (game.Variant, error) {
	switch k {
	case "", KeyStandard, KeyFromPosition, KeyChess960:
		return game.Standard, nil
	case KeyAntichess:
		return game.Antichess, nil
	case KeyKingOfTheHill:
		return game.KingOfTheHill, nil
	case KeyThreeCheck:
		return game.ThreeCheck, nil
	case KeyAtomic:
		return game.Atomic, nil
	case KeyHorde:
		return game.Horde, nil
	case KeyRacingKings:
		return game.RacingKings, nil
	case KeyCrazyhouse:
		return game.Crazyhouse, nil
	}
	return 0, fmt.Errorf("unknown variant: %q", k)
}

// openingSensible reports whether the variant's opening theory meaningfully
// overlaps classical chess. Opening lookups are suppressed for all others.
func openingSensible(v game.Variant) bool {
	switch v {
	case game.Standard, game.Crazyhouse, game.ThreeCheck, game.KingOfTheHill:
		return true
	}
	return false
}

// Piotr maps square index 0..63 to the 64-character destination alphabet.
func Piotr(sq int) byte {
	switch {
	case sq < 26:
		return byte('a' + sq)
	case sq < 52:
		return byte('A' + sq - 26)
	case sq < 62:
		return byte('0' + sq - 52)
	case sq == 62:
		return '!'
	default:
		return '?'
	}
}

// DestsString encodes legal moves as piotr groups: one origin character
// followed by one character per destination, groups separated by a space.
// The move list must be origin-ordered, as produced by game.LegalMoves.
func DestsString(moves []game.Move) string {
	var sb strings.Builder
	i := 0
	for i < len(moves) {
		from := moves[i].From
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(Piotr(from.Index()))
		lastTo := -1
		for i < len(moves) && moves[i].From == from {
			// Promotion choices collapse to one destination.
			if to := moves[i].To.Index(); to != lastTo {
				sb.WriteByte(Piotr(to))
				lastTo = to
			}
			i++
		}
	}
	return sb.String()
}

// dropsString encodes the legal drop squares as a piotr string.
func dropsString(drops []game.Move) string {
	var sb strings.Builder
	seen := [64]bool{}
	for _, m := range drops {
		sq := m.To.Index()
		if seen[sq] {
			continue
		}
		seen[sq] = true
		sb.WriteByte(Piotr(sq))
	}
	return sb.String()
}

var errFailure = errors.New("analysis failure")

// position parses the FEN and checks it is playable under the variant.
func position(v game.Variant, fen string) (*game.Board, error) {
	b, err := game.ParseFEN(fen)
	if err != nil {
		return nil, errFailure
	}
	whiteKing := hasKing(b, true)
	blackKing := hasKing(b, false)
	switch v {
	case game.Antichess:
		// Kings are ordinary pieces; nothing to require.
	case game.Horde:
		if !blackKing {
			return nil, errFailure
		}
	default:
		if !whiteKing || !blackKing {
			return nil, errFailure
		}
	}
	return b, nil
}

func hasKing(b *game.Board, white bool) bool {
	king := 'k'
	if white {
		king = 'K'
	}
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if b.Squares[r][f] == king {
				return true
			}
		}
	}
	return false
}

// GetOpening is the "opening" request.
type GetOpening struct {
	Variant VariantKey `json:"variant"`
	Fen     string     `json:"fen"`
	Path    string     `json:"path"`
}

// OpeningResponse answers a GetOpening hit.
type OpeningResponse struct {
	Path    string           `json:"path"`
	Opening *opening.Opening `json:"opening"`
}

// Respond returns the opening for the position, or nil when the book has no
// entry or the variant is not opening-sensible. There is no failure mode.
func (r GetOpening) Respond() *OpeningResponse {
	v, err := r.Variant.Effective()
	if err != nil || !openingSensible(v) {
		return nil
	}
	op := opening.LookupFEN(r.Fen)
	if op == nil {
		return nil
	}
	return &OpeningResponse{Path: r.Path, Opening: op}
}

// GetDests is the "anaDests" request.
type GetDests struct {
	Variant VariantKey `json:"variant"`
	Fen     string     `json:"fen"`
	Path    string     `json:"path"`
	Ch      *string    `json:"ch,omitempty"`
}

// DestsResponse answers a GetDests.
type DestsResponse struct {
	Path    string           `json:"path"`
	Dests   string           `json:"dests"`
	Opening *opening.Opening `json:"opening,omitempty"`
	Ch      *string          `json:"ch,omitempty"`
}

// Respond enumerates the legal destinations. Any parse or position error
// surfaces as a destsFailure to the client.
func (r GetDests) Respond() (*DestsResponse, error) {
	v, err := r.Variant.Effective()
	if err != nil {
		return nil, errFailure
	}
	pos, err := position(v, r.Fen)
	if err != nil {
		return nil, err
	}
	// The book lookup is attached for every variant here; the sensibility
	// gate applies to opening requests and play responses only.
	return &DestsResponse{
		Path:    r.Path,
		Dests:   DestsString(pos.LegalMoves(v)),
		Opening: opening.LookupFEN(r.Fen),
		Ch:      r.Ch,
	}, nil
}

// PlayMove is the "anaMove" request.
type PlayMove struct {
	Orig      string     `json:"orig"`
	Dest      string     `json:"dest"`
	Variant   VariantKey `json:"variant"`
	Fen       string     `json:"fen"`
	Path      string     `json:"path"`
	Promotion string     `json:"promotion,omitempty"`
	Ch        *string    `json:"ch,omitempty"`
}

// PlayDrop is the "anaDrop" request.
type PlayDrop struct {
	Role    string     `json:"role"`
	Pos     string     `json:"pos"`
	Variant VariantKey `json:"variant"`
	Fen     string     `json:"fen"`
	Path    string     `json:"path"`
	Ch      *string    `json:"ch,omitempty"`
}

// Node answers a PlayMove or PlayDrop.
type Node struct {
	Node Branch  `json:"node"`
	Path string  `json:"path"`
	Ch   *string `json:"ch,omitempty"`
}

// Branch describes the position after one analysis step.
type Branch struct {
	ID         string           `json:"id"`
	Ply        int              `json:"ply"`
	Fen        string           `json:"fen"`
	Check      bool             `json:"check"`
	Dests      string           `json:"dests"`
	Opening    *opening.Opening `json:"opening,omitempty"`
	Drops      string           `json:"drops"`
	Crazyhouse *CrazyData       `json:"crazyhouse,omitempty"`
}

// CrazyData carries the pocket contents, white first.
type CrazyData struct {
	Pockets [2]map[string]int `json:"pockets"`
}

var roleNames = map[rune]string{
	game.Pawn:   "pawn",
	game.Knight: "knight",
	game.Bishop: "bishop",
	game.Rook:   "rook",
	game.Queen:  "queen",
	game.King:   "king",
}

func roleFromString(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "pawn", "p":
		return game.Pawn, nil
	case "knight", "n":
		return game.Knight, nil
	case "bishop", "b":
		return game.Bishop, nil
	case "rook", "r":
		return game.Rook, nil
	case "queen", "q":
		return game.Queen, nil
	case "king", "k":
		return game.King, nil
	}
	return 0, fmt.Errorf("unknown role: %q", s)
}

// Respond applies the move and describes the resulting position. Illegal
// moves and unparsable positions surface as a stepFailure.
func (r PlayMove) Respond() (*Node, error) {
	v, err := r.Variant.Effective()
	if err != nil {
		return nil, errFailure
	}
	pos, err := position(v, r.Fen)
	if err != nil {
		return nil, err
	}
	from, err := game.ParsePosition(r.Orig)
	if err != nil {
		return nil, errFailure
	}
	to, err := game.ParsePosition(r.Dest)
	if err != nil {
		return nil, errFailure
	}
	var promo rune
	if r.Promotion != "" {
		promo, err = roleFromString(r.Promotion)
		if err != nil {
			return nil, errFailure
		}
	}
	m := game.Move{From: from, To: to, Promotion: promo}
	after, err := pos.Apply(v, m)
	if err != nil {
		return nil, errFailure
	}
	id := string([]byte{Piotr(from.Index()), Piotr(to.Index())})
	return node(v, after, id, r.Path, r.Ch), nil
}

// Respond places a crazyhouse drop and describes the resulting position.
func (r PlayDrop) Respond() (*Node, error) {
	v, err := r.Variant.Effective()
	if err != nil {
		return nil, errFailure
	}
	pos, err := position(v, r.Fen)
	if err != nil {
		return nil, err
	}
	role, err := roleFromString(r.Role)
	if err != nil {
		return nil, errFailure
	}
	to, err := game.ParsePosition(r.Pos)
	if err != nil {
		return nil, errFailure
	}
	m := game.Move{To: to, Drop: unicode.ToUpper(role)}
	after, err := pos.Apply(v, m)
	if err != nil {
		return nil, errFailure
	}
	id := string([]byte{byte(m.Drop), Piotr(to.Index())})
	return node(v, after, id, r.Path, r.Ch), nil
}

func node(v game.Variant, b *game.Board, id, path string, ch *string) *Node {
	fen := b.ToFEN()
	branch := Branch{
		ID:    id,
		Ply:   (b.FullMoveNumber-1)*2 + plyParity(b),
		Fen:   fen,
		Check: b.InCheck(v),
		Dests: DestsString(b.LegalMoves(v)),
		Drops: dropsString(b.LegalDrops(v)),
	}
	if openingSensible(v) {
		branch.Opening = opening.LookupFEN(fen)
	}
	if v == game.Crazyhouse {
		branch.Crazyhouse = &CrazyData{Pockets: pockets(b)}
	}
	return &Node{Node: branch, Path: path, Ch: ch}
}

func plyParity(b *game.Board) int {
	if b.WhiteToMove {
		return 0
	}
	return 1
}

func pockets(b *game.Board) [2]map[string]int {
	var out [2]map[string]int
	out[0] = make(map[string]int)
	out[1] = make(map[string]int)
	for role, n := range b.Pockets.White {
		if n > 0 {
			out[0][roleNames[role]] = n
		}
	}
	for role, n := range b.Pockets.Black {
		if n > 0 {
			out[1][roleNames[role]] = n
		}
	}
	return out
}
