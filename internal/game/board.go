// Package game implements the chess rules consumed by the analysis
// responder: FEN parsing and encoding, legal move enumeration, and move
// application for the variants played on the site.
package game

import (
	"fmt"
	"strings"
	"unicode"
)

// Piece types
const (
	Pawn   = 'P'
	Knight = 'N'
	Bishop = 'B'
	Rook   = 'R'
	Queen  = 'Q'
	King   = 'K'
)

// Board represents a chess board state. Uppercase pieces are white,
// lowercase black, 0 is empty.
type Board struct {
	Squares      [8][8]rune
	Promoted     [8][8]bool // crazyhouse: pieces that arose by promotion
	Pockets      Pockets
	Checks       *RemainingChecks
	WhiteToMove  bool
	CastleRights struct {
		WhiteKingSide  bool
		WhiteQueenSide bool
		BlackKingSide  bool
		BlackQueenSide bool
	}
	EnPassantSquare string
	HalfMoveClock   int
	FullMoveNumber  int
}

// Pockets holds the crazyhouse reserves, keyed by uppercase piece letter.
type Pockets struct {
	White map[rune]int
	Black map[rune]int
}

func (p Pockets) copy() Pockets {
	out := Pockets{}
	if p.White != nil {
		out.White = make(map[rune]int, len(p.White))
		for k, v := range p.White {
			out.White[k] = v
		}
	}
	if p.Black != nil {
		out.Black = make(map[rune]int, len(p.Black))
		for k, v := range p.Black {
			out.Black[k] = v
		}
	}
	return out
}

func (p *Pockets) add(white bool, role rune) {
	m := &p.Black
	if white {
		m = &p.White
	}
	if *m == nil {
		*m = make(map[rune]int)
	}
	(*m)[role]++
}

func (p *Pockets) take(white bool, role rune) bool {
	m := p.Black
	if white {
		m = p.White
	}
	if m[role] <= 0 {
		return false
	}
	m[role]--
	return true
}

// RemainingChecks tracks how many checks each side still has to give in
// three-check.
type RemainingChecks struct {
	White int
	Black int
}

// Position represents a square on the board.
type Position struct {
	File int // 0-7 (a-h)
	Rank int // 0-7 (1-8)
}

// Index returns the 0..63 square index (a1=0, h8=63).
func (p Position) Index() int {
	return p.Rank*8 + p.File
}

// ParsePosition converts algebraic notation (e.g., "e4") to Position.
func ParsePosition(s string) (Position, error) {
	if len(s) != 2 {
		return Position{}, fmt.Errorf("invalid position: %s", s)
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return Position{}, fmt.Errorf("invalid position: %s", s)
	}
	return Position{File: file, Rank: rank}, nil
}

// String converts Position to algebraic notation.
func (p Position) String() string {
	return fmt.Sprintf("%c%c", 'a'+p.File, '1'+p.Rank)
}

// ParseFEN parses a FEN string into a Board. Crazyhouse pockets (either the
// bracket form "...R[QPp]" or a ninth rank segment) and three-check fields
// ("3+3" remaining, or appended "+2+1" given checks) are accepted.
func ParseFEN(fen string) (*Board, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return nil, fmt.Errorf("invalid FEN: expected at least 4 fields, got %d", len(parts))
	}

	board := &Board{HalfMoveClock: 0, FullMoveNumber: 1}

	placement := parts[0]

	// Pocket in bracket form.
	if i := strings.IndexByte(placement, '['); i >= 0 {
		j := strings.IndexByte(placement, ']')
		if j < i {
			return nil, fmt.Errorf("invalid FEN: unterminated pocket")
		}
		for _, c := range placement[i+1 : j] {
			if c == '-' {
				continue
			}
			board.Pockets.add(unicode.IsUpper(c), unicode.ToUpper(c))
		}
		placement = placement[:i]
	}

	ranks := strings.Split(placement, "/")
	// Pocket as a ninth rank segment.
	if len(ranks) == 9 {
		for _, c := range ranks[8] {
			board.Pockets.add(unicode.IsUpper(c), unicode.ToUpper(c))
		}
		ranks = ranks[:8]
	}
	if len(ranks) != 8 {
		return nil, fmt.Errorf("invalid FEN: expected 8 ranks")
	}

	for r := 7; r >= 0; r-- {
		file := 0
		for _, c := range ranks[7-r] {
			switch {
			case unicode.IsDigit(c):
				file += int(c - '0')
			case c == '~':
				if file == 0 {
					return nil, fmt.Errorf("invalid FEN: stray promotion marker")
				}
				board.Promoted[r][file-1] = true
			default:
				if file > 7 {
					return nil, fmt.Errorf("invalid FEN: rank overflow")
				}
				board.Squares[r][file] = c
				file++
			}
		}
		if file != 8 {
			return nil, fmt.Errorf("invalid FEN: short rank")
		}
	}

	switch parts[1] {
	case "w":
		board.WhiteToMove = true
	case "b":
		board.WhiteToMove = false
	default:
		return nil, fmt.Errorf("invalid FEN: bad turn field %q", parts[1])
	}

	board.CastleRights.WhiteKingSide = strings.Contains(parts[2], "K")
	board.CastleRights.WhiteQueenSide = strings.Contains(parts[2], "Q")
	board.CastleRights.BlackKingSide = strings.Contains(parts[2], "k")
	board.CastleRights.BlackQueenSide = strings.Contains(parts[2], "q")

	if parts[3] != "-" {
		if _, err := ParsePosition(parts[3]); err != nil {
			return nil, fmt.Errorf("invalid FEN: bad en passant field %q", parts[3])
		}
		board.EnPassantSquare = parts[3]
	}

	var clocks []int
	for _, f := range parts[4:] {
		if strings.ContainsRune(f, '+') {
			checks, err := parseChecksField(f)
			if err != nil {
				return nil, err
			}
			board.Checks = checks
			continue
		}
		var n int
		if _, err := fmt.Sscanf(f, "%d", &n); err != nil {
			return nil, fmt.Errorf("invalid FEN: bad field %q", f)
		}
		clocks = append(clocks, n)
	}
	if len(clocks) > 0 {
		board.HalfMoveClock = clocks[0]
	}
	if len(clocks) > 1 {
		board.FullMoveNumber = clocks[1]
	}

	return board, nil
}

// parseChecksField accepts "3+3" (remaining checks) and "+2+1" (checks
// already given, out of three).
func parseChecksField(f string) (*RemainingChecks, error) {
	var w, b int
	if strings.HasPrefix(f, "+") {
		if _, err := fmt.Sscanf(f, "+%d+%d", &w, &b); err != nil {
			return nil, fmt.Errorf("invalid FEN: bad checks field %q", f)
		}
		return &RemainingChecks{White: 3 - w, Black: 3 - b}, nil
	}
	if _, err := fmt.Sscanf(f, "%d+%d", &w, &b); err != nil {
		return nil, fmt.Errorf("invalid FEN: bad checks field %q", f)
	}
	return &RemainingChecks{White: w, Black: b}, nil
}

// ToFEN converts the Board to FEN notation. Pockets are emitted in bracket
// form, remaining checks in the "3+3" form after the en passant field.
func (b *Board) ToFEN() string {
	var sb strings.Builder

	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			piece := b.Squares[r][f]
			if piece == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteRune(rune('0' + empty))
				empty = 0
			}
			sb.WriteRune(piece)
			if b.Promoted[r][f] {
				sb.WriteRune('~')
			}
		}
		if empty > 0 {
			sb.WriteRune(rune('0' + empty))
		}
		if r > 0 {
			sb.WriteRune('/')
		}
	}

	if b.Pockets.White != nil || b.Pockets.Black != nil {
		sb.WriteRune('[')
		for _, role := range []rune{Queen, Rook, Bishop, Knight, Pawn} {
			for i := 0; i < b.Pockets.White[role]; i++ {
				sb.WriteRune(role)
			}
		}
		for _, role := range []rune{Queen, Rook, Bishop, Knight, Pawn} {
			for i := 0; i < b.Pockets.Black[role]; i++ {
				sb.WriteRune(unicode.ToLower(role))
			}
		}
		sb.WriteRune(']')
	}

	if b.WhiteToMove {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}

	castling := ""
	if b.CastleRights.WhiteKingSide {
		castling += "K"
	}
	if b.CastleRights.WhiteQueenSide {
		castling += "Q"
	}
	if b.CastleRights.BlackKingSide {
		castling += "k"
	}
	if b.CastleRights.BlackQueenSide {
		castling += "q"
	}
	if castling == "" {
		castling = "-"
	}
	sb.WriteString(castling)

	sb.WriteString(" ")
	if b.EnPassantSquare != "" {
		sb.WriteString(b.EnPassantSquare)
	} else {
		sb.WriteString("-")
	}

	if b.Checks != nil {
		sb.WriteString(fmt.Sprintf(" %d+%d", b.Checks.White, b.Checks.Black))
	}

	sb.WriteString(fmt.Sprintf(" %d %d", b.HalfMoveClock, b.FullMoveNumber))

	return sb.String()
}

// GetPiece returns the piece at the given position.
func (b *Board) GetPiece(pos Position) rune {
	return b.Squares[pos.Rank][pos.File]
}

// IsWhitePiece returns true if the piece is white.
func IsWhitePiece(piece rune) bool {
	return unicode.IsUpper(piece)
}

// IsBlackPiece returns true if the piece is black.
func IsBlackPiece(piece rune) bool {
	return unicode.IsLower(piece) && piece != 0
}

// Copy returns a deep copy of the board.
func (b *Board) Copy() *Board {
	newBoard := &Board{
		WhiteToMove:     b.WhiteToMove,
		EnPassantSquare: b.EnPassantSquare,
		HalfMoveClock:   b.HalfMoveClock,
		FullMoveNumber:  b.FullMoveNumber,
		Pockets:         b.Pockets.copy(),
	}
	newBoard.CastleRights = b.CastleRights
	newBoard.Squares = b.Squares
	newBoard.Promoted = b.Promoted
	if b.Checks != nil {
		c := *b.Checks
		newBoard.Checks = &c
	}
	return newBoard
}

func (b *Board) kingPosition(white bool) (Position, bool) {
	kingPiece := 'k'
	if white {
		kingPiece = 'K'
	}
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if b.Squares[r][f] == kingPiece {
				return Position{File: f, Rank: r}, true
			}
		}
	}
	return Position{}, false
}

// IsInCheck returns true if the specified player's king is attacked. A side
// without a king (horde white, exploded atomic king) is never in check.
func (b *Board) IsInCheck(isWhite bool) bool {
	kingPos, found := b.kingPosition(isWhite)
	if !found {
		return false
	}

	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			piece := b.Squares[r][f]
			if piece == 0 || IsWhitePiece(piece) == isWhite {
				continue
			}
			from := Position{File: f, Rank: r}
			if b.canAttack(from, kingPos, piece) {
				return true
			}
		}
	}
	return false
}

func (b *Board) canAttack(from, to Position, piece rune) bool {
	pieceType := unicode.ToUpper(piece)
	isWhite := IsWhitePiece(piece)

	switch pieceType {
	case Pawn:
		direction := 1
		if !isWhite {
			direction = -1
		}
		fileDiff := abs(to.File - from.File)
		rankDiff := to.Rank - from.Rank
		return fileDiff == 1 && rankDiff == direction
	case Knight:
		return b.isValidKnightMove(from, to)
	case Bishop:
		return b.isValidBishopMove(from, to)
	case Rook:
		return b.isValidRookMove(from, to)
	case Queen:
		return b.isValidQueenMove(from, to)
	case King:
		fileDiff := abs(to.File - from.File)
		rankDiff := abs(to.Rank - from.Rank)
		return fileDiff <= 1 && rankDiff <= 1
	}
	return false
}

func (b *Board) isValidKnightMove(from, to Position) bool {
	fileDiff := abs(to.File - from.File)
	rankDiff := abs(to.Rank - from.Rank)
	return (fileDiff == 2 && rankDiff == 1) || (fileDiff == 1 && rankDiff == 2)
}

func (b *Board) isValidBishopMove(from, to Position) bool {
	fileDiff := abs(to.File - from.File)
	rankDiff := abs(to.Rank - from.Rank)
	if fileDiff != rankDiff || fileDiff == 0 {
		return false
	}
	return b.isPathClear(from, to)
}

func (b *Board) isValidRookMove(from, to Position) bool {
	if from.File != to.File && from.Rank != to.Rank {
		return false
	}
	if from == to {
		return false
	}
	return b.isPathClear(from, to)
}

func (b *Board) isValidQueenMove(from, to Position) bool {
	return b.isValidBishopMove(from, to) || b.isValidRookMove(from, to)
}

func (b *Board) isPathClear(from, to Position) bool {
	fileDir := sign(to.File - from.File)
	rankDir := sign(to.Rank - from.Rank)

	f, r := from.File+fileDir, from.Rank+rankDir
	for f != to.File || r != to.Rank {
		if b.Squares[r][f] != 0 {
			return false
		}
		f += fileDir
		r += rankDir
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	if x > 0 {
		return 1
	}
	return 0
}
