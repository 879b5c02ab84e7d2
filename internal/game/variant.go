package game

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Variant selects the rule set used for move legality. Variant keys that
// share legality with classical chess (fromPosition, chess960 analysis
// boards) collapse to Standard before reaching this package.
type Variant int

const (
	Standard Variant = iota
	Antichess
	KingOfTheHill
	ThreeCheck
	Atomic
	Horde
	RacingKings
	Crazyhouse
)

// Move is a board move or a crazyhouse drop. For drops, Drop holds the
// uppercase piece letter and To the target square; From is unused.
type Move struct {
	From      Position
	To        Position
	Promotion rune // uppercase piece letter, 0 for none
	Drop      rune // uppercase piece letter, 0 for board moves
}

// UCI renders the move in UCI notation (e2e4, e7e8q, N@f3).
func (m Move) UCI() string {
	if m.Drop != 0 {
		return fmt.Sprintf("%c@%s", m.Drop, m.To)
	}
	s := m.From.String() + m.To.String()
	if m.Promotion != 0 {
		s += string(unicode.ToLower(m.Promotion))
	}
	return s
}

// ParseUCI parses UCI notation, including crazyhouse drops.
func ParseUCI(s string) (Move, error) {
	if i := strings.IndexByte(s, '@'); i >= 0 {
		if i != 1 {
			return Move{}, fmt.Errorf("invalid uci: %s", s)
		}
		role := unicode.ToUpper(rune(s[0]))
		switch role {
		case Pawn, Knight, Bishop, Rook, Queen:
		default:
			return Move{}, fmt.Errorf("invalid uci: %s", s)
		}
		to, err := ParsePosition(s[2:])
		if err != nil {
			return Move{}, err
		}
		return Move{To: to, Drop: role}, nil
	}
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid uci: %s", s)
	}
	from, err := ParsePosition(s[:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParsePosition(s[2:4])
	if err != nil {
		return Move{}, err
	}
	var promo rune
	if len(s) == 5 {
		promo = unicode.ToUpper(rune(s[4]))
		switch promo {
		case Queen, Rook, Bishop, Knight, King:
		default:
			return Move{}, fmt.Errorf("invalid uci: %s", s)
		}
	}
	return Move{From: from, To: to, Promotion: promo}, nil
}

// ErrIllegalMove is returned by Apply for moves outside the legal set.
var ErrIllegalMove = errors.New("illegal move")

// LegalMoves enumerates the legal board moves (drops excluded) for the side
// to move, in origin-square then target-square order.
func (b *Board) LegalMoves(v Variant) []Move {
	us := b.WhiteToMove
	var moves []Move
	anyCapture := false

	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			piece := b.Squares[r][f]
			if piece == 0 || IsWhitePiece(piece) != us {
				continue
			}
			from := Position{File: f, Rank: r}
			pieceType := unicode.ToUpper(piece)

			for tr := 0; tr < 8; tr++ {
				for tf := 0; tf < 8; tf++ {
					to := Position{File: tf, Rank: tr}
					if to == from {
						continue
					}
					dest := b.GetPiece(to)
					if dest != 0 && IsWhitePiece(dest) == us {
						continue
					}
					// Atomic kings cannot capture: they would
					// destroy themselves in the blast.
					if v == Atomic && pieceType == King && dest != 0 {
						continue
					}
					if !b.validPieceMove(v, from, to) {
						continue
					}

					for _, promo := range promotions(v, piece, to) {
						m := Move{From: from, To: to, Promotion: promo}
						if !b.moveLegal(v, m) {
							continue
						}
						if m.isCapture(b) {
							anyCapture = true
						}
						moves = append(moves, m)
					}
				}
			}
		}
	}

	// Antichess: capturing is compulsory when possible.
	if v == Antichess && anyCapture {
		captures := moves[:0]
		for _, m := range moves {
			if m.isCapture(b) {
				captures = append(captures, m)
			}
		}
		moves = captures
	}

	return moves
}

// LegalDrops enumerates the legal crazyhouse drops for the side to move.
// Empty for all other variants.
func (b *Board) LegalDrops(v Variant) []Move {
	if v != Crazyhouse {
		return nil
	}
	us := b.WhiteToMove
	pocket := b.Pockets.Black
	if us {
		pocket = b.Pockets.White
	}

	var moves []Move
	for _, role := range []rune{Pawn, Knight, Bishop, Rook, Queen} {
		if pocket[role] <= 0 {
			continue
		}
		for r := 0; r < 8; r++ {
			if role == Pawn && (r == 0 || r == 7) {
				continue
			}
			for f := 0; f < 8; f++ {
				if b.Squares[r][f] != 0 {
					continue
				}
				m := Move{To: Position{File: f, Rank: r}, Drop: role}
				if !b.applyUnchecked(v, m).IsInCheck(us) {
					moves = append(moves, m)
				}
			}
		}
	}
	return moves
}

// Apply plays one legal move or drop and returns the resulting board. A
// promoting pawn move without an explicit promotion promotes to queen.
func (b *Board) Apply(v Variant, m Move) (*Board, error) {
	if m.Drop == 0 {
		piece := b.GetPiece(m.From)
		if unicode.ToUpper(piece) == Pawn && (m.To.Rank == 0 || m.To.Rank == 7) && m.Promotion == 0 {
			m.Promotion = Queen
		}
		for _, lm := range b.LegalMoves(v) {
			if lm == m {
				return b.applyUnchecked(v, m), nil
			}
		}
		return nil, ErrIllegalMove
	}
	for _, lm := range b.LegalDrops(v) {
		if lm == m {
			return b.applyUnchecked(v, m), nil
		}
	}
	return nil, ErrIllegalMove
}

// InCheck reports whether the side to move stands in check under the
// variant's rules.
func (b *Board) InCheck(v Variant) bool {
	switch v {
	case Antichess:
		return false
	case Atomic:
		return b.atomicInCheck(b.WhiteToMove)
	default:
		return b.IsInCheck(b.WhiteToMove)
	}
}

func (m Move) isCapture(b *Board) bool {
	if m.Drop != 0 {
		return false
	}
	if b.GetPiece(m.To) != 0 {
		return true
	}
	return unicode.ToUpper(b.GetPiece(m.From)) == Pawn && m.To.String() == b.EnPassantSquare
}

func promotions(v Variant, piece rune, to Position) []rune {
	if unicode.ToUpper(piece) != Pawn || (to.Rank != 0 && to.Rank != 7) {
		return []rune{0}
	}
	if v == Antichess {
		return []rune{Queen, Rook, Bishop, Knight, King}
	}
	return []rune{Queen, Rook, Bishop, Knight}
}

// moveLegal applies the variant's own-safety rules to a geometrically valid
// candidate move.
func (b *Board) moveLegal(v Variant, m Move) bool {
	us := b.WhiteToMove
	switch v {
	case Antichess:
		// No check concept; capture compulsion is applied on the full set.
		return true
	case Atomic:
		after := b.applyUnchecked(v, m)
		if _, ok := after.kingPosition(us); !ok {
			return false
		}
		if _, ok := after.kingPosition(!us); !ok {
			// Exploding the enemy king wins on the spot.
			return true
		}
		return !after.atomicInCheck(us)
	case RacingKings:
		// Giving check is forbidden, as is leaving one's own king in check.
		after := b.applyUnchecked(v, m)
		return !after.IsInCheck(us) && !after.IsInCheck(!us)
	default:
		return !b.applyUnchecked(v, m).IsInCheck(us)
	}
}

// atomicInCheck is check detection with the atomic adjacency rule: touching
// kings cannot be in check.
func (b *Board) atomicInCheck(white bool) bool {
	wk, okW := b.kingPosition(true)
	bk, okB := b.kingPosition(false)
	if okW && okB && abs(wk.File-bk.File) <= 1 && abs(wk.Rank-bk.Rank) <= 1 {
		return false
	}
	return b.IsInCheck(white)
}

// validPieceMove checks piece geometry and path, without king-safety rules.
func (b *Board) validPieceMove(v Variant, from, to Position) bool {
	piece := b.GetPiece(from)
	isWhite := IsWhitePiece(piece)

	switch unicode.ToUpper(piece) {
	case Pawn:
		return b.isValidPawnMove(v, from, to, isWhite)
	case Knight:
		return b.isValidKnightMove(from, to)
	case Bishop:
		return b.isValidBishopMove(from, to)
	case Rook:
		return b.isValidRookMove(from, to)
	case Queen:
		return b.isValidQueenMove(from, to)
	case King:
		return b.isValidKingMove(v, from, to, isWhite)
	}
	return false
}

func (b *Board) isValidPawnMove(v Variant, from, to Position, isWhite bool) bool {
	direction := 1
	startRank := 1
	if !isWhite {
		direction = -1
		startRank = 6
	}

	fileDiff := to.File - from.File
	rankDiff := to.Rank - from.Rank

	// Forward move
	if fileDiff == 0 {
		if rankDiff == direction && b.GetPiece(to) == 0 {
			return true
		}
		doubleOK := from.Rank == startRank
		// Horde pawns start on the back rank and may double-move from it.
		if v == Horde && ((isWhite && from.Rank == 0) || (!isWhite && from.Rank == 7)) {
			doubleOK = true
		}
		if doubleOK && rankDiff == 2*direction {
			midPos := Position{File: from.File, Rank: from.Rank + direction}
			if b.GetPiece(midPos) == 0 && b.GetPiece(to) == 0 {
				return true
			}
		}
	}

	// Capture
	if abs(fileDiff) == 1 && rankDiff == direction {
		destPiece := b.GetPiece(to)
		if destPiece != 0 && IsWhitePiece(destPiece) != isWhite {
			return true
		}
		if to.String() == b.EnPassantSquare {
			return true
		}
	}

	return false
}

func (b *Board) isValidKingMove(v Variant, from, to Position, isWhite bool) bool {
	fileDiff := abs(to.File - from.File)
	rankDiff := abs(to.Rank - from.Rank)

	// Normal king move
	if fileDiff <= 1 && rankDiff <= 1 {
		return true
	}

	// Castling. Antichess has none; racing kings carries no rights.
	if v == Antichess {
		return false
	}
	if rankDiff == 0 && fileDiff == 2 {
		if isWhite && from.Rank == 0 {
			if to.File == 6 && b.CastleRights.WhiteKingSide {
				return b.canCastle(from, to, isWhite)
			}
			if to.File == 2 && b.CastleRights.WhiteQueenSide {
				return b.canCastle(from, to, isWhite)
			}
		} else if !isWhite && from.Rank == 7 {
			if to.File == 6 && b.CastleRights.BlackKingSide {
				return b.canCastle(from, to, isWhite)
			}
			if to.File == 2 && b.CastleRights.BlackQueenSide {
				return b.canCastle(from, to, isWhite)
			}
		}
	}

	return false
}

func (b *Board) canCastle(from, to Position, isWhite bool) bool {
	if b.IsInCheck(isWhite) {
		return false
	}
	if b.GetPiece(to) != 0 {
		return false
	}

	direction := 1
	if to.File < from.File {
		direction = -1
	}

	for f := from.File + direction; f != to.File; f += direction {
		pos := Position{File: f, Rank: from.Rank}
		if b.GetPiece(pos) != 0 {
			return false
		}
		tempBoard := b.Copy()
		tempBoard.Squares[from.Rank][from.File] = 0
		tempBoard.Squares[pos.Rank][pos.File] = b.GetPiece(from)
		if tempBoard.IsInCheck(isWhite) {
			return false
		}
	}

	// Queen-side: the b-file square must be clear even though the king
	// does not cross it.
	if direction == -1 {
		if b.Squares[from.Rank][1] != 0 {
			return false
		}
	}

	rookFile := 7
	if direction == -1 {
		rookFile = 0
	}
	expectedRook := 'R'
	if !isWhite {
		expectedRook = 'r'
	}
	return b.Squares[from.Rank][rookFile] == expectedRook
}

// applyUnchecked plays a move without legality checks, handling castling,
// en passant, promotion, pockets, explosions and check counting.
func (b *Board) applyUnchecked(v Variant, m Move) *Board {
	nb := b.Copy()
	white := b.WhiteToMove
	nb.EnPassantSquare = ""

	if m.Drop != 0 {
		piece := m.Drop
		if !white {
			piece = unicode.ToLower(m.Drop)
		}
		nb.Squares[m.To.Rank][m.To.File] = piece
		nb.Pockets.take(white, m.Drop)
		if m.Drop == Pawn {
			nb.HalfMoveClock = 0
		} else {
			nb.HalfMoveClock++
		}
		if !white {
			nb.FullMoveNumber++
		}
		nb.WhiteToMove = !white
		nb.noteCheckGiven(v, white)
		return nb
	}

	piece := nb.Squares[m.From.Rank][m.From.File]
	pieceType := unicode.ToUpper(piece)

	captured := nb.Squares[m.To.Rank][m.To.File]
	capturedPromoted := nb.Promoted[m.To.Rank][m.To.File]

	// En passant capture
	if pieceType == Pawn && m.To.String() == b.EnPassantSquare {
		captureRank := m.To.Rank
		if white {
			captureRank--
		} else {
			captureRank++
		}
		captured = nb.Squares[captureRank][m.To.File]
		capturedPromoted = nb.Promoted[captureRank][m.To.File]
		nb.Squares[captureRank][m.To.File] = 0
		nb.Promoted[captureRank][m.To.File] = false
	}

	// Castling rook shuffle
	if pieceType == King && abs(m.To.File-m.From.File) == 2 {
		if m.To.File == 6 {
			nb.Squares[m.From.Rank][5] = nb.Squares[m.From.Rank][7]
			nb.Squares[m.From.Rank][7] = 0
		} else {
			nb.Squares[m.From.Rank][3] = nb.Squares[m.From.Rank][0]
			nb.Squares[m.From.Rank][0] = 0
		}
	}

	movedPromoted := nb.Promoted[m.From.Rank][m.From.File]
	nb.Squares[m.To.Rank][m.To.File] = piece
	nb.Squares[m.From.Rank][m.From.File] = 0
	nb.Promoted[m.To.Rank][m.To.File] = movedPromoted
	nb.Promoted[m.From.Rank][m.From.File] = false

	// Promotion
	if pieceType == Pawn && (m.To.Rank == 7 || m.To.Rank == 0) {
		promo := m.Promotion
		if promo == 0 {
			promo = Queen
		}
		if white {
			nb.Squares[m.To.Rank][m.To.File] = promo
		} else {
			nb.Squares[m.To.Rank][m.To.File] = unicode.ToLower(promo)
		}
		if v == Crazyhouse {
			nb.Promoted[m.To.Rank][m.To.File] = true
		}
	}

	// Crazyhouse: captured pieces switch sides; promoted ones revert to pawns.
	if v == Crazyhouse && captured != 0 {
		role := unicode.ToUpper(captured)
		if capturedPromoted {
			role = Pawn
		}
		nb.Pockets.add(white, role)
	}

	// Atomic: every capture detonates, removing the capturing piece and all
	// adjacent non-pawn pieces.
	if v == Atomic && captured != 0 {
		nb.explode(m.To)
	}

	// New en passant square
	if pieceType == Pawn && abs(m.To.Rank-m.From.Rank) == 2 {
		epRank := (m.From.Rank + m.To.Rank) / 2
		nb.EnPassantSquare = fmt.Sprintf("%c%c", 'a'+m.To.File, '1'+epRank)
	}

	nb.updateCastleRights(pieceType, white, m)

	if pieceType == Pawn || captured != 0 {
		nb.HalfMoveClock = 0
	} else {
		nb.HalfMoveClock++
	}
	if !white {
		nb.FullMoveNumber++
	}

	nb.WhiteToMove = !white
	nb.noteCheckGiven(v, white)
	return nb
}

// explode removes the piece on sq and every adjacent non-pawn piece.
func (b *Board) explode(sq Position) {
	b.Squares[sq.Rank][sq.File] = 0
	b.Promoted[sq.Rank][sq.File] = false
	for dr := -1; dr <= 1; dr++ {
		for df := -1; df <= 1; df++ {
			r, f := sq.Rank+dr, sq.File+df
			if r < 0 || r > 7 || f < 0 || f > 7 {
				continue
			}
			piece := b.Squares[r][f]
			if piece == 0 || unicode.ToUpper(piece) == Pawn {
				continue
			}
			b.Squares[r][f] = 0
			b.Promoted[r][f] = false
		}
	}
	// Exploded rooks and kings forfeit castling rights.
	if b.Squares[0][4] != 'K' {
		b.CastleRights.WhiteKingSide = false
		b.CastleRights.WhiteQueenSide = false
	}
	if b.Squares[7][4] != 'k' {
		b.CastleRights.BlackKingSide = false
		b.CastleRights.BlackQueenSide = false
	}
	if b.Squares[0][7] != 'R' {
		b.CastleRights.WhiteKingSide = false
	}
	if b.Squares[0][0] != 'R' {
		b.CastleRights.WhiteQueenSide = false
	}
	if b.Squares[7][7] != 'r' {
		b.CastleRights.BlackKingSide = false
	}
	if b.Squares[7][0] != 'r' {
		b.CastleRights.BlackQueenSide = false
	}
}

func (b *Board) updateCastleRights(pieceType rune, white bool, m Move) {
	if pieceType == King {
		if white {
			b.CastleRights.WhiteKingSide = false
			b.CastleRights.WhiteQueenSide = false
		} else {
			b.CastleRights.BlackKingSide = false
			b.CastleRights.BlackQueenSide = false
		}
	}
	corners := []struct {
		pos  Position
		flag *bool
	}{
		{Position{File: 0, Rank: 0}, &b.CastleRights.WhiteQueenSide},
		{Position{File: 7, Rank: 0}, &b.CastleRights.WhiteKingSide},
		{Position{File: 0, Rank: 7}, &b.CastleRights.BlackQueenSide},
		{Position{File: 7, Rank: 7}, &b.CastleRights.BlackKingSide},
	}
	for _, c := range corners {
		if m.From == c.pos || m.To == c.pos {
			*c.flag = false
		}
	}
}

func (b *Board) noteCheckGiven(v Variant, byWhite bool) {
	if v != ThreeCheck || b.Checks == nil {
		return
	}
	if b.IsInCheck(!byWhite) {
		if byWhite {
			b.Checks.White--
		} else {
			b.Checks.Black--
		}
	}
}
