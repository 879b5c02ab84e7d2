package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func mustFEN(t *testing.T, fen string) *Board {
	t.Helper()
	b, err := ParseFEN(fen)
	require.NoError(t, err)
	return b
}

func mustUCI(t *testing.T, s string) Move {
	t.Helper()
	m, err := ParseUCI(s)
	require.NoError(t, err)
	return m
}

func TestParseFENRoundTrip(t *testing.T) {
	b := mustFEN(t, startFEN)
	assert.Equal(t, startFEN, b.ToFEN())

	after := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	assert.Equal(t, after, mustFEN(t, after).ToFEN())
}

func TestParseFENPockets(t *testing.T) {
	b := mustFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR[Qp] w KQkq - 0 1")
	assert.Equal(t, 1, b.Pockets.White[Queen])
	assert.Equal(t, 1, b.Pockets.Black[Pawn])

	// Ninth-rank pocket form normalises to the bracket form on output.
	b = mustFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR/Qp w KQkq - 0 1")
	assert.Equal(t, 1, b.Pockets.White[Queen])
	assert.Contains(t, b.ToFEN(), "[Qp]")
}

func TestParseFENChecks(t *testing.T) {
	b := mustFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 3+3 0 1")
	require.NotNil(t, b.Checks)
	assert.Equal(t, 3, b.Checks.White)

	// "+2+1" counts checks already given out of three.
	b = mustFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - +2+1 0 1")
	require.NotNil(t, b.Checks)
	assert.Equal(t, 1, b.Checks.White)
	assert.Equal(t, 2, b.Checks.Black)
}

func TestParseFENRejectsGarbage(t *testing.T) {
	for _, fen := range []string{
		"",
		"rnbqkbnr/pppppppp w KQkq -",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNRR w KQkq - 0 1",
	} {
		_, err := ParseFEN(fen)
		assert.Error(t, err, fen)
	}
}

func TestStartPositionHasTwentyMoves(t *testing.T) {
	b := mustFEN(t, startFEN)
	assert.Len(t, b.LegalMoves(Standard), 20)
}

func TestApplyPawnDoubleMove(t *testing.T) {
	b := mustFEN(t, startFEN)
	after, err := b.Apply(Standard, mustUCI(t, "e2e4"))
	require.NoError(t, err)
	assert.Equal(t,
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		after.ToFEN())
	assert.False(t, after.WhiteToMove)
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	b := mustFEN(t, startFEN)
	_, err := b.Apply(Standard, mustUCI(t, "e2e5"))
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = b.Apply(Standard, mustUCI(t, "e1e2"))
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestCannotLeaveKingInCheck(t *testing.T) {
	// White king on e1 faces the black rook on e8; the rook on e2 is pinned.
	b := mustFEN(t, "4r3/8/8/8/8/8/4R3/4K3 w - - 0 1")
	_, err := b.Apply(Standard, mustUCI(t, "e2d2"))
	assert.ErrorIs(t, err, ErrIllegalMove)

	// Moving along the pin stays legal.
	_, err = b.Apply(Standard, mustUCI(t, "e2e4"))
	assert.NoError(t, err)
}

func TestCheckDetection(t *testing.T) {
	b := mustFEN(t, "4r3/8/8/8/8/8/8/4K3 w - - 0 1")
	assert.True(t, b.InCheck(Standard))

	b = mustFEN(t, startFEN)
	assert.False(t, b.InCheck(Standard))
}

func TestEnPassantCapture(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/4pP2/8/8/4K3 b - f3 0 1")
	after, err := b.Apply(Standard, mustUCI(t, "e4f3"))
	require.NoError(t, err)
	assert.Equal(t, rune(0), after.GetPiece(Position{File: 5, Rank: 3}),
		"the captured pawn leaves f4")
	assert.Equal(t, 'p', after.GetPiece(Position{File: 5, Rank: 2}))
}

func TestCastling(t *testing.T) {
	b := mustFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	after, err := b.Apply(Standard, mustUCI(t, "e1g1"))
	require.NoError(t, err)
	assert.Equal(t, 'K', after.GetPiece(Position{File: 6, Rank: 0}))
	assert.Equal(t, 'R', after.GetPiece(Position{File: 5, Rank: 0}))
	assert.False(t, after.CastleRights.WhiteKingSide)
	assert.False(t, after.CastleRights.WhiteQueenSide)

	// No castling out of check.
	b = mustFEN(t, "r3k2r/8/8/8/8/8/5q2/R3K2R w KQkq - 0 1")
	_, err = b.Apply(Standard, mustUCI(t, "e1g1"))
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	b := mustFEN(t, "4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	after, err := b.Apply(Standard, Move{From: Position{File: 0, Rank: 6}, To: Position{File: 0, Rank: 7}})
	require.NoError(t, err)
	assert.Equal(t, 'Q', after.GetPiece(Position{File: 0, Rank: 7}))

	after, err = b.Apply(Standard, mustUCI(t, "a7a8n"))
	require.NoError(t, err)
	assert.Equal(t, 'N', after.GetPiece(Position{File: 0, Rank: 7}))
}

func TestAntichessCaptureCompulsion(t *testing.T) {
	// The white pawn can capture, so every legal move is a capture.
	b := mustFEN(t, "8/8/8/3p4/4P3/8/8/8 w - - 0 1")
	moves := b.LegalMoves(Antichess)
	require.NotEmpty(t, moves)
	for _, m := range moves {
		assert.True(t, m.isCapture(b), m.UCI())
	}

	_, err := b.Apply(Antichess, mustUCI(t, "e4e5"))
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = b.Apply(Antichess, mustUCI(t, "e4d5"))
	assert.NoError(t, err)
}

func TestAntichessKingPromotion(t *testing.T) {
	b := mustFEN(t, "8/P7/8/8/8/8/8/8 w - - 0 1")
	after, err := b.Apply(Antichess, mustUCI(t, "a7a8k"))
	require.NoError(t, err)
	assert.Equal(t, 'K', after.GetPiece(Position{File: 0, Rank: 7}))
}

func TestAtomicCaptureExplodes(t *testing.T) {
	// Qxd5 detonates: the queen and the adjacent knight vanish, pawns survive.
	b := mustFEN(t, "4k3/8/8/3n4/3QN3/3P4/8/4K3 w - - 0 1")
	after, err := b.Apply(Atomic, Move{From: Position{File: 3, Rank: 3}, To: Position{File: 3, Rank: 4}})
	require.NoError(t, err)
	assert.Equal(t, rune(0), after.GetPiece(Position{File: 3, Rank: 4}), "queen exploded")
	assert.Equal(t, rune(0), after.GetPiece(Position{File: 4, Rank: 3}), "knight exploded")
	assert.Equal(t, 'P', after.GetPiece(Position{File: 3, Rank: 2}), "pawn survives the blast")
}

func TestAtomicKingsCannotCapture(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/8/8/3p4/4K3 w - - 0 1")
	_, err := b.Apply(Atomic, mustUCI(t, "e1d2"))
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestAtomicAdjacentKingsNoCheck(t *testing.T) {
	// The rook on h2 gives check under classical rules.
	b := mustFEN(t, "8/8/8/8/8/4k3/4K2r/8 w - - 0 1")
	assert.True(t, b.IsInCheck(true))
	assert.False(t, b.InCheck(Atomic), "touching kings shield each other")
}

func TestRacingKingsNoChecksAllowed(t *testing.T) {
	// Qa1-e5+ would check the black king on e8 and is forbidden.
	b := mustFEN(t, "4k3/8/8/8/8/8/8/Q3K3 w - - 0 1")
	_, err := b.Apply(RacingKings, mustUCI(t, "a1e5"))
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = b.Apply(RacingKings, mustUCI(t, "a1b2"))
	assert.NoError(t, err)
}

func TestHordeBackRankPawnDoubleMove(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/8/8/8/P7 w - - 0 1")
	_, err := b.Apply(Horde, mustUCI(t, "a1a3"))
	assert.NoError(t, err, "horde pawns may double-move from the first rank")

	_, err = mustFEN(t, "4k3/8/8/8/8/8/8/P7 w - - 0 1").Apply(Standard, mustUCI(t, "a1a3"))
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestCrazyhouseDrop(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/8/8/8/4K3[N] w - - 0 1")
	require.Equal(t, 1, b.Pockets.White[Knight])

	drops := b.LegalDrops(Crazyhouse)
	assert.Len(t, drops, 62, "every empty square takes a knight")

	after, err := b.Apply(Crazyhouse, mustUCI(t, "N@f3"))
	require.NoError(t, err)
	assert.Equal(t, 'N', after.GetPiece(Position{File: 5, Rank: 2}))
	assert.Equal(t, 0, after.Pockets.White[Knight])

	// No second knight to drop.
	_, err = after.Apply(Crazyhouse, mustUCI(t, "N@f6"))
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestCrazyhousePawnDropRanks(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/8/8/8/4K3[P] w - - 0 1")
	for _, m := range b.LegalDrops(Crazyhouse) {
		assert.NotEqual(t, 0, m.To.Rank, m.UCI())
		assert.NotEqual(t, 7, m.To.Rank, m.UCI())
	}
}

func TestCrazyhouseCapturedPromotedRevertsToPawn(t *testing.T) {
	// The black queen on d4 arose by promotion; capturing it pockets a pawn.
	b := mustFEN(t, "4k3/8/8/8/3q~4/8/8/3RK3[] w - - 0 1")
	after, err := b.Apply(Crazyhouse, mustUCI(t, "d1d4"))
	require.NoError(t, err)
	assert.Equal(t, 1, after.Pockets.White[Pawn])
	assert.Equal(t, 0, after.Pockets.White[Queen])
}

func TestThreeCheckCountsChecks(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/8/8/8/Q3K3 w - - 3+3 0 1")
	after, err := b.Apply(ThreeCheck, mustUCI(t, "a1a8"))
	require.NoError(t, err)
	require.NotNil(t, after.Checks)
	assert.Equal(t, 2, after.Checks.White, "white has two checks left")
	assert.Equal(t, 3, after.Checks.Black)
}

func TestUCIRoundTrip(t *testing.T) {
	for _, s := range []string{"e2e4", "e7e8q", "N@f3"} {
		m, err := ParseUCI(s)
		require.NoError(t, err)
		assert.Equal(t, s, m.UCI())
	}

	for _, s := range []string{"", "e2", "e2e9", "X@f3", "e2e4x"} {
		_, err := ParseUCI(s)
		assert.Error(t, err, s)
	}
}
