// Package opening provides the static opening book. The book maps an EPD
// (a FEN stripped of clocks, crazyhouse pockets and remaining-check
// annotations) to an opening record, loaded once from an embedded resource.
package opening

import (
	"bufio"
	_ "embed"
	"strings"
)

//go:embed openings.tsv
var rawBook string

// Opening is one opening book record.
type Opening struct {
	Eco  string `json:"eco"`
	Name string `json:"name"`
}

var byEPD = loadBook()

func loadBook() map[string]*Opening {
	book := make(map[string]*Opening)
	scanner := bufio.NewScanner(strings.NewReader(rawBook))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		book[parts[0]] = &Opening{Eco: parts[1], Name: parts[2]}
	}
	return book
}

// Lookup returns the opening record for an EPD, or nil.
func Lookup(epd string) *Opening {
	return byEPD[epd]
}

// LookupFEN fingerprints a FEN and returns its opening record, or nil.
func LookupFEN(fen string) *Opening {
	return Lookup(EPD(fen))
}

// EPD reduces a FEN to its book fingerprint: the first four fields, with
// crazyhouse pockets and promotion markers removed from the board field.
// Move counters and check counts never reach the fingerprint.
func EPD(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return ""
	}

	board := fields[0]
	if i := strings.IndexByte(board, '['); i >= 0 {
		board = board[:i]
	}
	if ranks := strings.Split(board, "/"); len(ranks) == 9 {
		board = strings.Join(ranks[:8], "/")
	}
	board = strings.ReplaceAll(board, "~", "")

	return board + " " + fields[1] + " " + fields[2] + " " + fields[3]
}

// Size reports the number of book entries, for startup logging.
func Size() int {
	return len(byEPD)
}
