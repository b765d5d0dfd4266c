// Package rules wraps the chess library behind the narrow contract the
// room layer needs: legality of a candidate move, the resulting
// position, the next side to move, and whether the game has concluded.
package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Game status tokens reported on snapshots and verdicts.
const (
	StatusOngoing              = "ongoing"
	StatusCheckmate            = "checkmate"
	StatusStalemate            = "stalemate"
	StatusDraw                 = "draw"
	StatusInsufficientMaterial = "insufficient_material"
	StatusSeventyFiveMoves     = "seventyfive_moves"
	StatusFivefoldRepetition   = "fivefold_repetition"
)

// Verdict is the oracle's answer for one candidate move.
type Verdict struct {
	Legal       bool
	NewPosition string
	NextTurn    Color
	Status      string
	Terminal    bool
}

// Oracle is stateless; games are reconstructed from the UCI move
// history on every call so a corrupt cached board can never leak
// between rooms.
type Oracle struct{}

func NewOracle() *Oracle { return &Oracle{} }

// Validate applies one UCI move on top of the given history and
// reports the outcome. An illegal or unparseable move yields
// Verdict{Legal: false} with a nil error; errors are reserved for a
// broken history, which indicates a bug upstream.
func (o *Oracle) Validate(history []string, move string) (Verdict, error) {
	game, err := reconstruct(history)
	if err != nil {
		return Verdict{}, err
	}
	uci := strings.ToLower(strings.TrimSpace(move))
	if uci == "" {
		return Verdict{}, nil
	}
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Verdict{}, nil
	}
	return verdictFrom(game), nil
}

// Describe reports the current position without applying a move.
func (o *Oracle) Describe(history []string) (Verdict, error) {
	game, err := reconstruct(history)
	if err != nil {
		return Verdict{}, err
	}
	v := verdictFrom(game)
	return v, nil
}

// FirstLegal returns an arbitrary legal move for the position, used as
// the last-resort fallback when the advisor is unavailable.
func (o *Oracle) FirstLegal(history []string) (string, error) {
	game, err := reconstruct(history)
	if err != nil {
		return "", err
	}
	moves := game.ValidMoves()
	for _, mv := range moves {
		return mv.String(), nil
	}
	return "", fmt.Errorf("no legal moves")
}

// PGN renders the move history as PGN text.
func (o *Oracle) PGN(history []string) (string, error) {
	game, err := reconstruct(history)
	if err != nil {
		return "", err
	}
	return game.String(), nil
}

func reconstruct(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, mv := range history {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}

func verdictFrom(game *nchess.Game) Verdict {
	v := Verdict{
		Legal:       true,
		NewPosition: game.FEN(),
		NextTurn:    colorFrom(game.Position().Turn()),
		Status:      StatusOngoing,
	}
	if game.Outcome() != nchess.NoOutcome {
		v.Terminal = true
		v.Status = statusFromMethod(game.Method())
	}
	return v
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}

func statusFromMethod(m nchess.Method) string {
	switch strings.ToLower(m.String()) {
	case "checkmate":
		return StatusCheckmate
	case "stalemate":
		return StatusStalemate
	case "insufficientmaterial":
		return StatusInsufficientMaterial
	case "seventyfivemoverule":
		return StatusSeventyFiveMoves
	case "fivefoldrepetition":
		return StatusFivefoldRepetition
	default:
		return StatusDraw
	}
}
