package rules

import (
	"strings"
	"testing"
)

func TestValidateLegalMove(t *testing.T) {
	o := NewOracle()

	v, err := o.Validate(nil, "e2e4")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.Legal {
		t.Fatalf("expected e2e4 to be legal from the start position")
	}
	if v.NextTurn != Black {
		t.Fatalf("expected black to move next, got %s", v.NextTurn)
	}
	if v.Terminal || v.Status != StatusOngoing {
		t.Fatalf("unexpected termination: terminal=%v status=%s", v.Terminal, v.Status)
	}
	if !strings.Contains(v.NewPosition, " b ") {
		t.Fatalf("new position should have black to move: %q", v.NewPosition)
	}
	if v.NewPosition == StartingFEN {
		t.Fatalf("position did not change")
	}
}

func TestValidateIllegalAndGarbage(t *testing.T) {
	o := NewOracle()

	for _, move := range []string{"e2e5", "a1a8", "nonsense", ""} {
		v, err := o.Validate(nil, move)
		if err != nil {
			t.Fatalf("Validate(%q): %v", move, err)
		}
		if v.Legal {
			t.Fatalf("expected %q to be rejected", move)
		}
	}
}

func TestValidateTurnAlternates(t *testing.T) {
	o := NewOracle()

	history := []string{}
	expect := []Color{Black, White, Black, White}
	for i, move := range []string{"e2e4", "e7e5", "g1f3", "b8c6"} {
		v, err := o.Validate(history, move)
		if err != nil || !v.Legal {
			t.Fatalf("move %d (%s): err=%v legal=%v", i, move, err, v.Legal)
		}
		if v.NextTurn != expect[i] {
			t.Fatalf("move %d: expected next turn %s, got %s", i, expect[i], v.NextTurn)
		}
		history = append(history, move)
	}
}

func TestValidateCheckmate(t *testing.T) {
	o := NewOracle()

	// Fool's mate.
	history := []string{"f2f3", "e7e5", "g2g4"}
	v, err := o.Validate(history, "d8h4")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.Legal {
		t.Fatalf("mating move rejected")
	}
	if !v.Terminal || v.Status != StatusCheckmate {
		t.Fatalf("expected checkmate, got terminal=%v status=%s", v.Terminal, v.Status)
	}
}

func TestValidateBrokenHistory(t *testing.T) {
	o := NewOracle()
	if _, err := o.Validate([]string{"e2e5"}, "e7e5"); err == nil {
		t.Fatalf("expected error for unreplayable history")
	}
}

func TestFirstLegal(t *testing.T) {
	o := NewOracle()

	mv, err := o.FirstLegal(nil)
	if err != nil {
		t.Fatalf("FirstLegal: %v", err)
	}
	v, err := o.Validate(nil, mv)
	if err != nil || !v.Legal {
		t.Fatalf("FirstLegal returned a move the oracle rejects: %q (err=%v)", mv, err)
	}

	// No legal moves once mated.
	if _, err := o.FirstLegal([]string{"f2f3", "e7e5", "g2g4", "d8h4"}); err == nil {
		t.Fatalf("expected error when no legal moves remain")
	}
}

func TestPGN(t *testing.T) {
	o := NewOracle()
	pgn, err := o.PGN([]string{"e2e4", "e7e5"})
	if err != nil {
		t.Fatalf("PGN: %v", err)
	}
	if !strings.Contains(pgn, "e4") || !strings.Contains(pgn, "e5") {
		t.Fatalf("unexpected PGN output: %q", pgn)
	}
}
