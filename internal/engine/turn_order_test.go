package engine

import "testing"

func TestSnakeOrderReversesEachRound(t *testing.T) {
	order := []string{"a", "b", "c", "d"}
	want := []string{"a", "b", "c", "d", "d", "c", "b", "a"}

	for i, w := range want {
		got, ok := ActiveTeam(i, order, FormatSnake)
		if !ok {
			t.Fatalf("pick %d: no active team", i)
		}
		if got != w {
			t.Fatalf("pick %d: got %q, want %q", i, got, w)
		}
	}
}

func TestLinearOrderRepeats(t *testing.T) {
	order := []string{"a", "b", "c"}
	for i := 0; i < 12; i++ {
		got, ok := ActiveTeam(i, order, FormatLinear)
		if !ok {
			t.Fatalf("pick %d: no active team", i)
		}
		if want := order[i%len(order)]; got != want {
			t.Fatalf("pick %d: got %q, want %q", i, got, want)
		}
	}
}

func TestSnakeMatchesLinearOnEvenRounds(t *testing.T) {
	order := []string{"a", "b", "c", "d", "e"}
	n := len(order)
	for i := 0; i < n*6; i++ {
		snake, _ := ActiveTeam(i, order, FormatSnake)
		if (i/n)%2 == 0 {
			if want := order[i%n]; snake != want {
				t.Fatalf("pick %d: got %q, want %q", i, snake, want)
			}
		} else {
			if want := order[n-1-(i%n)]; snake != want {
				t.Fatalf("pick %d: got %q, want %q", i, snake, want)
			}
		}
	}
}

func TestNoTeamsIsGuarded(t *testing.T) {
	if _, ok := ActiveTeam(0, nil, FormatSnake); ok {
		t.Fatalf("expected no active team for empty order")
	}
	if _, ok := ActiveIndex(3, 0, FormatLinear); ok {
		t.Fatalf("expected no active index for zero teams")
	}
	if _, ok := ActiveIndex(-1, 4, FormatLinear); ok {
		t.Fatalf("expected no active index for negative pick")
	}
}
