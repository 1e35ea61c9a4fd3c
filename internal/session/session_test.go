package session

import "testing"

func TestNewCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := NewCode()
		if len(code) != 9 {
			t.Fatalf("expected 9-char code, got %q", code)
		}
		for j := 0; j < 3; j++ {
			if code[j] < 'A' || code[j] > 'Z' {
				t.Fatalf("expected letter at position %d, got %q", j, code)
			}
		}
		if code[3] != '-' {
			t.Fatalf("expected dash at position 3, got %q", code)
		}
		for j := 4; j < 9; j++ {
			if code[j] < '0' || code[j] > '9' {
				t.Fatalf("expected digit at position %d, got %q", j, code)
			}
		}
	}
}

func TestSeatSumType(t *testing.T) {
	empty := EmptySeat()
	if !empty.Empty() {
		t.Fatal("expected empty seat to report Empty")
	}
	if _, ok := empty.Occupancy(); ok {
		t.Fatal("expected no occupancy on empty seat")
	}

	taken := TakenSeat(Occupancy{Name: "Ann", Token: "t1", Connected: false})
	if taken.Empty() {
		t.Fatal("disconnected occupant must not be empty")
	}
	occ, ok := taken.Occupancy()
	if !ok {
		t.Fatal("expected occupancy on taken seat")
	}
	if occ.Name != "Ann" || occ.Token != "t1" || occ.Connected {
		t.Fatalf("unexpected occupancy %+v", occ)
	}
}

func TestDefaultSeats(t *testing.T) {
	seats := DefaultSeats()
	if len(seats) != 3 {
		t.Fatalf("expected 3 seats, got %d", len(seats))
	}
}
