package session

// SeatID identifies one of the fixed player slots in a session.
type SeatID string

// The default seat set. Slot passwords double as seat identifiers, which is
// why they look like numeric codes rather than ordinals.
const (
	SeatOne   SeatID = "11111"
	SeatTwo   SeatID = "22222"
	SeatThree SeatID = "33333"
)

// DefaultSeats returns the fixed seat set for a standard session.
func DefaultSeats() []SeatID {
	return []SeatID{SeatOne, SeatTwo, SeatThree}
}

// Occupancy is the durable record of who holds (or most recently held) a seat.
// The token is an opaque continuity proof, not a security credential.
type Occupancy struct {
	Name      string
	Token     string
	Connected bool
}

// Seat is the authoritative view of one slot: either empty or occupied.
// The zero value is an empty seat.
type Seat struct {
	occ *Occupancy
}

// EmptySeat returns a seat with no occupancy record.
func EmptySeat() Seat {
	return Seat{}
}

// TakenSeat returns a seat holding the given occupancy.
func TakenSeat(o Occupancy) Seat {
	return Seat{occ: &o}
}

// Empty reports whether the seat has no occupancy record at all.
// A disconnected occupant is not empty.
func (s Seat) Empty() bool {
	return s.occ == nil
}

// Occupancy returns the seat's record. ok is false for an empty seat.
func (s Seat) Occupancy() (occ Occupancy, ok bool) {
	if s.occ == nil {
		return Occupancy{}, false
	}
	return *s.occ, true
}

// Role classifies what a live connection is doing in a session.
type Role string

const (
	RoleNone   Role = "none"
	RoleAdmin  Role = "admin"
	RolePlayer Role = "player"
)
