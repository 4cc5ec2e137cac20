package domain

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// SeatID identifies a seat by row label and number within a single show.
type SeatID struct {
	Row    string
	Number int
}

func (s SeatID) String() string {
	return fmt.Sprintf("%s%d", s.Row, s.Number)
}

// ParseSeatID parses labels such as "A1" or "AB12". Row letters are
// normalized to upper case.
func ParseSeatID(label string) (SeatID, error) {
	label = strings.TrimSpace(label)

	i := strings.IndexFunc(label, unicode.IsDigit)
	if i <= 0 {
		return SeatID{}, fmt.Errorf("invalid seat label %q", label)
	}

	row := strings.ToUpper(label[:i])
	for _, r := range row {
		if r < 'A' || r > 'Z' {
			return SeatID{}, fmt.Errorf("invalid seat row in %q", label)
		}
	}

	number, err := strconv.Atoi(label[i:])
	if err != nil || number < 1 {
		return SeatID{}, fmt.Errorf("invalid seat number in %q", label)
	}

	return SeatID{Row: row, Number: number}, nil
}

func (s SeatID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SeatID) UnmarshalText(text []byte) error {
	id, err := ParseSeatID(string(text))
	if err != nil {
		return err
	}

	*s = id
	return nil
}

// Compare orders seats canonically: shorter row labels first ("Z" < "AA"),
// then row label, then number.
func (s SeatID) Compare(o SeatID) int {
	if c := cmp.Compare(len(s.Row), len(o.Row)); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Row, o.Row); c != 0 {
		return c
	}

	return cmp.Compare(s.Number, o.Number)
}

// SortSeats returns a canonically ordered copy of seats.
func SortSeats(seats []SeatID) []SeatID {
	sorted := slices.Clone(seats)
	slices.SortFunc(sorted, SeatID.Compare)

	return sorted
}

// ValidateSeatSet checks that a requested selection is non-empty, has no
// duplicates, stays within max (when positive) and only names seats of the show.
func ValidateSeatSet(requested, showSeats []SeatID, max int) error {
	if len(requested) == 0 {
		return fmt.Errorf("%w: at least one seat is required", ErrInvalidSeatSet)
	}

	if max > 0 && len(requested) > max {
		return fmt.Errorf("%w: at most %d seats can be reserved at once", ErrInvalidSeatSet, max)
	}

	known := make(map[SeatID]struct{}, len(showSeats))
	for _, s := range showSeats {
		known[s] = struct{}{}
	}

	seen := make(map[SeatID]struct{}, len(requested))
	for _, s := range requested {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: seat %s is selected more than once", ErrInvalidSeatSet, s)
		}
		seen[s] = struct{}{}

		if _, ok := known[s]; !ok {
			return fmt.Errorf("%w: seat %s does not belong to this show", ErrInvalidSeatSet, s)
		}
	}

	return nil
}

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"
	SeatBooked    SeatState = "booked"
)

// Seat is one entry of a show's seat map. Token and ExpiresAt are only set
// for held seats; booked seats keep the token of the confirmed reservation.
type Seat struct {
	ShowID    int64
	ID        SeatID
	State     SeatState
	Token     string
	ExpiresAt time.Time
}

// SeatMap is the per-show occupancy projection rebuilt from the ledger.
// Each call is serialized per show and never spans a network round trip
// to the payment gateway.
type SeatMap interface {
	TryHold(ctx context.Context, showID int64, seats []SeatID, token string, expiresAt time.Time) error
	Release(ctx context.Context, showID int64, seats []SeatID, token string) error
	Commit(ctx context.Context, showID int64, seats []SeatID, token string) error
	Seats(ctx context.Context, showID int64) (map[SeatID]Seat, error)
	// Shows lists the shows that have at least one occupied seat.
	Shows(ctx context.Context) ([]int64, error)
	Load(ctx context.Context, seats []Seat) error
}
