package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidRating = errors.New("memory: invalid rating")

// Rating grades a successful or failed recall on a 1-4 scale.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.Valid() {
		return ratingNames[r]
	}
	return "rating(" + strconv.Itoa(int(r)) + ")"
}

// ParseRating accepts a name ("good", "Easy") or a number ("3").
func ParseRating(s string) (Rating, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r := Again; r <= Easy; r++ {
		if ratingNames[r] == s {
			return r, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Rating(n).Valid() {
		return Rating(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

func (r Rating) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// UnmarshalJSON accepts either the name or the number.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Rating(n).Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidRating, n)
		}
		*r = Rating(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	return r.UnmarshalText([]byte(s))
}
