package domain

import (
	"fmt"
	"strconv"
)

// NumberSequence backs human-readable ticket numbers. Next is claimed
// and advanced by Increment inside the ticket-creating transaction so
// two tickets can never share a number.
type NumberSequence struct {
	Name      string
	Next      int64
	Increment int64
	Padding   int
}

// DefaultSequenceName is the sequence tickets draw from unless
// configured otherwise.
const DefaultSequenceName = "ticket"

// FormatNumber renders a claimed sequence value as a zero-padded
// ticket number.
func FormatNumber(value int64, padding int) string {
	if padding <= 0 {
		return strconv.FormatInt(value, 10)
	}
	return fmt.Sprintf("%0*d", padding, value)
}
