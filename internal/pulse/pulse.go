// Package pulse maps the discrete pulse counts emitted by the banknote
// acceptor to BRL denominations. The mapping is a fixed injective table;
// a count outside the table is rejected, never approximated.
package pulse

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/brln/noteiro/internal/errors"
)

// Decoder resolves pulse counts against a denomination table.
type Decoder struct {
	table map[int]decimal.Decimal
}

// DefaultTable is the factory mapping of the acceptor: one pulse per BRL
// of the note value.
func DefaultTable() map[int]decimal.Decimal {
	table := make(map[int]decimal.Decimal, 7)
	for _, n := range []int{1, 2, 5, 10, 20, 50, 100} {
		table[n] = decimal.NewFromInt(int64(n))
	}
	return table
}

func NewDecoder(table map[int]decimal.Decimal) *Decoder {
	if len(table) == 0 {
		table = DefaultTable()
	}
	normalized := make(map[int]decimal.Decimal, len(table))
	for pulses, value := range table {
		normalized[pulses] = value.Round(2)
	}
	return &Decoder{table: normalized}
}

// Decode returns the denomination for a pulse count. Unknown counts fail
// with UnrecognizedPulseCountError carrying the offending count.
func (d *Decoder) Decode(pulses int) (decimal.Decimal, error) {
	value, ok := d.table[pulses]
	if !ok {
		return decimal.Zero, errors.New(errors.UnrecognizedPulseCountError,
			fmt.Errorf("unrecognized pulse count: %d", pulses)).
			WithDetail("pulses", pulses)
	}
	return value, nil
}

// PulsesForAmount maps a currency amount back to a pulse count. It prefers
// an exact match against the table; if none exists it falls back to rounding
// the amount to the nearest whole unit, matching the acceptor firmware's
// legacy output path.
func (d *Decoder) PulsesForAmount(amount decimal.Decimal) int {
	for pulses, value := range d.table {
		if value.Equal(amount) {
			return pulses
		}
	}
	return int(amount.Round(0).IntPart())
}

// Known reports whether a pulse count is present in the table.
func (d *Decoder) Known(pulses int) bool {
	_, ok := d.table[pulses]
	return ok
}
