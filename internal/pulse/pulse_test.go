package pulse

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brln/noteiro/internal/errors"
)

func TestDecodeKnownCounts(t *testing.T) {
	d := NewDecoder(nil)

	for _, pulses := range []int{1, 2, 5, 10, 20, 50, 100} {
		value, err := d.Decode(pulses)
		require.NoError(t, err)
		assert.Equal(t, decimal.NewFromInt(int64(pulses)).StringFixed(2), value.StringFixed(2))
	}
}

func TestDecodeUnknownCount(t *testing.T) {
	d := NewDecoder(nil)

	for _, pulses := range []int{0, 3, 7, 13, 42, 1000, -1} {
		_, err := d.Decode(pulses)
		require.Error(t, err)
		atmErr, ok := err.(errors.AtmError)
		require.True(t, ok)
		assert.Equal(t, errors.UnrecognizedPulseCountError, atmErr.Code)
		assert.Equal(t, pulses, atmErr.Detail["pulses"])
	}
}

func TestDecodeCustomTable(t *testing.T) {
	d := NewDecoder(map[int]decimal.Decimal{
		4: decimal.RequireFromString("2.50"),
	})

	value, err := d.Decode(4)
	require.NoError(t, err)
	assert.Equal(t, "2.50", value.StringFixed(2))

	_, err = d.Decode(10)
	assert.Error(t, err)
}

func TestPulsesForAmount(t *testing.T) {
	d := NewDecoder(nil)

	tests := []struct {
		name   string
		amount string
		want   int
	}{
		{name: "exact denomination", amount: "20.00", want: 20},
		{name: "exact smallest", amount: "1.00", want: 1},
		{name: "no exact match rounds to nearest unit", amount: "19.60", want: 20},
		{name: "rounds down", amount: "3.20", want: 3},
		{name: "half rounds up", amount: "2.50", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.PulsesForAmount(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestKnown(t *testing.T) {
	d := NewDecoder(nil)

	assert.True(t, d.Known(50))
	assert.False(t, d.Known(51))
}
