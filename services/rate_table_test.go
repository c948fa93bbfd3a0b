package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/barrim_mlm/models"
)

func TestRateTable_ClampsToLastRate(t *testing.T) {
	rates := DefaultRateTable()
	assert.Equal(t, 5, rates.Len())
	assertDecimal(t, "0.10", rates.RateFor(1))
	assertDecimal(t, "0.02", rates.RateFor(4))
	assert.True(t, rates.RateFor(5).Equal(rates.RateFor(50)))
	assertDecimal(t, "0.10", rates.RateFor(0))
	assert.True(t, RateTable{}.RateFor(1).IsZero())
}

func TestParseRateTable(t *testing.T) {
	rates, err := ParseRateTable([]string{"0.2", " 0.1 ", "0"})
	require.NoError(t, err)
	assertDecimal(t, "0.2", rates.RateFor(1))
	assertDecimal(t, "0", rates.RateFor(7))

	_, err = ParseRateTable([]string{"ten percent"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = ParseRateTable(nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = NewRateTable([]decimal.Decimal{decimal.NewFromFloat(1.5)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	// Six places fit the stored rate column; a seventh would be rounded away.
	rates, err = ParseRateTable([]string{"0.123456", "0.0500000000"})
	require.NoError(t, err)
	assertDecimal(t, "0.123456", rates.RateFor(1))

	_, err = ParseRateTable([]string{"0.1", "0.0333333"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
