package entity

import (
	"testing"
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEffectiveQuantity(t *testing.T) {
	got := EffectiveQuantity(dec("10"), dec("5"), dec("10"))
	assert.True(t, got.Equal(dec("2.2")), "got %s", got)

	assert.True(t, EffectiveQuantity(dec("3"), dec("1"), dec("0")).Equal(dec("3")))
	assert.True(t, EffectiveQuantity(dec("1"), decimal.Zero, dec("0")).IsZero())
}

func TestRequiredOrderQuantity(t *testing.T) {
	minimum := decimal.NewNullDecimal(dec("5"))

	// 需求 3.2 低于最小订购量 5
	got := RequiredOrderQuantity(dec("3.2"), dec("1"), minimum)
	assert.True(t, got.Equal(dec("5")), "got %s", got)

	got = RequiredOrderQuantity(dec("3.2"), dec("1"), decimal.NullDecimal{})
	assert.True(t, got.Equal(dec("3.2")), "got %s", got)

	got = RequiredOrderQuantity(dec("0.3333333"), dec("1"), decimal.NullDecimal{})
	assert.True(t, got.Equal(dec("0.334")), "got %s", got)

	got = RequiredOrderQuantity(dec("2.2"), dec("10"), minimum)
	assert.True(t, got.Equal(dec("22")), "got %s", got)
}

func TestCeilTo3(t *testing.T) {
	assert.True(t, CeilTo3(dec("1.0001")).Equal(dec("1.001")))
	assert.True(t, CeilTo3(dec("1.000")).Equal(dec("1")))
	assert.True(t, CeilTo3(dec("2.2345")).Equal(dec("2.235")))
}

func TestValidAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	assert.False(t, ValidAt(start, &end, start.Add(-time.Second)))
	assert.True(t, ValidAt(start, &end, start))
	assert.True(t, ValidAt(start, &end, end.Add(-time.Second)))
	assert.False(t, ValidAt(start, &end, end))
	assert.True(t, ValidAt(start, nil, start.AddDate(10, 0, 0)))
}

func TestTreeCodeQuantityValidate(t *testing.T) {
	now := time.Now()
	base := func() TreeCodeQuantity {
		return TreeCodeQuantity{
			Quantity:      dec("2"),
			Denominator:   dec("1"),
			LossRate:      dec("5"),
			Unit:          UnitPiece,
			EffectiveDate: now,
		}
	}

	q := base()
	assert.NoError(t, q.Validate())
	assert.True(t, q.EffectiveQuantity().Equal(dec("2.1")))

	cases := map[string]func(*TreeCodeQuantity){
		"quantity":      func(q *TreeCodeQuantity) { q.Quantity = decimal.Zero },
		"denominator":   func(q *TreeCodeQuantity) { q.Denominator = dec("-1") },
		"loss_rate":     func(q *TreeCodeQuantity) { q.LossRate = dec("100.01") },
		"minimum_order": func(q *TreeCodeQuantity) { q.MinimumOrder = decimal.NewNullDecimal(dec("-1")) },
		"unit":          func(q *TreeCodeQuantity) { q.Unit = "box" },
		"expiry_date": func(q *TreeCodeQuantity) {
			past := now.Add(-time.Hour)
			q.ExpiryDate = &past
		},
	}
	for field, mutate := range cases {
		q := base()
		mutate(&q)
		err := q.Validate()
		if assert.Error(t, err, field) {
			assert.True(t, apperr.Is(err, apperr.ValidationError))
			assert.Contains(t, err.Error(), field)
		}
	}
}
