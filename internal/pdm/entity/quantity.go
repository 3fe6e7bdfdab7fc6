package entity

import (
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// EffectiveQuantity (quantity / denominator) * (1 + loss_rate/100)
func EffectiveQuantity(quantity, denominator, lossRate decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return quantity.Div(denominator).Mul(decimal.NewFromInt(1).Add(lossRate.Div(hundred)))
}

// CeilTo3 乘 1000 向上取整再除 1000
func CeilTo3(d decimal.Decimal) decimal.Decimal {
	return d.Mul(thousand).Ceil().Div(thousand)
}

// RequiredOrderQuantity 需求量乘有效用量，保留三位小数向上取整，不低于最小订购量
func RequiredOrderQuantity(effective, requiredAmount decimal.Decimal, minimumOrder decimal.NullDecimal) decimal.Decimal {
	need := CeilTo3(requiredAmount.Mul(effective))
	if minimumOrder.Valid && minimumOrder.Decimal.GreaterThan(need) {
		return minimumOrder.Decimal
	}
	return need
}

// ValidAt effective <= at < expiry，expiry 为空表示无上限
func ValidAt(effective time.Time, expiry *time.Time, at time.Time) bool {
	if at.Before(effective) {
		return false
	}
	return expiry == nil || at.Before(*expiry)
}

// EffectiveQuantity 行的有效用量
func (q *TreeCodeQuantity) EffectiveQuantity() decimal.Decimal {
	return EffectiveQuantity(q.Quantity, q.Denominator, q.LossRate)
}

// RequiredOrderQuantity 按需求数量计算订购量
func (q *TreeCodeQuantity) RequiredOrderQuantity(requiredAmount decimal.Decimal) decimal.Decimal {
	return RequiredOrderQuantity(q.EffectiveQuantity(), requiredAmount, q.MinimumOrder)
}

// IsValidAt 判断某时刻是否在有效期内
func (q *TreeCodeQuantity) IsValidAt(at time.Time) bool {
	return ValidAt(q.EffectiveDate, q.ExpiryDate, at)
}

// Validate 校验数量、母数、损耗率与有效期
func (q *TreeCodeQuantity) Validate() error {
	if !q.Quantity.IsPositive() {
		return apperr.Validation("quantity", "quantity must be greater than 0")
	}
	if !q.Denominator.IsPositive() {
		return apperr.Validation("denominator", "denominator must be greater than 0")
	}
	if q.LossRate.IsNegative() || q.LossRate.GreaterThan(hundred) {
		return apperr.Validation("loss_rate", "loss_rate must be between 0 and 100")
	}
	if q.MinimumOrder.Valid && q.MinimumOrder.Decimal.IsNegative() {
		return apperr.Validation("minimum_order", "minimum_order must not be negative")
	}
	if !q.Unit.Valid() {
		return apperr.Validation("unit", "unknown unit "+string(q.Unit))
	}
	if q.ExpiryDate != nil && !q.EffectiveDate.Before(*q.ExpiryDate) {
		return apperr.Validation("expiry_date", "expiry_date must be after effective_date")
	}
	return nil
}
