// Package validation содержит проверки входных данных кошелькового ядра.
package validation

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Денежные суммы хранятся в NUMERIC(20, 2): не более 18 знаков до запятой
// и не более 2 после.
const (
	maxIntegerDigits = 18
	maxScale         = 2
)

// ErrInvalidAmount возвращается, если строка не является корректной денежной суммой.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount разбирает строковое представление денежной суммы.
// Сумма должна быть строго положительной, иметь не более двух знаков после
// запятой и помещаться в NUMERIC(20, 2).
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}

	if !IsValidAmount(d) {
		return decimal.Zero, ErrInvalidAmount
	}

	return d, nil
}

// IsValidAmount сообщает, является ли значение корректной денежной суммой.
func IsValidAmount(d decimal.Decimal) bool {
	if !d.IsPositive() {
		return false
	}

	if !d.Equal(d.Truncate(maxScale)) {
		return false
	}

	return d.Truncate(0).NumDigits() <= maxIntegerDigits
}
