package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
)

// AmountScale точность хранения сумм (NUMERIC(20,8)).
const AmountScale = 8

// FeeRateScale точность ставки комиссии (NUMERIC(6,4)).
const FeeRateScale = 4

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	if currency == "" {
		currency = "USDT"
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ParseAmount разбирает положительную сумму из строки.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "некорректная сумма")
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "сумма должна быть больше нуля")
	}
	return amount, nil
}

// FeeRate доля платформы, [0, 1).
type FeeRate struct {
	decimal.Decimal
}

func NewFeeRate(rate decimal.Decimal) (FeeRate, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return FeeRate{}, apperror.Newf(apperror.ErrCodeValidation, "комиссия %s вне диапазона [0,1)", rate.String())
	}
	if !rate.Equal(rate.Truncate(FeeRateScale)) {
		return FeeRate{}, apperror.Newf(apperror.ErrCodeValidation, "комиссия %s точнее %d знаков", rate.String(), FeeRateScale)
	}
	return FeeRate{rate}, nil
}

// MustFeeRate для констант и тестов.
func MustFeeRate(rate string) FeeRate {
	fr, err := NewFeeRate(decimal.RequireFromString(rate))
	if err != nil {
		panic(err)
	}
	return fr
}

// Net возвращает сумму за вычетом комиссии.
func (m Money) Net(fee FeeRate) Money {
	net := m.Amount.Mul(decimal.NewFromInt(1).Sub(fee.Decimal)).Round(AmountScale)
	return Money{Amount: net, Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
