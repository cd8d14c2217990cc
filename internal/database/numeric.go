package database

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Decimals stored in NUMERIC(12,2) money and NUMERIC(14,4) stock columns.
const (
	MoneyScale = 2
	StockScale = 4
)

// MaxMoney is the smallest amount that no longer fits NUMERIC(12,2).
var MaxMoney = decimal.New(1, 10)

// ToDecimal converts a NUMERIC column value; NULL becomes zero.
func ToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	s, ok := val.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ToNumeric converts exactly, keeping every digit of d. Used for stock
// quantities.
func ToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// MoneyToNumeric rounds to cents before converting.
func MoneyToNumeric(d decimal.Decimal) pgtype.Numeric {
	return ToNumeric(d.Round(MoneyScale))
}

// IsMoney reports whether d has at most two decimals and fits NUMERIC(12,2).
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale)) && d.Abs().LessThan(MaxMoney)
}
