// README: Common money helpers used across modules (two-decimal amounts).
package types

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept for stored amounts.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

