// README: Pricing inputs and the quote breakdown for one order.
package pricing

import (
	"github.com/shopspring/decimal"

	"foodline/internal/types"
)

type Line struct {
	ProductID types.ID
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Quote struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	ServiceFee  decimal.Decimal
	Commission  decimal.Decimal
	Total       decimal.Decimal
}
