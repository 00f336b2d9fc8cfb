// README: Pricing service computes order quotes and earnings splits.
package pricing

import (
	"github.com/shopspring/decimal"

	"foodline/internal/config"
	"foodline/internal/types"
)

type Service struct {
	cfg config.PricingConfig
}

func NewService(cfg config.PricingConfig) *Service {
	return &Service{cfg: cfg}
}

// Quote prices a cart. Line prices are taken as given; callers snapshot the
// current product price before calling.
func (s *Service) Quote(lines []Line, deliveryFee decimal.Decimal) Quote {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	subtotal = types.RoundMoney(subtotal)
	fee := types.RoundMoney(deliveryFee)
	service := types.RoundMoney(s.cfg.ServiceFee)
	return Quote{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		ServiceFee:  service,
		Commission:  types.RoundMoney(subtotal.Mul(s.cfg.CommissionRate)),
		Total:       subtotal.Add(fee).Add(service),
	}
}

// DriverEarnings is deliveryFee*share + distance*rate. A nil distance means the
// routing placeholder distance. Manual and implicit assignment both use this.
func (s *Service) DriverEarnings(deliveryFee decimal.Decimal, distance *decimal.Decimal) decimal.Decimal {
	d := s.cfg.DefaultDistance
	if distance != nil {
		d = *distance
	}
	return types.RoundMoney(deliveryFee.Mul(s.cfg.DriverShare).Add(d.Mul(s.cfg.DistanceRate)))
}

// PlatformEarnings is realized only on delivery.
func (s *Service) PlatformEarnings(commission, serviceFee decimal.Decimal) decimal.Decimal {
	return types.RoundMoney(commission.Add(serviceFee))
}
