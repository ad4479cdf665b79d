package partners

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SettlementStrategy computes what a partner is owed for a gross sales
// volume at the partner's commission percentage. Exactly one implementation
// ships; the interface keeps the math swappable via config without touching
// the run loop.
type SettlementStrategy interface {
	Name() string
	Compute(gross, platformPct float64) Breakdown
}

// Breakdown is the settlement arithmetic for one partner run. All amounts
// are rounded to two places; Gross+VAT always equals
// PlatformFee+GatewayRetention+TotalPayable so the payout posting balances.
type Breakdown struct {
	Gross            float64 `json:"bruto"`
	PlatformFee      float64 `json:"comision_plataforma"`
	GatewayRetention float64 `json:"retencion_pasarela"`
	PreTax           float64 `json:"subtotal"`
	VAT              float64 `json:"iva"`
	TotalPayable     float64 `json:"total_a_pagar"`
}

// MarketplaceSplit deducts the platform commission and the partner's share
// of the gateway fee from gross sales, then adds VAT on the remainder:
// pre-tax = S − S·a − S·g·p, total = pre-tax · (1+v).
// Rates are percentages (7 means 7%); the gateway share is a fraction of
// the gateway fee borne by the partner (50 means half).
type MarketplaceSplit struct {
	GatewayPct   decimal.Decimal
	GatewayShare decimal.Decimal
	VATPct       decimal.Decimal
}

func NewMarketplaceSplit(gatewayPct, gatewayShare, vatPct float64) MarketplaceSplit {
	return MarketplaceSplit{
		GatewayPct:   decimal.NewFromFloat(gatewayPct),
		GatewayShare: decimal.NewFromFloat(gatewayShare),
		VATPct:       decimal.NewFromFloat(vatPct),
	}
}

func (m MarketplaceSplit) Name() string { return "marketplace_split" }

func (m MarketplaceSplit) Compute(gross, platformPct float64) Breakdown {
	hundred := decimal.NewFromInt(100)
	g := decimal.NewFromFloat(gross)
	platformFee := g.Mul(decimal.NewFromFloat(platformPct)).Div(hundred).Round(2)
	gatewayRetention := g.Mul(m.GatewayPct).Div(hundred).Mul(m.GatewayShare).Div(hundred).Round(2)
	preTax := g.Sub(platformFee).Sub(gatewayRetention).Round(2)
	vat := preTax.Mul(m.VATPct).Div(hundred).Round(2)
	total := preTax.Add(vat).Round(2)
	return Breakdown{
		Gross:            g.Round(2).InexactFloat64(),
		PlatformFee:      platformFee.InexactFloat64(),
		GatewayRetention: gatewayRetention.InexactFloat64(),
		PreTax:           preTax.InexactFloat64(),
		VAT:              vat.InexactFloat64(),
		TotalPayable:     total.InexactFloat64(),
	}
}

// StrategyFor resolves the configured strategy name.
func StrategyFor(name string, split MarketplaceSplit) (SettlementStrategy, error) {
	switch name {
	case "", "marketplace_split":
		return split, nil
	default:
		return nil, fmt.Errorf("partners: unknown settlement strategy %q", name)
	}
}
