package partners

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMarketplaceSplitCanonicalScenario(t *testing.T) {
	// S=1000, platform 15%, gateway 7% with 50% partner share, VAT 22%.
	split := NewMarketplaceSplit(7, 50, 22)
	b := split.Compute(1000, 15)

	require.Equal(t, 1000.0, b.Gross)
	require.Equal(t, 150.0, b.PlatformFee)
	require.Equal(t, 35.0, b.GatewayRetention)
	require.Equal(t, 815.0, b.PreTax)
	require.Equal(t, 179.30, b.VAT)
	require.Equal(t, 994.30, b.TotalPayable)
}

func TestMarketplaceSplitInvariant(t *testing.T) {
	split := NewMarketplaceSplit(7, 50, 22)
	for _, gross := range []float64{1, 99.99, 1000, 12345.67, 0.01} {
		b := split.Compute(gross, 15)
		left := b.Gross + b.VAT
		right := b.PlatformFee + b.GatewayRetention + b.TotalPayable
		require.InDelta(t, left, right, 0.001, "gross %v", gross)
	}
}

func TestStrategyFor(t *testing.T) {
	split := NewMarketplaceSplit(7, 50, 22)

	s, err := StrategyFor("", split)
	require.NoError(t, err)
	require.Equal(t, "marketplace_split", s.Name())

	s, err = StrategyFor("marketplace_split", split)
	require.NoError(t, err)
	require.Equal(t, "marketplace_split", s.Name())

	_, err = StrategyFor("linear", split)
	require.Error(t, err)
}

func TestNextBilling(t *testing.T) {
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	require.Equal(t, from.AddDate(0, 0, 7), NextBilling(from, FrequencySemanal))
	require.Equal(t, from.AddDate(0, 0, 15), NextBilling(from, FrequencyQuincenal))
	require.Equal(t, from.AddDate(0, 1, 0), NextBilling(from, FrequencyMensual))
	require.Equal(t, from.AddDate(0, 2, 0), NextBilling(from, FrequencyBimensual))
	require.Equal(t, from.AddDate(0, 0, 15), NextBilling(from, BillingFrequency("diaria")))
}

func TestDueForSettlement(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	due := Partner{ProximaFacturacion: now.AddDate(0, 0, -1)}
	notDue := Partner{ProximaFacturacion: now.AddDate(0, 0, 1)}
	unscheduled := Partner{}

	require.True(t, DueForSettlement(due, now, false))
	require.False(t, DueForSettlement(notDue, now, false))
	require.True(t, DueForSettlement(notDue, now, true))
	require.True(t, DueForSettlement(unscheduled, now, false))
}
