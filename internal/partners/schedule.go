package partners

import "time"

// DueForSettlement reports whether the partner's next billing date has
// arrived. Force overrides the schedule for manual runs.
func DueForSettlement(p Partner, now time.Time, force bool) bool {
	if force {
		return true
	}
	if p.ProximaFacturacion.IsZero() {
		return true
	}
	return !p.ProximaFacturacion.After(now)
}

// NextBilling advances a billing date by the partner's frequency. Unknown
// frequencies fall back to quincenal.
func NextBilling(from time.Time, f BillingFrequency) time.Time {
	switch f {
	case FrequencySemanal:
		return from.AddDate(0, 0, 7)
	case FrequencyQuincenal:
		return from.AddDate(0, 0, 15)
	case FrequencyMensual:
		return from.AddDate(0, 1, 0)
	case FrequencyBimensual:
		return from.AddDate(0, 2, 0)
	default:
		return from.AddDate(0, 0, 15)
	}
}
