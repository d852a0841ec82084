package registry

import (
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"golang.org/x/exp/slices"
)

type Tier struct {
	Label           string `json:"label"`
	AmountSats      int64  `json:"amount_sats"`
	DurationSeconds int64  `json:"duration_seconds"`
}

const defaultYearSats int64 = 21000
const defaultYearSeconds int64 = 31536000
const defaultQuarterSats int64 = 6000
const defaultQuarterSeconds int64 = 7776000
const defaultDevSats int64 = 21
const defaultDevSeconds int64 = 3600

// Tiers returns the pricing table ordered from most to least expensive. The
// short-duration dev tier only exists outside production deployments.
func Tiers() []Tier {
	tiers := []Tier{
		{Label: "year", AmountSats: cfgInt64("tierYearSats", defaultYearSats), DurationSeconds: cfgInt64("tierYearSeconds", defaultYearSeconds)},
		{Label: "quarter", AmountSats: cfgInt64("tierQuarterSats", defaultQuarterSats), DurationSeconds: cfgInt64("tierQuarterSeconds", defaultQuarterSeconds)},
	}
	if !production() {
		tiers = append(tiers, Tier{Label: "dev", AmountSats: cfgInt64("tierDevSats", defaultDevSats), DurationSeconds: cfgInt64("tierDevSeconds", defaultDevSeconds)})
	}
	slices.SortFunc(tiers, func(a, b Tier) bool {
		return a.AmountSats > b.AmountSats
	})
	return tiers
}

// tierForAmount maps a paid amount to the highest tier whose price it meets.
func tierForAmount(amount int64) (Tier, bool) {
	for _, tier := range Tiers() {
		if amount >= tier.AmountSats {
			return tier, true
		}
	}
	return Tier{}, false
}

func cfgInt64(key string, fallback int64) int64 {
	conf := actors.MakeOrGetConfig()
	if conf == nil {
		return fallback
	}
	if v := conf.GetInt64(key); v > 0 {
		return v
	}
	return fallback
}

func production() bool {
	conf := actors.MakeOrGetConfig()
	if conf == nil {
		return false
	}
	return conf.GetBool("production")
}
