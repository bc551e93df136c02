package plans

import "fmt"

// Plan is one purchasable extension option shown under /extend.
type Plan struct {
	Label      string
	Days       int
	AmountUSDT int64
}

func All() []Plan {
	return []Plan{
		{Label: "1 month (30 USDT)", Days: 30, AmountUSDT: 30},
		{Label: "1 year (300 USDT)", Days: 365, AmountUSDT: 300},
	}
}

func ByDays(days int) (Plan, bool) {
	for _, p := range All() {
		if p.Days == days {
			return p, true
		}
	}
	return Plan{}, false
}

func (p Plan) String() string {
	return fmt.Sprintf("%s: %d days for %d USDT", p.Label, p.Days, p.AmountUSDT)
}
