package rates

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trend describes the direction a market headline implies.
type Trend string

const (
	TrendStable  Trend = "stable"
	TrendUp      Trend = "up"
	TrendWarning Trend = "warning"
	TrendDown    Trend = "down"
)

// Headline is one entry of the market news table. Min and Max are base
// rate bounds in percent, [Min, Max).
type Headline struct {
	Min   float64
	Max   float64
	Text  string
	Trend Trend
}

// MarketNews is searched in order and the first matching entry wins. The
// 0-1% cooling headline is shadowed by the 0-2% entry.
var MarketNews = []Headline{
	{Min: 0, Max: 2, Text: "Calm weather, steady prices, inflation under control.", Trend: TrendStable},
	{Min: 2, Max: 3, Text: "Oil prices tick up and shipping costs rise.", Trend: TrendUp},
	{Min: 3, Max: 4, Text: "A typhoon hit the farms, fruit and vegetable prices soar!", Trend: TrendUp},
	{Min: 4, Max: 5, Text: "Supply chain shortages make imported goods pricier.", Trend: TrendUp},
	{Min: 5, Max: 8, Text: "Energy crisis! Everything costs more, the inflation monster is here!", Trend: TrendWarning},
	{Min: 0, Max: 1, Text: "The economy is cooling off and shops are running sales.", Trend: TrendDown},
}

// HeadlineFor returns the first headline whose band contains base, or the
// first headline when none does.
func HeadlineFor(base decimal.Decimal) Headline {
	pct := base.Shift(2).InexactFloat64()
	for _, h := range MarketNews {
		if pct >= h.Min && pct < h.Max {
			return h
		}
	}
	return MarketNews[0]
}

// NewsLine renders the dated market bulletin stored on the rates document.
func NewsLine(base decimal.Decimal, now time.Time) string {
	return fmt.Sprintf("%s Market flash: CPI today %s%%. %s",
		now.Format("2006-01-02"), base.Shift(2).StringFixed(1), HeadlineFor(base).Text)
}
