package billing

import "github.com/shopspring/decimal"

// Pack is a purchasable credit bundle. Price is what the customer pays,
// Credits is what lands on the balance.
type Pack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	PriceUS decimal.Decimal `json:"price_usd"`
	Credits decimal.Decimal `json:"credits"`
}

var packs = []Pack{
	{ID: "starter", Name: "Starter", PriceUS: dec("5.00"), Credits: dec("5.00")},
	{ID: "plus", Name: "Plus", PriceUS: dec("10.00"), Credits: dec("11.00")},
	{ID: "studio", Name: "Studio", PriceUS: dec("25.00"), Credits: dec("30.00")},
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Packs returns the purchasable bundles in display order.
func Packs() []Pack {
	out := make([]Pack, len(packs))
	copy(out, packs)
	return out
}

// PackByID returns the pack and whether it exists.
func PackByID(id string) (Pack, bool) {
	for _, p := range packs {
		if p.ID == id {
			return p, true
		}
	}
	return Pack{}, false
}
