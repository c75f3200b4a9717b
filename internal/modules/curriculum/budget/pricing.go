package budget

import (
	"sort"
	"strings"
)

// Price is USD per one million tokens.
type Price struct {
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

var UnknownModelPrice = Price{InputPer1M: 5.00, OutputPer1M: 15.00}

var DefaultPrices = map[string]Price{
	"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":   {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},
	"o1-mini":       {InputPer1M: 3.00, OutputPer1M: 12.00},
	"dry_run":       {},
}

// CallSpec describes a call for cost estimation.
type CallSpec struct {
	Model     string
	TokensIn  int
	TokensOut int
}

// Pricing resolves a model name to its price. Dated snapshots such as
// "gpt-4o-2024-08-06" resolve through the longest matching prefix.
type Pricing struct {
	prices map[string]Price
	names  []string
}

// NewPricing starts from DefaultPrices and applies overrides given as
// model -> [input, output].
func NewPricing(overrides map[string][2]float64) Pricing {
	prices := make(map[string]Price, len(DefaultPrices)+len(overrides))
	for k, v := range DefaultPrices {
		prices[k] = v
	}
	for k, v := range overrides {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		prices[k] = Price{InputPer1M: v[0], OutputPer1M: v[1]}
	}
	names := make([]string, 0, len(prices))
	for k := range prices {
		names = append(names, k)
	}
	// longest first so prefix lookup prefers gpt-4o-mini over gpt-4o
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return Pricing{prices: prices, names: names}
}

func (p Pricing) For(model string) Price {
	if p.prices == nil {
		p = NewPricing(nil)
	}
	m := strings.ToLower(strings.TrimSpace(model))
	if price, ok := p.prices[m]; ok {
		return price
	}
	for _, name := range p.names {
		if strings.HasPrefix(m, name) {
			return p.prices[name]
		}
	}
	return UnknownModelPrice
}

func (p Pricing) EstimateCost(call CallSpec) float64 {
	price := p.For(call.Model)
	in := float64(max(call.TokensIn, 0)) / 1_000_000 * price.InputPer1M
	out := float64(max(call.TokensOut, 0)) / 1_000_000 * price.OutputPer1M
	return in + out
}
