package oracle

import (
	"strings"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

// USD per 1M tokens. Unknown models cost zero; accounting still records
// their token counts.
type modelPricing struct {
	inputPerM  float64
	outputPerM float64
}

var pricing = map[string]modelPricing{
	"gemini-2.5-flash": {inputPerM: 0.30, outputPerM: 2.50},
	"gemini-2.5-pro":   {inputPerM: 1.25, outputPerM: 10.00},
}

func EstimateCost(model string, usage internal.Usage) float64 {
	p, ok := pricing[strings.ToLower(model)]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1e6*p.inputPerM + float64(usage.OutputTokens)/1e6*p.outputPerM
}
