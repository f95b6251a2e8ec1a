package search

import (
	"slices"

	"github.com/Aman-CERP/knowbase/internal/store"
)

// typoCorrections fixes misspellings seen in customer queries.
var typoCorrections = map[string]string{
	"cousultation": "consultation",
	"startaps":     "startups",
	"businesse":    "business",
	"busines":      "business",
	"technologie":  "technology",
	"tecnology":    "technology",
	"suport":       "support",
	"pricng":       "pricing",
}

// domainSynonyms bridges customer vocabulary and document vocabulary.
var domainSynonyms = map[string][]string{
	"security":     {"privacy", "protection", "safe", "secure"},
	"data":         {"information", "database", "records"},
	"price":        {"cost", "pricing", "quote", "fee"},
	"cost":         {"price", "pricing", "quote", "fee"},
	"pricing":      {"cost", "price", "quote", "fee"},
	"service":      {"services", "offering", "solution"},
	"analytics":    {"analysis", "insight", "report"},
	"consultation": {"consult", "meeting", "discussion"},
	"support":      {"help", "assistance", "maintenance"},
}

// synonymTable is domainSynonyms with keys and values in index term form,
// so lookups match folded query terms.
var synonymTable = buildSynonymTable(domainSynonyms)

func buildSynonymTable(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for k, vs := range src {
		keys := store.Tokenize(k)
		if len(keys) != 1 {
			continue
		}
		key := keys[0]
		for _, v := range vs {
			for _, t := range store.Tokenize(v) {
				if t != key && !slices.Contains(out[key], t) {
					out[key] = append(out[key], t)
				}
			}
		}
	}
	return out
}
