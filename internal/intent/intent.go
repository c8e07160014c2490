// Package intent classifies search queries into coarse purposes by keyword
// family density.
package intent

import (
	"regexp"
	"strings"

	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/pkg/types"
)

var families = []struct {
	intent  types.Intent
	pattern *regexp.Regexp
}{
	{types.IntentBusiness, regexp.MustCompile(`\b(price|pricing|cost|costs|buy|purchase|sell|selling|sponsor\w*|collab\w*|business|hire|hiring|contract|invoice|quote|deal|brand|partner\w*|merch|shop|order|client|customer)\b`)},
	{types.IntentTechnical, regexp.MustCompile(`\b(fix\w*|bug\w*|error\w*|issue\w*|broken|crash\w*|audio|sound|mic|microphone|camera|lens|setting\w*|install\w*|config\w*|software|hardware|code|render\w*|resolution|lag\w*|glitch\w*|update\w*|version|driver\w*|sync|setup)\b`)},
	{types.IntentOpinion, regexp.MustCompile(`\b(think|opinion|believe|favou?rite|best|worst|prefer|like|love|hate|overrated|underrated|agree|disagree|recommend\w*)\b`)},
	{types.IntentFactual, regexp.MustCompile(`\b(what|when|where|who|which|why|fact\w*|true|source|date|name|many|much)\b`)},
	{types.IntentComparison, regexp.MustCompile(`\b(vs|versus|compar\w*|better|worse|difference|than|instead|alternative\w*)\b`)},
	{types.IntentEmotional, regexp.MustCompile(`\b(sad|happy|cry\w*|tears|angry|mad|scared|lonely|miss|heart\w*|emotional|beautiful|wholesome|touching|feel\w*)\b`)},
}

// Result is a classification with the density of every family
type Result struct {
	Intent  types.Intent
	Density map[types.Intent]float64
}

// Classify returns the intent whose keyword family has the highest match
// density over the query tokens. Ties and queries with no match are unknown.
func Classify(query string) Result {
	words := scoring.Words(query)
	res := Result{Intent: types.IntentUnknown, Density: make(map[types.Intent]float64, len(families))}
	if len(words) == 0 {
		return res
	}

	normalized := strings.Join(words, " ")

	best, tied := 0.0, false
	for _, f := range families {
		density := float64(len(f.pattern.FindAllStringIndex(normalized, -1))) / float64(len(words))
		res.Density[f.intent] = density

		switch {
		case density > best:
			best, tied = density, false
			res.Intent = f.intent
		case density == best && density > 0:
			tied = true
		}
	}

	if best == 0 || tied {
		res.Intent = types.IntentUnknown
	}
	return res
}
