package searcher

import (
	"regexp"
	"slices"
	"strings"

	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/pkg/types"
)

// strategyTable maps each intent to the strategies worth running for it
var strategyTable = map[types.Intent][]types.Strategy{
	types.IntentBusiness:   {types.StrategyExact, types.StrategySemantic, types.StrategyContext},
	types.IntentTechnical:  {types.StrategyExact, types.StrategySemantic, types.StrategyPattern},
	types.IntentOpinion:    {types.StrategySemantic, types.StrategyContext},
	types.IntentFactual:    {types.StrategyExact, types.StrategySemantic},
	types.IntentComparison: {types.StrategySemantic, types.StrategyContext, types.StrategyExact},
	types.IntentEmotional:  {types.StrategySemantic, types.StrategyContext},
	types.IntentUnknown:    {types.StrategyExact, types.StrategySemantic},
}

// StrategiesFor returns the strategies selected for intent
func StrategiesFor(in types.Intent) []types.Strategy {
	s, ok := strategyTable[in]
	if !ok {
		s = strategyTable[types.IntentUnknown]
	}
	return slices.Clone(s)
}

// synonyms feeds query expansion for the context strategy
var synonyms = map[string][]string{
	"fix":       {"solve", "repair"},
	"broken":    {"not working", "issue"},
	"audio":     {"sound"},
	"sound":     {"audio"},
	"video":     {"clip", "upload"},
	"price":     {"cost"},
	"cost":      {"price"},
	"buy":       {"purchase"},
	"good":      {"great"},
	"great":     {"amazing"},
	"bad":       {"terrible"},
	"love":      {"enjoy"},
	"hate":      {"dislike"},
	"problem":   {"issue"},
	"issue":     {"problem"},
	"question":  {"ask"},
	"tutorial":  {"guide"},
	"camera":    {"lens"},
	"mic":       {"microphone"},
	"better":    {"prefer"},
	"sad":       {"emotional"},
	"funny":     {"hilarious"},
	"sponsor":   {"brand deal"},
	"recommend": {"suggest"},
}

// intentHints are appended to a query to steer an expansion towards its intent
var intentHints = map[types.Intent]string{
	types.IntentBusiness:   "business opportunity",
	types.IntentTechnical:  "problem help",
	types.IntentOpinion:    "i think",
	types.IntentFactual:    "question",
	types.IntentComparison: "better than",
	types.IntentEmotional:  "feel",
}

// expandQuery returns up to maxVariants rewrites of query that differ from it
func expandQuery(query string, in types.Intent, maxVariants int) []string {
	words := scoring.Words(query)
	if len(words) == 0 || maxVariants <= 0 {
		return nil
	}

	base := strings.Join(words, " ")
	seen := map[string]bool{base: true}
	var variants []string
	add := func(v string) {
		if len(variants) < maxVariants && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	// One synonym substitution per variant keeps each close to the original
	for i, w := range words {
		for _, syn := range synonyms[w] {
			rewritten := slices.Clone(words)
			rewritten[i] = syn
			add(strings.Join(rewritten, " "))
		}
	}

	if hint, ok := intentHints[in]; ok {
		add(base + " " + hint)
	}
	return variants
}

var mentionPattern = regexp.MustCompile(`@\w+`)

// tokenOverlap is the share of query tokens present in text
func tokenOverlap(queryWords []string, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	present := make(map[string]struct{})
	for _, w := range scoring.Words(mentionPattern.ReplaceAllString(text, " ")) {
		present[w] = struct{}{}
	}

	hits := 0
	for _, w := range queryWords {
		if _, ok := present[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryWords))
}

// queryTerms returns the distinct content words of query, falling back to all
// words when the query is made only of stop words
func queryTerms(query string) []string {
	words := scoring.ContentWords(query)
	if len(words) == 0 {
		words = scoring.Words(query)
	}
	slices.Sort(words)
	return slices.Compact(words)
}
