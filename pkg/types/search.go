package types

// Intent is the detected purpose of a search query
type Intent string

const (
	IntentBusiness   Intent = "business"
	IntentTechnical  Intent = "technical"
	IntentOpinion    Intent = "opinion"
	IntentFactual    Intent = "factual"
	IntentComparison Intent = "comparison"
	IntentEmotional  Intent = "emotional"
	IntentUnknown    Intent = "unknown"
)

// AllIntents lists every intent in a stable order
var AllIntents = []Intent{
	IntentBusiness, IntentTechnical, IntentOpinion, IntentFactual,
	IntentComparison, IntentEmotional, IntentUnknown,
}

// Strategy names one independent retrieval method
type Strategy string

const (
	StrategyExact    Strategy = "exact"
	StrategySemantic Strategy = "semantic"
	StrategyContext  Strategy = "context"
	StrategyPattern  Strategy = "pattern"
)

// AllStrategies lists every strategy in a stable order
var AllStrategies = []Strategy{StrategyExact, StrategySemantic, StrategyContext, StrategyPattern}

// ParseStrategy converts a name into a Strategy
func ParseStrategy(name string) (Strategy, bool) {
	for _, s := range AllStrategies {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}
