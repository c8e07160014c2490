package scoring

import (
	"regexp"
	"strings"

	"github.com/dshills/commentlens/pkg/types"
)

// Content families that raise a text's importance
var (
	transactionalPattern = regexp.MustCompile(`(?i)\b(buy|price|cost|purchase|order|discount|sell|deal|shipping|coupon|sponsor|hire|quote)\b`)
	educationalPattern   = regexp.MustCompile(`(?i)\b(learn|learned|tutorial|explain|explained|understand|teach|guide|lesson|course)\b`)
	problemPattern       = regexp.MustCompile(`(?i)\b(fix|broken|issue|issues|bug|error|problem|crash|crashes|glitch|lag)\b|not working|doesn'?t work`)
	opinionPattern       = regexp.MustCompile(`(?i)\b(think|believe|opinion|feel|prefer|honestly|imo|overrated|underrated)\b`)
	helpPattern          = regexp.MustCompile(`(?i)\b(help|please|anyone know|how do|how to|can someone|does anyone)\b`)
)

// RelevanceSource reports how strongly a text overlaps historical queries
type RelevanceSource interface {
	SearchRelevance(text string) float64
}

// ImportanceScorer combines caller context flags, content families and
// learned search relevance into a single 0..1 score
type ImportanceScorer struct {
	policy    Policy
	relevance RelevanceSource
}

// NewImportanceScorer creates a scorer; relevance may be nil
func NewImportanceScorer(policy Policy, relevance RelevanceSource) *ImportanceScorer {
	return &ImportanceScorer{policy: policy, relevance: relevance}
}

// Score returns the importance of text given its context
func (s *ImportanceScorer) Score(text string, ctx types.SourceContext) float64 {
	p := s.policy
	score := 0.0

	if ctx.IsBusinessOpportunity {
		score += p.BusinessWeight
	}
	if ctx.IsQuestion || strings.Contains(text, "?") {
		score += p.QuestionWeight
	}
	if ctx.Likes >= p.HighEngagementLikes || ctx.Replies >= p.HighEngagementReplies {
		score += p.EngagementWeight
	}
	if ctx.IsControversial {
		score += p.ControversialWeight
	}

	families := []struct {
		re     *regexp.Regexp
		weight float64
	}{
		{transactionalPattern, p.TransactionalWeight},
		{educationalPattern, p.EducationalWeight},
		{problemPattern, p.ProblemWeight},
		{opinionPattern, p.OpinionWeight},
		{helpPattern, p.HelpWeight},
	}
	for _, f := range families {
		if f.re.MatchString(text) {
			score += f.weight
		}
	}

	if s.relevance != nil {
		score += p.RelevanceWeight * clamp01(s.relevance.SearchRelevance(text))
	}

	return clamp01(score)
}
