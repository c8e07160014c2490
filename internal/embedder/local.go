package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// LocalDimension is the default width of local embeddings
	LocalDimension = 768

	// LocalModel names the local feature extractor
	LocalModel = "local-features-v1"

	// Share of the final vector norm given to the dense feature block; the
	// hashed token block gets the remainder.
	denseShare = 0.45
)

var (
	questionRe      = regexp.MustCompile(`(?i)\?|\b(what|why|how|when|where|who|which|does|is it|can you)\b`)
	transactionalRe = regexp.MustCompile(`(?i)\b(buy|price|cost|purchase|order|discount|sell|deal|shipping|coupon)\b`)
	positiveRe      = regexp.MustCompile(`(?i)\b(love|great|awesome|amazing|excellent|best|thanks|thank|helpful|nice|perfect)\b`)
	negativeRe      = regexp.MustCompile(`(?i)\b(hate|terrible|awful|worst|bad|boring|useless|annoying|disappointed|waste)\b`)
	problemRe       = regexp.MustCompile(`(?i)\b(fix|broken|issue|bug|error|problem|crash|glitch|lag)\b|not working`)
	helpRe          = regexp.MustCompile(`(?i)\b(help|please|anyone know|how do|how to|can someone)\b`)
	opinionRe       = regexp.MustCompile(`(?i)\b(think|believe|opinion|feel|prefer|honestly|imo)\b`)
	urlRe           = regexp.MustCompile(`(?i)https?://|www\.`)
	clauseRe        = regexp.MustCompile(`(?i)[,;]|\b(because|but|although|however|which|while)\b`)
	sentenceRe      = regexp.MustCompile(`[.!?]+`)
	mentionRe       = regexp.MustCompile(`@\w+`)
)

// featureCount is the number of dense features ahead of the hashed block
const featureCount = 8 + 8 + 6

// LocalDeterministicProvider embeds text from extracted lexical features.
// The same text always yields the same vector.
type LocalDeterministicProvider struct {
	dimension int
}

// NewLocalProvider creates a local provider; dimension 0 selects LocalDimension
func NewLocalProvider(dimension int) (*LocalDeterministicProvider, error) {
	if dimension == 0 {
		dimension = LocalDimension
	}
	if dimension <= featureCount {
		return nil, fmt.Errorf("%w: local dimension must exceed %d", ErrInvalidInput, featureCount)
	}
	return &LocalDeterministicProvider{dimension: dimension}, nil
}

// Embed computes the feature vector for text
func (l *LocalDeterministicProvider) Embed(text string) []float32 {
	dense := append(append(statisticalFeatures(text), lexicalFeatures(text)...), structuralFeatures(text)...)
	hashed := hashedTokens(text, l.dimension-featureCount)

	vector := make([]float32, l.dimension)
	denseNorm := norm(dense)
	hashedNorm := norm(hashed)

	denseWeight, hashedWeight := denseShare, 1-denseShare
	if hashedNorm == 0 {
		denseWeight = 1
	}

	for i, v := range dense {
		if denseNorm > 0 {
			vector[i] = float32(denseWeight * v / denseNorm)
		}
	}
	for i, v := range hashed {
		if hashedNorm > 0 {
			vector[featureCount+i] = float32(hashedWeight * v / hashedNorm)
		}
	}

	return normalizeL2(vector)
}

func (l *LocalDeterministicProvider) GenerateEmbedding(_ context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    l.Embed(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     LocalModel,
	}, nil
}

func (l *LocalDeterministicProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      LocalModel,
	}, nil
}

func (l *LocalDeterministicProvider) Dimension() int {
	return l.dimension
}

func (l *LocalDeterministicProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalDeterministicProvider) Model() string {
	return LocalModel
}

func (l *LocalDeterministicProvider) Close() error {
	return nil
}

// statisticalFeatures: length, words, case, digits, punctuation, word length, uniqueness, whitespace
func statisticalFeatures(text string) []float64 {
	length := utf8.RuneCountInString(text)
	words := tokens(text)

	var upper, letters, digits, punct, spaces int
	for _, r := range text {
		switch {
		case unicode.IsUpper(r):
			upper++
			letters++
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
			spaces++
		case unicode.IsPunct(r):
			punct++
		}
	}

	meanWord := 0.0
	unique := 0.0
	if len(words) > 0 {
		total := 0
		seen := make(map[string]struct{}, len(words))
		for _, w := range words {
			total += utf8.RuneCountInString(w)
			seen[w] = struct{}{}
		}
		meanWord = float64(total) / float64(len(words))
		unique = float64(len(seen)) / float64(len(words))
	}

	return []float64{
		capped(float64(length), 500),
		capped(float64(len(words)), 100),
		ratio(upper, letters),
		ratio(digits, length),
		ratio(punct, length),
		capped(meanWord, 10),
		unique,
		ratio(spaces, length),
	}
}

// lexicalFeatures: regex flags for the language families comments tend to carry
func lexicalFeatures(text string) []float64 {
	flags := []*regexp.Regexp{questionRe, transactionalRe, positiveRe, negativeRe, problemRe, helpRe, opinionRe, urlRe}
	out := make([]float64, len(flags))
	for i, re := range flags {
		if re.MatchString(text) {
			out[i] = 1
		}
	}
	return out
}

// structuralFeatures: punctuation and clause counts
func structuralFeatures(text string) []float64 {
	return []float64{
		capped(float64(strings.Count(text, "?")), 5),
		capped(float64(strings.Count(text, "!")), 5),
		capped(float64(strings.Count(text, ",")), 10),
		capped(float64(len(sentenceRe.FindAllString(text, -1))), 10),
		capped(float64(len(clauseRe.FindAllString(text, -1))), 10),
		capped(float64(len(mentionRe.FindAllString(text, -1))), 5),
	}
}

// hashedTokens spreads lowercase tokens over n buckets with signed feature hashing
func hashedTokens(text string, n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	for _, tok := range tokens(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()

		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		out[int(sum%uint64(n))] += sign
	}
	return out
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func capped(v, limit float64) float64 {
	if v >= limit {
		return 1
	}
	return v / limit
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// normalizeL2 scales v to unit length; a zero vector is returned unchanged
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
