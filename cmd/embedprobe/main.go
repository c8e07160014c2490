// Command embedprobe prints the embedding decision and local-embedding
// statistics for each text given on the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/dshills/commentlens/internal/cachestore"
	"github.com/dshills/commentlens/internal/config"
	"github.com/dshills/commentlens/internal/decision"
	"github.com/dshills/commentlens/internal/embedder"
	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/quota"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvConfigPath), "path to a TOML configuration file")
	question := flag.Bool("question", false, "mark texts as questions")
	business := flag.Bool("business", false, "mark texts as business opportunities")
	likes := flag.Int("likes", 0, "like count attached to every text")
	flag.Parse()

	texts := flag.Args()
	if len(texts) == 0 {
		fmt.Fprintln(os.Stderr, "usage: embedprobe [flags] TEXT...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	local, err := embedder.NewLocalProvider(cfg.Embedding.Dimension)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create local provider: %v\n", err)
		os.Exit(1)
	}

	engine, err := decision.NewEngine(decision.Config{
		Policy:   cfg.Policy,
		Quota:    quota.NewTracker(cfg.Quota),
		Cache:    cachestore.New(kvstore.NewMemoryStore(0)),
		Learning: learning.NewStore(cfg.LearningOptions()),
		Primary:  local,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create decision engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		d := engine.Preview(ctx, types.TextUnit{
			ID:   fmt.Sprintf("arg%d", i+1),
			Text: text,
			Context: types.SourceContext{
				IsQuestion:            *question,
				IsBusinessOpportunity: *business,
				Likes:                 *likes,
			},
		})
		vectors[i] = local.Embed(text)
		printDecision(i+1, text, d, vectors[i])
	}

	if len(vectors) > 1 {
		fmt.Println("Pairwise cosine similarity:")
		for i := range vectors {
			for j := i + 1; j < len(vectors); j++ {
				fmt.Printf("  [%d] vs [%d]: %.4f\n", i+1, j+1, vectorstore.CosineSimilarity(vectors[i], vectors[j]))
			}
		}
	}
}

func printDecision(n int, text string, d types.Decision, vec []float32) {
	fmt.Printf("[%d] %q\n", n, truncate(text, 60))
	fmt.Printf("  fingerprint:   %s\n", d.Fingerprint)
	fmt.Printf("  outcome:       %s (%s)\n", d.Outcome, d.Reason)
	fmt.Printf("  score:         %.3f  confidence: %.3f\n", d.Score, d.Confidence)
	fmt.Printf("  quality:       %.3f\n", d.Factors.TextQuality)
	fmt.Printf("  importance:    %.3f\n", d.Factors.Importance)
	fmt.Printf("  quota:         %.3f (minute %.3f)\n", d.Factors.QuotaAvailability, d.Factors.MinuteQuota)
	fmt.Printf("  cost/benefit:  %.3f (%s)\n", d.Factors.CostBenefitRatio, d.Factors.Recommendation)

	var norm float64
	nonZero := 0
	for _, v := range vec {
		norm += float64(v) * float64(v)
		if v != 0 {
			nonZero++
		}
	}
	fmt.Printf("  embedding:     dim=%d non-zero=%d norm=%.4f\n\n", len(vec), nonZero, math.Sqrt(norm))
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
