// Package embedder generates vector embeddings for comment text.
//
// Two providers sit behind the Embedder interface:
//
//   - RemoteProvider speaks the OpenAI-compatible /v1/embeddings API, with
//     presets for OpenAI and Jina AI, retry with exponential backoff and an
//     optional token-bucket rate limit.
//   - LocalDeterministicProvider derives a fixed-width vector from lexical
//     features of the text. It needs no network, and the same text always
//     maps to the same vector.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", APIKey: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "audio drifts out of sync after ten minutes",
//	})
//
// # Provider Selection
//
// The provider is chosen from configuration, never from the runtime shape of
// a value. NewFromEnv applies this order:
//
//  1. If COMMENTLENS_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if JINA_API_KEY is set → use Jina AI
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → local deterministic provider (offline mode)
//
// # Local Features
//
// The local vector is built from three dense blocks followed by a hashed
// token block, then L2-normalized:
//
//   - statistical: length, word count, uppercase/digit/punctuation ratios,
//     mean word length, unique-word ratio, whitespace ratio
//   - lexical: question, transactional, positive, negative, problem, help,
//     opinion and URL flags
//   - structural: question marks, exclamations, commas, sentences, clauses,
//     mentions
//   - residual: signed feature hashing of lowercase tokens
//
// # Error Handling
//
// Remote failures surface as ErrProviderFailed after retries. Client errors
// other than 429 are not retried. A Retry-After header in seconds replaces
// the next backoff delay, up to MaxDelay.
//
//	emb, err := provider.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // Fall back to the local provider
//	}
package embedder
