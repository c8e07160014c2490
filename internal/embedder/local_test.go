package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProvider_Deterministic(t *testing.T) {
	a, err := NewLocalProvider(0)
	require.NoError(t, err)
	b, err := NewLocalProvider(0)
	require.NoError(t, err)

	text := "Does anyone know how to fix the audio? It was broken after the update!"
	va := a.Embed(text)
	vb := b.Embed(text)

	assert.Len(t, va, LocalDimension)
	assert.Equal(t, va, vb, "same text must map to the same vector")
}

func TestLocalProvider_UnitNorm(t *testing.T) {
	p, err := NewLocalProvider(0)
	require.NoError(t, err)

	for _, text := range []string{"a", "love it", "BUY NOW at www.example.com!!!", "@sam I think you're right, but the sound was off."} {
		v := p.Embed(text)
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "text %q", text)
	}
}

func TestLocalProvider_Similarity(t *testing.T) {
	p, err := NewLocalProvider(0)
	require.NoError(t, err)

	base := p.Embed("the audio is out of sync with the video")
	near := p.Embed("audio out of sync with the video again")
	far := p.Embed("BUY CHEAP SHOES 50% OFF!!! www.shop.example")

	assert.Greater(t, cosine(base, near), cosine(base, far))
	assert.InDelta(t, 1.0, cosine(base, base), 1e-6)
}

func TestLocalProvider_Features(t *testing.T) {
	lex := lexicalFeatures("How do I fix this? Please help, the price is too high. https://x.y")
	assert.Equal(t, []float64{1, 1, 0, 0, 1, 1, 0, 1}, lex)

	st := structuralFeatures("Wow! Really? @ana, @ben see this.")
	assert.InDelta(t, 0.2, st[0], 1e-9) // one question mark
	assert.InDelta(t, 0.2, st[1], 1e-9) // one exclamation
	assert.InDelta(t, 0.1, st[2], 1e-9) // one comma
	assert.InDelta(t, 0.3, st[3], 1e-9) // three sentence ends
	assert.InDelta(t, 0.4, st[5], 1e-9) // two mentions

	stat := statisticalFeatures("AB 12")
	assert.InDelta(t, 5.0/500, stat[0], 1e-9)
	assert.InDelta(t, 1.0, stat[2], 1e-9) // all letters uppercase
	assert.InDelta(t, 0.4, stat[3], 1e-9) // two of five runes are digits
	assert.InDelta(t, 0.2, stat[7], 1e-9)
}

func TestLocalProvider_GenerateBatch(t *testing.T) {
	p, err := NewLocalProvider(128)
	require.NoError(t, err)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"one", "two"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderLocal, resp.Provider)
	assert.Equal(t, 128, resp.Embeddings[0].Dimension)
	assert.True(t, IsLocal(p))

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNormalizeL2(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, normalizeL2([]float32{3, 4}))
	zero := []float32{0, 0}
	assert.Equal(t, zero, normalizeL2(zero))
}
