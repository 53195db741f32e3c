package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmbeddable(t *testing.T) {
	assert.Equal(t, "", NormalizeEmbeddable(nil))
	assert.Equal(t, "", NormalizeEmbeddable(ptr("   \n\t")))
	assert.Equal(t, "hello world", NormalizeEmbeddable(ptr("  hello world  ")))
}

func TestEmbedFields_MapsVectorsBack(t *testing.T) {
	emb := &fakeEmbedder{}
	vectors, err := EmbedFields(context.Background(), emb, ptr("ab"), nil, ptr("  "), ptr("abcd"))
	require.NoError(t, err)

	require.Len(t, vectors, 4)
	assert.Equal(t, float32(2), vectors[0][0])
	assert.Nil(t, vectors[1])
	assert.Nil(t, vectors[2])
	assert.Equal(t, float32(4), vectors[3][0])
	require.Equal(t, 1, emb.callCount())
	assert.Equal(t, []string{"ab", "abcd"}, emb.calls[0])
}

func TestEmbedFields_AllAbsentMakesNoCall(t *testing.T) {
	emb := &fakeEmbedder{}
	vectors, err := EmbedFields(context.Background(), emb, nil, ptr(""), ptr(" "))
	require.NoError(t, err)
	assert.Equal(t, [][]float32{nil, nil, nil}, vectors)
	assert.Equal(t, 0, emb.callCount())
}

func TestEmbedFields_LengthMismatch(t *testing.T) {
	emb := &fakeEmbedder{dropOne: true}
	_, err := EmbedFields(context.Background(), emb, ptr("a"), ptr("b"))
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	assert.Equal(t, "embedding response length mismatch", ErrEmbeddingMismatch.Error())
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestEmbedFields_WrongDimensions(t *testing.T) {
	_, err := EmbedFields(context.Background(), shortEmbedder{}, ptr("a"))
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}

func TestEmbedFields_EmbedderError(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("quota")}
	_, err := EmbedFields(context.Background(), emb, ptr("a"))
	assert.ErrorContains(t, err, "quota")
}

func TestTrimTextToTokenLimit(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"no limit", "a b c", 0, "a b c"},
		{"under limit keeps text", "a  b\nc", 5, "a  b\nc"},
		{"keeps tail tokens", "one two three four", 2, "three four"},
		{"collapses whitespace when trimming", "one\ttwo\n\nthree", 2, "two three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimTextToTokenLimit(tt.text, tt.limit))
		})
	}
}

func TestLayer_ParseAndLabel(t *testing.T) {
	l, ok := ParseLayer(" Identity ")
	require.True(t, ok)
	assert.Equal(t, LayerIdentity, l)
	assert.Equal(t, "identities", l.Label())

	_, ok = ParseLayer("episodic")
	assert.False(t, ok)

	assert.Equal(t, []Layer{LayerIdentity, LayerContext, LayerPreference, LayerExperience}, LayerOrder)
}
