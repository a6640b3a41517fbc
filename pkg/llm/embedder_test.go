package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allionai/allion/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   "text-embedding-3-small",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "sk-test",
	})
	require.NoError(t, err)
	assert.NotNil(t, emb)
}

func TestFlattenEmbeddings(t *testing.T) {
	flat := llm.FlattenEmbeddings([][]float32{
		{0.1, 0.2},
		{0.3},
		{0.4, 0.5},
	})
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5}, flat)

	assert.Nil(t, llm.FlattenEmbeddings(nil))
}
