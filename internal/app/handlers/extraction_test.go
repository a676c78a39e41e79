package handlers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/app/handlers"
	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/llm"
)

func TestLLMExtraction_AllocatesTokenBudgetAcrossItems(t *testing.T) {
	var gotTokens []int
	adapter := &stubLLMAdapter{
		extract: func(ctx context.Context, questions []llm.Question) []domain.LLMExtractionResponse {
			out := make([]domain.LLMExtractionResponse, len(questions))
			for i, q := range questions {
				gotTokens = append(gotTokens, q.MaxTokens)
				out[i] = domain.LLMExtractionResponse{Question: q.Question, Content: "extracted", Processed: true, TokensUsed: 5}
			}
			return out
		},
	}
	h := handlers.NewLLMExtractionHandler(adapter, 32000, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"items": []any{
		map[string]any{"instruction": "pull out the price", "content": "doc 1"},
		map[string]any{"instruction": "pull out the date", "content": "doc 2"},
	}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []int{16000, 16000}, gotTokens)
	assert.Contains(t, res.Text, "16000 tokens/item")
}

func TestLLMExtraction_PartialFailureStillSucceeds(t *testing.T) {
	adapter := &stubLLMAdapter{
		extract: func(ctx context.Context, questions []llm.Question) []domain.LLMExtractionResponse {
			return []domain.LLMExtractionResponse{
				{Question: questions[0].Question, Content: questions[0].Content, Processed: false,
					Err: domain.NewClassifiedError(domain.KindInternal, "Empty response received", 0, nil)},
				{Question: questions[1].Question, Content: "extracted value", Processed: true, TokensUsed: 8},
			}
		},
	}
	h := handlers.NewLLMExtractionHandler(adapter, 32000, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"items": []any{
		map[string]any{"instruction": "i1", "content": "c1"},
		map[string]any{"instruction": "i2", "content": "c2"},
	}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text, "1/2 succeeded")
	assert.Contains(t, res.Text, "extracted value")
}

func TestLLMExtraction_AllItemsDegradeIsError(t *testing.T) {
	adapter := &stubLLMAdapter{
		extract: func(ctx context.Context, questions []llm.Question) []domain.LLMExtractionResponse {
			out := make([]domain.LLMExtractionResponse, len(questions))
			for i, q := range questions {
				out[i] = domain.LLMExtractionResponse{Question: q.Question, Content: q.Content, Processed: false,
					Err: domain.NewClassifiedError(domain.KindInternal, "Empty response received", 0, nil)}
			}
			return out
		},
	}
	h := handlers.NewLLMExtractionHandler(adapter, 32000, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"items": []any{
		map[string]any{"instruction": "i1", "content": "c1"},
	}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLLMExtraction_TooManyItemsIsInvalidInput(t *testing.T) {
	items := make([]any, 11)
	for i := range items {
		items[i] = map[string]any{"instruction": "i", "content": "c"}
	}
	h := handlers.NewLLMExtractionHandler(&stubLLMAdapter{}, 32000, zap.NewNop())
	_, err := h(context.Background(), map[string]any{"items": items})
	require.Error(t, err)
}

func TestLLMExtraction_EmptyItemsIsInvalidInput(t *testing.T) {
	h := handlers.NewLLMExtractionHandler(&stubLLMAdapter{}, 32000, zap.NewNop())
	_, err := h(context.Background(), map[string]any{"items": []any{}})
	require.Error(t, err)
}

func TestLLMExtraction_ReportsBudgetAllocationToMetrics(t *testing.T) {
	m := &stubHandlerMetrics{}
	adapter := &stubLLMAdapter{
		extract: func(ctx context.Context, questions []llm.Question) []domain.LLMExtractionResponse {
			out := make([]domain.LLMExtractionResponse, len(questions))
			for i, q := range questions {
				out[i] = domain.LLMExtractionResponse{Question: q.Question, Content: "extracted", Processed: true, TokensUsed: 5}
			}
			return out
		},
	}
	h := handlers.NewLLMExtractionHandler(adapter, 32000, zap.NewNop(), handlers.WithMetrics(m))
	_, err := h(context.Background(), map[string]any{"items": []any{
		map[string]any{"instruction": "i1", "content": "c1"},
		map[string]any{"instruction": "i2", "content": "c2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "llm_extraction", m.tool)
	assert.Equal(t, 16000, m.perItem)
}
