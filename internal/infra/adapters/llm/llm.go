// Package llm implements the LLM provider adapter (§4.5): a
// chat-completion call per extraction question with input truncation
// and graceful degradation on unrecoverable failure.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/fanout"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/retry"
)

const (
	defaultRequestTimeout = 90 * time.Second
	// maxInputChars bounds the content handed to the model per
	// question; content past this point is dropped rather than
	// chunked (§4.5 "truncate, never chunk").
	maxInputChars = 24000
	// MaxInFlight bounds concurrent LLM calls (§5); the model backend
	// is the scarcest and most expensive of the four providers.
	MaxInFlight = 8
)

// Metrics is the subset of the Prometheus surface this adapter reports
// into, across both the fan-out and retry layers. Satisfied by
// *metrics.PROC.
type Metrics interface {
	fanout.Metrics
	retry.Metrics
}

// Adapter wraps a single chat-completion endpoint.
type Adapter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

// New constructs an LLM adapter. model names the chat-completion model
// to request; baseURL defaults to the provider's completions endpoint.
func New(apiKey, baseURL, model string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "https://llm-proxy.internal/v1/chat/completions"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger.Named("llm_adapter"),
	}
}

// WithMetrics attaches a Prometheus sink (typically *metrics.PROC) that
// fan-out and retries both report into under the "llm" label.
func (a *Adapter) WithMetrics(m Metrics) *Adapter {
	a.metrics = m
	return a
}

// RetryPolicy is the provider-tuned policy from §4.2: LLM treats
// {429, 500, 502, 503} as retryable.
func RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Multiplier:  2,
		JitterRatio: 0.2,
		RetryablePredicate: func(ce *domain.ClassifiedError) bool {
			switch ce.HTTPStatus {
			case 429, 500, 502, 503:
				return true
			case 400, 401:
				return false
			}
			return ce.Retryable
		},
	}
}

// question pairs an extraction prompt with the source content it
// should be answered from.
type Question struct {
	Question  string
	Content   string
	MaxTokens int
}

// ExtractBatch runs one chat completion per question concurrently
// (capped at MaxInFlight). A question whose completion exhausts
// retries degrades gracefully: Processed=false and Content holds the
// original, untruncated input so the caller can still surface it
// (§4.5 "never drop the source material on failure").
func (a *Adapter) ExtractBatch(ctx context.Context, questions []Question) []domain.LLMExtractionResponse {
	if len(questions) == 0 {
		return nil
	}
	results := fanout.Run(ctx, questions, MaxInFlight, func(ctx context.Context, q Question) (domain.LLMExtractionResponse, error) {
		return a.Extract(ctx, q), nil
	}, fanout.WithMetrics(a.metrics, "llm"))
	out := make([]domain.LLMExtractionResponse, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

// Extract runs a single extraction question to completion or
// graceful degradation.
func (a *Adapter) Extract(ctx context.Context, q Question) domain.LLMExtractionResponse {
	content := truncate(q.Content, maxInputChars)

	reply, ce := retry.Run(ctx, a.logger, RetryPolicy(), func(ctx context.Context) (completionResult, error) {
		return a.complete(ctx, q.Question, content, q.MaxTokens)
	}, retry.WithMetrics(a.metrics, "llm"))
	if ce != nil {
		a.logger.Warn("llm extraction degraded to passthrough",
			zap.String("question", q.Question), zap.String("kind", string(ce.Kind)))
		return domain.LLMExtractionResponse{
			Question:  q.Question,
			Content:   q.Content,
			Processed: false,
			Err:       ce,
		}
	}

	if strings.TrimSpace(reply.Text) == "" {
		ce := domain.NewClassifiedError(domain.KindInternal, "Empty response received", 0, nil)
		ce.Retryable = false
		return domain.LLMExtractionResponse{
			Question:  q.Question,
			Content:   q.Content,
			Processed: false,
			Err:       ce,
		}
	}

	return domain.LLMExtractionResponse{
		Question:   q.Question,
		Content:    reply.Text,
		Processed:  true,
		TokensUsed: reply.TokensUsed,
	}
}

// truncationMarker is appended whenever content is actually cut, so
// the model (and any human reading the prompt) can tell truncated
// input from complete input (§4.5 "truncated with a marker").
const truncationMarker = "...[truncated]"

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncationMarker
}

type completionRequest struct {
	Model     string              `json:"model"`
	Messages  []completionMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRawResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type completionResult struct {
	Text       string
	TokensUsed int
}

func (a *Adapter) complete(ctx context.Context, question, content string, maxTokens int) (completionResult, error) {
	reqBody := completionRequest{
		Model: a.model,
		Messages: []completionMessage{
			{Role: "system", Content: "Answer the question strictly from the provided content. If the content does not contain the answer, say so briefly."},
			{Role: "user", Content: fmt.Sprintf("Content:\n%s\n\nQuestion: %s", content, question)},
		},
		MaxTokens: maxTokens,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return completionResult{}, domain.NewClassifiedError(domain.KindInternal, "encode llm request", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return completionResult{}, domain.NewClassifiedError(domain.KindInternal, "build llm request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return completionResult{}, classify.Classify(err, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return completionResult{}, classify.Classify(err, 0)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return completionResult{}, classify.HTTPStatus(resp.StatusCode, fmt.Errorf("llm proxy: %s", truncateBody(raw)))
	}

	var out completionRawResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return completionResult{}, domain.NewClassifiedError(domain.KindParse, "decode llm response: "+err.Error(), resp.StatusCode, err)
	}

	text := ""
	if len(out.Choices) > 0 {
		text = out.Choices[0].Message.Content
	}
	return completionResult{Text: text, TokensUsed: out.Usage.TotalTokens}, nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
