package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robolog/robolog/pkg/types"
)

// AnthropicConfig holds configuration for the Anthropic port.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-haiku-4-5-20251001
	BaseURL string        // default: https://api.anthropic.com
	Timeout time.Duration // per-request client timeout, default: 60s
}

// Prompts holds the per-operation system prompts, loaded from configuration.
type Prompts struct {
	NoteEnrichment string
	TaskEnrichment string
	ActivitySchema string
}

// AnthropicPort implements Port using the Anthropic Messages API with
// forced tool calls. Every operation declares one tool, forces the model to
// call it, and validates the returned arguments against the tool schema.
//
// The port consults the rate limiter before every request and records real
// usage after, runs each call under the retry policy, and shields the
// provider with a circuit breaker.
type AnthropicPort struct {
	cfg     AnthropicConfig
	prompts Prompts
	client  *http.Client
	breaker *CircuitBreaker
	limiter *RateLimiter
	policy  RetryPolicy
	clock   Clock
}

// NewAnthropicPort creates a production port. A nil limiter disables rate
// limiting (used by robolog-setup for the health check).
func NewAnthropicPort(cfg AnthropicConfig, prompts Prompts, limiter *RateLimiter, policy RetryPolicy) *AnthropicPort {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicPort{
		cfg:     cfg,
		prompts: prompts,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker(),
		limiter: limiter,
		policy:  policy,
		clock:   RealClock(),
	}
}

// anthropicRequest is the request body for POST /v1/messages.
type anthropicRequest struct {
	Model      string               `json:"model"`
	MaxTokens  int                  `json:"max_tokens"`
	System     string               `json:"system,omitempty"`
	Messages   []anthropicMessage   `json:"messages"`
	Tools      []toolSchema         `json:"tools,omitempty"`
	ToolChoice *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// anthropicResponse is the response body from POST /v1/messages.
type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProcessText enriches note or task text via the matching tool.
func (p *AnthropicPort) ProcessText(ctx context.Context, text string, contextType ContextType) (*types.EnrichmentResult, error) {
	const op = "process_text"

	var system string
	var tool toolSchema
	switch contextType {
	case ContextNoteEnrichment:
		system, tool = p.prompts.NoteEnrichment, enrichNoteTool
	case ContextTaskEnrichment:
		system, tool = p.prompts.TaskEnrichment, enrichTaskTool
	default:
		return nil, validationErrorf(op, "unknown context type %q", contextType)
	}

	args, tokens, err := p.callTool(ctx, op, system, text, tool)
	if err != nil {
		return nil, err
	}

	content, metadata, err := parseEnrichment(op, args, contextType)
	if err != nil {
		return nil, err
	}

	return &types.EnrichmentResult{
		Content:    content,
		Metadata:   metadata,
		TokensUsed: tokens,
		ModelName:  p.cfg.Model,
		CreatedAt:  p.clock.Now().UTC(),
	}, nil
}

// ExtractTasks surfaces actionable items from note text.
func (p *AnthropicPort) ExtractTasks(ctx context.Context, noteText string, now time.Time) ([]types.TaskCandidate, error) {
	const op = "extract_tasks"

	system := fmt.Sprintf("You are an assistant that finds actionable items in personal notes. "+
		"Today is %s. Resolve relative date phrases (\"tomorrow\", \"next Friday\") against "+
		"that date. Only report items the author clearly intends to act on; an empty list "+
		"is a common and correct answer. Respond by calling the provided function.",
		now.UTC().Format("Monday, 2006-01-02"))

	args, _, err := p.callTool(ctx, op, system, noteText, extractTasksTool)
	if err != nil {
		return nil, err
	}
	return parseTaskCandidates(op, args)
}

// ExtractMoments surfaces occurrences of the given activities in note text.
func (p *AnthropicPort) ExtractMoments(ctx context.Context, noteText string, activities []*types.Activity, now time.Time) ([]types.ExtractedMoment, error) {
	const op = "extract_moments"

	var sb strings.Builder
	sb.WriteString("Tracked activities and their data schemas:\n")
	for _, a := range activities {
		fmt.Fprintf(&sb, "- %s: %s\n", a.Name, string(a.ActivitySchema))
	}
	sb.WriteString("\nNote:\n")
	sb.WriteString(noteText)

	system := fmt.Sprintf("You are an assistant that spots occurrences of tracked activities in "+
		"personal notes. Today is %s. For each occurrence, emit the activity name and a data "+
		"object matching that activity's schema. Only report clear occurrences; an empty list "+
		"is a common and correct answer. Respond by calling the provided function.",
		now.UTC().Format("Monday, 2006-01-02"))

	args, _, err := p.callTool(ctx, op, system, sb.String(), extractMomentsTool)
	if err != nil {
		return nil, err
	}
	return parseMoments(op, args)
}

// AnalyzeActivitySchema suggests a rendering strategy for a JSON Schema.
func (p *AnthropicPort) AnalyzeActivitySchema(ctx context.Context, schema json.RawMessage) (*types.SchemaRender, error) {
	const op = "analyze_activity_schema"

	args, _, err := p.callTool(ctx, op, p.prompts.ActivitySchema, string(schema), analyzeSchemaTool)
	if err != nil {
		return nil, err
	}
	return parseSchemaRender(op, args)
}

// HealthCheck issues a minimal completion to verify provider reachability.
// It bypasses the rate limiter and retry loop: a health probe should report
// the provider's current state, not mask it.
func (p *AnthropicPort) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	const op = "health_check"

	start := p.clock.Now()
	_, _, err := p.invoke(ctx, op, anthropicRequest{
		Model:     p.cfg.Model,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
	})
	status := &HealthStatus{
		OK:       err == nil,
		Latency:  p.clock.Now().Sub(start),
		Provider: "anthropic/" + p.cfg.Model,
	}
	if err != nil {
		return status, err
	}
	return status, nil
}

// callResult is what a single successful provider round-trip yields.
type callResult struct {
	args   map[string]interface{}
	tokens int
}

// callTool runs one tool-forced completion under the rate limiter, circuit
// breaker, and retry policy, returning the validated tool arguments and the
// actual token usage.
func (p *AnthropicPort) callTool(ctx context.Context, op, system, userText string, tool toolSchema) (map[string]interface{}, int, error) {
	estimated := EstimateTokens(system + userText)

	req := anthropicRequest{
		Model:      p.cfg.Model,
		MaxTokens:  4096,
		System:     system,
		Messages:   []anthropicMessage{{Role: "user", Content: userText}},
		Tools:      []toolSchema{tool},
		ToolChoice: &anthropicToolChoice{Type: "tool", Name: tool.Name},
	}

	var result callResult
	err := WithRetry(ctx, p.clock, p.policy, op, func() error {
		if p.limiter != nil {
			if err := p.limiter.WaitForCapacity(ctx, estimated); err != nil {
				return newError(KindTimeout, op, err)
			}
		}

		res, err := p.breaker.Execute(func() (interface{}, error) {
			args, tokens, err := p.invoke(ctx, op, req)
			if err != nil {
				return nil, err
			}
			return &callResult{args: args, tokens: tokens}, nil
		})
		if errors.Is(err, ErrCircuitOpen) {
			// No request was issued; no budget was spent.
			return newError(KindTransient, op, err)
		}
		if err != nil {
			// The request reached (or tried to reach) the provider
			// without reporting usage; charge the estimate.
			if p.limiter != nil {
				p.limiter.RecordUsage(estimated)
			}
			return err
		}

		result = *res.(*callResult)
		if p.limiter != nil {
			if result.tokens > 0 {
				p.limiter.RecordUsage(result.tokens)
			} else {
				p.limiter.RecordUsage(estimated)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	tokens := result.tokens
	if tokens == 0 {
		tokens = estimated
	}
	return result.args, tokens, nil
}

// invoke performs one HTTP round-trip and classifies any failure.
func (p *AnthropicPort) invoke(ctx context.Context, op string, reqBody anthropicRequest) (map[string]interface{}, int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, newError(KindPermanent, op, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, newError(KindPermanent, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, 0, newError(KindTimeout, op, err)
		}
		return nil, 0, newError(KindTransient, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, 0, newError(KindRateLimited, op, err)
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
			return nil, 0, newError(KindTimeout, op, err)
		case resp.StatusCode >= 500:
			return nil, 0, newError(KindTransient, op, err)
		default:
			return nil, 0, newError(KindPermanent, op, err)
		}
	}

	var respData anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, 0, newError(KindTransient, op, fmt.Errorf("failed to decode response: %w", err))
	}

	tokens := respData.Usage.InputTokens + respData.Usage.OutputTokens

	if len(reqBody.Tools) == 0 {
		return nil, tokens, nil
	}

	for _, block := range respData.Content {
		if block.Type != "tool_use" || block.Name != reqBody.Tools[0].Name {
			continue
		}
		var args map[string]interface{}
		if err := json.Unmarshal(block.Input, &args); err != nil {
			return nil, tokens, validationErrorf(op, "unparseable tool arguments: %v", err)
		}
		return args, tokens, nil
	}
	return nil, tokens, validationErrorf(op, "response contains no %s tool call", reqBody.Tools[0].Name)
}

// isTimeout reports whether err is a network-level timeout.
func isTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Compile-time assertion.
var _ Port = (*AnthropicPort)(nil)
