package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
)

// AnthropicClient is the production LlmClient, grounded on kubernaut's
// go.mod pairing of anthropic-sdk-go with a gobreaker circuit breaker
// around the provider call: repeated ErrProviderError trips the breaker
// so a failing provider degrades the Optimizer/Reviewer fast instead of
// retrying every dispatch round into a stuck schedule.
type AnthropicClient struct {
	client   anthropic.Client
	model    anthropic.Model
	deadline time.Duration
	schemas  *SchemaRegistry
	breaker  *gobreaker.CircuitBreaker
}

// NewAnthropicClient constructs an AnthropicClient. model is the
// provider model id (config.Config.LlmModel); deadline is the inner
// per-call deadline applied on top of any caller-supplied context
// deadline.
func NewAnthropicClient(apiKey, model string, deadline time.Duration, schemas *SchemaRegistry) *AnthropicClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c := &AnthropicClient{
		client:   anthropic.NewClient(opts...),
		model:    anthropic.Model(model),
		deadline: deadline,
		schemas:  schemas,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llmclient.anthropic",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("llm circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})

	return c
}

// Call implements LlmClient.Call. It sends a single-turn
// structured request naming moduleName and its inputs, asks the model
// for a JSON object response, and validates it against schemaRef before
// returning.
func (c *AnthropicClient) Call(ctx context.Context, moduleName string, inputs map[string]any, schemaRef string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callOnce(ctx, moduleName, inputs, schemaRef)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open: %v", ErrProviderError, err)
		}
		return nil, err
	}
	out, _ := result.(map[string]any)
	return out, nil
}

func (c *AnthropicClient) callOnce(ctx context.Context, moduleName string, inputs map[string]any, schemaRef string) (map[string]any, error) {
	inputJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling inputs: %v", ErrProviderError, err)
	}

	prompt := fmt.Sprintf(
		"You are module %q of the mnemosyne orchestration core. "+
			"Given the following JSON inputs, respond with ONLY a single JSON "+
			"object conforming to the module's expected output shape.\n\ninputs: %s",
		moduleName, string(inputJSON))

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	text := message.Content[0].Text
	out, parseErr := parseJSONObject(text)
	if parseErr != nil {
		// One retry with a strict-schema reminder.
		retryPrompt := prompt + "\n\nYour previous response was not valid JSON. " +
			"Respond with ONLY the JSON object, no surrounding prose."
		retryMsg, retryErr := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(retryPrompt)),
			},
		})
		if retryErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderError, retryErr)
		}
		out, parseErr = parseJSONObject(retryMsg.Content[0].Text)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseFailure, parseErr)
		}
	}

	if c.schemas != nil {
		if err := c.schemas.Validate(schemaRef, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func parseJSONObject(text string) (map[string]any, error) {
	start := indexByte(text, '{')
	end := lastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

var _ LlmClient = (*AnthropicClient)(nil)


