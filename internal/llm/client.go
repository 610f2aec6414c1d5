package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config configures a Client for a single upstream gateway.
type Config struct {
	BaseURL string
	APIKey  string
	// HTTPClient is reused across calls; a default is created when nil.
	HTTPClient *http.Client
}

// Client issues chat-completion calls against one remote LLM gateway,
// differentiating models by the Model field of each call.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a Client for the given gateway configuration.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), apiKey: cfg.APIKey, http: httpClient}
}

const (
	maxRetries     = 2
	initialBackoff = 1 * time.Second
	backoffFactor  = 2
)

// CompleteBlocking issues a non-streaming completion call, retrying
// transient failures up to maxRetries times with exponential backoff.
// Per spec.md §4.1, timeout applies per attempt, not end-to-end, and
// cancellation via ctx always wins regardless of attempt count.
func (c *Client) CompleteBlocking(ctx context.Context, model string, messages []Message, maxTokens int, timeout time.Duration) (*BlockingResult, error) {
	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, newCancelled(model)
			case <-time.After(backoff):
			}
			backoff *= backoffFactor
		}

		result, err := c.attemptBlocking(ctx, model, messages, maxTokens, timeout)
		if err == nil {
			return result, nil
		}

		var uerr *UpstreamError
		if errors.As(err, &uerr) {
			if uerr.Kind == KindCancelled {
				return nil, err
			}
			lastErr = err
			if !uerr.retryable() || attempt == maxRetries {
				return nil, err
			}
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *Client) attemptBlocking(ctx context.Context, model string, messages []Message, maxTokens int, timeout time.Duration) (*BlockingResult, error) {
	if ctx.Err() != nil {
		return nil, newCancelled(model)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(wireRequest{Model: model, Messages: toMessages(messages), MaxTokens: maxTokens})
	if err != nil {
		return nil, newPermanent(model, 0, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newPermanent(model, 0, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, model, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, model, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, newTransient(model, resp.StatusCode, string(respBytes))
		}
		return nil, newPermanent(model, resp.StatusCode, string(respBytes))
	}

	var wr wireResponse
	if err := json.Unmarshal(respBytes, &wr); err != nil {
		return nil, newPermanent(model, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	if len(wr.Choices) == 0 {
		return nil, newPermanent(model, resp.StatusCode, "no choices in response")
	}

	return &BlockingResult{
		Content: wr.Choices[0].Message.Content,
		Ms:      time.Since(start).Milliseconds(),
		Usage:   wr.Usage.toUsage(),
	}, nil
}

// CompleteStreaming issues a streaming completion call. There are no
// retries for the streaming form; malformed frames are skipped and partial
// deltas remain valid, per spec.md §4.1.
func (c *Client) CompleteStreaming(ctx context.Context, model string, messages []Message, maxTokens int, timeout time.Duration, reasoning bool) (<-chan StreamChunk, error) {
	if ctx.Err() != nil {
		return nil, newCancelled(model)
	}

	streamCtx, cancel := context.WithTimeout(ctx, timeout)

	body, err := json.Marshal(wireRequest{Model: model, Messages: toMessages(messages), MaxTokens: maxTokens, Stream: true})
	if err != nil {
		cancel()
		return nil, newPermanent(model, 0, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, newPermanent(model, 0, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, classifyTransportError(ctx, model, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		respBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, newTransient(model, resp.StatusCode, string(respBytes))
		}
		return nil, newPermanent(model, resp.StatusCode, string(respBytes))
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer resp.Body.Close()
		defer close(out)

		start := time.Now()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var usage *Usage

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}
			var wr wireResponse
			if err := json.Unmarshal([]byte(data), &wr); err != nil {
				// Malformed frame: skip it, partial successful deltas remain valid.
				continue
			}
			if wr.Usage != nil {
				usage = wr.Usage.toUsage()
			}
			if len(wr.Choices) == 0 {
				continue
			}
			ch := wr.Choices[0]
			if ch.Delta.Content != nil && *ch.Delta.Content != "" {
				select {
				case out <- StreamChunk{Delta: *ch.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			if reasoning && ch.Delta.ReasoningContent != nil && *ch.Delta.ReasoningContent != "" {
				select {
				case out <- StreamChunk{Reasoning: *ch.Delta.ReasoningContent}:
				case <-ctx.Done():
					return
				}
			}
		}
		// scanner.Err() surfaces only transport-level failures: abort without
		// a terminal chunk so the caller knows timing/tokens are unavailable.
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamChunk{Err: classifyTransportError(ctx, model, err)}:
			case <-ctx.Done():
			}
			return
		}
		// The terminal usage frame is optional; missing tokens are absent.
		select {
		case out <- StreamChunk{Done: true, Ms: time.Since(start).Milliseconds(), Usage: usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func classifyTransportError(ctx context.Context, model string, err error) *UpstreamError {
	if ctx.Err() != nil {
		return newCancelled(model)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTimeout(model, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newTimeout(model, err.Error())
	}
	// Anything else reaching this point is treated as a transient transport
	// failure (connection reset/refused, DNS failure, unexpected EOF): worth
	// a retry, unlike a permanent 4xx from the gateway itself.
	return newTransient(model, 0, err.Error())
}
