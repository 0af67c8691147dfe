package openaichat

import (
	"context"
	"io"

	"github.com/go-go-golems/mangiafuoco/pkg/backend"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Client adapts the OpenAI chat completions API to the backend.Client
// contract, re-emitting the chunk stream as block-structured raw events.
// Text streams on block index 0; each tool call streams on its own block
// above it.
type Client struct {
	api *go_openai.Client
}

type Option func(*clientConfig)

type clientConfig struct {
	baseURL string
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = baseURL }
}

func New(apiKey string, opts ...Option) *Client {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	apiCfg := go_openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		apiCfg.BaseURL = cfg.baseURL
	}
	return &Client{api: go_openai.NewClientWithConfig(apiCfg)}
}

// NewFromClient wraps an already configured go-openai client.
func NewFromClient(api *go_openai.Client) *Client {
	return &Client{api: api}
}

func (c *Client) Submit(ctx context.Context, req *turns.Request) (<-chan backend.RawEvent, error) {
	chatReq, err := buildRequest(req)
	if err != nil {
		return nil, errors.Wrap(err, "build chat completion request")
	}

	log.Debug().
		Str("model", chatReq.Model).
		Int("num_messages", len(chatReq.Messages)).
		Int("num_tools", len(chatReq.Tools)).
		Msg("openaichat: submitting chat completion request")

	stream, err := c.api.CreateChatCompletionStream(ctx, *chatReq)
	if err != nil {
		return nil, classifyError(err)
	}

	out := make(chan backend.RawEvent)
	go c.pump(ctx, stream, out)
	return out, nil
}

// pump reads chunks from the completion stream and rebuilds the
// block-structured event sequence the decoder expects. Tool-call argument
// fragments pass through as partial JSON on the tool's block; block stops
// are emitted when the finish reason arrives.
func (c *Client) pump(ctx context.Context, stream *go_openai.ChatCompletionStream, out chan<- backend.RawEvent) {
	defer close(out)
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("openaichat: failed to close completion stream")
		}
	}()

	send := func(ev backend.RawEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(backend.RawEvent{Type: backend.RawMessageStart}) {
		return
	}

	textOpen := false
	// openai tool-call index -> raw block index; block 0 is reserved for text
	toolBlocks := map[int]int{}
	nextBlock := 1
	var openOrder []int
	var finish go_openai.FinishReason

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fault := classifyError(err)
			send(backend.RawEvent{Type: backend.RawError, Err: fault})
			return
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			if !textOpen {
				if !send(backend.RawEvent{
					Type:  backend.RawContentBlockStart,
					Index: 0,
					Block: &backend.RawBlock{Type: backend.BlockText},
				}) {
					return
				}
				textOpen = true
			}
			if !send(backend.RawEvent{
				Type:  backend.RawContentBlockDelta,
				Index: 0,
				Text:  choice.Delta.Content,
			}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			blockIdx, known := toolBlocks[idx]
			if !known {
				blockIdx = nextBlock
				nextBlock++
				toolBlocks[idx] = blockIdx
				openOrder = append(openOrder, blockIdx)
				if !send(backend.RawEvent{
					Type:  backend.RawContentBlockStart,
					Index: blockIdx,
					Block: &backend.RawBlock{
						Type: backend.BlockToolUse,
						ID:   tc.ID,
						Name: tc.Function.Name,
					},
				}) {
					return
				}
			}
			if tc.Function.Arguments != "" {
				if !send(backend.RawEvent{
					Type:        backend.RawContentBlockDelta,
					Index:       blockIdx,
					PartialJSON: tc.Function.Arguments,
				}) {
					return
				}
			}
		}

		if choice.FinishReason != "" && choice.FinishReason != go_openai.FinishReasonNull {
			finish = choice.FinishReason
		}
	}

	if textOpen {
		if !send(backend.RawEvent{Type: backend.RawContentBlockStop, Index: 0}) {
			return
		}
	}
	for _, blockIdx := range openOrder {
		if !send(backend.RawEvent{Type: backend.RawContentBlockStop, Index: blockIdx}) {
			return
		}
	}

	send(backend.RawEvent{
		Type:       backend.RawMessageStop,
		StopReason: mapFinishReason(finish),
	})
}

func mapFinishReason(reason go_openai.FinishReason) turns.StopReason {
	switch reason {
	case go_openai.FinishReasonStop:
		return turns.StopEndTurn
	case go_openai.FinishReasonToolCalls, go_openai.FinishReasonFunctionCall:
		return turns.StopToolUse
	case go_openai.FinishReasonLength:
		return turns.StopMaxTokens
	case go_openai.FinishReasonContentFilter:
		return turns.StopRefusal
	default:
		// Missing finish reason is a provider contract break; the decoder
		// rejects an empty stop reason, so map it to end_turn and log.
		log.Warn().Str("finish_reason", string(reason)).Msg("openaichat: unexpected finish reason")
		return turns.StopEndTurn
	}
}

var _ backend.Client = (*Client)(nil)
