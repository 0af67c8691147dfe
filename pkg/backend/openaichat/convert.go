package openaichat

import (
	"encoding/json"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// buildRequest converts a generation request into the OpenAI chat completion
// shape. Tool results expand into one role:"tool" message per result, keyed
// by ToolCallID, immediately after the assistant message that requested them.
func buildRequest(req *turns.Request) (*go_openai.ChatCompletionRequest, error) {
	out := &go_openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case turns.RoleUser:
			out.Messages = append(out.Messages, go_openai.ChatCompletionMessage{
				Role:    go_openai.ChatMessageRoleUser,
				Content: msg.Text,
			})

		case turns.RoleAssistant:
			m := go_openai.ChatCompletionMessage{
				Role:    go_openai.ChatMessageRoleAssistant,
				Content: msg.Text,
			}
			for _, call := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, go_openai.ToolCall{
					ID:   call.ID,
					Type: go_openai.ToolTypeFunction,
					Function: go_openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Input),
					},
				})
			}
			out.Messages = append(out.Messages, m)

		case turns.RoleTool:
			for _, result := range msg.ToolResults {
				out.Messages = append(out.Messages, go_openai.ChatCompletionMessage{
					Role:       go_openai.ChatMessageRoleTool,
					ToolCallID: result.ID,
					Content:    result.Content,
				})
			}

		case turns.RoleSystem:
			// System content travels in Request.System; a system message in
			// the history is a caller bug.
			return nil, errors.New("system messages belong in Request.System")

		default:
			return nil, errors.Errorf("unknown message role: %s", msg.Role)
		}
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(tool.Schema),
			},
		})
	}

	return out, nil
}
