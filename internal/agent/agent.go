package agent

import (
	"context"
	"encoding/json"

	"github.com/agentrules/agentrules/internal/domain"
)

// Architect is a provider-agnostic LLM agent.
// Implementations are AnthropicArchitect, OpenAIArchitect (also serving DeepSeek
// and xAI), GeminiArchitect and OfflineArchitect.
type Architect interface {
	// Name returns "provider:model", e.g. "anthropic:claude-sonnet-4-5".
	Name() string

	// Provider returns the provider variant.
	Provider() Provider

	// Model returns the model identifier sent to the provider.
	Model() string

	// Complete sends the request and returns the normalized response.
	// Errors from the provider are returned as *domain.ProviderCallError.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends the request and returns a channel of incremental chunks.
	// The channel is closed after a ChunkMessageEnd or ChunkError chunk.
	// A stream is finite and cannot be restarted; the caller should drain it
	// or cancel ctx.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a prior conversation turn.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // Assistant turns that requested tools
	ToolCallID string     // Tool turns: the call being answered
	ToolName   string     // Tool turns: the tool that produced Content
}

// Request is a single agent call. It is built fresh for every call.
type Request struct {
	// Label names the call for logs, e.g. "planning" or "analysis:Security Reviewer".
	// Providers never send it.
	Label   string
	Prompt  string
	System  string
	Tools   []ToolSpec
	History []Message // Sent before Prompt
}

// Messages returns the conversation to send: History followed by Prompt as a
// user turn when Prompt is non-empty.
func (r Request) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+1)
	msgs = append(msgs, r.History...)
	if r.Prompt != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: r.Prompt})
	}
	return msgs
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Normalized completion reasons.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
	FinishOther     = "other"
)

// Response is the normalized result of an agent call.
type Response struct {
	Text         string
	Reasoning    string // Thinking or reasoning content when the model exposes it
	ToolCalls    []ToolCall
	Usage        domain.Usage
	FinishReason string
}

// HasToolCalls reports whether the model requested any tool.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}
