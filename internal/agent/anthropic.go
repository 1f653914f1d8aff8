package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

const (
	anthropicDefaultMaxTokens = 20000
	anthropicThinkingBudget   = 16000
	anthropicMinThinking      = 1024
)

// AnthropicArchitect talks to the Anthropic Messages API.
type AnthropicArchitect struct {
	*base
	client lazyClient[*anthropic.Client]
}

func newAnthropicArchitect(b *base) *AnthropicArchitect {
	a := &AnthropicArchitect{base: b}
	a.client.build = func(context.Context) (*anthropic.Client, error) {
		opts := []option.RequestOption{
			option.WithAPIKey(b.cfg.APIKey),
			option.WithMaxRetries(0),
		}
		if b.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(b.cfg.BaseURL))
		}
		c := anthropic.NewClient(opts...)
		return &c, nil
	}
	return a
}

func (a *AnthropicArchitect) Complete(ctx context.Context, req Request) (*Response, error) {
	client, err := a.client.get(ctx)
	if err != nil {
		return nil, a.callError(0, err)
	}
	ctx, cancel, err := a.prepare(ctx)
	defer cancel()
	if err != nil {
		return nil, a.callError(0, err)
	}

	msg, err := client.Messages.New(ctx, a.params(req))
	if err != nil {
		return nil, a.callError(anthropicStatus(err), err)
	}

	resp := &Response{
		FinishReason: anthropicFinish(msg.StopReason),
		Usage: domain.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "thinking":
			resp.Reasoning += block.Thinking
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	a.logger.Debug("anthropic call complete",
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	return resp, nil
}

func (a *AnthropicArchitect) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	client, err := a.client.get(ctx)
	if err != nil {
		return nil, a.callError(0, err)
	}
	callCtx, cancel, err := a.prepare(ctx)
	if err != nil {
		cancel()
		return nil, a.callError(0, err)
	}

	stream := client.Messages.NewStreaming(callCtx, a.params(req))
	out := make(chan Chunk)

	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()

		var (
			usage  domain.Usage
			finish string
		)
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.InputTokens = int(ev.Message.Usage.InputTokens)
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					if !send(ctx, out, Chunk{Kind: ChunkToolCallDelta, ToolCall: &ToolCallDelta{
						Index: int(ev.Index),
						ID:    ev.ContentBlock.ID,
						Name:  ev.ContentBlock.Name,
					}}) {
						return
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				var c Chunk
				switch d := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					c = Chunk{Kind: ChunkTextDelta, Text: d.Text}
				case anthropic.InputJSONDelta:
					c = Chunk{Kind: ChunkToolCallDelta, ToolCall: &ToolCallDelta{Index: int(ev.Index), ArgumentsDelta: d.PartialJSON}}
				default:
					continue
				}
				if !send(ctx, out, c) {
					return
				}
			case anthropic.MessageDeltaEvent:
				finish = anthropicFinish(ev.Delta.StopReason)
				usage.OutputTokens = int(ev.Usage.OutputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, out, Chunk{Kind: ChunkError, Err: a.callError(anthropicStatus(err), err)})
			return
		}
		send(ctx, out, Chunk{Kind: ChunkMessageEnd, FinishReason: finish, Usage: usage})
	}()

	return out, nil
}

func (a *AnthropicArchitect) params(req Request) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		Messages:  anthropicMessages(req.Messages()),
	}
	if req.System != "" {
		p.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, spec := range req.Tools {
		schema := spec.JSONSchema()
		p.Tools = append(p.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}})
	}

	// Replayed tool turns carry no thinking signatures, so thinking is only
	// requested on fresh conversations.
	if budget := a.thinkingBudget(); budget > 0 && !hasToolHistory(req.History) {
		p.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
		return p
	}
	if a.cfg.Temperature != nil {
		p.Temperature = anthropic.Float(*a.cfg.Temperature)
	}
	return p
}

func (a *AnthropicArchitect) thinkingBudget() int {
	if a.cfg.Reasoning == ReasoningDisabled {
		return 0
	}
	budget := anthropicThinkingBudget
	if limit := a.cfg.MaxTokens - anthropicMinThinking; budget > limit {
		budget = limit
	}
	if budget < anthropicMinThinking {
		return 0
	}
	return budget
}

func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, rawArguments(tc.Arguments), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return out
}

func anthropicFinish(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case "":
		return ""
	default:
		return FinishOther
	}
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func hasToolHistory(history []Message) bool {
	for _, m := range history {
		if m.Role == RoleTool || len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

// rawArguments decodes tool arguments for SDKs that take a Go value.
func rawArguments(args json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &out)
	}
	return out
}
