package agent

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

// OpenAIArchitect talks to OpenAI chat completions. DeepSeek and xAI expose
// the same API and are served by this variant with a different base URL.
type OpenAIArchitect struct {
	*base
	client lazyClient[*openai.ChatModel]
}

func newOpenAIArchitect(b *base) *OpenAIArchitect {
	a := &OpenAIArchitect{base: b}
	a.client.build = func(ctx context.Context) (*openai.ChatModel, error) {
		cfg := &openai.ChatModelConfig{
			APIKey:  b.cfg.APIKey,
			BaseURL: b.cfg.BaseURL,
			Model:   b.cfg.Model,
			Timeout: b.cfg.Timeout,
		}
		if b.cfg.MaxTokens > 0 {
			maxTokens := b.cfg.MaxTokens
			cfg.MaxTokens = &maxTokens
		}
		if b.cfg.Temperature != nil {
			t := float32(*b.cfg.Temperature)
			cfg.Temperature = &t
		}
		return openai.NewChatModel(ctx, cfg)
	}
	return a
}

func (a *OpenAIArchitect) Complete(ctx context.Context, req Request) (*Response, error) {
	client, err := a.client.get(ctx)
	if err != nil {
		return nil, a.callError(0, err)
	}
	ctx, cancel, err := a.prepare(ctx)
	defer cancel()
	if err != nil {
		return nil, a.callError(0, err)
	}

	msg, err := client.Generate(ctx, einoMessages(req), einoOptions(req)...)
	if err != nil {
		return nil, a.callError(0, err)
	}
	if msg == nil {
		return nil, a.callError(0, errors.New("empty response"))
	}

	resp := &Response{
		Text:      msg.Content,
		Reasoning: msg.ReasoningContent,
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: normalizeArguments(tc.Function.Arguments),
		})
	}
	if meta := msg.ResponseMeta; meta != nil {
		resp.FinishReason = openAIFinish(meta.FinishReason)
		if meta.Usage != nil {
			resp.Usage = domain.Usage{InputTokens: meta.Usage.PromptTokens, OutputTokens: meta.Usage.CompletionTokens}
		}
	}
	if resp.FinishReason == "" && resp.HasToolCalls() {
		resp.FinishReason = FinishToolCalls
	}
	a.logger.Debug("openai call complete",
		zap.String("finish_reason", resp.FinishReason),
		zap.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

func (a *OpenAIArchitect) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	client, err := a.client.get(ctx)
	if err != nil {
		return nil, a.callError(0, err)
	}
	callCtx, cancel, err := a.prepare(ctx)
	if err != nil {
		cancel()
		return nil, a.callError(0, err)
	}

	sr, err := client.Stream(callCtx, einoMessages(req), einoOptions(req)...)
	if err != nil {
		cancel()
		return nil, a.callError(0, err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer cancel()
		defer sr.Close()

		var (
			usage  domain.Usage
			finish string
		)
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(ctx, out, Chunk{Kind: ChunkError, Err: a.callError(0, err)})
				return
			}
			if msg.Content != "" {
				if !send(ctx, out, Chunk{Kind: ChunkTextDelta, Text: msg.Content}) {
					return
				}
			}
			for i, tc := range msg.ToolCalls {
				index := i
				if tc.Index != nil {
					index = *tc.Index
				}
				if !send(ctx, out, Chunk{Kind: ChunkToolCallDelta, ToolCall: &ToolCallDelta{
					Index:          index,
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				}}) {
					return
				}
			}
			if meta := msg.ResponseMeta; meta != nil {
				if meta.FinishReason != "" {
					finish = openAIFinish(meta.FinishReason)
				}
				if meta.Usage != nil {
					usage = domain.Usage{InputTokens: meta.Usage.PromptTokens, OutputTokens: meta.Usage.CompletionTokens}
				}
			}
		}
		send(ctx, out, Chunk{Kind: ChunkMessageEnd, FinishReason: finish, Usage: usage})
	}()

	return out, nil
}

func einoMessages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	for _, m := range req.Messages() {
		switch m.Role {
		case RoleAssistant:
			var calls []schema.ToolCall
			for _, tc := range m.ToolCalls {
				calls = append(calls, schema.ToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: schema.FunctionCall{Name: tc.Name, Arguments: string(normalizeArguments(string(tc.Arguments)))},
				})
			}
			msgs = append(msgs, schema.AssistantMessage(m.Content, calls))
		case RoleTool:
			msgs = append(msgs, schema.ToolMessage(m.Content, m.ToolCallID))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}

func einoOptions(req Request) []model.Option {
	if len(req.Tools) == 0 {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(req.Tools))
	for _, spec := range req.Tools {
		params := make(map[string]*schema.ParameterInfo, len(spec.Parameters))
		for _, p := range spec.Parameters {
			params[p.Name] = &schema.ParameterInfo{
				Type:     einoType(p.Type),
				Desc:     p.Description,
				Enum:     p.Enum,
				Required: p.Required,
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        spec.Name,
			Desc:        spec.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return []model.Option{model.WithTools(infos)}
}

func einoType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}

func openAIFinish(reason string) string {
	switch reason {
	case "stop":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "":
		return ""
	default:
		return FinishOther
	}
}
