package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agentrules/agentrules/internal/domain"
)

const (
	geminiThinkingBudget int32 = 16000
	geminiDynamicBudget  int32 = -1
)

// GeminiArchitect talks to the Gemini API.
type GeminiArchitect struct {
	*base
	client lazyClient[*genai.Client]
}

func newGeminiArchitect(b *base) *GeminiArchitect {
	a := &GeminiArchitect{base: b}
	a.client.build = func(ctx context.Context) (*genai.Client, error) {
		cfg := &genai.ClientConfig{
			APIKey:  b.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if b.cfg.BaseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: b.cfg.BaseURL}
		}
		return genai.NewClient(ctx, cfg)
	}
	return a
}

func (a *GeminiArchitect) Complete(ctx context.Context, req Request) (*Response, error) {
	client, err := a.client.get(ctx)
	if err != nil {
		return nil, a.callError(0, err)
	}
	ctx, cancel, err := a.prepare(ctx)
	defer cancel()
	if err != nil {
		return nil, a.callError(0, err)
	}

	out, err := client.Models.GenerateContent(ctx, a.cfg.Model, geminiContents(req.Messages()), a.config(req))
	if err != nil {
		return nil, a.callError(geminiStatus(err), err)
	}

	resp := &Response{}
	if len(out.Candidates) > 0 {
		cand := out.Candidates[0]
		resp.FinishReason = geminiFinish(cand.FinishReason)
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					resp.ToolCalls = append(resp.ToolCalls, geminiToolCall(part.FunctionCall))
				case part.Thought:
					resp.Reasoning += part.Text
				default:
					resp.Text += part.Text
				}
			}
		}
	}
	if resp.HasToolCalls() {
		resp.FinishReason = FinishToolCalls
	}
	resp.Usage = geminiUsage(out.UsageMetadata)
	a.logger.Debug("gemini call complete",
		zap.String("finish_reason", resp.FinishReason),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	return resp, nil
}

func (a *GeminiArchitect) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	client, err := a.client.get(ctx)
	if err != nil {
		return nil, a.callError(0, err)
	}
	callCtx, cancel, err := a.prepare(ctx)
	if err != nil {
		cancel()
		return nil, a.callError(0, err)
	}

	contents := geminiContents(req.Messages())
	config := a.config(req)
	out := make(chan Chunk)

	go func() {
		defer close(out)
		defer cancel()

		var (
			usage  domain.Usage
			finish string
			calls  int
		)
		for resp, err := range client.Models.GenerateContentStream(callCtx, a.cfg.Model, contents, config) {
			if err != nil {
				send(ctx, out, Chunk{Kind: ChunkError, Err: a.callError(geminiStatus(err), err)})
				return
			}
			if resp.UsageMetadata != nil {
				usage = geminiUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			if cand.FinishReason != "" {
				finish = geminiFinish(cand.FinishReason)
			}
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				var c Chunk
				switch {
				case part.FunctionCall != nil:
					tc := geminiToolCall(part.FunctionCall)
					c = Chunk{Kind: ChunkToolCallDelta, ToolCall: &ToolCallDelta{
						Index:          calls,
						ID:             tc.ID,
						Name:           tc.Name,
						ArgumentsDelta: string(tc.Arguments),
					}}
					calls++
				case part.Thought || part.Text == "":
					continue
				default:
					c = Chunk{Kind: ChunkTextDelta, Text: part.Text}
				}
				if !send(ctx, out, c) {
					return
				}
			}
		}
		if calls > 0 {
			finish = FinishToolCalls
		}
		send(ctx, out, Chunk{Kind: ChunkMessageEnd, FinishReason: finish, Usage: usage})
	}()

	return out, nil
}

func (a *GeminiArchitect) config(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if a.cfg.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*a.cfg.Temperature))
	}
	if a.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(a.cfg.MaxTokens)
	}
	switch a.cfg.Reasoning {
	case ReasoningEnabled:
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(geminiThinkingBudget)}
	case ReasoningDynamic:
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(geminiDynamicBudget)}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  geminiSchema(spec),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func geminiSchema(spec ToolSpec) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	for _, p := range spec.Parameters {
		prop := &genai.Schema{Type: geminiType(p.Type), Description: p.Description, Enum: p.Enum}
		if prop.Type == genai.TypeArray {
			prop.Items = &genai.Schema{Type: genai.TypeString}
		}
		s.Properties[p.Name] = prop
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func geminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	var results []*genai.Part
	flush := func() {
		if len(results) > 0 {
			out = append(out, genai.NewContentFromParts(results, genai.RoleUser))
			results = nil
		}
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			results = append(results, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: map[string]any{"output": m.Content},
			}})
		case RoleAssistant:
			flush()
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: rawArguments(tc.Arguments),
				}})
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		default:
			flush()
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	flush()
	return out
}

// geminiToolCall normalizes a function call. The Gemini API does not always
// assign call IDs, so one is generated when absent.
func geminiToolCall(fc *genai.FunctionCall) ToolCall {
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = []byte("{}")
	}
	return ToolCall{ID: id, Name: fc.Name, Arguments: args}
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) domain.Usage {
	if meta == nil {
		return domain.Usage{}
	}
	return domain.Usage{
		InputTokens:  int(meta.PromptTokenCount),
		OutputTokens: int(meta.CandidatesTokenCount),
	}
}

func geminiFinish(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case "":
		return ""
	default:
		return FinishOther
	}
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
