package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

// ToolParam describes one tool argument.
type ToolParam struct {
	Name        string
	Type        string // JSON schema type: string, integer, number, boolean, array, object
	Description string
	Required    bool
	Enum        []string
}

// ToolSpec declares a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []ToolParam
}

// ToolSchema is the JSON-schema object describing a tool's arguments.
type ToolSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// JSONSchema renders the parameters as a JSON-schema object.
func (s ToolSpec) JSONSchema() ToolSchema {
	schema := ToolSchema{Type: "object", Properties: make(map[string]any, len(s.Parameters))}
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Type == "" {
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

// ToolExecutor runs a tool with the model-supplied JSON arguments.
type ToolExecutor func(ctx context.Context, args json.RawMessage) (string, error)

type registeredTool struct {
	spec ToolSpec
	exec ToolExecutor
}

// ToolRegistry holds the tools agents may call. Successful results are
// memoized per tool name and canonical arguments.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	cache *lru.Cache[string, string]
}

// NewToolRegistry creates a registry. cacheSize <= 0 disables result caching.
func NewToolRegistry(cacheSize int) *ToolRegistry {
	r := &ToolRegistry{tools: map[string]registeredTool{}}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		r.cache, _ = lru.New[string, string](cacheSize)
	}
	return r
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(spec ToolSpec, exec ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = registeredTool{spec: spec, exec: exec}
}

// Has reports whether a tool is registered.
func (r *ToolRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the specs for the named tools, in the order given.
// An unknown name is a *domain.ConfigurationError.
func (r *ToolRegistry) Specs(names ...string) ([]ToolSpec, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if r == nil {
		return nil, &domain.ConfigurationError{Key: "tools", Reason: "no tool registry configured"}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, &domain.ConfigurationError{Key: "tools", Reason: fmt.Sprintf("unknown tool %q", name)}
		}
		specs = append(specs, t.spec)
	}
	return specs, nil
}

// Execute runs the tool named by call.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}

	key := call.Name + "\x00" + canonicalArguments(call.Arguments)
	if r.cache != nil {
		if out, ok := r.cache.Get(key); ok {
			return out, nil
		}
	}

	out, err := t.exec(ctx, normalizeArguments(string(call.Arguments)))
	if err != nil {
		return "", err
	}
	if r.cache != nil {
		r.cache.Add(key, out)
	}
	return out, nil
}

// ToolLoopOptions configures RunToolLoop.
type ToolLoopOptions struct {
	MaxIterations int // Model round-trips that may request tools; defaults to 3
	Retry         RetryPolicy
	Logger        *zap.Logger
}

// ToolLoopResult is the outcome of RunToolLoop.
type ToolLoopResult struct {
	Response     *Response
	Iterations   int
	ToolCalls    int
	ToolFailures int
	Exhausted    bool // The model still requested tools after MaxIterations
	Usage        domain.Usage
}

// RunToolLoop completes req, executes any requested tools, and feeds their
// results back as follow-up turns until the model stops requesting tools or
// MaxIterations is reached. Tool failures are reported to the model rather
// than aborting the loop.
func RunToolLoop(ctx context.Context, arch Architect, req Request, reg *ToolRegistry, opts ToolLoopOptions) (*ToolLoopResult, error) {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &ToolLoopResult{}
	history := append([]Message(nil), req.History...)
	prompt := req.Prompt

	for {
		call := req
		call.History = history
		call.Prompt = prompt

		resp, _, err := Complete(ctx, arch, call, opts.Retry)
		if err != nil {
			return nil, err
		}
		result.Iterations++
		result.Usage = result.Usage.Add(resp.Usage)
		result.Response = resp

		if !resp.HasToolCalls() || reg == nil {
			return result, nil
		}
		if result.Iterations >= maxIter {
			result.Exhausted = true
			logger.Warn("tool loop reached iteration limit",
				zap.String("label", req.Label), zap.Int("iterations", result.Iterations))
			return result, nil
		}

		if prompt != "" {
			history = append(history, Message{Role: RoleUser, Content: prompt})
			prompt = ""
		}
		history = append(history, Message{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			result.ToolCalls++
			out, err := reg.Execute(ctx, tc)
			if err != nil {
				result.ToolFailures++
				logger.Warn("tool call failed", zap.String("tool", tc.Name), zap.Error(err))
				b, _ := json.Marshal(map[string]string{"error": err.Error()})
				out = string(b)
			}
			history = append(history, Message{Role: RoleTool, Content: out, ToolCallID: tc.ID, ToolName: tc.Name})
		}
	}
}

// normalizeArguments returns args as valid JSON, substituting an empty object.
func normalizeArguments(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

// canonicalArguments re-marshals args so that key order and whitespace do not
// affect cache keys.
func canonicalArguments(args json.RawMessage) string {
	var v any
	if err := json.Unmarshal(normalizeArguments(string(args)), &v); err != nil {
		return string(args)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(args)
	}
	return string(b)
}
