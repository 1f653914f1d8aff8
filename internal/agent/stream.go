package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agentrules/agentrules/internal/domain"
)

// ChunkKind classifies a streamed response fragment.
type ChunkKind int

const (
	ChunkTextDelta     ChunkKind = iota // Text appended to the response
	ChunkToolCallDelta                  // Fragment of a tool call (id/name and/or argument JSON)
	ChunkMessageEnd                     // Terminal: carries finish reason and usage
	ChunkError                          // Terminal: carries the failure
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkTextDelta:
		return "text_delta"
	case ChunkToolCallDelta:
		return "tool_call_delta"
	case ChunkMessageEnd:
		return "message_end"
	case ChunkError:
		return "error"
	default:
		return fmt.Sprintf("chunk(%d)", int(k))
	}
}

// ToolCallDelta is a fragment of a tool call. Fragments with the same Index
// belong to the same call.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// Chunk is one element of an Architect stream.
type Chunk struct {
	Kind         ChunkKind
	Text         string
	ToolCall     *ToolCallDelta
	FinishReason string
	Usage        domain.Usage
	Err          error
}

// Collect drains a stream into a Response. onText, when non-nil, receives
// every text delta as it arrives.
func Collect(stream <-chan Chunk, onText func(string)) (*Response, error) {
	var (
		text  strings.Builder
		resp  = &Response{}
		calls = map[int]*toolCallBuilder{}
		ended bool
	)

	for chunk := range stream {
		switch chunk.Kind {
		case ChunkTextDelta:
			text.WriteString(chunk.Text)
			if onText != nil && chunk.Text != "" {
				onText(chunk.Text)
			}
		case ChunkToolCallDelta:
			if chunk.ToolCall == nil {
				continue
			}
			b, ok := calls[chunk.ToolCall.Index]
			if !ok {
				b = &toolCallBuilder{}
				calls[chunk.ToolCall.Index] = b
			}
			b.add(chunk.ToolCall)
		case ChunkMessageEnd:
			resp.FinishReason = chunk.FinishReason
			resp.Usage = chunk.Usage
			ended = true
		case ChunkError:
			return nil, chunk.Err
		}
	}

	if !ended {
		return nil, fmt.Errorf("stream closed without a terminal chunk")
	}

	resp.Text = text.String()
	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		resp.ToolCalls = append(resp.ToolCalls, calls[i].build())
	}
	return resp, nil
}

type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func (b *toolCallBuilder) add(d *ToolCallDelta) {
	if d.ID != "" {
		b.id = d.ID
	}
	if d.Name != "" {
		b.name = d.Name
	}
	b.args.WriteString(d.ArgumentsDelta)
}

func (b *toolCallBuilder) build() ToolCall {
	args := strings.TrimSpace(b.args.String())
	if args == "" || !json.Valid([]byte(args)) {
		args = "{}"
	}
	return ToolCall{ID: b.id, Name: b.name, Arguments: json.RawMessage(args)}
}
