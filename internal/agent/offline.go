package agent

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/agentrules/agentrules/internal/domain"
)

// Responder produces offline responses. Returning (nil, nil) falls back to the
// built-in canned response for the request's label.
type Responder func(ctx context.Context, req Request) (*Response, error)

// OfflineArchitect returns deterministic responses without network access.
// The planning response is a well-formed analysis plan built from the paths in
// the prompt's <project_files> block, so a full pipeline run works offline.
type OfflineArchitect struct {
	*base
	responder Responder
}

func newOfflineArchitect(b *base, responder Responder) *OfflineArchitect {
	return &OfflineArchitect{base: b, responder: responder}
}

func (a *OfflineArchitect) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, a.callError(0, err)
	}
	ctx, cancel, err := a.prepare(ctx)
	defer cancel()
	if err != nil {
		return nil, a.callError(0, err)
	}

	if a.responder != nil {
		resp, err := a.responder(ctx, req)
		if err != nil {
			return nil, a.callError(0, err)
		}
		if resp != nil {
			return resp, nil
		}
	}

	text := cannedResponse(req)
	return &Response{
		Text:         text,
		FinishReason: FinishStop,
		Usage: domain.Usage{
			InputTokens:  len(strings.Fields(req.System)) + len(strings.Fields(req.Prompt)),
			OutputTokens: len(strings.Fields(text)),
		},
	}, nil
}

// Stream emits the Complete response one word at a time.
func (a *OfflineArchitect) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	resp, err := a.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(resp.Text, " ") {
			if word == "" {
				continue
			}
			if !send(ctx, out, Chunk{Kind: ChunkTextDelta, Text: word}) {
				return
			}
		}
		for i, tc := range resp.ToolCalls {
			if !send(ctx, out, Chunk{Kind: ChunkToolCallDelta, ToolCall: &ToolCallDelta{
				Index: i, ID: tc.ID, Name: tc.Name, ArgumentsDelta: string(tc.Arguments),
			}}) {
				return
			}
		}
		send(ctx, out, Chunk{Kind: ChunkMessageEnd, FinishReason: resp.FinishReason, Usage: resp.Usage})
	}()
	return out, nil
}

var (
	projectFilesPattern = regexp.MustCompile(`(?s)<project_files>(.*?)</project_files>`)
	filePathAttrPattern = regexp.MustCompile(`<file path="([^"]+)"`)
)

func cannedResponse(req Request) string {
	label, detail, _ := strings.Cut(req.Label, ":")
	switch label {
	case "discovery":
		return cannedDiscovery(detail)
	case "planning":
		return offlinePlan(blockLines(req.Prompt, projectFilesPattern))
	case "analysis":
		return offlineAnalysis(detail, filePathAttrPattern.FindAllStringSubmatch(req.Prompt, -1))
	case "synthesis":
		return "## Synthesis\n\nThe analysis reports agree on a conventional layout with clear module boundaries. " +
			"No cross-cutting conflicts were found between the specialist findings.\n"
	case "consolidation":
		return "# Consolidated Report\n\n## Overview\n\nThe project follows a layered structure.\n\n" +
			"## Findings\n\n- Keep modules small and focused.\n- Prefer explicit error handling.\n"
	case "final":
		return "# Project Rules\n\n## Conventions\n\n- Follow the existing package layout.\n" +
			"- Keep functions small and name them by what they do.\n- Add tests next to the code they cover.\n\n" +
			"## Workflow\n\n- Run the test suite before committing.\n"
	default:
		return "Offline response.\n"
	}
}

func cannedDiscovery(agent string) string {
	switch agent {
	case "structure":
		return "## Project Structure\n\nThe repository is organized into source directories with supporting configuration at the root.\n"
	case "dependencies":
		return "## Dependencies\n\nDependencies are declared in the project's manifest files.\n"
	case "techstack":
		return "## Technology Stack\n\nThe stack is inferred from file extensions and manifests.\n"
	case "researcher":
		return "## Research\n\nNo external research performed offline.\n"
	default:
		return "## Discovery\n\nOffline discovery summary.\n"
	}
}

func blockLines(text string, pattern *regexp.Regexp) []string {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var docExtensions = map[string]bool{
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".mod": true, ".sum": true, ".cfg": true, ".ini": true,
}

// offlinePlan splits paths into a code agent and a docs/config agent,
// omitting either when it would have no files.
func offlinePlan(paths []string) string {
	var code, docs []string
	for _, p := range paths {
		if docExtensions[strings.ToLower(path.Ext(p))] {
			docs = append(docs, p)
		} else {
			code = append(code, p)
		}
	}
	sort.Strings(code)
	sort.Strings(docs)

	type group struct {
		name, description string
		files             []string
	}
	var groups []group
	if len(code) > 0 {
		groups = append(groups, group{"Code Structure Specialist", "Reviews source files for architecture and conventions.", code})
	}
	if len(docs) > 0 {
		groups = append(groups, group{"Documentation and Configuration Specialist", "Reviews documentation, manifests and configuration.", docs})
	}

	var b strings.Builder
	b.WriteString("<analysis_plan>\n")
	for i, g := range groups {
		fmt.Fprintf(&b, "<agent_%d name=%q>\n<description>%s</description>\n<file_assignments>\n", i+1, g.name, g.description)
		for _, f := range g.files {
			fmt.Fprintf(&b, "<file_path>%s</file_path>\n", f)
		}
		fmt.Fprintf(&b, "</file_assignments>\n</agent_%d>\n", i+1)
	}
	b.WriteString("</analysis_plan>\n")
	return b.String()
}

func offlineAnalysis(role string, matches [][]string) string {
	if role == "" {
		role = "Analysis"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\nReviewed %d file(s).\n\n", role, len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s\n", m[1])
	}
	return b.String()
}
