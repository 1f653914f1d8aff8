// Package plan extracts Phase 3 work assignments from the planning phase's
// free-text output.
//
// Parsing runs in two explicit stages. The markup stage reads well-formed
// agent blocks:
//
//	<analysis_plan>
//	<agent_1 name="Security Reviewer">
//	<description>Audits authentication code.</description>
//	<file_assignments>
//	<file_path>src/auth.go</file_path>
//	</file_assignments>
//	</agent_1>
//	</analysis_plan>
//
// When the markup stage reports a structural failure (ErrNoStructure), the
// fallback stage scans line by line for role headers and file bullets. When
// both stages fail, Parse returns a *domain.PlanParseError.
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentrules/agentrules/internal/domain"
)

// GeneralistRole names the single assignment built from a plan that lists
// files without any agent blocks.
const GeneralistRole = "Generalist Agent"

// ErrNoStructure is the escalation signal between stages: the text has no
// usable structure for the stage that returned it.
var ErrNoStructure = errors.New("no recognizable plan structure")

// Stage identifies which parsing stage produced a plan.
type Stage int

const (
	StageMarkup Stage = iota
	StageFallback
)

func (s Stage) String() string {
	if s == StageFallback {
		return "fallback"
	}
	return "markup"
}

// Parse extracts assignments, in encounter order. Parsing is pure: the same
// text always yields the same sequence.
func Parse(text string) ([]domain.Assignment, error) {
	assignments, _, err := ParseStaged(text)
	return assignments, err
}

// ParseStaged is Parse that also reports the stage that succeeded.
func ParseStaged(text string) ([]domain.Assignment, Stage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, StageMarkup, domain.NewPlanParseError("planning output is empty", text)
	}

	assignments, err := ParseMarkup(text)
	if err == nil {
		return assignments, StageMarkup, nil
	}
	if !errors.Is(err, ErrNoStructure) {
		return nil, StageMarkup, domain.NewPlanParseError(err.Error(), text)
	}

	assignments, err = ParseFallback(text)
	if err != nil {
		return nil, StageFallback, domain.NewPlanParseError("no agent blocks or role/file declarations found", text)
	}
	return assignments, StageFallback, nil
}

var (
	agentOpenPattern   = regexp.MustCompile(`(?i)<agent(?:_\d+)?(\s[^>]*)?>`)
	nameAttrPattern    = regexp.MustCompile(`(?i)(?:^|\s)name\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'/>]+))`)
	agentClosePattern  = regexp.MustCompile(`(?i)</agent(?:_\d+)?\s*>`)
	filePathPattern    = regexp.MustCompile(`(?is)<file_path>(.*?)</file_path>`)
	tagPattern         = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	bulletPrefixRegexp = regexp.MustCompile(`^(?:[-*+•]|\d+[.)])\s+`)
)

// ParseMarkup is the markup stage. It returns ErrNoStructure when the text has
// neither agent blocks nor a file_assignments section, or when no block yields
// both a role and at least one file.
func ParseMarkup(text string) ([]domain.Assignment, error) {
	opens := agentOpenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(opens) == 0 {
		files := extractFiles(section(text, "file_assignments"))
		if len(files) == 0 {
			return nil, ErrNoStructure
		}
		return []domain.Assignment{{
			Role:        GeneralistRole,
			Description: "Analyzes every assigned file.",
			Files:       files,
		}}, nil
	}

	var assignments []domain.Assignment
	for i, loc := range opens {
		end := len(text)
		if i+1 < len(opens) {
			end = opens[i+1][0]
		}
		body := text[loc[1]:end]
		if c := agentClosePattern.FindStringIndex(body); c != nil {
			body = body[:c[0]]
		}

		role := attr(text, loc)
		if role == "" {
			role = cleanText(section(body, "name"))
		}
		if role == "" {
			role = cleanText(section(body, "role"))
		}
		files := extractFiles(section(body, "file_assignments"))
		if role == "" || len(files) == 0 {
			continue
		}
		assignments = append(assignments, domain.Assignment{
			Role:        role,
			Description: cleanText(section(body, "description")),
			Files:       files,
		})
	}

	if len(assignments) == 0 {
		return nil, ErrNoStructure
	}
	return assignments, nil
}

// attr returns the name attribute of the opening tag at loc. Other attributes
// may appear in any order; the value may be double-quoted, single-quoted or bare.
func attr(text string, loc []int) string {
	if loc[2] < 0 {
		return ""
	}
	m := nameAttrPattern.FindStringSubmatch(text[loc[2]:loc[3]])
	if m == nil {
		return ""
	}
	for _, v := range m[1:] {
		if v != "" {
			return cleanText(v)
		}
	}
	return ""
}

// section returns the content of the first <tag>...</tag>. An unclosed tag
// runs to the end of text. Returns "" when the tag is absent.
func section(text, tag string) string {
	lower := strings.ToLower(text)
	open := "<" + tag + ">"
	start := strings.Index(lower, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	if end := strings.Index(lower[start:], "</"+tag+">"); end >= 0 {
		return text[start : start+end]
	}
	return text[start:]
}

// extractFiles reads <file_path> entries, or plain lines when a section has
// no file_path tags. Duplicates keep their first position.
func extractFiles(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var raw []string
	if matches := filePathPattern.FindAllStringSubmatch(body, -1); len(matches) > 0 {
		for _, m := range matches {
			raw = append(raw, m[1])
		}
	} else {
		for _, line := range strings.Split(tagPattern.ReplaceAllString(body, "\n"), "\n") {
			line = bulletPrefixRegexp.ReplaceAllString(strings.TrimSpace(line), "")
			if looksLikePath(line) {
				raw = append(raw, line)
			}
		}
	}
	return dedupe(raw)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		p = domain.NormalizePath(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `*"'`+"`"))
}

// looksLikePath accepts a single token containing a dot or a slash.
func looksLikePath(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), "`'\"")
	if s == "" || strings.ContainsAny(s, " \t<>|") {
		return false
	}
	return strings.ContainsAny(s, "./\\")
}

// Fallback stage patterns.
var (
	roleAgentPattern   = regexp.MustCompile(`(?i)^(?:#{1,6}\s*)?\**\s*agent\s*#?\s*\d*\s*\**\s*[:\-–—]\s*(.+)$`)
	roleFieldPattern   = regexp.MustCompile(`(?i)^(?:[-*]\s*)?\**(?:role|agent name|name)\**\s*:\s*(.+)$`)
	roleHeadingPattern = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	roleBoldPattern    = regexp.MustCompile(`^\*\*([^*]+)\*\*:?$`)
	roleNameAttr       = regexp.MustCompile(`(?i)<agent[^>]*name\s*=\s*["']([^"']+)["']`)
	filesFieldPattern  = regexp.MustCompile(`(?i)^(?:[-*]\s*)?\**(?:files?|file assignments|assigned files)\**\s*:\s*(.*)$`)
	descFieldPattern   = regexp.MustCompile(`(?i)^(?:[-*]\s*)?\**description\**\s*:\s*(.+)$`)
	fileTagLinePattern = regexp.MustCompile(`(?i)<file_path>\s*(.*?)\s*(?:</file_path>|$)`)
)

// Heading texts that label a field rather than name a role.
var fieldHeadings = map[string]bool{
	"files": true, "file assignments": true, "assigned files": true,
	"description": true, "analysis plan": true, "plan": true, "agents": true,
}

// ParseFallback is the fallback stage. It returns ErrNoStructure when no role
// with at least one file is found.
func ParseFallback(text string) ([]domain.Assignment, error) {
	var (
		assignments []domain.Assignment
		current     *domain.Assignment
	)
	flush := func() {
		if current != nil {
			current.Files = dedupe(current.Files)
			if current.Role != "" && len(current.Files) > 0 {
				assignments = append(assignments, *current)
			}
		}
		current = nil
	}
	start := func(role string) {
		flush()
		current = &domain.Assignment{Role: role}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if role := fallbackRole(line); role != "" {
			start(role)
			continue
		}
		if current == nil {
			continue
		}

		if m := descFieldPattern.FindStringSubmatch(line); m != nil {
			current.Description = cleanText(m[1])
			continue
		}
		if m := filesFieldPattern.FindStringSubmatch(line); m != nil {
			for _, f := range strings.Split(m[1], ",") {
				if f = strings.TrimSpace(f); looksLikePath(f) {
					current.Files = append(current.Files, f)
				}
			}
			continue
		}
		if m := fileTagLinePattern.FindStringSubmatch(line); m != nil {
			if looksLikePath(m[1]) {
				current.Files = append(current.Files, m[1])
			}
			continue
		}
		if bulletPrefixRegexp.MatchString(line) {
			token := bulletPrefixRegexp.ReplaceAllString(line, "")
			if fields := strings.Fields(token); len(fields) > 0 {
				candidate := strings.TrimRight(fields[0], ":,;")
				if looksLikePath(candidate) {
					current.Files = append(current.Files, candidate)
				}
			}
		}
	}
	flush()

	if len(assignments) == 0 {
		return nil, ErrNoStructure
	}
	return assignments, nil
}

func fallbackRole(line string) string {
	for _, p := range []*regexp.Regexp{roleNameAttr, roleAgentPattern, roleFieldPattern} {
		if m := p.FindStringSubmatch(line); m != nil {
			return cleanText(m[1])
		}
	}
	for _, p := range []*regexp.Regexp{roleHeadingPattern, roleBoldPattern} {
		if m := p.FindStringSubmatch(line); m != nil {
			role := cleanText(strings.TrimSuffix(strings.TrimSpace(m[1]), ":"))
			if role == "" || fieldHeadings[strings.ToLower(role)] || looksLikePath(role) {
				return ""
			}
			return role
		}
	}
	return ""
}

// String renders assignments back into markup accepted by ParseMarkup.
func String(assignments []domain.Assignment) string {
	var b strings.Builder
	b.WriteString("<analysis_plan>\n")
	for i, a := range assignments {
		fmt.Fprintf(&b, "<agent_%d name=%q>\n", i+1, a.Role)
		if a.Description != "" {
			fmt.Fprintf(&b, "<description>%s</description>\n", a.Description)
		}
		b.WriteString("<file_assignments>\n")
		for _, f := range a.Files {
			fmt.Fprintf(&b, "<file_path>%s</file_path>\n", f)
		}
		fmt.Fprintf(&b, "</file_assignments>\n</agent_%d>\n", i+1)
	}
	b.WriteString("</analysis_plan>\n")
	return b.String()
}
