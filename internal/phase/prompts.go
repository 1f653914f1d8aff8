package phase

import (
	"fmt"
	"strings"

	"github.com/agentrules/agentrules/internal/domain"
)

// DiscoverySystemPrompt frames every Phase 1 sub-agent.
const DiscoverySystemPrompt = `You are a senior software architect performing the first pass over an unfamiliar project.
Report only what the provided context supports. Do not speculate about files you cannot see.
Answer in concise markdown with short headed sections.`

// StructurePrompt asks for a map of the project's layout.
const StructurePrompt = `You are the Structure Agent.

Your responsibilities:
- Describe how the project is organized: top-level directories, entry points, and module boundaries.
- Identify where source, tests, configuration, and documentation live.
- Note naming or layout conventions that contributors must follow.`

// DependencyPrompt asks for an inventory of declared dependencies.
const DependencyPrompt = `You are the Dependency Agent.

Your responsibilities:
- List the project's declared dependencies grouped by ecosystem.
- Distinguish runtime dependencies from development and build tooling.
- Flag pinned, unusual, or deprecated versions worth researching further.`

// TechStackPrompt asks for the languages, frameworks, and tooling in use.
const TechStackPrompt = `You are the Tech Stack Agent.

Your responsibilities:
- Identify the languages, frameworks, and major libraries in use.
- Infer build, test, and packaging tooling from the tree and manifests.
- Summarize the runtime targets the project is built for.`

// ResearcherPrompt drives the optional documentation researcher.
const ResearcherPrompt = `You are the Researcher Agent.

Your responsibilities:
- Use the web search tool to look up current documentation for the most important dependencies and frameworks below.
- Prefer official documentation and release notes.
- Summarize version-specific guidance, breaking changes, and recommended practices that apply to this project.

Request searches as tool calls. When you have enough information, answer with your written findings.`

// PlanningSystemPrompt frames Phase 2.
const PlanningSystemPrompt = `You are a lead architect planning a deep analysis of a software project.
You divide the work between specialist agents and assign every relevant file to at least one of them.`

// PlanningPrompt tells the planner how to shape its answer.
const PlanningPrompt = `Using the discovery findings and the project file list below, design a team of 2 to 6 specialist agents for a deep analysis.

For each agent, give it a role name, a one-sentence description, and the files it must read.
Only assign files that appear in the project file list. A file may be assigned to more than one agent.

Answer with exactly this structure:

<analysis_plan>
<agent_1 name="Role Name">
<description>What this agent focuses on.</description>
<file_assignments>
<file_path>path/to/file</file_path>
</file_assignments>
</agent_1>
</analysis_plan>`

// AnalysisSystemPrompt frames each Phase 3 assignment.
const AnalysisSystemPrompt = `You are a specialist reviewing part of a software project in depth.
Ground every statement in the files you were given, citing paths.`

// SynthesisPrompt frames Phase 4.
const SynthesisPrompt = `You are synthesizing reports from several specialist agents who each analyzed part of the same project.

Combine their findings into one coherent picture:
- Merge overlapping observations and resolve contradictions.
- Identify project-wide conventions, architectural patterns, and recurring risks.
- Keep concrete file references where they support a point.`

// ConsolidationPrompt frames Phase 5.
const ConsolidationPrompt = `You are consolidating every stage of a project analysis into a single report.

Produce a well-organized markdown report covering the project's purpose, structure, technology stack,
conventions, architecture, and the most important guidance for contributors. Drop redundancy and keep
every actionable detail.`

// FinalPrompt frames the final analysis step. %[1]s is the rules filename.
const FinalPrompt = `You write effective ` + "`%[1]s`" + ` files: the rules AI coding assistants read before working on a project.

From the consolidated report below, write a tailored %[1]s file using concise, imperative rules grouped under
markdown headings. Cover project layout, coding conventions, testing, dependencies, and workflow. Each rule must
be specific to this project. Start the document with a level-one heading.`

// discoveryAgent is one Phase 1 sub-agent.
type discoveryAgent struct {
	name   string // label suffix, e.g. "structure"
	title  string
	prompt string
}

var discoveryAgents = []discoveryAgent{
	{name: "structure", title: "Structure Agent", prompt: StructurePrompt},
	{name: "dependencies", title: "Dependency Agent", prompt: DependencyPrompt},
	{name: "techstack", title: "Tech Stack Agent", prompt: TechStackPrompt},
}

func block(b *strings.Builder, tag, body string) {
	fmt.Fprintf(b, "<%s>\n%s\n</%s>\n\n", tag, strings.TrimSpace(body), tag)
}

// discoveryContext builds the context each sub-agent sees. The structure
// agent gets the tree, the dependency agent the manifests, and the tech stack
// agent both.
func discoveryContext(name string, snap *domain.Snapshot) string {
	var b strings.Builder
	if name != "dependencies" {
		block(&b, "project_structure", snap.Tree)
	}
	if name != "structure" {
		deps := snap.Dependencies
		if strings.TrimSpace(deps) == "" {
			deps = "No dependency manifests found."
		}
		block(&b, "dependency_manifests", deps)
	}
	return b.String()
}

func researcherPrompt(dependencies, techStack string) string {
	var b strings.Builder
	b.WriteString(ResearcherPrompt)
	b.WriteString("\n\n")
	block(&b, "dependencies", dependencies)
	block(&b, "tech_stack", techStack)
	return b.String()
}

func planningPrompt(discovery string, snap *domain.Snapshot) string {
	var b strings.Builder
	b.WriteString(PlanningPrompt)
	b.WriteString("\n\n")
	block(&b, "discovery_findings", discovery)
	block(&b, "project_structure", snap.Tree)
	block(&b, "project_files", strings.Join(snap.Paths(), "\n"))
	return b.String()
}

func analysisPrompt(a domain.Assignment, discovery string, snap *domain.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s.\n", a.Role)
	if a.Description != "" {
		fmt.Fprintf(&b, "Your focus: %s\n", a.Description)
	}
	b.WriteString("\nAnalyze the files below. Report the conventions, patterns, responsibilities, and risks you find, citing file paths.\n\n")
	block(&b, "discovery_findings", discovery)
	b.WriteString("<assigned_files>\n")
	for _, path := range a.Files {
		entry, _ := snap.Lookup(path)
		fmt.Fprintf(&b, "<file path=%q>\n%s\n</file>\n", path, entry.Content)
	}
	b.WriteString("</assigned_files>\n")
	return b.String()
}

func synthesisPrompt(results []domain.PhaseResult) string {
	var b strings.Builder
	b.WriteString("<analysis_reports>\n")
	for _, r := range results {
		fmt.Fprintf(&b, "<report role=%q>\n%s\n</report>\n", r.Role, strings.TrimSpace(r.Output))
	}
	b.WriteString("</analysis_reports>\n")
	return b.String()
}

func consolidationPrompt(state *domain.PipelineState) string {
	var b strings.Builder
	block(&b, "discovery_findings", state.Output(domain.PhaseDiscovery))
	block(&b, "analysis_plan", state.Output(domain.PhasePlanning))
	b.WriteString("<analysis_reports>\n")
	for _, r := range state.Successful(domain.PhaseAnalysis) {
		fmt.Fprintf(&b, "<report role=%q>\n%s\n</report>\n", r.Role, strings.TrimSpace(r.Output))
	}
	b.WriteString("</analysis_reports>\n\n")
	block(&b, "synthesis", state.Output(domain.PhaseSynthesis))
	return b.String()
}

func finalPrompt(report string, snap *domain.Snapshot) string {
	var b strings.Builder
	block(&b, "consolidated_report", report)
	block(&b, "project_structure", snap.Tree)
	return b.String()
}
