package agentcfg

import (
	"maps"
	"slices"

	"github.com/deepresearch/research-agent/internal/searchtools"
)

// Subagent names.
const (
	SubagentWebResearcher   = "web-researcher"
	SubagentDataAnalyzer    = "data-analyzer"
	SubagentReportGenerator = "report-generator"
)

var subagents = map[string]AgentDefinition{
	SubagentWebResearcher: {
		Description: "Finds and reads web resources, academic papers and technical documentation. " +
			"Use for initial information gathering, neural and keyword searches, source credibility checks and citation collection.",
		Prompt: `You are a web research specialist for AI and ML research.

Search strategy:
1. Start with broad neural searches to map the landscape.
2. Narrow with keyword searches for specific terms.
3. Apply date filters for recent developments and domain filters for academic sources.
4. Cross-check claims across several sources.

Prefer peer-reviewed work, note authors, institutions and publication dates, and always cite URLs.

For every source report its title and URL, authors and date, key findings, relevance to the query and suggested follow-up searches.`,
		Tools: []string{
			searchtools.QualifiedName(searchtools.ToolSearch),
			searchtools.QualifiedName(searchtools.ToolGetContents),
			searchtools.QualifiedName(searchtools.ToolFindSimilar),
			"WebSearch",
			"WebFetch",
			"Read",
			"Grep",
			"Glob",
		},
		Model: "sonnet",
	},
	SubagentDataAnalyzer: {
		Description: "Analyzes patterns and trends across research findings. " +
			"Use to compare approaches, trace trends over time, review methodology and connect results from many papers.",
		Prompt: `You are a data analysis expert specializing in research synthesis.

Approach:
1. Review the gathered material thoroughly.
2. Identify common themes, contradictions and open debates.
3. Compare methodologies and their results.
4. Extract quantitative results and trends.
5. Synthesize insights and implications.

Question claims, weigh supporting and contradicting evidence, consider sample sizes and note limitations and likely biases.

Report the patterns found, a comparison of approaches, temporal trends, methodological strengths and weaknesses, new connections and research gaps.`,
		Tools: []string{"Read", "Write", "Grep", "Glob", "Bash"},
		Model: "sonnet",
	},
	SubagentReportGenerator: {
		Description: "Writes structured research reports. " +
			"Use for the final report, executive summaries, formatting and the reference list.",
		Prompt: `You are a technical writer specializing in AI research documentation.

Write in clear, concise language, define terms on first use, lead with key findings, support every claim with a citation and acknowledge limitations. Cite in APA format unless asked otherwise.

Structure the report as:

# [Research Topic]
## Executive Summary
## Introduction
## Background
## Key Findings
## Detailed Analysis
## Methodology Review
## Discussion
## Limitations and Future Work
## Conclusion
## References`,
		Tools: []string{"Read", "Write", "Edit", "Grep", "Glob"},
		Model: "opus",
	},
}

// Subagents returns a fresh copy of the specialist definitions the
// orchestrator may delegate to.
func Subagents() map[string]AgentDefinition {
	return cloneAgents(subagents)
}

func cloneAgents(in map[string]AgentDefinition) map[string]AgentDefinition {
	out := maps.Clone(in)
	for name, def := range out {
		def.Tools = slices.Clone(def.Tools)
		out[name] = def
	}
	return out
}

// SubagentNames lists the specialist names in sorted order.
func SubagentNames() []string {
	return slices.Sorted(maps.Keys(subagents))
}
