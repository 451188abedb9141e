package progress

import "github.com/deepresearch/research-agent/internal/searchtools"

// Stage labels that do not depend on a tool name.
const (
	StageInitializing = "Initializing research agent..."
	StageReady        = "Ready to start"
	StagePreparing    = "Preparing to search"
	StageAnalyzing    = "Found sources, analyzing content"
	StageSynthesizing = "Synthesizing findings"
	StageFinalizing   = "Finalizing report"
)

// Category groups tool names for stage inference and counters.
type Category string

const (
	CategorySearch Category = "search"
	CategoryFetch  Category = "fetch"
	CategoryWrite  Category = "write"
)

// Tables hold the name-keyed heuristics used by the reducer.
type Tables struct {
	// StageLabels maps a tool name to the label shown while it runs.
	StageLabels map[string]string
	// Categories maps a tool name to its category. Tools without one
	// only count towards the totals.
	Categories map[string]Category
}

// DefaultTables returns the tables for the research agent's tool set.
func DefaultTables() Tables {
	exaSearch := searchtools.QualifiedName(searchtools.ToolSearch)
	exaContents := searchtools.QualifiedName(searchtools.ToolGetContents)
	exaSimilar := searchtools.QualifiedName(searchtools.ToolFindSimilar)

	return Tables{
		StageLabels: map[string]string{
			"WebSearch": "Searching for papers and articles",
			"WebFetch":  "Fetching and analyzing content",
			exaSearch:   "Searching with Exa neural search",
			exaContents: "Fetching paper contents",
			exaSimilar:  "Finding similar papers",
			"Read":      "Reading documents",
			"Write":     "Generating report",
			"TodoWrite": "Planning research steps",
			"Grep":      "Searching in files",
			"Glob":      "Finding relevant files",
			"Bash":      "Running commands",
		},
		Categories: map[string]Category{
			"WebSearch": CategorySearch,
			exaSearch:   CategorySearch,
			"WebFetch":  CategoryFetch,
			exaContents: CategoryFetch,
			"Write":     CategoryWrite,
		},
	}
}

// RunningLabel is the label for a tool call still waiting for its result.
func (t Tables) RunningLabel(name string) string {
	if label, ok := t.StageLabels[name]; ok {
		return label
	}
	return "Using " + name
}

func (t Tables) category(name string) Category {
	return t.Categories[name]
}
