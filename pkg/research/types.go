// Package research implements the research control flow: the orchestration
// coordinator and the iterative synthesize-reflect-search loop, over narrow
// capability interfaces.
package research

// StyleLevel is the answer style knob threaded through synthesis and
// reflection.
type StyleLevel int

const (
	StyleConcise  StyleLevel = 1
	StyleBalanced StyleLevel = 2
	StyleDetailed StyleLevel = 3
)

func (s StyleLevel) String() string {
	switch s {
	case StyleConcise:
		return "concise"
	case StyleDetailed:
		return "detailed"
	default:
		return "balanced"
	}
}

// Subtask is one planned research step. Lower priority values are more
// urgent and run first.
type Subtask struct {
	Description string `json:"description"`
	SearchQuery string `json:"searchQuery"`
	Priority    int    `json:"priority"`
}

// Plan is created once per run by the planner and immutable afterward.
type Plan struct {
	Goal        string    `json:"goal"`
	Subtasks    []Subtask `json:"subtasks"`
	KeyConcepts []string  `json:"keyConcepts"`
}

// SearchResult is a single result from the search capability. URL is the
// dedup key within a run.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// GatheredInformation accumulates search results across the initial search
// pass and reflection-triggered searches. It only ever grows within a run.
type GatheredInformation struct {
	Results           []SearchResult
	StoredMemoryIDs   []string
	TotalSourcesFound int

	seen map[string]bool
}

func NewGatheredInformation() *GatheredInformation {
	return &GatheredInformation{seen: make(map[string]bool)}
}

// Append adds results whose URL has not been seen this run and returns the
// newly added ones.
func (g *GatheredInformation) Append(results []SearchResult) []SearchResult {
	var added []SearchResult
	for _, r := range results {
		if g.seen[r.URL] {
			continue
		}
		g.seen[r.URL] = true
		g.Results = append(g.Results, r)
		added = append(added, r)
	}
	g.TotalSourcesFound = len(g.Results)
	return added
}

// ReflectionResult is produced fresh each iteration, never merged.
type ReflectionResult struct {
	ConfidenceScore             float64  `json:"confidenceScore"`
	Reasoning                   string   `json:"reasoning"`
	IdentifiedGaps              []string `json:"identifiedGaps"`
	SuggestedAdditionalSearches []string `json:"suggestedAdditionalSearches"`
	RequiresMoreResearch        bool     `json:"requiresMoreResearch"`
}

// Clarification is the clarifying questions for an underspecified prompt.
type Clarification struct {
	Questions []string `json:"questions"`
	Rationale string   `json:"rationale"`
}

// Turn is one prior conversation message, oldest first.
type Turn struct {
	Role    string
	Content string
}
