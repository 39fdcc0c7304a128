package extract

// Rules map the logical sections of a problem page to selector fallback
// chains. For each section the selectors are tried in order; the first one
// with a non-empty match wins. A section whose chain matches nothing is
// simply absent, it never fails the whole page.
type Rules struct {
	// Main is the container that must exist for the page to count as
	// loaded. Zero matches produce ErrNoContent, which callers treat as
	// transient: some judges render the container only after scripts run.
	Main string

	Statement  []string
	InputSpec  []string
	OutputSpec []string

	Samples SampleRules

	// Strip lists structural noise removed before extraction, such as
	// section-title markers.
	Strip []string
}

// SampleRules locate sample input/output blocks. Either the Input/Output
// pair of chains is used (pairs formed by positional index), or Alternating
// when the judge interleaves input and output blocks in one sequence.
type SampleRules struct {
	Input       []string
	Output      []string
	Alternating []string
}

// ListRules drive candidate discovery on listing pages: one matched row
// becomes one candidate.
type ListRules struct {
	Row   string // selector for candidate rows
	Link  string // anchor inside the row; empty means the row itself
	Title string // element carrying the title; empty means the link text
}

// Row is one listing-page hit, still in judge-native shape.
type Row struct {
	Href  string
	Title string
}
