package domain

// Source identifiers for the supported judges.
const (
	SourceCodeforces = "codeforces"
	SourceAtCoder    = "atcoder"
	SourceSPOJ       = "spoj"
	SourceCodeChef   = "codechef"
)

// Problem is the normalized record produced by a source adapter.
// A new value with the same (SourceID, ExternalID) supersedes the stored one.
type Problem struct {
	ID          int64
	SourceID    string // identifies the judge (e.g., "codeforces")
	ExternalID  string // judge-specific id, unique per SourceID
	Title       string
	URL         string
	Difficulty  *string
	TimeLimitMs int
	MemLimitKb  int
	Sections    Sections
	Tags        []string
}

// Sections holds the extracted content blocks of a problem page.
type Sections struct {
	StatementHTML  *string  `json:"statement_html"`
	InputSpecHTML  *string  `json:"input_spec_html"`
	OutputSpecHTML *string  `json:"output_spec_html"`
	Samples        []Sample `json:"samples"`
}

// Empty reports whether nothing at all was extracted. An all-empty value is
// an extraction failure, not a valid empty result.
func (s Sections) Empty() bool {
	return s.StatementHTML == nil &&
		s.InputSpecHTML == nil &&
		s.OutputSpecHTML == nil &&
		len(s.Samples) == 0
}

// Sample is one input/output pair, in page order.
type Sample struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Candidate is a problem discovered on a listing page, not yet fetched.
type Candidate struct {
	ID    string
	Title string
	URL   string
}
