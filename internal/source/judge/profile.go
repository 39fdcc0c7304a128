package judge

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"problem_fetcher/internal/domain"
	"problem_fetcher/internal/extract"
	"problem_fetcher/internal/fetch"
)

var errNoSections = errors.New("no sections extracted")

// reIndexPrefix strips the "A. " style index from page header titles.
var reIndexPrefix = regexp.MustCompile(`^[A-Z][0-9]*\.\s*`)

// Profile carries everything judge-specific: URL construction, selector rule
// tables, default resource limits, transport quirks, and politeness delay.
// The pipeline itself (transport, extractor, retry) is shared.
type Profile struct {
	ID   string
	Name string

	BaseURL     string
	ListingPath string
	ListRules   extract.ListRules
	SecondHop   *ListingHop

	// ListOptions applies to listing fetches, FetchOptions to problem
	// pages. Listing pages never contain the problem container, so they
	// must not share its WaitSelector.
	ListOptions fetch.Options

	ProblemRules extract.Rules
	FetchOptions fetch.Options

	RequestDelay time.Duration
	TimeLimitMs  int // default when the page states none
	MemLimitKb   int

	// BrowserOnly forces the headless transport; BrowserFallback uses
	// plain HTTP first and the browser when blocked.
	BrowserOnly     bool
	BrowserFallback bool

	// CandidateID derives the judge-specific external id from a listing
	// row's href.
	CandidateID func(href string) (string, error)

	// Enrich reads judge-native metadata (parsed limits, rating, tags)
	// from the problem page into the normalized record.
	Enrich func(doc *goquery.Document, p *domain.Problem)
}

// ListingHop describes a second listing level: the first page lists contests,
// each contest lists tasks.
type ListingHop struct {
	PathSuffix string
	Rules      extract.ListRules
}

func profileFor(judgeID string) (Profile, error) {
	switch judgeID {
	case domain.SourceCodeforces:
		return codeforcesProfile(), nil
	case domain.SourceAtCoder:
		return atcoderProfile(), nil
	case domain.SourceSPOJ:
		return spojProfile(), nil
	case domain.SourceCodeChef:
		return codechefProfile(), nil
	default:
		return Profile{}, fmt.Errorf("unsupported judge: %q", judgeID)
	}
}

func codeforcesProfile() Profile {
	return Profile{
		ID:          domain.SourceCodeforces,
		Name:        "Codeforces",
		BaseURL:     "https://codeforces.com",
		ListingPath: "/problemset",
		ListRules: extract.ListRules{
			Row:   "table.problems tr",
			Link:  "td.id a",
			Title: "td:nth-child(2) a",
		},
		ListOptions: fetch.Options{
			Headers:      map[string]string{"Referer": "https://codeforces.com/"},
			Cookies:      []fetch.Cookie{{Name: "RCPC", Value: "1", Domain: "codeforces.com", Path: "/"}},
			WaitSelector: "table.problems",
		},
		ProblemRules: extract.Rules{
			Main:       ".problem-statement",
			Statement:  []string{".problem-statement > .legend", ".problem-statement > div:nth-child(2)"},
			InputSpec:  []string{".problem-statement .input-specification"},
			OutputSpec: []string{".problem-statement .output-specification"},
			Samples: extract.SampleRules{
				Input:  []string{".sample-test .input pre"},
				Output: []string{".sample-test .output pre"},
			},
			Strip: []string{".section-title"},
		},
		FetchOptions: fetch.Options{
			Headers: map[string]string{"Referer": "https://codeforces.com/"},
			// A present RCPC cookie reduces soft blocking.
			Cookies:      []fetch.Cookie{{Name: "RCPC", Value: "1", Domain: "codeforces.com", Path: "/"}},
			WaitSelector: ".problem-statement",
		},
		RequestDelay:    2 * time.Second,
		TimeLimitMs:     1000,
		MemLimitKb:      512 * 1024,
		BrowserFallback: true,
		CandidateID:     codeforcesCandidateID,
		Enrich:          codeforcesEnrich,
	}
}

// codeforcesCandidateID turns "/problemset/problem/1/A" (or the contest form
// "/contest/1/problem/A") into "1A".
func codeforcesCandidateID(href string) (string, error) {
	parts := splitPath(href)
	if len(parts) >= 3 && parts[0] == "problemset" && parts[1] == "problem" {
		return parts[2] + parts[len(parts)-1], nil
	}
	if len(parts) >= 4 && parts[0] == "contest" && parts[2] == "problem" {
		return parts[1] + parts[3], nil
	}
	return "", fmt.Errorf("unrecognized codeforces problem path: %q", href)
}

func codeforcesEnrich(doc *goquery.Document, p *domain.Problem) {
	header := doc.Find(".problem-statement .header")

	// The listing title is canonical; the page header ("A. Theatre Square")
	// only fills in when the listing gave none.
	if p.Title == "" {
		if title := extract.NormalizeSpace(header.Find(".title").Text()); title != "" {
			p.Title = reIndexPrefix.ReplaceAllString(title, "")
		}
	}
	if ms, ok := parseTimeLimitMs(header.Find(".time-limit").Text()); ok {
		p.TimeLimitMs = ms
	}
	if kb, ok := parseMemLimitKb(header.Find(".memory-limit").Text()); ok {
		p.MemLimitKb = kb
	}

	doc.Find(".tag-box").Each(func(_ int, s *goquery.Selection) {
		tag := extract.NormalizeSpace(s.Text())
		if tag == "" {
			return
		}
		// A "*1700" box is the problem rating, not a topic tag.
		if strings.HasPrefix(tag, "*") {
			rating := strings.TrimPrefix(tag, "*")
			p.Difficulty = &rating
			return
		}
		p.Tags = append(p.Tags, tag)
	})
}

func atcoderProfile() Profile {
	return Profile{
		ID:          domain.SourceAtCoder,
		Name:        "AtCoder",
		BaseURL:     "https://atcoder.jp",
		ListingPath: "/contests/archive",
		ListRules: extract.ListRules{
			Row:  "table.archive-table tbody tr, table tbody tr",
			Link: "td:nth-child(2) a",
		},
		SecondHop: &ListingHop{
			PathSuffix: "/tasks",
			Rules: extract.ListRules{
				Row:   "table tbody tr",
				Link:  "td:nth-child(1) a",
				Title: "td:nth-child(2) a",
			},
		},
		ProblemRules: extract.Rules{
			Main:       "#task-statement",
			Statement:  []string{"#task-statement .lang-en .part:first-of-type section", "#task-statement .part:first-of-type section"},
			InputSpec:  []string{"#task-statement .io-style .part:nth-of-type(1) section"},
			OutputSpec: []string{"#task-statement .io-style .part:nth-of-type(2) section"},
			Samples: extract.SampleRules{
				Alternating: []string{
					"#task-statement .lang-en pre[id^=pre-sample]",
					"#task-statement pre[id^=pre-sample]",
				},
			},
		},
		RequestDelay: 2 * time.Second,
		TimeLimitMs:  2000,
		MemLimitKb:   1024 * 1024,
		CandidateID:  atcoderCandidateID,
		Enrich:       atcoderEnrich,
	}
}

// atcoderCandidateID takes the task slug from
// "/contests/abc123/tasks/abc123_a".
func atcoderCandidateID(href string) (string, error) {
	parts := splitPath(href)
	if len(parts) < 2 || parts[len(parts)-2] != "tasks" {
		return "", fmt.Errorf("unrecognized atcoder task path: %q", href)
	}
	return parts[len(parts)-1], nil
}

func atcoderEnrich(doc *goquery.Document, p *domain.Problem) {
	// "Time Limit: 2 sec / Memory Limit: 1024 MB" above the statement.
	meta := extract.NormalizeSpace(doc.Find("#main-container .row p").First().Text())
	if meta == "" {
		return
	}
	for _, part := range strings.Split(meta, "/") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "Time Limit:"); ok {
			if ms, parsed := parseTimeLimitMs(v); parsed {
				p.TimeLimitMs = ms
			}
		}
		if v, ok := strings.CutPrefix(part, "Memory Limit:"); ok {
			if kb, parsed := parseMemLimitKb(v); parsed {
				p.MemLimitKb = kb
			}
		}
	}
}

func spojProfile() Profile {
	return Profile{
		ID:          domain.SourceSPOJ,
		Name:        "SPOJ",
		BaseURL:     "https://www.spoj.com",
		ListingPath: "/problems/classical/",
		ListRules: extract.ListRules{
			Row:  "table.problems tbody tr",
			Link: "td:nth-child(2) a",
		},
		ProblemRules: extract.Rules{
			Main:      "#problem-body",
			Statement: []string{"#problem-body"},
			Samples: extract.SampleRules{
				Alternating: []string{"#problem-body pre"},
			},
		},
		RequestDelay: 2500 * time.Millisecond,
		TimeLimitMs:  1000,
		MemLimitKb:   1536 * 1024,
		CandidateID:  spojCandidateID,
		Enrich:       spojEnrich,
	}
}

// spojCandidateID takes the problem code from "/problems/TEST/".
func spojCandidateID(href string) (string, error) {
	parts := splitPath(href)
	if len(parts) < 2 || parts[0] != "problems" {
		return "", fmt.Errorf("unrecognized spoj problem path: %q", href)
	}
	return parts[1], nil
}

func spojEnrich(doc *goquery.Document, p *domain.Problem) {
	doc.Find("#problem-meta tr").Each(func(_ int, row *goquery.Selection) {
		label := extract.NormalizeSpace(row.Find("td").First().Text())
		value := extract.NormalizeSpace(row.Find("td").Eq(1).Text())
		switch {
		case strings.HasPrefix(label, "Time limit"):
			if ms, ok := parseTimeLimitMs(value); ok {
				p.TimeLimitMs = ms
			}
		case strings.HasPrefix(label, "Memory limit"):
			if kb, ok := parseMemLimitKb(value); ok {
				p.MemLimitKb = kb
			}
		}
	})
}

func codechefProfile() Profile {
	return Profile{
		ID:          domain.SourceCodeChef,
		Name:        "CodeChef",
		BaseURL:     "https://www.codechef.com",
		ListingPath: "/problems/school",
		ListRules: extract.ListRules{
			Row:  "table tbody tr",
			Link: "td a[href^='/problems/']",
		},
		ListOptions: fetch.Options{
			Cookies:      []fetch.Cookie{{Name: "cookieconsent_dismissed", Value: "true", Domain: ".codechef.com", Path: "/"}},
			WaitSelector: "table",
		},
		ProblemRules: extract.Rules{
			Main:       ".problem-statement",
			Statement:  []string{".problem-statement__problem", ".problem-statement"},
			InputSpec:  []string{".problem-statement__input"},
			OutputSpec: []string{".problem-statement__output"},
			Samples: extract.SampleRules{
				Input:  []string{".problem-statement__examples .example .example__input pre"},
				Output: []string{".problem-statement__examples .example .example__output pre"},
			},
		},
		FetchOptions: fetch.Options{
			Cookies:      []fetch.Cookie{{Name: "cookieconsent_dismissed", Value: "true", Domain: ".codechef.com", Path: "/"}},
			WaitSelector: ".problem-statement",
		},
		RequestDelay: 3 * time.Second,
		TimeLimitMs:  1000,
		MemLimitKb:   256 * 1024,
		// The problem body renders client side, plain HTTP gets a shell.
		BrowserOnly: true,
		CandidateID: codechefCandidateID,
	}
}

// codechefCandidateID takes the code from "/problems/FLOW001".
func codechefCandidateID(href string) (string, error) {
	parts := splitPath(href)
	if len(parts) < 2 || parts[0] != "problems" {
		return "", fmt.Errorf("unrecognized codechef problem path: %q", href)
	}
	return parts[len(parts)-1], nil
}

func splitPath(href string) []string {
	// Absolute hrefs lose scheme and host so parsing sees the path only.
	for _, scheme := range []string{"https://", "http://"} {
		rest, ok := strings.CutPrefix(href, scheme)
		if !ok {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			href = rest[i:]
		} else {
			href = ""
		}
		break
	}
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	var parts []string
	for _, p := range strings.Split(href, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
