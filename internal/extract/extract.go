package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"problem_fetcher/internal/domain"
)

// ErrNoContent means the page's main container matched nothing. Callers may
// retry: the content can be missing only because scripts had not run yet.
var ErrNoContent = errors.New("extract: main container not found")

var reWhitespace = regexp.MustCompile(`\s+`)

// Extract pulls the logical sections out of a fetched page according to the
// given rules. Missing sections come back nil; only a missing main container
// is an error.
func Extract(pageHTML string, r Rules) (domain.Sections, error) {
	var sections domain.Sections

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return sections, fmt.Errorf("parse html: %w", err)
	}

	if r.Main != "" && doc.Find(r.Main).Length() == 0 {
		return sections, ErrNoContent
	}

	for _, sel := range r.Strip {
		doc.Find(sel).Remove()
	}

	sections.StatementHTML = firstMatch(doc, r.Statement)
	sections.InputSpecHTML = firstMatch(doc, r.InputSpec)
	sections.OutputSpecHTML = firstMatch(doc, r.OutputSpec)
	sections.Samples = extractSamples(doc, r.Samples)

	return sections, nil
}

// ExtractRows parses a listing page into candidate rows. Rows without a link
// are skipped rather than errored; judges pad their tables with header and
// ad rows.
func ExtractRows(pageHTML string, r ListRules) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var rows []Row
	doc.Find(r.Row).Each(func(_ int, row *goquery.Selection) {
		link := row
		if r.Link != "" {
			link = row.Find(r.Link).First()
		}
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}

		title := link
		if r.Title != "" {
			title = row.Find(r.Title).First()
		}

		rows = append(rows, Row{
			Href:  href,
			Title: NormalizeSpace(title.Text()),
		})
	})

	return rows, nil
}

// firstMatch walks the selector chain and returns the inner HTML of the
// first selector that matches. Multiple matched elements are concatenated in
// document order.
func firstMatch(doc *goquery.Document, selectors []string) *string {
	for _, sel := range selectors {
		matches := doc.Find(sel)
		if matches.Length() == 0 {
			continue
		}

		var parts []string
		matches.Each(func(_ int, s *goquery.Selection) {
			inner, err := s.Html()
			if err != nil {
				return
			}
			if trimmed := strings.TrimSpace(inner); trimmed != "" {
				parts = append(parts, trimmed)
			}
		})
		if len(parts) == 0 {
			continue
		}

		joined := NormalizeSpace(strings.Join(parts, "\n"))
		return &joined
	}
	return nil
}

func extractSamples(doc *goquery.Document, r SampleRules) []domain.Sample {
	if len(r.Alternating) > 0 {
		blocks := collectTexts(doc, r.Alternating)
		samples := make([]domain.Sample, 0, len(blocks)/2)
		for i := 0; i+1 < len(blocks); i += 2 {
			samples = append(samples, domain.Sample{Input: blocks[i], Output: blocks[i+1]})
		}
		return samples
	}

	inputs := collectTexts(doc, r.Input)
	outputs := collectTexts(doc, r.Output)

	// Pairs form by position; trailing unmatched blocks are dropped.
	n := len(inputs)
	if len(outputs) < n {
		n = len(outputs)
	}

	samples := make([]domain.Sample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, domain.Sample{Input: inputs[i], Output: outputs[i]})
	}
	return samples
}

// collectTexts returns the plain text of every element matched by the first
// non-empty selector in the chain, in document order.
func collectTexts(doc *goquery.Document, selectors []string) []string {
	for _, sel := range selectors {
		matches := doc.Find(sel)
		if matches.Length() == 0 {
			continue
		}
		texts := make([]string, 0, matches.Length())
		matches.Each(func(_ int, s *goquery.Selection) {
			texts = append(texts, strings.TrimSpace(Text(s)))
		})
		return texts
	}
	return nil
}

// Text renders a selection as plain text: block-level separators become
// newlines and entities are already decoded by the parser. Whitespace inside
// pre-formatted blocks is preserved.
func Text(s *goquery.Selection) string {
	var sb strings.Builder
	for _, node := range s.Nodes {
		renderText(&sb, node, false)
	}
	return sb.String()
}

var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "tr": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func renderText(sb *strings.Builder, n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			sb.WriteString(n.Data)
		} else {
			sb.WriteString(reWhitespace.ReplaceAllString(n.Data, " "))
		}
		return
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteString("\n")
			return
		}
		if n.Data == "pre" {
			pre = true
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(sb, c, pre)
	}

	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteString("\n")
	}
}

// NormalizeSpace collapses whitespace runs into single spaces and trims.
func NormalizeSpace(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}
