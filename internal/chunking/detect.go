package chunking

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type ContentType string

const (
	ContentTypePlain      ContentType = "plain"
	ContentTypeMarkdown   ContentType = "markdown"
	ContentTypeCode       ContentType = "code"
	ContentTypeStructured ContentType = "structured"
	ContentTypeHTML       ContentType = "html"
)

// ParseContentType maps a caller-supplied tag onto a known content type,
// falling back to heuristic detection for unknown or empty tags.
func ParseContentType(tag, content string) ContentType {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "plain", "text", "text/plain":
		return ContentTypePlain
	case "markdown", "md", "text/markdown":
		return ContentTypeMarkdown
	case "code":
		return ContentTypeCode
	case "structured", "json", "application/json":
		return ContentTypeStructured
	case "html", "text/html":
		return ContentTypeHTML
	}
	return DetectContentType(content)
}

var (
	htmlTagPattern  = regexp.MustCompile(`(?i)<(html|body|div|p|span|h[1-6]|table|head)\b`)
	mdLinkPattern   = regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)
	codeLinePattern = regexp.MustCompile(`(?m)^\s*(func |def |class |package |import |public |private |const |var |let |return\b|}\s*$)`)
)

// DetectContentType classifies content with cheap structural heuristics. It
// deliberately errs toward plain: a wrong "plain" still chunks sensibly, a
// wrong "structured" does not.
func DetectContentType(content string) ContentType {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ContentTypePlain
	}

	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		return ContentTypeStructured
	}

	if htmlTagPattern.MatchString(trimmed) {
		return ContentTypeHTML
	}

	lines := strings.Split(trimmed, "\n")
	mdScore, codeScore := 0, 0
	for _, line := range lines {
		l := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(l, "#"), strings.HasPrefix(l, "- "), strings.HasPrefix(l, "* "), strings.HasPrefix(l, "```"):
			mdScore++
		}
	}
	if mdLinkPattern.MatchString(trimmed) {
		mdScore += 2
	}
	codeScore = len(codeLinePattern.FindAllString(trimmed, -1))

	threshold := len(lines)/10 + 1
	if codeScore > mdScore && codeScore >= threshold {
		return ContentTypeCode
	}
	if mdScore >= threshold {
		return ContentTypeMarkdown
	}

	return ContentTypePlain
}

// StripHTML reduces an HTML document to its visible text, dropping script,
// style and navigation noise.
func StripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	text = regexp.MustCompile(`[ \t]+`).ReplaceAllString(text, " ")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
