// Package parser turns a bridge status page into (name, status) pairs.
//
// The upstream page has no stable markup; the only contract is that its visible
// text lists each bridge as a header line "Label (Bridge N)" followed by a status
// line. Parsing is therefore purely line based and never fails: an unexpected page
// yields fewer or zero bridges.
//
// A header immediately followed by another header takes the second header's text
// as its status. This mirrors how the page has always been read and is kept as is.
package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
)

// UnknownStatus is reported for a header that ends the page.
const UnknownStatus = "Unknown"

// Whitespace includes \p{Zs} so &nbsp; entities in the page count as spaces.
var headerPattern = regexp.MustCompile(`^(.+?)[\s\p{Zs}]*\(Bridge[\s\p{Zs}]*([0-9]+[A-Za-z]?)\)$`)

// Parse extracts bridge statuses from raw HTML in page order. Duplicates are kept.
func Parse(html string) []models.BridgeStatus {
	return ParseLines(Lines(html))
}

// Lines returns the trimmed, non-empty lines of the page's visible body text.
func Lines(html string) []string {
	return splitLines(visibleText(html))
}

// ParseLines pairs every header line with the line that follows it.
func ParseLines(lines []string) []models.BridgeStatus {
	bridges := make([]models.BridgeStatus, 0)
	for i, line := range lines {
		name, ok := MatchHeader(line)
		if !ok {
			continue
		}
		status := UnknownStatus
		if i+1 < len(lines) {
			status = lines[i+1]
		}
		bridges = append(bridges, models.BridgeStatus{Name: name, Status: status})
	}
	return bridges
}

// MatchHeader reports whether line is a bridge header and returns its normalized
// name, "<label> (Bridge <number><suffix>)".
func MatchHeader(line string) (string, bool) {
	m := headerPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]) + " (Bridge " + m[2] + ")", true
}

func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// The HTML5 parser recovers from any markup; only a failing reader ends up here.
		return html
	}
	return doc.Find("body").Text()
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
