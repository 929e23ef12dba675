package parse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spacesRe        = regexp.MustCompile(`\p{Z}+`)
	formatControlRe = regexp.MustCompile(`\p{Cf}+`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

func TrimText(text string) string {
	text = spacesRe.ReplaceAllString(text, " ")
	text = formatControlRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// HTMLToText converts an HTML fragment (feed item description) to a single line of plain text.
func HTMLToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpaces(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpaces(fragment)
	}

	doc.Find("script, style").Remove()
	doc.Find("br, p, div, li").Each(func(_ int, selection *goquery.Selection) {
		selection.AppendHtml(" ")
	})

	return collapseSpaces(doc.Text())
}

func collapseSpaces(text string) string {
	return whitespaceRe.ReplaceAllString(TrimText(text), " ")
}
