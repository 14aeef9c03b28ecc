package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// ToHTML converts a model reply's markdown narrative into sanitized HTML for
// web clients
func ToHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return sanitizeHTML(html)
}

// Tags a chat frontend renders; everything else is stripped
var supportedTags = []string{
	"p", "br", "b", "strong", "i", "em", "u", "s",
	"code", "pre", "a", "ul", "ol", "li",
	"h1", "h2", "h3", "h4", "blockquote",
}

var (
	tagRe     = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?>`)
	tagNameRe = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)`)
	hrefRe    = regexp.MustCompile(`<a\s+[^>]*href="(https?://[^"]*)"[^>]*>`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

func sanitizeHTML(html string) string {
	// Rebuild anchors with only the href attribute, dropping everything
	// that could carry script
	html = hrefRe.ReplaceAllString(html, `<a href="$1">`)

	html = tagRe.ReplaceAllStringFunc(html, func(match string) string {
		tagMatch := tagNameRe.FindStringSubmatch(match)
		if len(tagMatch) < 2 {
			return ""
		}

		tagName := strings.ToLower(tagMatch[1])
		for _, supported := range supportedTags {
			if tagName == supported {
				// Keep attribute-free forms only, except sanitized anchors
				if tagName == "a" && !strings.HasPrefix(match, "</") {
					if hrefRe.MatchString(match) || match == "<a>" {
						return match
					}
					return "<a>"
				}
				if strings.HasPrefix(match, "</") {
					return "</" + tagName + ">"
				}
				return "<" + tagName + ">"
			}
		}
		return ""
	})

	html = newlineRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
