package render

import (
	"regexp"
	"strings"
)

const (
	FormatMarkup   = "markup"
	FormatMarkdown = "markdown"
)

var (
	boldPattern = regexp.MustCompile(`(?s)\*\*(.+?)\*\*`)
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?://[^\s)]+)\)`)
)

const linkReplacement = `<a href="$2" style="color:#1a73e8; text-decoration:underline;" target="_blank">$1</a>`

// Markup converts the lightweight body dialect to HTML:
// **bold**, [label](http(s)://url), newlines and double spaces.
func Markup(body string) string {
	if body == "" {
		return ""
	}
	s := boldPattern.ReplaceAllString(body, "<b>$1</b>")
	s = linkPattern.ReplaceAllString(s, linkReplacement)
	s = strings.ReplaceAll(s, "\n", "<br>")
	s = strings.ReplaceAll(s, "  ", "&nbsp;&nbsp;")
	return s
}

// HTMLDocument wraps a body fragment in the outgoing message envelope.
func HTMLDocument(inner string) string {
	return `<html><body style="font-family: Verdana, sans-serif; font-size: 14px; line-height: 1.6;">` +
		inner +
		`</body></html>`
}
