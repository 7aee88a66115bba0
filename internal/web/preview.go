package web

import (
	"html/template"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	previewPolicy *bluemonday.Policy
	policyOnce    sync.Once
)

func initPolicy() {
	policyOnce.Do(func() {
		previewPolicy = bluemonday.NewPolicy()
		previewPolicy.AllowStandardURLs()
		previewPolicy.AllowElements(
			"p", "br", "div", "span",
			"b", "strong", "em", "i", "del", "u",
			"ul", "ol", "li",
			"h1", "h2", "h3", "h4",
			"code", "pre", "blockquote", "hr",
		)
		previewPolicy.AllowAttrs("href", "target").OnElements("a")
		previewPolicy.AllowStyles("color", "text-decoration").OnElements("a")
		previewPolicy.AllowStyles("font-family", "font-size", "line-height").OnElements("div")
		previewPolicy.RequireNoFollowOnLinks(true)
	})
}

// sanitizePreview strips anything executable from rendered message HTML so
// it can be embedded in the UI. The outgoing message itself is not changed.
func sanitizePreview(html string) template.HTML {
	initPolicy()
	return template.HTML(previewPolicy.Sanitize(html)) //nolint:gosec // sanitized above
}
