package export

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

const documentShell = `<!DOCTYPE html>
<html lang="tr">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: {{.PageSize}}; }
html, body { margin: 0; padding: 0; }
body {
  font-family: "Times New Roman", Times, serif;
  font-size: 12pt;
  line-height: 1.5;
  color: #000;
}
.document { max-width: 100%; }
.document h1, .document h2, .document h3 { line-height: 1.25; margin: 0.8em 0 0.4em; }
.document p { margin: 0 0 0.75em; }
.document table { width: 100%; border-collapse: collapse; }
.document td, .document th { border: 1px solid #444; padding: 4px 6px; vertical-align: top; }
.document img { max-width: 100%; }
.document ul, .document ol { padding-left: 1.5em; }
</style>
</head>
<body>
<article class="document">
{{.Body}}
</article>
</body>
</html>
`

var shellTemplate = template.Must(template.New("document").Parse(documentShell))

var (
	bodyPolicyOnce sync.Once
	bodyPolicy     *bluemonday.Policy
)

// bodySanitizer allows the formatting a rich-text template editor produces
func bodySanitizer() *bluemonday.Policy {
	bodyPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("class").Globally()
		policy.AllowStyling()
		policy.AllowAttrs("style").Globally()
		policy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
		policy.AllowAttrs("align").OnElements("p", "div", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6")
		bodyPolicy = policy
	})
	return bodyPolicy
}

// Sanitize strips scripts, event handlers and other unsafe markup from a
// filled template body.
func Sanitize(body string) string {
	return bodySanitizer().Sanitize(body)
}

// WrapDocument places a filled body inside a printable HTML document. The
// body is inserted verbatim.
func WrapDocument(title, body string, layout PageLayout) (string, error) {
	var buf bytes.Buffer
	err := shellTemplate.Execute(&buf, struct {
		Title    string
		PageSize template.CSS
		Body     template.HTML
	}{
		Title:    title,
		PageSize: template.CSS(layout.CSSPageSize()),
		Body:     template.HTML(body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build document: %w", err)
	}
	return buf.String(), nil
}
