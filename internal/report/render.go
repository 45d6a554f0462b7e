package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// RenderMarkdown renders entries as a markdown document: a summary, a results table and
// one section per entry that carries evidence.
func RenderMarkdown(title string, entries []Entry) string {
	var b strings.Builder
	passed, failed := 0, 0
	for _, e := range entries {
		if e.Pass {
			passed++
		} else {
			failed++
		}
	}

	fmt.Fprintf(&b, "# %s\n\n", escapeInline(title))
	fmt.Fprintf(&b, "**%d passed, %d failed**\n\n", passed, failed)
	if len(entries) == 0 {
		b.WriteString("No interactions were reported.\n")
		return b.String()
	}

	b.WriteString("| # | Status | Time | Browser | Message |\n")
	b.WriteString("|---|--------|------|---------|---------|\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			i+1, e.Status(), e.Time.Format("15:04:05.000"), escapeCell(e.Browser), escapeCell(e.Message))
	}

	for i, e := range entries {
		if e.Evidence == nil {
			continue
		}
		fmt.Fprintf(&b, "\n## Evidence for #%d (%s)\n\n", i+1, e.Status())
		if e.Evidence.URL != "" {
			fmt.Fprintf(&b, "[Stored screenshot](%s)\n\n", e.Evidence.URL)
		}
		if len(e.Evidence.PNG) > 0 {
			fmt.Fprintf(&b, "![screenshot #%d](data:image/png;base64,%s)\n", i+1, e.Evidence.Base64())
		}
	}
	return b.String()
}

var pageTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
img { max-width: 100%; border: 1px solid #ccc; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderHTML renders entries as a standalone, sanitised HTML page.
func RenderHTML(title string, entries []Entry) ([]byte, error) {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	doc := parser.NewWithExtensions(extensions).Parse([]byte(RenderMarkdown(title, entries)))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	body := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowDataURIImages()
	sanitized := policy.SanitizeBytes(body)

	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(sanitized)})
	if err != nil {
		return nil, fmt.Errorf("report: render page: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML renders entries into dir/report-<runID>.html and returns the file path.
func WriteHTML(dir, runID, title string, entries []Entry) (string, error) {
	page, err := RenderHTML(title, entries)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "report-"+fileSafe(runID)+".html")
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return escapeInline(strings.ReplaceAll(s, "|", `\|`))
}

// escapeInline keeps page text from being read as markdown emphasis, links or HTML.
func escapeInline(s string) string {
	r := strings.NewReplacer(`<`, "&lt;", `>`, "&gt;", `*`, `\*`, `_`, `\_`, "`", "\\`", `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

func fileSafe(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
