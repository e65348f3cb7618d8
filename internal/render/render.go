// Package render converts raw markdown bytes into HTML. Rendering is a pure
// function of the input bytes: it never fails, never touches the filesystem,
// and degraded input produces degraded-but-valid HTML rather than an error.
package render

import (
	"bytes"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// frontmatter is the subset of YAML frontmatter the previewer cares about.
type frontmatter struct {
	Title string `yaml:"title"`
}

// Renderer converts markdown to HTML with GFM extensions, syntax highlighting
// and raw HTML passthrough. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a configured markdown renderer.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
				highlighting.NewHighlighting(
					highlighting.WithFormatOptions(
						chromahtml.WithClasses(true),
					),
				),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
		),
	}
}

// Render converts markdown bytes to an HTML fragment. Leading YAML
// frontmatter is stripped before conversion. Render never fails: if goldmark
// reports an error the raw content is returned inside a <pre> block.
func (r *Renderer) Render(src []byte) string {
	body, _ := splitFrontmatter(src)

	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return "<pre>" + htmlEscape(string(body)) + "</pre>"
	}
	return buf.String()
}

// Title extracts a display title from markdown bytes: frontmatter title:
// first, then the first ATX H1, then empty.
func (r *Renderer) Title(src []byte) string {
	body, fm := splitFrontmatter(src)
	if fm.Title != "" {
		return fm.Title
	}

	for _, line := range strings.Split(string(body), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// splitFrontmatter removes a leading "---" fenced YAML block and parses it.
// Unparsable or unterminated frontmatter is treated as ordinary markdown.
func splitFrontmatter(src []byte) ([]byte, frontmatter) {
	var fm frontmatter

	if !bytes.HasPrefix(src, []byte("---\n")) {
		return src, fm
	}

	end := bytes.Index(src[4:], []byte("\n---\n"))
	if end == -1 {
		return src, fm
	}

	yamlContent := src[4 : 4+end]
	rest := src[4+end+5:]

	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return src, frontmatter{}
	}
	return rest, fm
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func htmlEscape(s string) string {
	return escaper.Replace(s)
}
