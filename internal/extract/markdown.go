package extract

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// markdownReader renders Markdown to plain text. Block boundaries become
// blank lines so the chunker can prefer them.
type markdownReader struct {
	md goldmark.Markdown
}

func newMarkdownReader() *markdownReader {
	return &markdownReader{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
	}
}

func (r *markdownReader) read(source []byte) (string, []string) {
	doc := r.md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.Label(source))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
				buf.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ThematicBreak:
			if !entering {
				buf.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				buf.WriteString("\n")
			}
		case *ast.List:
			if !entering {
				buf.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return buf.String(), headings(doc, source)
}

// headings flattens the table of contents into titles in document order.
func headings(doc ast.Node, source []byte) []string {
	tree, err := toc.Inspect(doc, source, toc.Compact(true))
	if err != nil {
		return nil
	}

	var titles []string
	var walk func(items toc.Items)
	walk = func(items toc.Items) {
		for _, item := range items {
			if len(item.Title) > 0 {
				titles = append(titles, string(item.Title))
			}
			walk(item.Items)
		}
	}
	walk(tree.Items)
	return titles
}
