// ABOUTME: Flattens markdown into plain display lines using goldmark's parser
// ABOUTME: Headings, list items, code blocks, and paragraphs become wrapped text rows

package display

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// RenderMarkdown converts markdown source into lines no wider than cols
// characters. Inline styling is dropped.
func RenderMarkdown(src []byte, cols int) []string {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var lines []string
	var cur bytes.Buffer
	prefix := ""

	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		lines = append(lines, wrap(prefix+s, cols)...)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				flush()
				prefix = strings.Repeat("#", node.Level) + " "
			} else {
				flush()
				prefix = ""
			}
		case *ast.ListItem:
			if entering {
				flush()
				prefix = "- "
			} else {
				flush()
				prefix = ""
			}
		case *ast.Paragraph, *ast.TextBlock:
			if !entering {
				flush()
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				flush()
				segs := n.Lines()
				for i := 0; i < segs.Len(); i++ {
					seg := segs.At(i)
					line := strings.TrimRight(string(seg.Value(src)), "\r\n")
					lines = append(lines, wrap(line, cols)...)
				}
				return ast.WalkSkipChildren, nil
			}
		case *ast.ThematicBreak:
			if entering {
				flush()
				lines = append(lines, strings.Repeat("-", max(cols, 1)))
			}
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(src))
				if node.HardLineBreak() {
					flush()
				} else if node.SoftLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		}
		return ast.WalkContinue, nil
	})
	flush()
	return lines
}

// wrap breaks s on spaces so no line exceeds cols runes. Words longer than
// cols are split.
func wrap(s string, cols int) []string {
	if cols <= 0 || utf8.RuneCountInString(s) <= cols {
		return []string{s}
	}
	var out []string
	var line []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > cols {
			if len(line) > 0 {
				out = append(out, string(line))
				line = line[:0]
			}
			out = append(out, string(w[:cols]))
			w = w[cols:]
		}
		switch {
		case len(line) == 0:
			line = append(line, w...)
		case len(line)+1+len(w) <= cols:
			line = append(line, ' ')
			line = append(line, w...)
		default:
			out = append(out, string(line))
			line = append(line[:0], w...)
		}
	}
	if len(line) > 0 {
		out = append(out, string(line))
	}
	return out
}

// PlainLines splits plain text on newlines and wraps each line.
func PlainLines(s string, cols int) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			out = append(out, "")
			continue
		}
		out = append(out, wrap(l, cols)...)
	}
	return out
}
