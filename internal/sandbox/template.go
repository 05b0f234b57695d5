package sandbox

import (
	"context"
	"strings"

	"github.com/dop251/goja"
)

// compileTemplate rewrites html source containing `<%= expr %>` interpolation
// tags and `<% stmt %>` statement tags into a goja program that appends to
// an implicit output buffer and returns it as a string. Text outside tags is
// emitted as a string literal via __out.push.
func compileTemplate(preamble, html string) string {
	var b strings.Builder
	b.WriteString("(function(){\nvar __out = [];\n")
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n")
	}

	rest := html
	for {
		start := strings.Index(rest, "<%")
		if start < 0 {
			writeLiteral(&b, rest)
			break
		}
		writeLiteral(&b, rest[:start])
		rest = rest[start+2:]

		isExpr := strings.HasPrefix(rest, "=")
		if isExpr {
			rest = rest[1:]
		}
		end := strings.Index(rest, "%>")
		if end < 0 {
			// Unterminated tag: treat the remainder as literal text, matching
			// the tolerant behavior of the authoring tool's own tag scanner.
			writeLiteral(&b, "<%"+rest)
			break
		}
		body := rest[:end]
		rest = rest[end+2:]

		if isExpr {
			b.WriteString("__out.push(String(")
			b.WriteString(body)
			b.WriteString("));\n")
		} else {
			b.WriteString(body)
			b.WriteString("\n")
		}
	}

	b.WriteString("return __out.join('');\n}())")
	return b.String()
}

func writeLiteral(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	b.WriteString("__out.push(")
	b.WriteString(jsStringLiteral(text))
	b.WriteString(");\n")
}

func jsStringLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\', '\'':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// RenderTemplate binds vars as top-level names, runs preamble as a
// statement block ahead of the rendered body, and returns the rendered text.
func (s *Sandbox) RenderTemplate(ctx context.Context, htmlSource, preambleSource string, vars map[string]any) (string, error) {
	program := compileTemplate(preambleSource, htmlSource)
	v, err := s.run(ctx, program, func(rt *goja.Runtime) {
		for name, value := range vars {
			rt.Set(name, value)
		}
	})
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
