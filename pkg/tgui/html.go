package tgui

import (
	"html"
	"strings"
)

// H is already-escaped HTML for ParseMode "HTML".
type H string

func (h H) String() string { return string(h) }

func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name, s string) H {
	var sb strings.Builder
	sb.Grow(len(s) + 2*len(name) + 5)
	sb.WriteString("<" + name + ">")
	sb.WriteString(html.EscapeString(s))
	sb.WriteString("</" + name + ">")
	return H(sb.String())
}

func B(s string) H    { return tag("b", s) }
func I(s string) H    { return tag("i", s) }
func Code(s string) H { return tag("code", s) }

// JoinH joins the parts that are not blank.
func JoinH(sep string, parts ...H) H {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(string(p)) != "" {
			kept = append(kept, p)
		}
	}
	var sb strings.Builder
	for i, p := range kept {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(string(p))
	}
	return H(sb.String())
}

// TruncRunes keeps the first n runes of s and appends "…" when it cut anything.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
