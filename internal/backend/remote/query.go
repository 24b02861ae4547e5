package remote

import (
	"strconv"
	"strings"
)

const matchAll = "*"

// render accumulates the PARAMS of one query while predicates are rendered.
type render struct {
	params map[string]string
	next   int
}

func newRender() *render {
	return &render{params: map[string]string{}}
}

// param registers a value and returns its placeholder.
func (r *render) param(value string) string {
	name := "p" + strconv.Itoa(r.next)
	r.next++
	r.params[name] = value
	return "$" + name
}

func tagClause(attr string, values ...string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return "@" + attr + ":{" + strings.Join(escaped, " | ") + "}"
}

// textClause matches any of the words of text.
func textClause(attr, text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = queryEscaper.Replace(w)
	}
	return "@" + attr + ":(" + strings.Join(words, "|") + ")"
}

func numericClause(attr string, lo, hi *float64, loIncl, hiIncl bool) string {
	return "@" + attr + ":[" + bound(lo, loIncl, "-inf") + " " + bound(hi, hiIncl, "+inf") + "]"
}

func bound(v *float64, inclusive bool, open string) string {
	if v == nil {
		return open
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if !inclusive {
		return "(" + s
	}
	return s
}

// intersect joins clauses with implicit AND. Match-all clauses are dropped.
func intersect(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if c != "" && c != matchAll {
			parts = append(parts, group(c))
		}
	}
	switch len(parts) {
	case 0:
		return matchAll
	case 1:
		return parts[0]
	default:
		return strings.Join(parts, " ")
	}
}

// group parenthesizes a clause unless it is a single field clause or is
// already one group. Optional (~) and negated (-) clauses keep their prefix.
func group(c string) string {
	body := strings.TrimLeft(c, "~-")
	if enclosed(body) || fieldClause(body) {
		return c
	}
	return "(" + c + ")"
}

// fieldClause reports whether c is exactly one @field:{..}, @field:[..] or
// @field:(..) clause.
func fieldClause(c string) bool {
	if !strings.HasPrefix(c, "@") {
		return false
	}
	colon := strings.IndexByte(c, ':')
	if colon < 0 || colon+1 >= len(c) {
		return false
	}
	opening := c[colon+1]
	var closing byte
	switch opening {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	case '(':
		closing = ')'
	default:
		return false
	}
	depth := 0
	for i := colon + 1; i < len(c); i++ {
		switch c[i] {
		case '\\':
			i++
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i == len(c)-1
			}
		}
	}
	return false
}

// enclosed reports whether c is one parenthesized group.
func enclosed(c string) bool {
	if !strings.HasPrefix(c, "(") {
		return false
	}
	depth := 0
	for i := 0; i < len(c); i++ {
		switch c[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i == len(c)-1
			}
		}
	}
	return false
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)
