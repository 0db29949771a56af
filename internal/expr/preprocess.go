package expr

import (
	"regexp"
	"strings"
)

var (
	lengthRef = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\.length\b`)
	fieldRef  = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}`)
	isNotNull = regexp.MustCompile(`(?i)\bis\s+not\s+null\b`)
	isNull    = regexp.MustCompile(`(?i)\bis\s+null\b`)
)

// Preprocess rewrites the authoring shorthands into plain expression
// syntax: ${f}.length becomes size(f), ${f} becomes f, and "is null" /
// "is not null" become "== null" / "!= null". Quoted literals are left
// untouched.
func Preprocess(src string) string {
	var out strings.Builder
	for _, seg := range splitQuoted(src) {
		if seg.quoted {
			out.WriteString(seg.text)
			continue
		}
		s := lengthRef.ReplaceAllString(seg.text, "size($1)")
		s = fieldRef.ReplaceAllString(s, "$1")
		s = isNotNull.ReplaceAllString(s, "!= null")
		s = isNull.ReplaceAllString(s, "== null")
		out.WriteString(s)
	}
	return out.String()
}

type segment struct {
	text   string
	quoted bool
}

// splitQuoted splits src into alternating unquoted and quoted runs. An
// r prefix before a quote stays with the quoted run.
func splitQuoted(src string) []segment {
	var segs []segment
	start := 0
	i := 0
	for i < len(src) {
		ch := src[i]
		if ch != '\'' && ch != '"' {
			i++
			continue
		}
		qstart := i
		raw := i > 0 && (src[i-1] == 'r' || src[i-1] == 'R') && (i == 1 || !isIdentChar(src[i-2]))
		if raw {
			qstart = i - 1
		}
		if qstart > start {
			segs = append(segs, segment{text: src[start:qstart]})
		}
		j := i + 1
		for j < len(src) && src[j] != ch {
			if src[j] == '\\' && !raw {
				j++
			}
			j++
		}
		if j < len(src) {
			j++
		}
		if j > len(src) {
			j = len(src)
		}
		segs = append(segs, segment{text: src[qstart:j], quoted: true})
		start = j
		i = j
	}
	if start < len(src) {
		segs = append(segs, segment{text: src[start:]})
	}
	return segs
}
