// Package slugs derives SQL-safe identifiers, such as output column
// aliases, from field references.
package slugs

import (
	"strings"
	"unicode"

	goslug "github.com/gosimple/slug"
)

// ColumnAlias joins the parts and reduces them to a lower-case identifier
// of letters, digits and underscores:
// ColumnAlias("AVG", "assay_results.details.ic50") == "avg_assay_results_details_ic50".
func ColumnAlias(parts ...string) string {
	joined := strings.Join(parts, " ")
	slugged := goslug.Make(joined)
	if slugged == "" {
		slugged = fallback(joined)
	}
	slugged = strings.ReplaceAll(slugged, "-", "_")
	for strings.Contains(slugged, "__") {
		slugged = strings.ReplaceAll(slugged, "__", "_")
	}
	slugged = strings.Trim(slugged, "_")
	if slugged == "" {
		return "col"
	}
	if unicode.IsDigit(rune(slugged[0])) {
		slugged = "c_" + slugged
	}
	return slugged
}

func fallback(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
