package decisionlog

import (
	"fmt"
	"unicode/utf8"

	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

// MaxSummary bounds the byte length of entry input and output summaries.
const MaxSummary = 16 << 10

const truncatedSuffix = "...[truncated]"

// Summarize renders v for an entry. Strings pass through; errors use their
// message; everything else is canonical JSON.
func Summarize(v any) string {
	var s string

	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case []byte:
		s = string(x)
	case error:
		s = x.Error()
	case fmt.Stringer:
		s = x.String()
	default:
		data, err := canonical.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%+v", v)
		} else {
			s = string(data)
		}
	}

	return truncate(s, MaxSummary)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(truncatedSuffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
