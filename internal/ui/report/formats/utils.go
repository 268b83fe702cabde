package formats

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

func sanitizeID(prefix, id string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

// makeIDs maps element ids to unique diagram node ids. Distinct ids that
// sanitize to the same text get a numeric suffix.
func makeIDs(prefix string, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	used := make(map[string]int, len(ids))
	for _, id := range ids {
		base := sanitizeID(prefix, id)
		idx := used[base]
		used[base] = idx + 1
		if idx == 0 {
			out[id] = base
			continue
		}
		out[id] = fmt.Sprintf("%s_%d", base, idx+1)
	}
	return out
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func formatValue(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// propsText renders properties as sorted key=value pairs joined by sep.
func propsText(props map[string]any, sep string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(props[k]))
	}
	return strings.Join(parts, sep)
}
