package ingest

import "strings"

// normalizeTag lowercases, trims, and singularizes a surfaced noun phrase so
// content_tags de-duplicate across recordings (spec §3 Open Question:
// normalization is lowercase+trim+suffix-strip singularize).
func normalizeTag(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.Trim(t, ".,;:!?\"'")
	if t == "" {
		return ""
	}
	switch {
	case strings.HasSuffix(t, "ies") && len(t) > 3:
		t = t[:len(t)-3] + "y"
	case strings.HasSuffix(t, "ses") && len(t) > 3:
		t = t[:len(t)-2]
	case strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") && len(t) > 1:
		t = t[:len(t)-1]
	}
	return t
}

// normalizeTags applies normalizeTag to every entry and de-duplicates,
// preserving first-seen order.
func normalizeTags(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		n := normalizeTag(r)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
