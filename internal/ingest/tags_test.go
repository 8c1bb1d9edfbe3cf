package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTag(t *testing.T) {
	cases := map[string]string{
		"  Terminals  ": "terminal",
		"Queries":       "query",
		"Glasses":       "glass",
		"Editors.":      "editor",
		"Chess":         "chess",
		"IDE":           "ide",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeTag(in), "input %q", in)
	}
}

func TestNormalizeTags_DedupesPreservingOrder(t *testing.T) {
	got := normalizeTags([]string{"Terminals", " terminal ", "Browser", "browsers"})
	require.Equal(t, []string{"terminal", "browser"}, got)
}
