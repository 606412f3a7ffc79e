package persist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlattensProjectsAndBreakpoints(t *testing.T) {
	doc := `{
		"version": "0.1.0",
		"projects": [
			{"path": "/proj/a", "breakpoints": [
				{"name": "entry", "path": "main.go", "line": 10},
				{"name": null, "path": "util.go", "line": 4}
			]},
			{"path": "/proj/b", "breakpoints": [
				{"name": "foo", "path": "foo.go", "line": 1}
			]}
		]
	}`

	bps := Parse(strings.NewReader(doc), nil)
	require.Len(t, bps, 3)
	assert.Equal(t, "main.go", bps[0].Path)
	assert.Equal(t, 10, bps[0].Line)
	assert.Equal(t, "entry", bps[0].Name)
	assert.Equal(t, "util.go", bps[1].Path)
	assert.Equal(t, "", bps[1].Name)
}

func TestParseMissingPathFallsBackToProjectPath(t *testing.T) {
	doc := `{"version": "0.1.0", "projects": [
		{"path": "/proj/a", "breakpoints": [{"name": null, "path": "", "line": 2}]}
	]}`
	bps := Parse(strings.NewReader(doc), nil)
	require.Len(t, bps, 1)
	assert.Equal(t, "/proj/a", bps[0].Path)
}

func TestParseEmptyDocumentYieldsNoBreakpoints(t *testing.T) {
	bps := Parse(strings.NewReader(""), nil)
	assert.Empty(t, bps)
}

func TestParseMalformedJSONYieldsNoBreakpointsNotError(t *testing.T) {
	bps := Parse(strings.NewReader("{not valid json"), nil)
	assert.Empty(t, bps)
}

func TestParseUnknownFieldsAreIgnored(t *testing.T) {
	doc := `{"version": "9.9.9", "extra_field": true, "projects": [
		{"path": "/p", "unexpected": 1, "breakpoints": [{"path": "a.go", "line": 1, "bogus": "x"}]}
	]}`
	bps := Parse(strings.NewReader(doc), nil)
	require.Len(t, bps, 1)
	assert.Equal(t, "a.go", bps[0].Path)
}
