package langprofile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownLanguage(t *testing.T) {
	r := NewRegistry()
	p := r.Lookup("python")
	assert.Equal(t, "python", p.Language)
}

func TestLookupUnknownFallsBackToGeneric(t *testing.T) {
	r := NewRegistry()
	p := r.Lookup("cobol")
	assert.Equal(t, "generic", p.Language)
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	r.Register(Profile{Language: "python", DefaultStopOnEntry: true, ClientIDSuffix: "py-custom"})
	p := r.Lookup("python")
	assert.True(t, p.DefaultStopOnEntry)
	assert.Equal(t, "py-custom", p.ClientIDSuffix)
}
