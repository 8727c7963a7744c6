package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupMode_Unstamped(t *testing.T) {
	old := Mode
	t.Cleanup(func() { Mode = old })

	Mode = ""
	_, ok := LookupMode()
	assert.False(t, ok)

	Mode = "   "
	_, ok = LookupMode()
	assert.False(t, ok)
}

func TestLookupMode_Stamped(t *testing.T) {
	old := Mode
	t.Cleanup(func() { Mode = old })

	Mode = "prod"
	m, ok := LookupMode()
	assert.True(t, ok)
	assert.Equal(t, "prod", m)
}

func TestResolvedVersion_Stamped(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", ResolvedVersion())
}

func TestResolvedVersion_TestBinaryIsDev(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	// test binaries report "(devel)" as the main module version
	Version = "dev"
	assert.Equal(t, "dev", ResolvedVersion())
}
