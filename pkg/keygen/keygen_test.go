package keygen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImportID(t *testing.T) {
	a := NewImportID()
	b := NewImportID()

	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestExternalID_Deterministic(t *testing.T) {
	a := ExternalID("generic", "ES", "long", "5000", "2024-01-02T10:00:00Z")
	b := ExternalID("GENERIC", " es ", "LONG", "5000", "2024-01-02T10:00:00Z")
	c := ExternalID("generic", "ES", "short", "5000", "2024-01-02T10:00:00Z")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "generic:"))
}

func TestPlatformID(t *testing.T) {
	assert.Equal(t, "topstepx:12345", PlatformID("TopstepX", " 12345 "))
}
