package keygen

import (
	"strings"

	"github.com/google/uuid"
)

// externalIDNamespace scopes name-based ids generated for imported rows
var externalIDNamespace = uuid.MustParse("5b0f8a5e-3c1d-4f7e-9a42-6d2b7e1c9f30")

// NewImportID generates a random id for an import batch
func NewImportID() string {
	return uuid.New().String()
}

// ExternalID derives a stable id for an imported row that has no platform id.
// The same platform and row fields always produce the same id, so re-importing
// a file is detected as a duplicate.
func ExternalID(platform string, fields ...string) string {
	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = strings.ToUpper(strings.TrimSpace(f))
	}
	name := strings.ToLower(platform) + "|" + strings.Join(normalized, "|")
	return strings.ToLower(platform) + ":" + uuid.NewSHA1(externalIDNamespace, []byte(name)).String()
}

// PlatformID prefixes a platform-native id so ids from different platforms never collide
func PlatformID(platform, id string) string {
	return strings.ToLower(platform) + ":" + strings.TrimSpace(id)
}
