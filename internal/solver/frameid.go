package solver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// frameNamespace scopes the name-based frame UUIDs
var frameNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:astrocorr:frame"))

// FrameID derives the cache identity of an input file from its name and content.
// The same bytes under the same name always map to the same identity.
func FrameID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading frame for identity: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s-%s", stem, uuid.NewSHA1(frameNamespace, data)), nil
}
