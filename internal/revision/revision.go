package revision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// checksumLength keeps the checksum within the 63 character limit of a label value.
const checksumLength = 63

// ConfigChecksum returns a deterministic checksum over the rendered contents
// of a generated ConfigMap. Keys are hashed in sorted order so map iteration
// never changes the result.
func ConfigChecksum(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%d:%s\n", k, len(data[k]), data[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:checksumLength]
}
