package constants

import (
	"os"
	"strings"
)

// DefaultImageRepository is the upstream image used when none is configured.
const DefaultImageRepository = "docker.elastic.co/elasticsearch/elasticsearch"

// DefaultImage returns the image repository to use when the SearchCluster leaves it
// empty. SEARCH_IMAGE_REPOSITORY overrides the upstream default, which lets
// air-gapped installations point at a mirror.
func DefaultImage() string {
	if repo := strings.TrimSpace(os.Getenv(EnvImageRepository)); repo != "" {
		return repo
	}
	return DefaultImageRepository
}
