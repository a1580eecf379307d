// Package version resolves the discovery vocabulary a node image understands
// from its version.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// Vocabulary names one of the mutually exclusive sets of discovery and
// bootstrap environment variables.
type Vocabulary string

const (
	// VocabularyLegacy is the zen discovery vocabulary used before 7.0.
	VocabularyLegacy Vocabulary = "legacy"
	// VocabularyCurrent is the seed hosts / initial master nodes vocabulary.
	VocabularyCurrent Vocabulary = "current"
)

var (
	legacyFloor  = semver.MustParse("6.0.0")
	currentFloor = semver.MustParse("7.0.0")
)

// Gate is a comparable version that selects the discovery vocabulary.
type Gate struct {
	v *semver.Version
}

// ParseGate parses a version such as "7.17.3", "v8.11.0" or "6.8".
func ParseGate(s string) (Gate, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Gate{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Gate{v: v}, nil
}

// MustParseGate is like ParseGate but panics on error. Intended for tests and constants.
func MustParseGate(s string) Gate {
	g, err := ParseGate(s)
	if err != nil {
		panic(err)
	}
	return g
}

// IsZero reports whether the gate was never parsed.
func (g Gate) IsZero() bool {
	return g.v == nil
}

// Major returns the major version component.
func (g Gate) Major() uint64 {
	if g.v == nil {
		return 0
	}
	return g.v.Major()
}

// Compare returns -1, 0 or 1 depending on whether g is older, equal or newer than o.
func (g Gate) Compare(o Gate) int {
	switch {
	case g.v == nil && o.v == nil:
		return 0
	case g.v == nil:
		return -1
	case o.v == nil:
		return 1
	}
	return g.v.Compare(o.v)
}

func (g Gate) String() string {
	if g.v == nil {
		return ""
	}
	return g.v.String()
}

// Vocabulary returns the discovery vocabulary for the gate. Versions older
// than 6.0.0 have none and yield ErrUnsupportedVersion.
func (g Gate) Vocabulary() (Vocabulary, error) {
	if g.v == nil {
		return "", fmt.Errorf("%w: version not set", operatorerrors.ErrUnsupportedVersion)
	}
	// Prereleases of a major count as that major.
	core := semver.New(g.v.Major(), g.v.Minor(), g.v.Patch(), "", "")
	switch {
	case !core.LessThan(currentFloor):
		return VocabularyCurrent, nil
	case !core.LessThan(legacyFloor):
		return VocabularyLegacy, nil
	default:
		return "", fmt.Errorf("%w: %s has no discovery vocabulary", operatorerrors.ErrUnsupportedVersion, g.v)
	}
}
