// Package config loads SearchCluster documents and renders the configuration
// files the composer places into the generated ConfigMap.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// LoadFile reads, defaults and validates the SearchCluster in path.
func LoadFile(path string) (*searchv1alpha1.SearchCluster, error) {
	// #nosec G304 -- path is an operator-supplied CLI argument.
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cluster, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cluster, nil
}

// Parse decodes a SearchCluster document. Unknown fields are rejected so a
// misspelled option fails here instead of being silently ignored. The
// returned cluster is defaulted and validated.
func Parse(data []byte) (*searchv1alpha1.SearchCluster, error) {
	cluster := &searchv1alpha1.SearchCluster{}
	if err := yaml.UnmarshalStrict(data, cluster); err != nil {
		return nil, operatorerrors.WrapPermanentConfig(fmt.Errorf("failed to decode SearchCluster: %w", err))
	}

	cluster.Default()

	if errs := cluster.Validate(); len(errs) > 0 {
		return nil, operatorerrors.WrapPermanentConfig(errs.ToAggregate())
	}

	return cluster, nil
}
