package infra

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// VolumeKind records which kind of source backs a declared volume.
type VolumeKind string

const (
	// VolumeKindGeneratedConfig is backed by the generated ConfigMap.
	VolumeKindGeneratedConfig VolumeKind = "GeneratedConfig"
	// VolumeKindUserSecret is backed by a user Secret.
	VolumeKindUserSecret VolumeKind = "UserSecret"
	// VolumeKindScratch is a generated emptyDir.
	VolumeKindScratch VolumeKind = "ScratchEmptyDir"
	// VolumeKindClaimTemplate is provided by the StatefulSet volume claim template.
	VolumeKindClaimTemplate VolumeKind = "ClaimTemplate"
	// VolumeKindExternal is a user-supplied extra volume.
	VolumeKindExternal VolumeKind = "External"
)

// CatalogVolume is a volume declared by a feature.
type CatalogVolume struct {
	Kind    VolumeKind
	Feature string
	Volume  corev1.Volume
}

// Name returns the volume name mounts join on.
func (v CatalogVolume) Name() string {
	return v.Volume.Name
}

// VolumeCatalog tracks every volume declared for one workload. Mounts are
// only valid if their volume was declared here first; nothing is created
// implicitly.
type VolumeCatalog struct {
	volumes []CatalogVolume
	byName  map[string]int
}

// NewVolumeCatalog returns an empty catalog.
func NewVolumeCatalog() *VolumeCatalog {
	return &VolumeCatalog{byName: map[string]int{}}
}

// Declare adds a volume. It fails with ErrDuplicateVolumeName if the name is taken.
func (c *VolumeCatalog) Declare(feature string, kind VolumeKind, volume corev1.Volume) error {
	if volume.Name == "" {
		return operatorerrors.NewCompositionError(feature, "", operatorerrors.WrapPermanentConfig(fmt.Errorf("volume name must not be empty")))
	}
	if idx, ok := c.byName[volume.Name]; ok {
		return operatorerrors.NewCompositionError(feature, volume.Name,
			fmt.Errorf("%w: already declared by %s", operatorerrors.ErrDuplicateVolumeName, c.volumes[idx].Feature))
	}
	c.byName[volume.Name] = len(c.volumes)
	c.volumes = append(c.volumes, CatalogVolume{Kind: kind, Feature: feature, Volume: volume})
	return nil
}

// Resolve looks up a declared volume. It fails with ErrUnknownVolume if absent.
func (c *VolumeCatalog) Resolve(name string) (CatalogVolume, error) {
	idx, ok := c.byName[name]
	if !ok {
		return CatalogVolume{}, fmt.Errorf("%w: %q is not declared", operatorerrors.ErrUnknownVolume, name)
	}
	return c.volumes[idx], nil
}

// Len returns the number of declared volumes.
func (c *VolumeCatalog) Len() int {
	return len(c.volumes)
}

// declared returns all declared volumes in declaration order.
func (c *VolumeCatalog) declared() []CatalogVolume {
	out := make([]CatalogVolume, len(c.volumes))
	copy(out, c.volumes)
	return out
}

// Names returns all declared volume names in declaration order.
func (c *VolumeCatalog) Names() []string {
	names := make([]string, 0, len(c.volumes))
	for _, v := range c.volumes {
		names = append(names, v.Name())
	}
	return names
}

// PodVolumes returns the volumes that belong in the pod spec, in declaration
// order. Claim template volumes are provided by the StatefulSet instead.
func (c *VolumeCatalog) PodVolumes() []corev1.Volume {
	var out []corev1.Volume
	for _, v := range c.volumes {
		if v.Kind == VolumeKindClaimTemplate {
			continue
		}
		out = append(out, v.Volume)
	}
	return out
}
