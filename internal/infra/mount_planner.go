package infra

import (
	"path"

	corev1 "k8s.io/api/core/v1"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	"github.com/dc-tec/searchcluster-composer/internal/config"
	"github.com/dc-tec/searchcluster-composer/internal/constants"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// MountPlanner derives container volume mounts from the active features.
// Every mount it returns references a volume declared in its catalog.
type MountPlanner struct {
	catalog *VolumeCatalog
}

// NewMountPlanner returns a planner that validates against catalog.
func NewMountPlanner(catalog *VolumeCatalog) *MountPlanner {
	return &MountPlanner{catalog: catalog}
}

// plan validates mounts for a feature against the catalog.
func (p *MountPlanner) plan(feature string, mounts ...corev1.VolumeMount) ([]corev1.VolumeMount, error) {
	for _, m := range mounts {
		if _, err := p.catalog.Resolve(m.Name); err != nil {
			return nil, operatorerrors.NewCompositionError(feature, m.Name, err)
		}
	}
	return mounts, nil
}

// MainContainerMounts returns the primary container mounts: data, keystore
// file, secret mounts, one mount per config key, then user extras. User
// extras are external input and are appended without validation.
func (p *MountPlanner) MainContainerMounts(spec *searchv1alpha1.SearchClusterSpec) ([]corev1.VolumeMount, error) {
	var mounts []corev1.VolumeMount

	if spec.Persistence.IsEnabled() {
		planned, err := p.plan(featurePersistence, corev1.VolumeMount{
			Name:      spec.WorkloadName(),
			MountPath: constants.PathData,
		})
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, planned...)
	}

	if len(spec.Keystore) > 0 {
		// subPath keeps the rest of the config directory from the image visible.
		planned, err := p.plan(featureKeystore, corev1.VolumeMount{
			Name:      constants.VolumeNameKeystore,
			MountPath: constants.PathKeystoreFile,
			SubPath:   constants.KeystoreFileName,
		})
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, planned...)
	}

	for _, m := range spec.SecretMounts {
		planned, err := p.plan(featureSecretMounts, corev1.VolumeMount{
			Name:      m.Name,
			MountPath: m.Path,
			SubPath:   m.SubPath,
		})
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, planned...)
	}

	for _, key := range config.SortedKeys(spec.Config) {
		planned, err := p.plan(featureConfig, corev1.VolumeMount{
			Name:      constants.VolumeNameConfig,
			MountPath: path.Join(constants.PathConfig, key),
			SubPath:   key,
		})
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, planned...)
	}

	mounts = append(mounts, spec.ExtraVolumeMounts...)

	return mounts, nil
}

// KeystoreMounts returns the keystore init container mounts: the scratch
// volume followed by one secret mount per entry, in declaration order.
func (p *MountPlanner) KeystoreMounts(entries []searchv1alpha1.KeystoreEntry) ([]corev1.VolumeMount, error) {
	mounts := []corev1.VolumeMount{
		{
			Name:      constants.VolumeNameKeystore,
			MountPath: constants.PathKeystoreScratch,
		},
	}
	for _, entry := range entries {
		mounts = append(mounts, corev1.VolumeMount{
			Name:      keystoreVolumeName(entry.SecretName),
			MountPath: path.Join(constants.PathKeystoreSecrets, entry.SecretName),
		})
	}
	return p.plan(featureKeystore, mounts...)
}

func keystoreVolumeName(secretName string) string {
	return constants.VolumeNameKeystoreSecretPrefix + secretName
}
