package infra

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/utils/ptr"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	"github.com/dc-tec/searchcluster-composer/internal/config"
	"github.com/dc-tec/searchcluster-composer/internal/constants"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// Feature names used in logs and composition errors.
const (
	featureSecretMounts        = "secretMounts"
	featureConfig              = "config"
	featureKeystore            = "keystore"
	featurePersistence         = "persistence"
	featureExtraVolumes        = "extraVolumes"
	featureSysctl              = "sysctl"
	featureEnvironment         = "environment"
	featureGracefulTermination = "gracefulTermination"
)

// Composition is the output of a FeatureComposer: the declared volumes, the
// ordered init and main containers, the generated ConfigMap (if any) and the
// creation-order constraints between them.
type Composition struct {
	Workload       ResourceRef
	Catalog        *VolumeCatalog
	InitContainers []corev1.Container
	Containers     []corev1.Container
	ConfigMap      *corev1.ConfigMap
	Dependencies   *DependencyGraph
}

// declaredVolume is the fragment a volume feature contributes.
type declaredVolume struct {
	kind   VolumeKind
	volume corev1.Volume
}

// volumeFeature produces the volumes of one optional feature. Features run
// in the order they are listed in volumeFeatures.
type volumeFeature struct {
	name    string
	volumes func(spec *searchv1alpha1.SearchClusterSpec) ([]declaredVolume, error)
}

var volumeFeatures = []volumeFeature{
	{name: featureSecretMounts, volumes: secretMountVolumes},
	{name: featureConfig, volumes: configVolumes},
	{name: featureKeystore, volumes: keystoreVolumes},
	{name: featurePersistence, volumes: persistenceVolumes},
	{name: featureExtraVolumes, volumes: extraVolumes},
}

// FeatureComposer turns a validated spec into a Composition. Each composer
// owns its own catalog, so composers for different workloads share nothing.
type FeatureComposer struct {
	logger   logr.Logger
	identity Identity
	spec     *searchv1alpha1.SearchClusterSpec
}

// NewFeatureComposer returns a composer for one workload.
func NewFeatureComposer(logger logr.Logger, identity Identity, spec *searchv1alpha1.SearchClusterSpec) *FeatureComposer {
	return &FeatureComposer{logger: logger, identity: identity, spec: spec}
}

// Compose runs every feature in a fixed order: volumes, init containers,
// main containers, dependency edges. It returns no partial output on error.
func (f *FeatureComposer) Compose() (*Composition, error) {
	spec := f.spec
	c := &Composition{
		Workload: ResourceRef{
			APIVersion: "apps/v1",
			Kind:       "StatefulSet",
			Namespace:  f.identity.ReleaseNamespace,
			Name:       spec.WorkloadName(),
		},
		Catalog:      NewVolumeCatalog(),
		Dependencies: NewDependencyGraph(),
	}

	if err := f.declareVolumes(c); err != nil {
		return nil, err
	}

	planner := NewMountPlanner(c.Catalog)

	initContainers, err := f.buildInitContainers(planner)
	if err != nil {
		return nil, err
	}
	c.InitContainers = initContainers

	containers, err := f.buildContainers(planner)
	if err != nil {
		return nil, err
	}
	c.Containers = containers

	if len(spec.Config) > 0 {
		configMap, err := f.buildConfigMap()
		if err != nil {
			return nil, operatorerrors.NewCompositionError(featureConfig, constants.VolumeNameConfig, err)
		}
		c.ConfigMap = configMap
		c.Dependencies.Add(c.Workload, RefFor(configMap))
	}

	return c, nil
}

func (f *FeatureComposer) declareVolumes(c *Composition) error {
	for _, feature := range volumeFeatures {
		volumes, err := feature.volumes(f.spec)
		if err != nil {
			return operatorerrors.NewCompositionError(feature.name, "", err)
		}
		for _, v := range volumes {
			if err := c.Catalog.Declare(feature.name, v.kind, v.volume); err != nil {
				return err
			}
			f.logger.V(1).Info("Declared volume", "feature", feature.name, "volume", v.volume.Name, "kind", v.kind)
		}
	}
	return nil
}

func secretMountVolumes(spec *searchv1alpha1.SearchClusterSpec) ([]declaredVolume, error) {
	var out []declaredVolume
	for _, m := range spec.SecretMounts {
		out = append(out, declaredVolume{
			kind: VolumeKindUserSecret,
			volume: corev1.Volume{
				Name: m.Name,
				VolumeSource: corev1.VolumeSource{
					Secret: &corev1.SecretVolumeSource{
						SecretName:  m.SecretName,
						DefaultMode: m.DefaultMode,
					},
				},
			},
		})
	}
	return out, nil
}

func configVolumes(spec *searchv1alpha1.SearchClusterSpec) ([]declaredVolume, error) {
	if len(spec.Config) == 0 {
		return nil, nil
	}
	return []declaredVolume{{
		kind: VolumeKindGeneratedConfig,
		volume: corev1.Volume{
			Name: constants.VolumeNameConfig,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{
						Name: configMapName(spec),
					},
				},
			},
		},
	}}, nil
}

func keystoreVolumes(spec *searchv1alpha1.SearchClusterSpec) ([]declaredVolume, error) {
	if len(spec.Keystore) == 0 {
		return nil, nil
	}

	out := []declaredVolume{{
		kind: VolumeKindScratch,
		volume: corev1.Volume{
			Name: constants.VolumeNameKeystore,
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		},
	}}

	for i, entry := range spec.Keystore {
		if err := validateKeystoreEntry(i, entry); err != nil {
			return nil, err
		}
		out = append(out, declaredVolume{
			kind: VolumeKindUserSecret,
			volume: corev1.Volume{
				Name: keystoreVolumeName(entry.SecretName),
				VolumeSource: corev1.VolumeSource{
					Secret: &corev1.SecretVolumeSource{
						SecretName:  entry.SecretName,
						Items:       entry.Items,
						DefaultMode: entry.DefaultMode,
					},
				},
			},
		})
	}
	return out, nil
}

// validateKeystoreEntry checks that the secret name is a Secret name and that
// it yields a valid volume name, so every entry gets its own volume and its own
// directory directly under the keystore secrets path.
func validateKeystoreEntry(i int, entry searchv1alpha1.KeystoreEntry) error {
	if entry.SecretName == "" {
		return fmt.Errorf("%w: entry %d has an empty secretName", operatorerrors.ErrInvalidKeystoreEntry, i)
	}
	if msgs := validation.IsDNS1123Subdomain(entry.SecretName); len(msgs) > 0 {
		return fmt.Errorf("%w: entry %d secretName %q: %s", operatorerrors.ErrInvalidKeystoreEntry, i, entry.SecretName, strings.Join(msgs, "; "))
	}
	volumeName := keystoreVolumeName(entry.SecretName)
	if msgs := validation.IsDNS1123Label(volumeName); len(msgs) > 0 {
		return fmt.Errorf("%w: entry %d volume name %q: %s", operatorerrors.ErrInvalidKeystoreEntry, i, volumeName, strings.Join(msgs, "; "))
	}
	return nil
}

// persistenceVolumes declares the data volume provided by the claim template
// so the data mount can be checked like any other.
func persistenceVolumes(spec *searchv1alpha1.SearchClusterSpec) ([]declaredVolume, error) {
	if !spec.Persistence.IsEnabled() {
		return nil, nil
	}
	return []declaredVolume{{
		kind:   VolumeKindClaimTemplate,
		volume: corev1.Volume{Name: spec.WorkloadName()},
	}}, nil
}

func extraVolumes(spec *searchv1alpha1.SearchClusterSpec) ([]declaredVolume, error) {
	var out []declaredVolume
	for _, v := range spec.ExtraVolumes {
		out = append(out, declaredVolume{kind: VolumeKindExternal, volume: v})
	}
	return out, nil
}

// buildInitContainers returns sysctl, keystore, then user init containers.
func (f *FeatureComposer) buildInitContainers(planner *MountPlanner) ([]corev1.Container, error) {
	spec := f.spec
	var containers []corev1.Container

	if spec.Sysctl.IsEnabled() {
		containers = append(containers, f.sysctlContainer())
		f.logger.V(1).Info("Added init container", "feature", featureSysctl, "container", constants.ContainerNameSysctl)
	}

	if len(spec.Keystore) > 0 {
		mounts, err := planner.KeystoreMounts(spec.Keystore)
		if err != nil {
			return nil, err
		}
		containers = append(containers, corev1.Container{
			Name:            constants.ContainerNameKeystore,
			Image:           spec.Image.Reference(),
			ImagePullPolicy: spec.Image.PullPolicy,
			Command:         []string{"bash", "-c", keystoreScript},
			Env:             slices.Clone(spec.ExtraEnvs),
			Resources:       spec.InitResources,
			VolumeMounts:    mounts,
		})
		f.logger.V(1).Info("Added init container", "feature", featureKeystore, "container", constants.ContainerNameKeystore, "entries", len(spec.Keystore))
	}

	return append(containers, spec.ExtraInitContainers...), nil
}

func (f *FeatureComposer) sysctlContainer() corev1.Container {
	spec := f.spec
	return corev1.Container{
		Name: constants.ContainerNameSysctl,
		// Writing vm.max_map_count needs root and a privileged container.
		SecurityContext: &corev1.SecurityContext{
			RunAsUser:  ptr.To(int64(0)),
			Privileged: ptr.To(true),
		},
		Image:           spec.Image.Reference(),
		ImagePullPolicy: spec.Image.PullPolicy,
		Command:         []string{"sysctl", "-w", fmt.Sprintf("vm.max_map_count=%d", spec.Sysctl.VMMaxMapCount)},
		Resources:       spec.InitResources,
	}
}

// buildContainers returns the primary container, the graceful termination
// sidecar for master-eligible groups, then user containers.
func (f *FeatureComposer) buildContainers(planner *MountPlanner) ([]corev1.Container, error) {
	spec := f.spec

	mounts, err := planner.MainContainerMounts(spec)
	if err != nil {
		return nil, err
	}
	env, err := NewRoleEnvironmentBuilder(spec).Build()
	if err != nil {
		return nil, err
	}

	containers := []corev1.Container{f.primaryContainer(env, mounts)}

	if spec.Roles.MasterEligible() && spec.GracefulTermination.Enabled {
		containers = append(containers, f.gracefulTerminationContainer())
		f.logger.V(1).Info("Added sidecar", "feature", featureGracefulTermination, "container", constants.ContainerNameGracefulTermination)
	}

	return append(containers, spec.ExtraContainers...), nil
}

func (f *FeatureComposer) primaryContainer(env []corev1.EnvVar, mounts []corev1.VolumeMount) corev1.Container {
	spec := f.spec
	probe := spec.ReadinessProbe

	return corev1.Container{
		Name:            spec.WorkloadName(),
		SecurityContext: spec.SecurityContext,
		Image:           spec.Image.Reference(),
		ImagePullPolicy: spec.Image.PullPolicy,
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: &corev1.ExecAction{
					Command: []string{"bash", "-c", readinessScript(spec.Network.Protocol, spec.Network.HTTPPort, spec.ClusterHealthCheckParams)},
				},
			},
			FailureThreshold:    probe.FailureThreshold,
			InitialDelaySeconds: probe.InitialDelaySeconds,
			PeriodSeconds:       probe.PeriodSeconds,
			SuccessThreshold:    probe.SuccessThreshold,
			TimeoutSeconds:      probe.TimeoutSeconds,
		},
		Ports: []corev1.ContainerPort{
			{
				Name:          constants.PortNameHTTP,
				ContainerPort: spec.Network.HTTPPort,
				Protocol:      corev1.ProtocolTCP,
			},
			{
				Name:          constants.PortNameTransport,
				ContainerPort: spec.Network.TransportPort,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		Resources:    spec.Resources,
		Env:          env,
		VolumeMounts: mounts,
		TTY:          spec.TTY,
		Stdin:        spec.Stdin,
	}
}

func (f *FeatureComposer) gracefulTerminationContainer() corev1.Container {
	spec := f.spec
	env := append([]corev1.EnvVar{podNameEnv(constants.EnvSidecarNodeName)}, spec.ExtraEnvs...)

	return corev1.Container{
		Name:            constants.ContainerNameGracefulTermination,
		Image:           spec.Image.Reference(),
		ImagePullPolicy: spec.Image.PullPolicy,
		Command:         []string{"bash", "-c", gracefulTerminationScript(spec.Network.Protocol, spec.MasterServiceName(), spec.Network.HTTPPort)},
		Resources:       spec.GracefulTermination.Resources,
		Env:             env,
		Lifecycle:       spec.GracefulTermination.Lifecycle,
	}
}

// buildConfigMap renders the generated configuration resource.
func (f *FeatureComposer) buildConfigMap() (*corev1.ConfigMap, error) {
	spec := f.spec
	data, err := config.RenderDocuments(spec.Config)
	if err != nil {
		return nil, err
	}

	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ConfigMap",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      configMapName(spec),
			Namespace: f.identity.ReleaseNamespace,
			Labels:    f.identity.commonLabels(spec.WorkloadName(), nil),
		},
		Data: data,
	}, nil
}

func configMapName(spec *searchv1alpha1.SearchClusterSpec) string {
	return spec.WorkloadName() + constants.SuffixConfigMap
}
