package infra

import (
	"fmt"
	"maps"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	"github.com/dc-tec/searchcluster-composer/internal/constants"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
	"github.com/dc-tec/searchcluster-composer/internal/revision"
	"github.com/dc-tec/searchcluster-composer/internal/version"
)

// ManifestAssembler merges a Composition with the workload-level settings
// into a StatefulSet. It adds no volumes or containers of its own.
type ManifestAssembler struct {
	identity Identity
}

// NewManifestAssembler returns an assembler stamping identity on its output.
func NewManifestAssembler(identity Identity) *ManifestAssembler {
	return &ManifestAssembler{identity: identity}
}

// Assemble builds the StatefulSet for spec from comp.
func (a *ManifestAssembler) Assemble(spec *searchv1alpha1.SearchClusterSpec, comp *Composition) (*appsv1.StatefulSet, error) {
	uname := spec.WorkloadName()

	gate, err := version.ParseGate(spec.Version)
	if err != nil {
		return nil, operatorerrors.NewCompositionError("", "", fmt.Errorf("%w: %w", operatorerrors.ErrUnsupportedVersion, err))
	}

	claims, err := buildStatefulSetPVC(spec, comp.Catalog)
	if err != nil {
		return nil, err
	}

	labels := a.identity.commonLabels(uname, spec.Labels)

	statefulSet := &appsv1.StatefulSet{
		TypeMeta: metav1.TypeMeta{
			Kind:       "StatefulSet",
			APIVersion: appsv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      uname,
			Namespace: a.identity.ReleaseNamespace,
			Labels:    labels,
			Annotations: map[string]string{
				constants.AnnotationMajorVersion: strconv.FormatUint(gate.Major(), 10),
			},
		},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: uname + constants.SuffixHeadlessService,
			Selector: &metav1.LabelSelector{
				MatchLabels: selectorLabels(uname),
			},
			Replicas:            spec.Replicas,
			PodManagementPolicy: spec.PodManagementPolicy,
			UpdateStrategy: appsv1.StatefulSetUpdateStrategy{
				Type: spec.UpdateStrategy,
			},
			VolumeClaimTemplates: claims,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Name:        uname,
					Labels:      maps.Clone(labels),
					Annotations: buildStatefulSetPodAnnotations(spec, comp.ConfigMap),
				},
				Spec: corev1.PodSpec{
					SecurityContext:               spec.PodSecurityContext,
					ServiceAccountName:            spec.ServiceAccountName,
					SchedulerName:                 spec.SchedulerName,
					PriorityClassName:             spec.PriorityClassName,
					Tolerations:                   spec.Tolerations,
					NodeSelector:                  spec.NodeSelector,
					Affinity:                      buildAffinity(spec),
					TerminationGracePeriodSeconds: spec.TerminationGracePeriodSeconds,
					ImagePullSecrets:              spec.ImagePullSecrets,
					Volumes:                       comp.Catalog.PodVolumes(),
					InitContainers:                comp.InitContainers,
					Containers:                    comp.Containers,
				},
			},
		},
	}

	return statefulSet, nil
}

// buildStatefulSetPVC returns the data claim template. It is only emitted
// when the persistence feature declared the data volume.
func buildStatefulSetPVC(spec *searchv1alpha1.SearchClusterSpec, catalog *VolumeCatalog) ([]corev1.PersistentVolumeClaim, error) {
	if !spec.Persistence.IsEnabled() {
		return nil, nil
	}

	uname := spec.WorkloadName()
	declared, err := catalog.Resolve(uname)
	if err != nil {
		return nil, operatorerrors.NewCompositionError(featurePersistence, uname, err)
	}
	if declared.Kind != VolumeKindClaimTemplate {
		return nil, operatorerrors.NewCompositionError(featurePersistence, uname,
			fmt.Errorf("%w: declared by %s as %s", operatorerrors.ErrDuplicateVolumeName, declared.Feature, declared.Kind))
	}

	return []corev1.PersistentVolumeClaim{
		{
			ObjectMeta: metav1.ObjectMeta{
				Name:        uname,
				Annotations: spec.Persistence.Annotations,
			},
			Spec: *spec.Persistence.VolumeClaimTemplate.DeepCopy(),
		},
	}, nil
}

// buildStatefulSetPodAnnotations layers the config checksum over the user
// pod annotations so config changes roll the pods.
func buildStatefulSetPodAnnotations(spec *searchv1alpha1.SearchClusterSpec, configMap *corev1.ConfigMap) map[string]string {
	if len(spec.PodAnnotations) == 0 && configMap == nil {
		return nil
	}
	annotations := maps.Clone(spec.PodAnnotations)
	if annotations == nil {
		annotations = map[string]string{}
	}
	if configMap != nil {
		annotations[constants.AnnotationConfigChecksum] = revision.ConfigChecksum(configMap.Data)
	}
	return annotations
}

// buildAffinity returns pod anti-affinity on the workload's own pods plus any
// node affinity passed through, or nil when neither applies.
func buildAffinity(spec *searchv1alpha1.SearchClusterSpec) *corev1.Affinity {
	term := corev1.PodAffinityTerm{
		LabelSelector: &metav1.LabelSelector{
			MatchExpressions: []metav1.LabelSelectorRequirement{
				{
					Key:      constants.LabelApp,
					Operator: metav1.LabelSelectorOpIn,
					Values:   []string{spec.WorkloadName()},
				},
			},
		},
		TopologyKey: spec.AntiAffinityTopologyKey,
	}

	affinity := &corev1.Affinity{}
	switch spec.AntiAffinity {
	case searchv1alpha1.AntiAffinityHard:
		affinity.PodAntiAffinity = &corev1.PodAntiAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: []corev1.PodAffinityTerm{term},
		}
	case searchv1alpha1.AntiAffinitySoft:
		affinity.PodAntiAffinity = &corev1.PodAntiAffinity{
			PreferredDuringSchedulingIgnoredDuringExecution: []corev1.WeightedPodAffinityTerm{
				{
					Weight:          1,
					PodAffinityTerm: term,
				},
			},
		}
	}

	if spec.NodeAffinity != nil {
		affinity.NodeAffinity = spec.NodeAffinity.DeepCopy()
	}

	if affinity.PodAntiAffinity == nil && affinity.NodeAffinity == nil {
		return nil
	}
	return affinity
}
