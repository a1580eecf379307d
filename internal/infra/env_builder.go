package infra

import (
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	"github.com/dc-tec/searchcluster-composer/internal/constants"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
	"github.com/dc-tec/searchcluster-composer/internal/version"
)

// RoleEnvironmentBuilder computes the ordered environment of the primary
// container. Only master-eligible groups advertise cluster bootstrap
// settings; everyone else gets the pod identity and the user extras.
type RoleEnvironmentBuilder struct {
	spec *searchv1alpha1.SearchClusterSpec
}

// NewRoleEnvironmentBuilder returns a builder for spec.
func NewRoleEnvironmentBuilder(spec *searchv1alpha1.SearchClusterSpec) *RoleEnvironmentBuilder {
	return &RoleEnvironmentBuilder{spec: spec}
}

// Build returns the environment. A master-eligible group whose version has no
// discovery vocabulary fails with ErrUnsupportedVersion.
func (b *RoleEnvironmentBuilder) Build() ([]corev1.EnvVar, error) {
	spec := b.spec
	env := []corev1.EnvVar{podNameEnv(constants.EnvNodeName)}

	if !spec.Roles.MasterEligible() {
		return append(env, spec.ExtraEnvs...), nil
	}

	discovery, err := b.discoveryEnv()
	if err != nil {
		return nil, operatorerrors.NewCompositionError(featureEnvironment, "", err)
	}
	env = append(env, discovery...)

	env = append(env,
		corev1.EnvVar{Name: constants.EnvClusterName, Value: spec.ClusterName},
		corev1.EnvVar{Name: constants.EnvNetworkHost, Value: spec.Network.Host},
		corev1.EnvVar{Name: constants.EnvJavaOpts, Value: spec.JavaOpts},
	)

	for _, role := range spec.Roles.Declared() {
		env = append(env, corev1.EnvVar{
			Name:  constants.EnvNodeRolePrefix + role.Name,
			Value: strconv.FormatBool(role.Enabled),
		})
	}

	return append(env, spec.ExtraEnvs...), nil
}

// discoveryEnv returns exactly one discovery vocabulary, never both.
func (b *RoleEnvironmentBuilder) discoveryEnv() ([]corev1.EnvVar, error) {
	spec := b.spec

	gate, err := version.ParseGate(spec.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", operatorerrors.ErrUnsupportedVersion, err)
	}
	vocabulary, err := gate.Vocabulary()
	if err != nil {
		return nil, err
	}

	seedHosts := spec.MasterServiceName() + constants.SuffixHeadlessService

	switch vocabulary {
	case version.VocabularyCurrent:
		return []corev1.EnvVar{
			{Name: constants.EnvDiscoverySeedHosts, Value: seedHosts},
			{Name: constants.EnvClusterInitialMasterNodes, Value: initialMasterNodes(spec)},
		}, nil
	case version.VocabularyLegacy:
		return []corev1.EnvVar{
			{Name: constants.EnvZenUnicastHosts, Value: seedHosts},
			{Name: constants.EnvZenMinimumMasterNodes, Value: strconv.FormatInt(int64(ptr.Deref(spec.MinimumMasterNodes, constants.DefaultMinimumMasterNodes)), 10)},
		}, nil
	default:
		return nil, fmt.Errorf("%w: vocabulary %q", operatorerrors.ErrUnsupportedVersion, vocabulary)
	}
}

// initialMasterNodes lists the pod names of this group, which is how the
// first election learns its voting configuration.
func initialMasterNodes(spec *searchv1alpha1.SearchClusterSpec) string {
	replicas := int(ptr.Deref(spec.Replicas, 0))
	nodes := make([]string, 0, replicas)
	for i := range replicas {
		nodes = append(nodes, fmt.Sprintf("%s-%d", spec.WorkloadName(), i))
	}
	return strings.Join(nodes, ",")
}

func podNameEnv(name string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			FieldRef: &corev1.ObjectFieldSelector{
				FieldPath: constants.FieldPathPodName,
			},
		},
	}
}
