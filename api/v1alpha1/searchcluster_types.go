/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// AntiAffinityMode controls how replicas are spread across topology domains.
// +kubebuilder:validation:Enum=none;soft;hard
type AntiAffinityMode string

const (
	// AntiAffinityNone adds no pod anti-affinity.
	AntiAffinityNone AntiAffinityMode = "none"
	// AntiAffinitySoft prefers spreading replicas (weight 1).
	AntiAffinitySoft AntiAffinityMode = "soft"
	// AntiAffinityHard requires replicas to land in distinct topology domains.
	AntiAffinityHard AntiAffinityMode = "hard"
)

// SearchCluster describes one node group of a search cluster.
type SearchCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec SearchClusterSpec `json:"spec"`
}

// SearchClusterSpec is the closed set of options a node group may be composed from.
type SearchClusterSpec struct {
	// ClusterName is the name of the search cluster the node group joins.
	// +optional
	// +kubebuilder:default=elasticsearch
	ClusterName string `json:"clusterName,omitempty"`
	// NodeGroup names this group of nodes. The workload is named <clusterName>-<nodeGroup>.
	// +optional
	// +kubebuilder:default=master
	NodeGroup string `json:"nodeGroup,omitempty"`
	// MasterService overrides the name of the service fronting master-eligible nodes.
	// Defaults to <clusterName>-master.
	// +optional
	MasterService string `json:"masterService,omitempty"`
	// Version is the node image version. It selects the discovery vocabulary.
	// +optional
	Version string `json:"version,omitempty"`
	// Replicas is the desired number of nodes in the group.
	// +optional
	Replicas *int32 `json:"replicas,omitempty"`
	// MinimumMasterNodes is only emitted for the legacy discovery vocabulary.
	// +optional
	MinimumMasterNodes *int32 `json:"minimumMasterNodes,omitempty"`
	// Roles declares the node roles this group advertises.
	// +optional
	Roles NodeRoles `json:"roles,omitempty"`

	// Image selects the node image.
	// +optional
	Image ImageSpec `json:"image,omitempty"`
	// ImagePullSecrets are passed through to the pod.
	// +optional
	ImagePullSecrets []corev1.LocalObjectReference `json:"imagePullSecrets,omitempty"`

	// Persistence configures the data volume claim template.
	// +optional
	Persistence PersistenceSpec `json:"persistence,omitempty"`
	// SecretMounts mounts user Secrets into the main container.
	// +optional
	SecretMounts []SecretMount `json:"secretMounts,omitempty"`
	// Config maps a file name under the config directory to the document rendered into it.
	// +optional
	Config map[string]apiextensionsv1.JSON `json:"esConfig,omitempty"`
	// Keystore lists Secrets whose keys are added to the node keystore at startup.
	// +optional
	Keystore []KeystoreEntry `json:"keystore,omitempty"`

	// ExtraVolumes are declared on the pod as-is.
	// +optional
	ExtraVolumes []corev1.Volume `json:"extraVolumes,omitempty"`
	// ExtraVolumeMounts are appended to the main container mounts as-is.
	// +optional
	ExtraVolumeMounts []corev1.VolumeMount `json:"extraVolumeMounts,omitempty"`
	// ExtraInitContainers run after the built-in init containers.
	// +optional
	ExtraInitContainers []corev1.Container `json:"extraInitContainers,omitempty"`
	// ExtraContainers run alongside the built-in containers.
	// +optional
	ExtraContainers []corev1.Container `json:"extraContainers,omitempty"`
	// ExtraEnvs are appended to the main container environment.
	// +optional
	ExtraEnvs []corev1.EnvVar `json:"extraEnvs,omitempty"`

	// Sysctl configures the kernel-parameter init container.
	// +optional
	Sysctl SysctlSpec `json:"sysctl,omitempty"`
	// GracefulTermination attaches a sidecar to master-eligible nodes that
	// delays shutdown until the node has handed over mastership.
	// +optional
	GracefulTermination GracefulTerminationSpec `json:"gracefulTermination,omitempty"`

	// AntiAffinity spreads replicas across AntiAffinityTopologyKey.
	// +optional
	// +kubebuilder:default=hard
	AntiAffinity AntiAffinityMode `json:"antiAffinity,omitempty"`
	// AntiAffinityTopologyKey is the topology domain used by pod anti-affinity.
	// +optional
	AntiAffinityTopologyKey string `json:"antiAffinityTopologyKey,omitempty"`
	// NodeAffinity is passed through to the pod.
	// +optional
	NodeAffinity *corev1.NodeAffinity `json:"nodeAffinity,omitempty"`

	// Resources for the main container.
	// +optional
	Resources corev1.ResourceRequirements `json:"resources,omitempty"`
	// InitResources for the built-in init containers.
	// +optional
	InitResources corev1.ResourceRequirements `json:"initResources,omitempty"`

	// Network configures ports, protocol and bind address.
	// +optional
	Network NetworkSpec `json:"network,omitempty"`
	// JavaOpts is exported as ES_JAVA_OPTS.
	// +optional
	JavaOpts string `json:"esJavaOpts,omitempty"`
	// ClusterHealthCheckParams are the query parameters of the startup health check.
	// +optional
	ClusterHealthCheckParams string `json:"clusterHealthCheckParams,omitempty"`
	// ReadinessProbe tunes the readiness probe timings.
	// +optional
	ReadinessProbe ProbeTuning `json:"readinessProbe,omitempty"`

	// +optional
	PodManagementPolicy appsv1.PodManagementPolicyType `json:"podManagementPolicy,omitempty"`
	// +optional
	UpdateStrategy appsv1.StatefulSetUpdateStrategyType `json:"updateStrategy,omitempty"`
	// +optional
	Labels map[string]string `json:"labels,omitempty"`
	// +optional
	PodAnnotations map[string]string `json:"podAnnotations,omitempty"`
	// +optional
	SchedulerName string `json:"schedulerName,omitempty"`
	// +optional
	PriorityClassName string `json:"priorityClassName,omitempty"`
	// +optional
	ServiceAccountName string `json:"serviceAccountName,omitempty"`
	// +optional
	PodSecurityContext *corev1.PodSecurityContext `json:"podSecurityContext,omitempty"`
	// +optional
	SecurityContext *corev1.SecurityContext `json:"securityContext,omitempty"`
	// +optional
	Tolerations []corev1.Toleration `json:"tolerations,omitempty"`
	// +optional
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`
	// +optional
	TerminationGracePeriodSeconds *int64 `json:"terminationGracePeriodSeconds,omitempty"`

	// TTY allocates a TTY for the main container. It does not imply Stdin.
	// +optional
	TTY bool `json:"tty,omitempty"`
	// Stdin keeps stdin open for the main container. It is independent of TTY.
	// +optional
	Stdin bool `json:"stdin,omitempty"`
}

// NodeRoles declares role flags. A nil flag is not declared and emits nothing.
type NodeRoles struct {
	// +optional
	Master *bool `json:"master,omitempty"`
	// +optional
	Data *bool `json:"data,omitempty"`
	// +optional
	Ingest *bool `json:"ingest,omitempty"`
	// +optional
	ML *bool `json:"ml,omitempty"`
	// +optional
	RemoteClusterClient *bool `json:"remote_cluster_client,omitempty"`
}

// RoleFlag is one declared role with its enabled state.
type RoleFlag struct {
	Name    string
	Enabled bool
}

// MasterEligible reports whether the group may be elected master.
func (r NodeRoles) MasterEligible() bool {
	return ptr.Deref(r.Master, false)
}

// Declared returns the declared role flags in a fixed order.
func (r NodeRoles) Declared() []RoleFlag {
	ordered := []struct {
		name string
		flag *bool
	}{
		{"master", r.Master},
		{"data", r.Data},
		{"ingest", r.Ingest},
		{"ml", r.ML},
		{"remote_cluster_client", r.RemoteClusterClient},
	}

	var flags []RoleFlag
	for _, o := range ordered {
		if o.flag == nil {
			continue
		}
		flags = append(flags, RoleFlag{Name: o.name, Enabled: *o.flag})
	}
	return flags
}

// IsZero reports whether no role was declared.
func (r NodeRoles) IsZero() bool {
	return len(r.Declared()) == 0
}

// ImageSpec selects the node image.
type ImageSpec struct {
	// +optional
	Repository string `json:"repository,omitempty"`
	// Tag defaults to Version.
	// +optional
	Tag string `json:"tag,omitempty"`
	// +optional
	PullPolicy corev1.PullPolicy `json:"pullPolicy,omitempty"`
}

// Reference returns the repository:tag image reference.
func (i ImageSpec) Reference() string {
	if i.Tag == "" {
		return i.Repository
	}
	return i.Repository + ":" + i.Tag
}

// PersistenceSpec configures the data volume.
type PersistenceSpec struct {
	// +optional
	// +kubebuilder:default=true
	Enabled *bool `json:"enabled,omitempty"`
	// Annotations are set on the volume claim template.
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
	// VolumeClaimTemplate is the claim spec for the data volume.
	// +optional
	VolumeClaimTemplate corev1.PersistentVolumeClaimSpec `json:"volumeClaimTemplate,omitempty"`
}

// IsEnabled reports whether the data claim template is emitted.
func (p PersistenceSpec) IsEnabled() bool {
	return ptr.Deref(p.Enabled, false)
}

// SecretMount mounts a Secret into the main container.
type SecretMount struct {
	// Name is the pod volume name.
	Name string `json:"name"`
	// SecretName is the Secret to mount.
	SecretName string `json:"secretName"`
	// Path is the mount path in the main container.
	Path string `json:"path"`
	// SubPath mounts a single key of the Secret.
	// +optional
	SubPath string `json:"subPath,omitempty"`
	// +optional
	DefaultMode *int32 `json:"defaultMode,omitempty"`
}

// KeystoreEntry names a Secret whose keys are added to the keystore.
type KeystoreEntry struct {
	SecretName string `json:"secretName"`
	// Items restricts and renames the Secret keys that are projected.
	// +optional
	Items []corev1.KeyToPath `json:"items,omitempty"`
	// +optional
	DefaultMode *int32 `json:"defaultMode,omitempty"`
}

// SysctlSpec configures the privileged kernel-parameter init container.
type SysctlSpec struct {
	// +optional
	// +kubebuilder:default=true
	Enabled *bool `json:"enabled,omitempty"`
	// VMMaxMapCount is written to vm.max_map_count.
	// +optional
	VMMaxMapCount int64 `json:"vmMaxMapCount,omitempty"`
}

// IsEnabled reports whether the sysctl init container is emitted.
func (s SysctlSpec) IsEnabled() bool {
	return ptr.Deref(s.Enabled, false)
}

// GracefulTerminationSpec configures the master handover sidecar.
type GracefulTerminationSpec struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`
	// +optional
	Resources corev1.ResourceRequirements `json:"resources,omitempty"`
	// +optional
	Lifecycle *corev1.Lifecycle `json:"lifecycle,omitempty"`
}

// NetworkSpec configures how nodes talk to each other and to clients.
type NetworkSpec struct {
	// Protocol used by the probes and the sidecar (http or https).
	// +optional
	Protocol string `json:"protocol,omitempty"`
	// +optional
	HTTPPort int32 `json:"httpPort,omitempty"`
	// +optional
	TransportPort int32 `json:"transportPort,omitempty"`
	// Host is exported as network.host.
	// +optional
	Host string `json:"host,omitempty"`
}

// ProbeTuning holds readiness probe timings.
type ProbeTuning struct {
	// +optional
	FailureThreshold int32 `json:"failureThreshold,omitempty"`
	// +optional
	InitialDelaySeconds int32 `json:"initialDelaySeconds,omitempty"`
	// +optional
	PeriodSeconds int32 `json:"periodSeconds,omitempty"`
	// +optional
	SuccessThreshold int32 `json:"successThreshold,omitempty"`
	// +optional
	TimeoutSeconds int32 `json:"timeoutSeconds,omitempty"`
}
