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
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/ptr"

	"github.com/dc-tec/searchcluster-composer/internal/constants"
)

// Default fills every unset option with the upstream chart defaults. It is
// idempotent and never overrides a value the user set.
func (c *SearchCluster) Default() {
	if c.APIVersion == "" {
		c.APIVersion = GroupVersion.String()
	}
	if c.Kind == "" {
		c.Kind = Kind
	}

	spec := &c.Spec
	if spec.ClusterName == "" {
		spec.ClusterName = constants.DefaultClusterName
	}
	if spec.NodeGroup == "" {
		spec.NodeGroup = constants.DefaultNodeGroup
	}
	if spec.Version == "" {
		spec.Version = constants.DefaultVersion
	}
	if spec.Replicas == nil {
		spec.Replicas = ptr.To(constants.DefaultReplicas)
	}
	if spec.MinimumMasterNodes == nil {
		spec.MinimumMasterNodes = ptr.To(constants.DefaultMinimumMasterNodes)
	}
	if spec.Roles.IsZero() {
		spec.Roles = NodeRoles{
			Master:              ptr.To(true),
			Data:                ptr.To(true),
			Ingest:              ptr.To(true),
			ML:                  ptr.To(true),
			RemoteClusterClient: ptr.To(true),
		}
	}

	if spec.Image.Repository == "" {
		spec.Image.Repository = constants.DefaultImage()
	}
	if spec.Image.Tag == "" {
		spec.Image.Tag = spec.Version
	}
	if spec.Image.PullPolicy == "" {
		spec.Image.PullPolicy = corev1.PullPolicy(constants.DefaultPullPolicy)
	}

	defaultPersistence(&spec.Persistence)

	if spec.Sysctl.Enabled == nil {
		spec.Sysctl.Enabled = ptr.To(true)
	}
	if spec.Sysctl.VMMaxMapCount == 0 {
		spec.Sysctl.VMMaxMapCount = constants.DefaultVMMaxMapCount
	}

	if spec.AntiAffinity == "" {
		spec.AntiAffinity = AntiAffinityHard
	}
	if spec.AntiAffinityTopologyKey == "" {
		spec.AntiAffinityTopologyKey = constants.DefaultTopologyKey
	}

	if spec.Network.Protocol == "" {
		spec.Network.Protocol = constants.DefaultProtocol
	}
	if spec.Network.HTTPPort == 0 {
		spec.Network.HTTPPort = constants.DefaultHTTPPort
	}
	if spec.Network.TransportPort == 0 {
		spec.Network.TransportPort = constants.DefaultTransportPort
	}
	if spec.Network.Host == "" {
		spec.Network.Host = constants.DefaultNetworkHost
	}
	if spec.ClusterHealthCheckParams == "" {
		spec.ClusterHealthCheckParams = constants.DefaultHealthCheckParams
	}
	defaultReadinessProbe(&spec.ReadinessProbe)

	if spec.PodManagementPolicy == "" {
		spec.PodManagementPolicy = appsv1.PodManagementPolicyType(constants.DefaultPodManagementPolicy)
	}
	if spec.UpdateStrategy == "" {
		spec.UpdateStrategy = appsv1.StatefulSetUpdateStrategyType(constants.DefaultUpdateStrategy)
	}
	if spec.TerminationGracePeriodSeconds == nil {
		spec.TerminationGracePeriodSeconds = ptr.To(constants.DefaultTerminationGrace)
	}
	if spec.PodSecurityContext == nil {
		spec.PodSecurityContext = &corev1.PodSecurityContext{
			FSGroup:   ptr.To(constants.DefaultFSGroup),
			RunAsUser: ptr.To(constants.DefaultRunAsUser),
		}
	}
	if spec.SecurityContext == nil {
		spec.SecurityContext = &corev1.SecurityContext{
			Capabilities: &corev1.Capabilities{
				Drop: []corev1.Capability{"ALL"},
			},
			RunAsNonRoot: ptr.To(true),
			RunAsUser:    ptr.To(constants.DefaultRunAsUser),
		}
	}
}

func defaultPersistence(p *PersistenceSpec) {
	if p.Enabled == nil {
		p.Enabled = ptr.To(true)
	}
	if !p.IsEnabled() {
		return
	}
	if len(p.VolumeClaimTemplate.AccessModes) == 0 {
		p.VolumeClaimTemplate.AccessModes = []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce}
	}
	if _, ok := p.VolumeClaimTemplate.Resources.Requests[corev1.ResourceStorage]; !ok {
		if p.VolumeClaimTemplate.Resources.Requests == nil {
			p.VolumeClaimTemplate.Resources.Requests = corev1.ResourceList{}
		}
		p.VolumeClaimTemplate.Resources.Requests[corev1.ResourceStorage] = resource.MustParse(constants.DefaultStorageSize)
	}
}

func defaultReadinessProbe(p *ProbeTuning) {
	if p.FailureThreshold == 0 {
		p.FailureThreshold = constants.DefaultReadinessFailureThreshold
	}
	if p.InitialDelaySeconds == 0 {
		p.InitialDelaySeconds = constants.DefaultReadinessInitialDelay
	}
	if p.PeriodSeconds == 0 {
		p.PeriodSeconds = constants.DefaultReadinessPeriod
	}
	if p.SuccessThreshold == 0 {
		p.SuccessThreshold = constants.DefaultReadinessSuccessThreshold
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = constants.DefaultReadinessTimeout
	}
}

// WorkloadName returns <clusterName>-<nodeGroup>, the name shared by the
// StatefulSet, its pods and its data claim template.
func (s *SearchClusterSpec) WorkloadName() string {
	return s.ClusterName + "-" + s.NodeGroup
}

// MasterServiceName returns the service fronting master-eligible nodes.
func (s *SearchClusterSpec) MasterServiceName() string {
	if s.MasterService != "" {
		return s.MasterService
	}
	return s.ClusterName + constants.SuffixMasterService
}
