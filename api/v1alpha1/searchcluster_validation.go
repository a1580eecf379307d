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
	"fmt"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/dc-tec/searchcluster-composer/internal/version"
)

const (
	maxConfigEntries      = 64
	configFieldPathRoot   = "spec"
	configFieldPathConfig = "esConfig"
)

var (
	supportedProtocols           = sets.New("http", "https")
	supportedPullPolicies        = sets.New(corev1.PullAlways, corev1.PullIfNotPresent, corev1.PullNever)
	supportedPodManagement       = sets.New(appsv1.OrderedReadyPodManagement, appsv1.ParallelPodManagement)
	supportedUpdateStrategies    = sets.New(appsv1.RollingUpdateStatefulSetStrategyType, appsv1.OnDeleteStatefulSetStrategyType)
	supportedAntiAffinityModes   = sets.New(AntiAffinityNone, AntiAffinitySoft, AntiAffinityHard)
	spreadingAntiAffinityModes   = sets.New(AntiAffinitySoft, AntiAffinityHard)
	reservedConfigMountFileNames = sets.New("elasticsearch.keystore")
)

// Validate checks a defaulted SearchCluster. It rejects shapes the composer
// cannot turn into a coherent workload before composition starts. Keystore
// entries are checked by the composer itself so that the failure carries the
// composition context.
func (c *SearchCluster) Validate() field.ErrorList {
	var allErrs field.ErrorList

	if c.APIVersion != "" && c.APIVersion != GroupVersion.String() {
		allErrs = append(allErrs, field.NotSupported(field.NewPath("apiVersion"), c.APIVersion, []string{GroupVersion.String()}))
	}
	if c.Kind != "" && c.Kind != Kind {
		allErrs = append(allErrs, field.NotSupported(field.NewPath("kind"), c.Kind, []string{Kind}))
	}

	allErrs = append(allErrs, validateIdentity(&c.Spec)...)
	allErrs = append(allErrs, validateImage(&c.Spec)...)
	allErrs = append(allErrs, validatePersistence(&c.Spec)...)
	allErrs = append(allErrs, validateSecretMounts(&c.Spec)...)
	allErrs = append(allErrs, validateConfig(&c.Spec)...)
	allErrs = append(allErrs, validatePlacement(&c.Spec)...)
	allErrs = append(allErrs, validateNetwork(&c.Spec)...)
	allErrs = append(allErrs, validateWorkload(&c.Spec)...)

	return allErrs
}

func validateIdentity(spec *SearchClusterSpec) field.ErrorList {
	root := field.NewPath(configFieldPathRoot)
	var allErrs field.ErrorList

	for _, msg := range validation.IsDNS1123Label(spec.WorkloadName()) {
		allErrs = append(allErrs, field.Invalid(root.Child("nodeGroup"), spec.NodeGroup,
			fmt.Sprintf("workload name %q: %s", spec.WorkloadName(), msg)))
	}
	if spec.MasterService != "" {
		for _, msg := range validation.IsDNS1123Label(spec.MasterService) {
			allErrs = append(allErrs, field.Invalid(root.Child("masterService"), spec.MasterService, msg))
		}
	}

	if _, err := version.ParseGate(spec.Version); err != nil {
		allErrs = append(allErrs, field.Invalid(root.Child("version"), spec.Version, err.Error()))
	}

	if spec.Replicas != nil && *spec.Replicas < 0 {
		allErrs = append(allErrs, field.Invalid(root.Child("replicas"), *spec.Replicas, "must be greater than or equal to 0"))
	}
	if spec.MinimumMasterNodes != nil && *spec.MinimumMasterNodes < 1 {
		allErrs = append(allErrs, field.Invalid(root.Child("minimumMasterNodes"), *spec.MinimumMasterNodes, "must be at least 1"))
	}

	return allErrs
}

func validateImage(spec *SearchClusterSpec) field.ErrorList {
	path := field.NewPath(configFieldPathRoot, "image")
	var allErrs field.ErrorList

	if strings.TrimSpace(spec.Image.Repository) == "" {
		allErrs = append(allErrs, field.Required(path.Child("repository"), "image repository must not be empty"))
	} else if _, err := name.ParseReference(spec.Image.Reference(), name.StrictValidation); err != nil {
		allErrs = append(allErrs, field.Invalid(path, spec.Image.Reference(), err.Error()))
	}

	if spec.Image.PullPolicy != "" && !supportedPullPolicies.Has(spec.Image.PullPolicy) {
		allErrs = append(allErrs, field.NotSupported(path.Child("pullPolicy"), spec.Image.PullPolicy, sets.List(supportedPullPolicies)))
	}

	return allErrs
}

func validatePersistence(spec *SearchClusterSpec) field.ErrorList {
	if !spec.Persistence.IsEnabled() {
		return nil
	}
	path := field.NewPath(configFieldPathRoot, "persistence", "volumeClaimTemplate")
	var allErrs field.ErrorList

	if len(spec.Persistence.VolumeClaimTemplate.AccessModes) == 0 {
		allErrs = append(allErrs, field.Required(path.Child("accessModes"), "at least one access mode is required when persistence is enabled"))
	}
	size, ok := spec.Persistence.VolumeClaimTemplate.Resources.Requests[corev1.ResourceStorage]
	if !ok {
		allErrs = append(allErrs, field.Required(path.Child("resources", "requests", "storage"), "a storage request is required when persistence is enabled"))
	} else if size.Sign() <= 0 {
		allErrs = append(allErrs, field.Invalid(path.Child("resources", "requests", "storage"), size.String(), "must be greater than 0"))
	}

	return allErrs
}

func validateSecretMounts(spec *SearchClusterSpec) field.ErrorList {
	root := field.NewPath(configFieldPathRoot, "secretMounts")
	var allErrs field.ErrorList

	for i, m := range spec.SecretMounts {
		p := root.Index(i)
		if m.Name == "" {
			allErrs = append(allErrs, field.Required(p.Child("name"), "volume name must not be empty"))
		} else {
			for _, msg := range validation.IsDNS1123Label(m.Name) {
				allErrs = append(allErrs, field.Invalid(p.Child("name"), m.Name, msg))
			}
		}
		if m.SecretName == "" {
			allErrs = append(allErrs, field.Required(p.Child("secretName"), "secret name must not be empty"))
		}
		if !path.IsAbs(m.Path) {
			allErrs = append(allErrs, field.Invalid(p.Child("path"), m.Path, "mount path must be absolute"))
		}
		if path.IsAbs(m.SubPath) || strings.Contains(m.SubPath, "..") {
			allErrs = append(allErrs, field.Invalid(p.Child("subPath"), m.SubPath, "subPath must be a relative path without '..'"))
		}
	}

	return allErrs
}

// validateConfig checks the generated configuration documents. Each key
// becomes both a ConfigMap key and a file name under the config directory.
func validateConfig(spec *SearchClusterSpec) field.ErrorList {
	if len(spec.Config) == 0 {
		return nil
	}
	root := field.NewPath(configFieldPathRoot, configFieldPathConfig)
	var allErrs field.ErrorList

	if len(spec.Config) > maxConfigEntries {
		allErrs = append(allErrs, field.TooMany(root, len(spec.Config), maxConfigEntries))
	}

	for key, doc := range spec.Config {
		p := root.Key(key)
		for _, msg := range validation.IsConfigMapKey(key) {
			allErrs = append(allErrs, field.Invalid(p, key, msg))
		}
		if reservedConfigMountFileNames.Has(key) {
			allErrs = append(allErrs, field.Forbidden(p, fmt.Sprintf("%q is managed by the keystore feature", key)))
		}
		if len(doc.Raw) == 0 {
			allErrs = append(allErrs, field.Required(p, "configuration document must not be empty"))
		}
	}

	return allErrs
}

func validatePlacement(spec *SearchClusterSpec) field.ErrorList {
	root := field.NewPath(configFieldPathRoot)
	var allErrs field.ErrorList

	if spec.AntiAffinity != "" && !supportedAntiAffinityModes.Has(spec.AntiAffinity) {
		allErrs = append(allErrs, field.NotSupported(root.Child("antiAffinity"), spec.AntiAffinity, sets.List(supportedAntiAffinityModes)))
	}
	if spreadingAntiAffinityModes.Has(spec.AntiAffinity) {
		if spec.AntiAffinityTopologyKey == "" {
			allErrs = append(allErrs, field.Required(root.Child("antiAffinityTopologyKey"), "topology key is required for soft or hard anti-affinity"))
		} else {
			for _, msg := range validation.IsQualifiedName(spec.AntiAffinityTopologyKey) {
				allErrs = append(allErrs, field.Invalid(root.Child("antiAffinityTopologyKey"), spec.AntiAffinityTopologyKey, msg))
			}
		}
	}

	return allErrs
}

func validateNetwork(spec *SearchClusterSpec) field.ErrorList {
	root := field.NewPath(configFieldPathRoot, "network")
	var allErrs field.ErrorList

	if !supportedProtocols.Has(spec.Network.Protocol) {
		allErrs = append(allErrs, field.NotSupported(root.Child("protocol"), spec.Network.Protocol, sets.List(supportedProtocols)))
	}
	for _, port := range []struct {
		name  string
		value int32
	}{
		{"httpPort", spec.Network.HTTPPort},
		{"transportPort", spec.Network.TransportPort},
	} {
		for _, msg := range validation.IsValidPortNum(int(port.value)) {
			allErrs = append(allErrs, field.Invalid(root.Child(port.name), port.value, msg))
		}
	}
	if spec.Network.HTTPPort == spec.Network.TransportPort {
		allErrs = append(allErrs, field.Duplicate(root.Child("transportPort"), spec.Network.TransportPort))
	}

	return allErrs
}

func validateWorkload(spec *SearchClusterSpec) field.ErrorList {
	root := field.NewPath(configFieldPathRoot)
	var allErrs field.ErrorList

	if !supportedPodManagement.Has(spec.PodManagementPolicy) {
		allErrs = append(allErrs, field.NotSupported(root.Child("podManagementPolicy"), spec.PodManagementPolicy, sets.List(supportedPodManagement)))
	}
	if !supportedUpdateStrategies.Has(spec.UpdateStrategy) {
		allErrs = append(allErrs, field.NotSupported(root.Child("updateStrategy"), spec.UpdateStrategy, sets.List(supportedUpdateStrategies)))
	}
	if spec.Sysctl.IsEnabled() && spec.Sysctl.VMMaxMapCount <= 0 {
		allErrs = append(allErrs, field.Invalid(root.Child("sysctl", "vmMaxMapCount"), spec.Sysctl.VMMaxMapCount, "must be greater than 0"))
	}
	for i, env := range spec.ExtraEnvs {
		if env.Name == "" {
			allErrs = append(allErrs, field.Required(root.Child("extraEnvs").Index(i).Child("name"), "environment variable name must not be empty"))
		}
	}
	for i, c := range spec.ExtraInitContainers {
		if c.Name == "" {
			allErrs = append(allErrs, field.Required(root.Child("extraInitContainers").Index(i).Child("name"), "container name must not be empty"))
		}
	}
	for i, c := range spec.ExtraContainers {
		if c.Name == "" {
			allErrs = append(allErrs, field.Required(root.Child("extraContainers").Index(i).Child("name"), "container name must not be empty"))
		}
	}

	return allErrs
}
