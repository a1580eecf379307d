package infra

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/utils/ptr"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	"github.com/dc-tec/searchcluster-composer/internal/constants"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

var testIdentity = Identity{
	ReleaseName:      "logs",
	ReleaseNamespace: "search",
	ReleaseService:   "composer",
	ChartName:        "elasticsearch",
	ChartVersion:     "7.17.3",
}

// newTestCluster returns a defaulted cluster with the sysctl init step
// disabled unless mutate turns it back on.
func newTestCluster(mutate func(spec *searchv1alpha1.SearchClusterSpec)) *searchv1alpha1.SearchCluster {
	cluster := &searchv1alpha1.SearchCluster{}
	cluster.Spec.Sysctl.Enabled = ptr.To(false)
	if mutate != nil {
		mutate(&cluster.Spec)
	}
	cluster.Default()
	return cluster
}

func compose(t *testing.T, cluster *searchv1alpha1.SearchCluster) *Composition {
	t.Helper()
	comp, err := NewFeatureComposer(logr.Discard(), testIdentity, &cluster.Spec).Compose()
	require.NoError(t, err)
	return comp
}

func envNames(env []corev1.EnvVar) []string {
	names := make([]string, 0, len(env))
	for _, e := range env {
		names = append(names, e.Name)
	}
	return names
}

func containerNames(containers []corev1.Container) []string {
	names := make([]string, 0, len(containers))
	for _, c := range containers {
		names = append(names, c.Name)
	}
	return names
}

func configDocs(docs map[string]string) map[string]apiextensionsv1.JSON {
	out := make(map[string]apiextensionsv1.JSON, len(docs))
	for k, v := range docs {
		out[k] = apiextensionsv1.JSON{Raw: []byte(v)}
	}
	return out
}

func TestComposeKeystoreScenarioCurrentVocabulary(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.Version = "7.17.3"
		spec.Persistence.Enabled = ptr.To(true)
		spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}}
		spec.Roles = searchv1alpha1.NodeRoles{Master: ptr.To(true)}
		spec.GracefulTermination.Enabled = false
	})

	comp := compose(t, cluster)

	require.Len(t, comp.InitContainers, 1)
	keystore := comp.InitContainers[0]
	assert.Equal(t, constants.ContainerNameKeystore, keystore.Name)
	assert.Equal(t, []corev1.VolumeMount{
		{Name: "keystore", MountPath: "/tmp/keystore"},
		{Name: "keystore-k1", MountPath: "/tmp/keystoreSecrets/k1"},
	}, keystore.VolumeMounts)

	env := comp.Containers[0].Env
	require.GreaterOrEqual(t, len(env), 3)
	assert.Equal(t, []string{"node.name", "discovery.seed_hosts", "cluster.initial_master_nodes"}, envNames(env[:3]))
	assert.Equal(t, "metadata.name", env[0].ValueFrom.FieldRef.FieldPath)
	assert.Equal(t, "elasticsearch-master-headless", env[1].Value)
	assert.Equal(t, "elasticsearch-master-0,elasticsearch-master-1,elasticsearch-master-2", env[2].Value)

	assert.Equal(t, []string{"keystore", "keystore-k1", "elasticsearch-master"}, comp.Catalog.Names())
	assert.Equal(t, VolumeKindScratch, comp.Catalog.declared()[0].Kind)
	assert.Equal(t, VolumeKindUserSecret, comp.Catalog.declared()[1].Kind)
	assert.Equal(t, VolumeKindClaimTemplate, comp.Catalog.declared()[2].Kind)

	assert.Nil(t, comp.ConfigMap)
	assert.Empty(t, comp.Dependencies.Edges())
}

func TestComposeKeystoreScenarioLegacyVocabulary(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.Version = "6.8.23"
		spec.Persistence.Enabled = ptr.To(true)
		spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}}
		spec.Roles = searchv1alpha1.NodeRoles{Master: ptr.To(true)}
	})

	comp := compose(t, cluster)

	names := envNames(comp.Containers[0].Env)
	assert.Equal(t, []string{"node.name", "discovery.zen.ping.unicast.hosts", "discovery.zen.minimum_master_nodes"}, names[:3])
	assert.NotContains(t, names, constants.EnvDiscoverySeedHosts)
	assert.NotContains(t, names, constants.EnvClusterInitialMasterNodes)
	assert.Equal(t, "2", comp.Containers[0].Env[2].Value)

	assert.Equal(t, []string{"keystore", "keystore-k1", "elasticsearch-master"}, comp.Catalog.Names())
	assert.Empty(t, comp.Dependencies.Edges())
}

func TestComposeNoDanglingMounts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(spec *searchv1alpha1.SearchClusterSpec)
	}{
		{name: "defaults"},
		{
			name: "everything enabled",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Sysctl.Enabled = ptr.To(true)
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "s3"}, {SecretName: "slack"}}
				spec.SecretMounts = []searchv1alpha1.SecretMount{
					{Name: "certs", SecretName: "elastic-certs", Path: "/usr/share/elasticsearch/config/certs"},
				}
				spec.Config = configDocs(map[string]string{
					"elasticsearch.yml": `{"xpack.security.enabled": true}`,
					"log4j2.properties": `{"status": "error"}`,
				})
				spec.GracefulTermination.Enabled = true
			},
		},
		{
			name: "no persistence",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Persistence.Enabled = ptr.To(false)
				spec.Config = configDocs(map[string]string{"elasticsearch.yml": `{"a": 1}`})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := compose(t, newTestCluster(tt.mutate))

			for _, c := range append(append([]corev1.Container{}, comp.InitContainers...), comp.Containers...) {
				for _, m := range c.VolumeMounts {
					_, err := comp.Catalog.Resolve(m.Name)
					assert.NoError(t, err, "container %s mount %s", c.Name, m.Name)
				}
			}
		})
	}
}

func TestComposeKeystoreMountsFollowDeclarationOrder(t *testing.T) {
	secrets := []string{"zeta", "alpha", "mid"}
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		for _, s := range secrets {
			spec.Keystore = append(spec.Keystore, searchv1alpha1.KeystoreEntry{SecretName: s})
		}
	})

	comp := compose(t, cluster)

	require.Len(t, comp.InitContainers, 1)
	mounts := comp.InitContainers[0].VolumeMounts
	require.Len(t, mounts, len(secrets)+1)

	paths := map[string]bool{}
	for i, s := range secrets {
		m := mounts[i+1]
		assert.Equal(t, "keystore-"+s, m.Name)
		assert.Equal(t, "/tmp/keystoreSecrets/"+s, m.MountPath)
		paths[m.MountPath] = true

		v, err := comp.Catalog.Resolve(m.Name)
		require.NoError(t, err)
		assert.Equal(t, VolumeKindUserSecret, v.Kind)
		assert.Equal(t, s, v.Volume.Secret.SecretName)
	}
	assert.Len(t, paths, len(secrets))
}

func TestComposeNonMasterHasNoBootstrapEnv(t *testing.T) {
	bootstrap := []string{
		constants.EnvDiscoverySeedHosts,
		constants.EnvClusterInitialMasterNodes,
		constants.EnvZenUnicastHosts,
		constants.EnvZenMinimumMasterNodes,
	}

	for _, v := range []string{"7.17.3", "8.11.0", "6.8.23", "5.6.0"} {
		t.Run(v, func(t *testing.T) {
			cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.NodeGroup = "data"
				spec.Version = v
				spec.Roles = searchv1alpha1.NodeRoles{Master: ptr.To(false), Data: ptr.To(true)}
				spec.ExtraEnvs = []corev1.EnvVar{{Name: "EXTRA", Value: "1"}}
				spec.GracefulTermination.Enabled = true
			})

			comp := compose(t, cluster)

			names := envNames(comp.Containers[0].Env)
			assert.Equal(t, []string{"node.name", "EXTRA"}, names)
			for _, b := range bootstrap {
				assert.NotContains(t, names, b)
			}
			// The handover sidecar is only for master-eligible groups.
			assert.Equal(t, []string{"elasticsearch-data"}, containerNames(comp.Containers))
		})
	}
}

func TestComposeDiscoveryVocabulariesAreExclusive(t *testing.T) {
	current := []string{constants.EnvDiscoverySeedHosts, constants.EnvClusterInitialMasterNodes}
	legacy := []string{constants.EnvZenUnicastHosts, constants.EnvZenMinimumMasterNodes}

	tests := []struct {
		version string
		want    []string
		absent  []string
	}{
		{version: "7.0.0", want: current, absent: legacy},
		{version: "7.0.0-rc1", want: current, absent: legacy},
		{version: "8.11.0", want: current, absent: legacy},
		{version: "6.0.0", want: legacy, absent: current},
		{version: "6.8.23", want: legacy, absent: current},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			comp := compose(t, newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Version = tt.version
			}))

			names := envNames(comp.Containers[0].Env)
			for _, n := range tt.want {
				assert.Contains(t, names, n)
			}
			for _, n := range tt.absent {
				assert.NotContains(t, names, n)
			}
		})
	}
}

func TestComposeMasterEnvironmentOrder(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.JavaOpts = "-Xmx1g -Xms1g"
		spec.Roles = searchv1alpha1.NodeRoles{Master: ptr.To(true), Data: ptr.To(false), ML: ptr.To(true)}
		spec.ExtraEnvs = []corev1.EnvVar{{Name: "ELASTIC_PASSWORD", Value: "changeme"}}
	})

	env := compose(t, cluster).Containers[0].Env

	assert.Equal(t, []string{
		"node.name",
		"discovery.seed_hosts",
		"cluster.initial_master_nodes",
		"cluster.name",
		"network.host",
		"ES_JAVA_OPTS",
		"node.master",
		"node.data",
		"node.ml",
		"ELASTIC_PASSWORD",
	}, envNames(env))
	assert.Equal(t, "-Xmx1g -Xms1g", env[5].Value)
	assert.Equal(t, "true", env[6].Value)
	assert.Equal(t, "false", env[7].Value)
}

func TestComposeGeneratedConfig(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.Config = configDocs(map[string]string{
			"log4j2.properties": `{"status": "error"}`,
			"elasticsearch.yml": `{"xpack": {"security": {"enabled": false}}}`,
		})
	})

	comp := compose(t, cluster)

	require.NotNil(t, comp.ConfigMap)
	assert.Equal(t, "elasticsearch-master-config", comp.ConfigMap.Name)
	assert.Equal(t, "search", comp.ConfigMap.Namespace)
	assert.Equal(t, "ConfigMap", comp.ConfigMap.Kind)
	assert.Equal(t, "xpack:\n  security:\n    enabled: false\n", comp.ConfigMap.Data["elasticsearch.yml"])
	assert.Equal(t, "elasticsearch-master", comp.ConfigMap.Labels[constants.LabelApp])

	edges := comp.Dependencies.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, comp.Workload, edges[0].From)
	assert.Equal(t, ResourceRef{APIVersion: "v1", Kind: "ConfigMap", Namespace: "search", Name: "elasticsearch-master-config"}, edges[0].To)

	v, err := comp.Catalog.Resolve(constants.VolumeNameConfig)
	require.NoError(t, err)
	assert.Equal(t, VolumeKindGeneratedConfig, v.Kind)
	assert.Equal(t, "elasticsearch-master-config", v.Volume.ConfigMap.Name)

	var configMounts []corev1.VolumeMount
	for _, m := range comp.Containers[0].VolumeMounts {
		if m.Name == constants.VolumeNameConfig {
			configMounts = append(configMounts, m)
		}
	}
	assert.Equal(t, []corev1.VolumeMount{
		{Name: "esconfig", MountPath: "/usr/share/elasticsearch/config/elasticsearch.yml", SubPath: "elasticsearch.yml"},
		{Name: "esconfig", MountPath: "/usr/share/elasticsearch/config/log4j2.properties", SubPath: "log4j2.properties"},
	}, configMounts)
}

func TestComposeContainerOrder(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.Sysctl.Enabled = ptr.To(true)
		spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}}
		spec.GracefulTermination.Enabled = true
		spec.ExtraInitContainers = []corev1.Container{{Name: "fetch-plugins", Image: "busybox"}}
		spec.ExtraContainers = []corev1.Container{{Name: "exporter", Image: "exporter:1"}}
	})

	comp := compose(t, cluster)

	assert.Equal(t, []string{"configure-sysctl", "keystore", "fetch-plugins"}, containerNames(comp.InitContainers))
	assert.Equal(t, []string{
		"elasticsearch-master",
		"elasticsearch-master-graceful-termination-handler",
		"exporter",
	}, containerNames(comp.Containers))

	sysctl := comp.InitContainers[0]
	assert.Equal(t, []string{"sysctl", "-w", "vm.max_map_count=262144"}, sysctl.Command)
	assert.True(t, *sysctl.SecurityContext.Privileged)
	assert.Equal(t, int64(0), *sysctl.SecurityContext.RunAsUser)

	sidecar := comp.Containers[1]
	require.NotEmpty(t, sidecar.Env)
	assert.Equal(t, constants.EnvSidecarNodeName, sidecar.Env[0].Name)
	assert.Contains(t, sidecar.Command[2], "_cat/master?h=node")
	assert.Contains(t, sidecar.Command[2], "http://elasticsearch-master:9200")
}

func TestComposePrimaryContainer(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.TTY = true
		spec.Stdin = false
		spec.ReadinessProbe.PeriodSeconds = 7
	})

	primary := compose(t, cluster).Containers[0]

	assert.Equal(t, "elasticsearch-master", primary.Name)
	assert.Equal(t, "docker.elastic.co/elasticsearch/elasticsearch:7.17.3", primary.Image)
	assert.True(t, primary.TTY)
	assert.False(t, primary.Stdin, "TTY must not switch stdin on")
	assert.Equal(t, []corev1.ContainerPort{
		{Name: "http", ContainerPort: 9200, Protocol: corev1.ProtocolTCP},
		{Name: "transport", ContainerPort: 9300, Protocol: corev1.ProtocolTCP},
	}, primary.Ports)

	require.NotNil(t, primary.ReadinessProbe)
	assert.Equal(t, int32(7), primary.ReadinessProbe.PeriodSeconds)
	assert.Equal(t, int32(3), primary.ReadinessProbe.SuccessThreshold)
	script := primary.ReadinessProbe.Exec.Command[2]
	assert.Contains(t, script, "/_cluster/health?wait_for_status=green&timeout=1s")
	assert.Contains(t, script, "START_FILE=/tmp/.es_start_file")

	assert.Equal(t, []corev1.VolumeMount{
		{Name: "elasticsearch-master", MountPath: "/usr/share/elasticsearch/data"},
	}, primary.VolumeMounts)
}

func TestComposeVolumeOrder(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.SecretMounts = []searchv1alpha1.SecretMount{{Name: "certs", SecretName: "tls", Path: "/certs"}}
		spec.Config = configDocs(map[string]string{"elasticsearch.yml": `{"a": 1}`})
		spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}}
		spec.ExtraVolumes = []corev1.Volume{{Name: "plugins", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}}}
	})

	comp := compose(t, cluster)

	assert.Equal(t, []string{"certs", "esconfig", "keystore", "keystore-k1", "elasticsearch-master", "plugins"}, comp.Catalog.Names())

	var podVolumes []string
	for _, v := range comp.Catalog.PodVolumes() {
		podVolumes = append(podVolumes, v.Name)
	}
	assert.Equal(t, []string{"certs", "esconfig", "keystore", "keystore-k1", "plugins"}, podVolumes)
}

func TestComposeErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(spec *searchv1alpha1.SearchClusterSpec)
		wantErr error
		feature string
	}{
		{
			name: "empty keystore secret name",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}, {SecretName: ""}}
			},
			wantErr: operatorerrors.ErrInvalidKeystoreEntry,
			feature: featureKeystore,
		},
		{
			name: "keystore secret name with a relative path",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "a"}, {SecretName: "./a"}}
			},
			wantErr: operatorerrors.ErrInvalidKeystoreEntry,
			feature: featureKeystore,
		},
		{
			name: "keystore secret name escaping the secrets directory",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "../x"}}
			},
			wantErr: operatorerrors.ErrInvalidKeystoreEntry,
			feature: featureKeystore,
		},
		{
			name: "keystore secret name that is not a volume name",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "my.secret"}}
			},
			wantErr: operatorerrors.ErrInvalidKeystoreEntry,
			feature: featureKeystore,
		},
		{
			name: "keystore secret name too long for its volume",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: strings.Repeat("k", 60)}}
			},
			wantErr: operatorerrors.ErrInvalidKeystoreEntry,
			feature: featureKeystore,
		},
		{
			name: "duplicate keystore secret",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}, {SecretName: "k1"}}
			},
			wantErr: operatorerrors.ErrDuplicateVolumeName,
			feature: featureKeystore,
		},
		{
			name: "secret mount collides with keystore scratch",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.SecretMounts = []searchv1alpha1.SecretMount{{Name: "keystore", SecretName: "x", Path: "/x"}}
				spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}}
			},
			wantErr: operatorerrors.ErrDuplicateVolumeName,
			feature: featureKeystore,
		},
		{
			name: "extra volume collides with data claim",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.ExtraVolumes = []corev1.Volume{{Name: "elasticsearch-master"}}
			},
			wantErr: operatorerrors.ErrDuplicateVolumeName,
			feature: featureExtraVolumes,
		},
		{
			name: "master eligible without vocabulary",
			mutate: func(spec *searchv1alpha1.SearchClusterSpec) {
				spec.Version = "5.6.16"
			},
			wantErr: operatorerrors.ErrUnsupportedVersion,
			feature: featureEnvironment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster := newTestCluster(tt.mutate)

			comp, err := NewFeatureComposer(logr.Discard(), testIdentity, &cluster.Spec).Compose()

			require.Error(t, err)
			assert.Nil(t, comp)
			assert.ErrorIs(t, err, tt.wantErr)

			var ce *operatorerrors.CompositionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.feature, ce.Feature)
		})
	}
}

func TestComposeIsIdempotent(t *testing.T) {
	mutate := func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.Sysctl.Enabled = ptr.To(true)
		spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "b"}, {SecretName: "a"}}
		spec.SecretMounts = []searchv1alpha1.SecretMount{{Name: "certs", SecretName: "tls", Path: "/certs"}}
		spec.Config = configDocs(map[string]string{
			"c.yml": `{"z": 1, "a": 2}`,
			"a.yml": `{"k": "v"}`,
			"b.yml": `{"list": [3, 1, 2]}`,
		})
		spec.GracefulTermination.Enabled = true
	}

	first := compose(t, newTestCluster(mutate))
	for range 10 {
		again := compose(t, newTestCluster(mutate))
		assert.Equal(t, first, again)
	}
}

func TestComposeKeystoreEnvDoesNotAliasSpec(t *testing.T) {
	cluster := newTestCluster(func(spec *searchv1alpha1.SearchClusterSpec) {
		spec.Keystore = []searchv1alpha1.KeystoreEntry{{SecretName: "k1"}}
		spec.ExtraEnvs = []corev1.EnvVar{{Name: "ELASTIC_PASSWORD", Value: "secret"}}
	})

	comp := compose(t, cluster)
	require.Len(t, comp.InitContainers, 1)
	comp.InitContainers[0].Env[0].Value = "changed"

	assert.Equal(t, "secret", cluster.Spec.ExtraEnvs[0].Value)
}
