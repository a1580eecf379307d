package constants

// Defaults applied to SearchCluster specs. Values follow the upstream chart.
const (
	DefaultClusterName              = "elasticsearch"
	DefaultNodeGroup                = "master"
	DefaultReplicas           int32 = 3
	DefaultMinimumMasterNodes int32 = 2
	DefaultVersion                  = "7.17.3"
	DefaultPullPolicy               = "IfNotPresent"
	DefaultPodManagementPolicy      = "Parallel"
	DefaultUpdateStrategy           = "RollingUpdate"
	DefaultStorageSize              = "30Gi"
	DefaultTopologyKey              = "kubernetes.io/hostname"
	DefaultProtocol                 = "http"
	DefaultHTTPPort           int32 = 9200
	DefaultTransportPort      int32 = 9300
	DefaultNetworkHost              = "0.0.0.0"
	DefaultHealthCheckParams        = "wait_for_status=green&timeout=1s"
	DefaultVMMaxMapCount      int64 = 262144
	DefaultTerminationGrace   int64 = 120
	DefaultRunAsUser          int64 = 1000
	DefaultFSGroup            int64 = 1000
)

// Readiness probe tuning defaults.
const (
	DefaultReadinessFailureThreshold int32 = 3
	DefaultReadinessInitialDelay     int32 = 10
	DefaultReadinessPeriod           int32 = 10
	DefaultReadinessSuccessThreshold int32 = 3
	DefaultReadinessTimeout          int32 = 5
)
