package constants

// Environment variable names understood by the search node image.
const (
	EnvNodeName = "node.name"

	// Discovery vocabulary introduced with 7.0.
	EnvDiscoverySeedHosts        = "discovery.seed_hosts"
	EnvClusterInitialMasterNodes = "cluster.initial_master_nodes"

	// Zen discovery vocabulary used before 7.0.
	EnvZenUnicastHosts       = "discovery.zen.ping.unicast.hosts"
	EnvZenMinimumMasterNodes = "discovery.zen.minimum_master_nodes"

	EnvClusterName = "cluster.name"
	EnvNetworkHost = "network.host"
	EnvJavaOpts    = "ES_JAVA_OPTS"

	// EnvNodeRolePrefix prefixes one variable per declared node role flag.
	EnvNodeRolePrefix = "node."

	// Sidecar identity.
	EnvSidecarNodeName = "NODE_NAME"

	// Read by the keystore bootstrap script and the probe scripts when set
	// through extra environment variables.
	EnvElasticPassword = "ELASTIC_PASSWORD"
	EnvElasticUsername = "ELASTIC_USERNAME"

	// EnvImageRepository overrides DefaultImageRepository.
	EnvImageRepository = "SEARCH_IMAGE_REPOSITORY"
)

// Downward API field paths.
const (
	FieldPathPodName = "metadata.name"
)
