package constants

// Resource name suffixes appended to the node group name.
const (
	SuffixConfigMap       = "-config"
	SuffixHeadlessService = "-headless"
	SuffixMasterService   = "-master"
)

// Volume names declared by the composer.
const (
	// VolumeNameConfig is the volume backed by the generated ConfigMap.
	VolumeNameConfig = "esconfig"
	// VolumeNameKeystore is the scratch emptyDir the keystore is copied into.
	VolumeNameKeystore = "keystore"
	// VolumeNameKeystoreSecretPrefix prefixes the per-entry keystore secret volumes.
	VolumeNameKeystoreSecretPrefix = "keystore-"
)

// Container names.
const (
	ContainerNameSysctl              = "configure-sysctl"
	ContainerNameKeystore            = "keystore"
	ContainerNameGracefulTermination = "elasticsearch-master-graceful-termination-handler"
)

// Container port names.
const (
	PortNameHTTP      = "http"
	PortNameTransport = "transport"
)
