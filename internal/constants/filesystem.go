package constants

// Paths inside the search node image.
const (
	PathHome         = "/usr/share/elasticsearch"
	PathData         = PathHome + "/data"
	PathConfig       = PathHome + "/config"
	PathKeystoreFile = PathConfig + "/" + KeystoreFileName

	KeystoreFileName = "elasticsearch.keystore"

	// Keystore init container paths.
	PathKeystoreScratch = "/tmp/keystore"
	PathKeystoreSecrets = "/tmp/keystoreSecrets"

	// PathReadinessStartFile marks that the node has seen a healthy cluster once.
	PathReadinessStartFile = "/tmp/.es_start_file"
)
