package constants

// Label keys stamped on every generated object. These mirror the keys the
// original chart used so existing selectors keep matching.
const (
	LabelApp      = "app"
	LabelRelease  = "release"
	LabelChart    = "chart"
	LabelHeritage = "heritage"
)

// Annotation keys set by the composer.
const (
	// AnnotationConfigChecksum is set on the pod template so that a change in
	// the generated configuration forces a rolling restart.
	AnnotationConfigChecksum = "configchecksum"
	// AnnotationMajorVersion records the major version the workload was composed for.
	AnnotationMajorVersion = "esMajorVersion"
)
