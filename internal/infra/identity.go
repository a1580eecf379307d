package infra

import (
	"maps"

	"github.com/dc-tec/searchcluster-composer/internal/constants"
)

// Identity carries the release metadata stamped on every generated object.
// It is passed explicitly to every component that needs it.
type Identity struct {
	// ReleaseName identifies the installation.
	ReleaseName string
	// ReleaseNamespace is the namespace every object is created in.
	ReleaseNamespace string
	// ReleaseService is the tool that manages the release (the heritage label).
	ReleaseService string
	// ChartName and ChartVersion identify the composer build that produced the objects.
	ChartName    string
	ChartVersion string
}

// Chart returns the chart label value.
func (i Identity) Chart() string {
	if i.ChartVersion == "" {
		return i.ChartName
	}
	return i.ChartName + "-" + i.ChartVersion
}

// commonLabels returns the labels shared by every object of the workload,
// with user labels layered on top. User labels never replace the app label
// because the selector depends on it.
func (i Identity) commonLabels(app string, extra map[string]string) map[string]string {
	labels := map[string]string{
		constants.LabelHeritage: i.ReleaseService,
		constants.LabelRelease:  i.ReleaseName,
		constants.LabelChart:    i.Chart(),
	}
	maps.Copy(labels, extra)
	labels[constants.LabelApp] = app
	return labels
}

// selectorLabels returns the immutable selector for the workload.
func selectorLabels(app string) map[string]string {
	return map[string]string{
		constants.LabelApp: app,
	}
}
