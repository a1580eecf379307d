package logging

import (
	"maps"
	"slices"

	"github.com/go-logr/logr"
)

// Event types emitted by the composer.
const (
	EventWorkloadComposed  = "workload_composed"
	EventCompositionFailed = "composition_failed"
	EventObjectApplied     = "object_applied"
)

// LogCompositionEvent logs a structured composition event. Events are tagged
// with "composition=true" so they can be filtered apart from debug output.
// Fields are attached in sorted key order so output is stable.
func LogCompositionEvent(logger logr.Logger, eventType string, fields map[string]string) {
	eventLogger(logger, eventType, fields).Info("Composition event")
}

// LogCompositionFailure logs a failed composition event with its error.
func LogCompositionFailure(logger logr.Logger, err error, eventType string, fields map[string]string) {
	eventLogger(logger, eventType, fields).Error(err, "Composition event failed")
}

func eventLogger(logger logr.Logger, eventType string, fields map[string]string) logr.Logger {
	kvs := []any{"composition", "true", "event_type", eventType}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		kvs = append(kvs, key, fields[key])
	}
	return logger.WithValues(kvs...)
}
