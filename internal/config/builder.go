package config

import (
	"fmt"
	"sort"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"sigs.k8s.io/yaml"
)

// RenderDocuments renders each configuration document into the YAML text
// stored under the same key of the generated ConfigMap.
//
// Documents arrive as raw JSON (however the user wrote them) and are always
// re-emitted as YAML with sorted map keys, so the same logical input always
// renders to the same bytes and therefore the same checksum.
func RenderDocuments(docs map[string]apiextensionsv1.JSON) (map[string]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	data := make(map[string]string, len(docs))
	for _, key := range SortedKeys(docs) {
		raw := docs[key].Raw
		if len(raw) == 0 {
			return nil, fmt.Errorf("config document %q is empty", key)
		}
		rendered, err := yaml.JSONToYAML(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to render config document %q: %w", key, err)
		}
		data[key] = string(rendered)
	}

	return data, nil
}

// SortedKeys returns the document keys in lexical order. Everything derived
// from the config map (mounts, rendered data) iterates in this order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
