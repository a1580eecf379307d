package kube

import (
	"fmt"
	"io"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"
)

const documentSeparator = "---\n"

// EncodeYAML writes objects as a multi-document YAML stream in the given
// order. The output is what an external synthesis step consumes.
func EncodeYAML(w io.Writer, resolver GVKResolver, objects []client.Object) error {
	for i, obj := range objects {
		if obj == nil {
			return fmt.Errorf("object %d cannot be nil", i)
		}
		u, err := toUnstructured(obj, resolver)
		if err != nil {
			return err
		}
		doc, err := yaml.Marshal(u.Object)
		if err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
		}
		if i > 0 {
			if _, err := io.WriteString(w, documentSeparator); err != nil {
				return err
			}
		}
		if _, err := w.Write(doc); err != nil {
			return err
		}
	}
	return nil
}
