package infra

import (
	"fmt"
	"slices"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/client"

	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// ResourceRef identifies a generated resource.
type ResourceRef struct {
	APIVersion string
	Kind       string
	Namespace  string
	Name       string
}

func (r ResourceRef) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s/%s", r.Kind, r.Name)
	}
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Namespace, r.Name)
}

// RefFor returns the reference of obj. obj must carry its TypeMeta.
func RefFor(obj client.Object) ResourceRef {
	gvk := obj.GetObjectKind().GroupVersionKind()
	return ResourceRef{
		APIVersion: gvk.GroupVersion().String(),
		Kind:       gvk.Kind,
		Namespace:  obj.GetNamespace(),
		Name:       obj.GetName(),
	}
}

// DependencyEdge states that To must exist before From is created.
type DependencyEdge struct {
	From ResourceRef
	To   ResourceRef
}

// DependencyGraph records creation-order constraints between generated
// resources. Identical edges are stored once.
type DependencyGraph struct {
	edges []DependencyEdge
	nodes []ResourceRef
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{}
}

// Add records that to must exist before from.
func (g *DependencyGraph) Add(from, to ResourceRef) {
	edge := DependencyEdge{From: from, To: to}
	if slices.Contains(g.edges, edge) {
		return
	}
	g.edges = append(g.edges, edge)
	g.addNode(from)
	g.addNode(to)
}

func (g *DependencyGraph) addNode(ref ResourceRef) {
	if !slices.Contains(g.nodes, ref) {
		g.nodes = append(g.nodes, ref)
	}
}

// Edges returns the recorded edges in insertion order.
func (g *DependencyGraph) Edges() []DependencyEdge {
	return slices.Clone(g.edges)
}

// DependenciesOf returns the resources that must exist before ref.
func (g *DependencyGraph) DependenciesOf(ref ResourceRef) []ResourceRef {
	var out []ResourceRef
	for _, e := range g.edges {
		if e.From == ref {
			out = append(out, e.To)
		}
	}
	return out
}

// Order returns refs sorted so every resource follows its dependencies.
// Refs the graph does not know keep their relative position. Ties are broken
// by the input order, so the result is deterministic.
func (g *DependencyGraph) Order(refs []ResourceRef) ([]ResourceRef, error) {
	var all []ResourceRef
	for _, r := range slices.Concat(refs, g.nodes) {
		if !slices.Contains(all, r) {
			all = append(all, r)
		}
	}

	pending := make(map[ResourceRef]int, len(all))
	for _, r := range all {
		pending[r] = 0
	}
	for _, e := range g.edges {
		pending[e.From]++
	}

	ordered := make([]ResourceRef, 0, len(all))
	placed := make(map[ResourceRef]bool, len(all))
	for len(ordered) < len(all) {
		progressed := false
		for _, r := range all {
			if placed[r] || pending[r] > 0 {
				continue
			}
			placed[r] = true
			ordered = append(ordered, r)
			for _, e := range g.edges {
				if e.To == r {
					pending[e.From]--
				}
			}
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for _, r := range all {
				if !placed[r] {
					stuck = append(stuck, r.String())
				}
			}
			return nil, fmt.Errorf("%w: %s", operatorerrors.ErrDependencyCycle, strings.Join(stuck, ", "))
		}
	}

	// Only return the refs that were asked for.
	out := make([]ResourceRef, 0, len(refs))
	for _, r := range ordered {
		if slices.Contains(refs, r) {
			out = append(out, r)
		}
	}
	return out, nil
}
