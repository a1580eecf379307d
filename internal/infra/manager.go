package infra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	searchv1alpha1 "github.com/dc-tec/searchcluster-composer/api/v1alpha1"
	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
	"github.com/dc-tec/searchcluster-composer/internal/logging"
)

// Bundle is everything generated for one node group.
type Bundle struct {
	StatefulSet *appsv1.StatefulSet
	// ConfigMap is nil when no configuration documents were given.
	ConfigMap    *corev1.ConfigMap
	Dependencies []DependencyEdge

	graph *DependencyGraph
}

// Objects returns the generated objects in creation order: every object
// follows the objects it depends on.
func (b *Bundle) Objects() ([]client.Object, error) {
	var generated []client.Object
	if b.StatefulSet != nil {
		generated = append(generated, b.StatefulSet)
	}
	if b.ConfigMap != nil {
		generated = append(generated, b.ConfigMap)
	}

	byRef := map[ResourceRef]client.Object{}
	var refs []ResourceRef
	for _, obj := range generated {
		ref := RefFor(obj)
		byRef[ref] = obj
		refs = append(refs, ref)
	}

	graph := b.graph
	if graph == nil {
		graph = NewDependencyGraph()
		for _, e := range b.Dependencies {
			graph.Add(e.From, e.To)
		}
	}

	ordered, err := graph.Order(refs)
	if err != nil {
		return nil, err
	}

	objects := make([]client.Object, 0, len(ordered))
	for _, ref := range ordered {
		objects = append(objects, byRef[ref])
	}
	return objects, nil
}

// Manager composes node group workloads. Each call to Compose builds its own
// catalog and graph, so a Manager may be shared between goroutines.
type Manager struct {
	identity  Identity
	assembler *ManifestAssembler
}

// NewManager constructs a Manager stamping identity on every generated object.
func NewManager(identity Identity) *Manager {
	return &Manager{
		identity:  identity,
		assembler: NewManifestAssembler(identity),
	}
}

// Compose validates a defaulted SearchCluster and returns its Bundle. On
// error nothing is returned.
func (m *Manager) Compose(logger logr.Logger, cluster *searchv1alpha1.SearchCluster) (*Bundle, error) {
	spec := &cluster.Spec
	logger = logger.WithValues("workload", spec.WorkloadName(), "namespace", m.identity.ReleaseNamespace)
	metrics := NewCompositionMetrics(m.identity.ReleaseNamespace, spec.NodeGroup)

	bundle, catalog, err := m.compose(logger, cluster)
	if err != nil {
		reason := operatorerrors.Reason(err)
		metrics.RecordError(reason)
		logging.LogCompositionFailure(logger, err, logging.EventCompositionFailed, map[string]string{
			"reason": reason,
		})
		return nil, err
	}

	metrics.RecordSuccess(catalog.Len())

	fields := map[string]string{
		"statefulSet":  bundle.StatefulSet.Name,
		"volumes":      strings.Join(catalog.Names(), ","),
		"dependencies": strconv.Itoa(len(bundle.Dependencies)),
	}
	if bundle.ConfigMap != nil {
		fields["configMap"] = bundle.ConfigMap.Name
	}
	logging.LogCompositionEvent(logger, logging.EventWorkloadComposed, fields)

	return bundle, nil
}

func (m *Manager) compose(logger logr.Logger, cluster *searchv1alpha1.SearchCluster) (*Bundle, *VolumeCatalog, error) {
	if errs := cluster.Validate(); len(errs) > 0 {
		return nil, nil, operatorerrors.WrapPermanentConfig(errs.ToAggregate())
	}

	spec := &cluster.Spec
	comp, err := NewFeatureComposer(logger, m.identity, spec).Compose()
	if err != nil {
		return nil, nil, err
	}

	statefulSet, err := m.assembler.Assemble(spec, comp)
	if err != nil {
		return nil, nil, err
	}

	if ref := RefFor(statefulSet); ref != comp.Workload {
		return nil, nil, fmt.Errorf("assembled %s does not match composed workload %s", ref, comp.Workload)
	}

	bundle := &Bundle{
		StatefulSet:  statefulSet,
		ConfigMap:    comp.ConfigMap,
		Dependencies: comp.Dependencies.Edges(),
		graph:        comp.Dependencies,
	}

	// Resolving the order up front surfaces cycles as composition errors.
	if _, err := bundle.Objects(); err != nil {
		return nil, nil, operatorerrors.NewCompositionError("", "", err)
	}

	return bundle, comp.Catalog, nil
}
