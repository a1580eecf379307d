// Package kube turns composed workloads into Kubernetes API traffic: YAML
// documents for an external synthesis step, or ordered Server-Side Apply.
package kube

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
	"github.com/dc-tec/searchcluster-composer/internal/logging"
)

// FieldOwner is the Server-Side Apply field manager used for every object.
const FieldOwner = "searchcluster-composer"

const (
	defaultApplyQPS   = 5
	defaultApplyBurst = 10
)

// NewApplyLimiter returns the token bucket that paces apply requests.
// Non-positive values fall back to the defaults.
func NewApplyLimiter(qps float64, burst int) *rate.Limiter {
	if qps <= 0 {
		qps = defaultApplyQPS
	}
	if burst <= 0 {
		burst = defaultApplyBurst
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}

// GVKResolver is a minimal interface for resolving GroupVersionKind from objects.
// client.Client implements it.
type GVKResolver interface {
	GroupVersionKindFor(obj runtime.Object) (schema.GroupVersionKind, error)
}

// Applier applies a Server-Side Apply configuration. client.Client implements it.
type Applier interface {
	Apply(ctx context.Context, obj runtime.ApplyConfiguration, opts ...client.ApplyOption) error
}

// ToApplyConfiguration converts a client.Object to a runtime.ApplyConfiguration
// for use with client.Client.Apply().
//
// The resolver is only consulted when the object carries no GroupVersionKind;
// composed objects always set their TypeMeta, so it may be nil for them.
func ToApplyConfiguration(obj client.Object, resolver GVKResolver) (runtime.ApplyConfiguration, error) {
	if obj == nil {
		return nil, fmt.Errorf("object cannot be nil")
	}

	u, err := toUnstructured(obj, resolver)
	if err != nil {
		return nil, err
	}

	return client.ApplyConfigurationFromUnstructured(u), nil
}

func toUnstructured(obj client.Object, resolver GVKResolver) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to convert object to unstructured: %w", err)
	}

	u := &unstructured.Unstructured{Object: content}
	gvk := obj.GetObjectKind().GroupVersionKind()
	if gvk.Empty() {
		if resolver == nil {
			return nil, fmt.Errorf("resolver is required when object GVK is empty")
		}
		gvk, err = resolver.GroupVersionKindFor(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to get GVK for object: %w", err)
		}
	}
	u.SetGroupVersionKind(gvk)

	// Generated objects never carry status or server-populated metadata.
	unstructured.RemoveNestedField(u.Object, "status")
	unstructured.RemoveNestedField(u.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(u.Object, "spec", "template", "metadata", "creationTimestamp")

	return u, nil
}

// ApplyInOrder applies objects one at a time in the given order, so a caller
// passing Bundle.Objects() never creates a resource before its dependencies.
// Transient API failures are retried with backoff; the first permanent
// failure stops the sequence. Every attempt, retries included, takes a token
// from limiter; a nil limiter does not pace.
func ApplyInOrder(ctx context.Context, logger logr.Logger, applier Applier, resolver GVKResolver, limiter *rate.Limiter, objects []client.Object) error {
	applyOpts := []client.ApplyOption{
		client.ForceOwnership,
		client.FieldOwner(FieldOwner),
	}

	for _, obj := range objects {
		applyConfig, err := ToApplyConfiguration(obj, resolver)
		if err != nil {
			return fmt.Errorf("failed to convert %s/%s to ApplyConfiguration: %w", obj.GetNamespace(), obj.GetName(), err)
		}

		attempts := 0
		err = retry.OnError(retry.DefaultBackoff, operatorerrors.IsTransientKubernetesAPI, func() error {
			attempts++
			if err := ctx.Err(); err != nil {
				return err
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			return applier.Apply(ctx, applyConfig, applyOpts...)
		})
		if err != nil {
			if operatorerrors.IsTransientKubernetesAPI(err) {
				err = operatorerrors.WrapTransientKubernetesAPI(err)
			}
			return fmt.Errorf("failed to apply %s %s/%s: %w", obj.GetObjectKind().GroupVersionKind().Kind, obj.GetNamespace(), obj.GetName(), err)
		}

		logging.LogCompositionEvent(logger, logging.EventObjectApplied, map[string]string{
			"kind":      obj.GetObjectKind().GroupVersionKind().Kind,
			"namespace": obj.GetNamespace(),
			"name":      obj.GetName(),
			"attempts":  strconv.Itoa(attempts),
		})
	}

	return nil
}
