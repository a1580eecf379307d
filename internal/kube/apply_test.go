package kube

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	operatorerrors "github.com/dc-tec/searchcluster-composer/internal/errors"
)

// recordingApplier records the names of applied objects and fails the
// first failures[name] calls for that name with failWith.
type recordingApplier struct {
	applied  []string
	calls    map[string]int
	failures map[string]int
	failWith error
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{calls: map[string]int{}, failures: map[string]int{}}
}

func (r *recordingApplier) Apply(_ context.Context, obj runtime.ApplyConfiguration, opts ...client.ApplyOption) error {
	named, ok := obj.(interface {
		GetName() string
		GetKind() string
	})
	if !ok {
		return errors.New("unexpected apply configuration type")
	}
	key := named.GetKind() + "/" + named.GetName()
	r.calls[key]++
	if r.calls[key] <= r.failures[key] {
		return r.failWith
	}
	r.applied = append(r.applied, key)
	return nil
}

type schemeResolver struct{}

func (schemeResolver) GroupVersionKindFor(obj runtime.Object) (schema.GroupVersionKind, error) {
	gvks, _, err := clientgoscheme.Scheme.ObjectKinds(obj)
	if err != nil {
		return schema.GroupVersionKind{}, err
	}
	return gvks[0], nil
}

func testConfigMap() *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: "es-master-config", Namespace: "search"},
		Data:       map[string]string{"elasticsearch.yml": "a: 1\n"},
	}
}

func testStatefulSet() *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
		ObjectMeta: metav1.ObjectMeta{Name: "es-master", Namespace: "search"},
		Spec: appsv1.StatefulSetSpec{
			Replicas:    ptr.To(int32(3)),
			ServiceName: "es-master-headless",
			Selector:    &metav1.LabelSelector{MatchLabels: map[string]string{"app": "es-master"}},
		},
	}
}

var _ = Describe("ToApplyConfiguration", func() {
	It("rejects nil objects", func() {
		_, err := ToApplyConfiguration(nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("requires a resolver when the GVK is unset", func() {
		cm := testConfigMap()
		cm.TypeMeta = metav1.TypeMeta{}

		_, err := ToApplyConfiguration(cm, nil)
		Expect(err).To(MatchError(ContainSubstring("resolver is required")))
	})

	It("resolves a missing GVK through the resolver", func() {
		cm := testConfigMap()
		cm.TypeMeta = metav1.TypeMeta{}

		cfg, err := ToApplyConfiguration(cm, schemeResolver{})
		Expect(err).NotTo(HaveOccurred())

		named, ok := cfg.(interface{ GetKind() string })
		Expect(ok).To(BeTrue())
		Expect(named.GetKind()).To(Equal("ConfigMap"))
	})
})

var _ = Describe("ApplyInOrder", func() {
	var (
		ctx     context.Context
		applier *recordingApplier
	)

	BeforeEach(func() {
		ctx = context.Background()
		applier = newRecordingApplier()
	})

	It("applies objects in the given order", func() {
		objects := []client.Object{testConfigMap(), testStatefulSet()}

		Expect(ApplyInOrder(ctx, logr.Discard(), applier, nil, nil, objects)).To(Succeed())
		Expect(applier.applied).To(Equal([]string{"ConfigMap/es-master-config", "StatefulSet/es-master"}))
	})

	It("retries transient failures", func() {
		applier.failWith = apierrors.NewServiceUnavailable("apiserver restarting")
		applier.failures["ConfigMap/es-master-config"] = 2

		Expect(ApplyInOrder(ctx, logr.Discard(), applier, nil, nil, []client.Object{testConfigMap(), testStatefulSet()})).To(Succeed())
		Expect(applier.calls["ConfigMap/es-master-config"]).To(Equal(3))
		Expect(applier.applied).To(Equal([]string{"ConfigMap/es-master-config", "StatefulSet/es-master"}))
	})

	It("stops at the first permanent failure", func() {
		applier.failWith = apierrors.NewForbidden(schema.GroupResource{Resource: "configmaps"}, "es-master-config", errors.New("denied"))
		applier.failures["ConfigMap/es-master-config"] = 1

		err := ApplyInOrder(ctx, logr.Discard(), applier, nil, nil, []client.Object{testConfigMap(), testStatefulSet()})

		Expect(err).To(MatchError(ContainSubstring("failed to apply ConfigMap search/es-master-config")))
		Expect(apierrors.IsForbidden(errors.Unwrap(err))).To(BeTrue())
		Expect(applier.calls["ConfigMap/es-master-config"]).To(Equal(1))
		Expect(applier.applied).To(BeEmpty(), "the dependent StatefulSet must not be applied")
	})

	It("classifies exhausted retries as transient", func() {
		applier.failWith = apierrors.NewTooManyRequests("slow down", 1)
		applier.failures["StatefulSet/es-master"] = 100

		err := ApplyInOrder(ctx, logr.Discard(), applier, nil, nil, []client.Object{testStatefulSet()})

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, operatorerrors.ErrTransientKubernetesAPI)).To(BeTrue())
	})

	It("takes a limiter token for every attempt", func() {
		applier.failWith = apierrors.NewServiceUnavailable("apiserver restarting")
		applier.failures["ConfigMap/es-master-config"] = 1
		limiter := rate.NewLimiter(rate.Every(time.Hour), 3)

		Expect(ApplyInOrder(ctx, logr.Discard(), applier, nil, limiter, []client.Object{testConfigMap(), testStatefulSet()})).To(Succeed())
		Expect(limiter.Tokens()).To(BeNumerically("<", 0.01))
	})

	It("does not apply anything once the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := ApplyInOrder(cancelled, logr.Discard(), applier, nil, NewApplyLimiter(0, 0), []client.Object{testConfigMap()})

		Expect(err).To(MatchError(context.Canceled))
		Expect(applier.applied).To(BeEmpty())
	})
})

var _ = Describe("NewApplyLimiter", func() {
	It("falls back to defaults", func() {
		limiter := NewApplyLimiter(-1, 0)
		Expect(float64(limiter.Limit())).To(Equal(float64(defaultApplyQPS)))
		Expect(limiter.Burst()).To(Equal(defaultApplyBurst))
	})

	It("keeps explicit values", func() {
		limiter := NewApplyLimiter(20, 40)
		Expect(float64(limiter.Limit())).To(Equal(20.0))
		Expect(limiter.Burst()).To(Equal(40))
	})
})
