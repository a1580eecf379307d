package kube

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"
)

var _ = Describe("EncodeYAML", func() {
	It("writes one document per object in order", func() {
		var buf bytes.Buffer

		Expect(EncodeYAML(&buf, nil, []client.Object{testConfigMap(), testStatefulSet()})).To(Succeed())

		docs := strings.Split(buf.String(), "---\n")
		Expect(docs).To(HaveLen(2))

		var cm map[string]interface{}
		Expect(yaml.Unmarshal([]byte(docs[0]), &cm)).To(Succeed())
		Expect(cm).To(HaveKeyWithValue("kind", "ConfigMap"))
		Expect(cm).To(HaveKeyWithValue("apiVersion", "v1"))
		Expect(cm["data"]).To(HaveKeyWithValue("elasticsearch.yml", "a: 1\n"))

		Expect(docs[1]).To(ContainSubstring("kind: StatefulSet"))
		Expect(docs[1]).To(ContainSubstring("serviceName: es-master-headless"))
	})

	It("omits status and server-populated metadata", func() {
		var buf bytes.Buffer

		Expect(EncodeYAML(&buf, nil, []client.Object{testStatefulSet()})).To(Succeed())

		Expect(buf.String()).NotTo(ContainSubstring("status:"))
		Expect(buf.String()).NotTo(ContainSubstring("creationTimestamp"))
	})

	It("fails on objects without a resolvable kind", func() {
		cm := testConfigMap()
		cm.TypeMeta = metav1.TypeMeta{}

		var buf bytes.Buffer
		Expect(EncodeYAML(&buf, nil, []client.Object{cm})).To(MatchError(ContainSubstring("resolver is required")))
	})

	It("writes nothing for an empty list", func() {
		var buf bytes.Buffer
		Expect(EncodeYAML(&buf, nil, nil)).To(Succeed())
		Expect(buf.Len()).To(BeZero())
	})
})
