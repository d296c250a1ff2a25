// Package vectortest provides shared ginkgo specs that every vector.Driver
// implementation must pass. Drivers are expected to hold 4-dimensional vectors.
package vectortest

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// Dimensions is the vector size used by the conformance specs.
const Dimensions = 4

func unit(i int) []float32 {
	v := make([]float32, Dimensions)
	v[i%Dimensions] = 1
	return v
}

// DescribeDriver registers the conformance specs against drivers built by newDriver.
func DescribeDriver(name string, newDriver func() vector.Driver) {
	Describe(name+" conformance", func() {
		var (
			driver vector.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
			Expect(driver.EnsureReady(ctx)).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("is ready more than once", func() {
			Expect(driver.EnsureReady(ctx)).To(Succeed())
		})

		Describe("Upsert and Fetch", func() {
			It("round-trips values and metadata", func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "t1", Values: unit(0), Metadata: vector.Metadata{"role": "user", "content": "hello"}},
				})).To(Succeed())

				got, err := driver.Fetch(ctx, "ns-a", []string{"t1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveKey("t1"))
				Expect(got["t1"].Values).To(Equal(unit(0)))
				Expect(got["t1"].Metadata).To(HaveKeyWithValue("role", "user"))
				Expect(got["t1"].Metadata).To(HaveKeyWithValue("content", "hello"))
			})

			It("replaces a record with the same id", func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "t1", Values: unit(0), Metadata: vector.Metadata{"content": "old"}},
				})).To(Succeed())
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "t1", Values: unit(1), Metadata: vector.Metadata{"content": "new"}},
				})).To(Succeed())

				got, err := driver.Fetch(ctx, "ns-a", []string{"t1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(got["t1"].Values).To(Equal(unit(1)))
				Expect(got["t1"].Metadata).To(HaveKeyWithValue("content", "new"))

				stats, err := driver.Stats(ctx, "ns-a")
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Count).To(Equal(1))
			})

			It("omits unknown ids", func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "t1", Values: unit(0), Metadata: vector.Metadata{"content": "x"}},
				})).To(Succeed())

				got, err := driver.Fetch(ctx, "ns-a", []string{"t1", "missing"})
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(1))
			})

			It("accepts an empty batch", func() {
				Expect(driver.Upsert(ctx, "ns-a", nil)).To(Succeed())
			})

			It("keeps namespaces apart", func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "shared", Values: unit(0), Metadata: vector.Metadata{"content": "a"}},
				})).To(Succeed())
				Expect(driver.Upsert(ctx, "ns-b", []vector.Record{
					{ID: "shared", Values: unit(1), Metadata: vector.Metadata{"content": "b"}},
				})).To(Succeed())

				a, err := driver.Fetch(ctx, "ns-a", []string{"shared"})
				Expect(err).NotTo(HaveOccurred())
				Expect(a["shared"].Metadata).To(HaveKeyWithValue("content", "a"))

				b, err := driver.Fetch(ctx, "ns-b", []string{"shared"})
				Expect(err).NotTo(HaveOccurred())
				Expect(b["shared"].Metadata).To(HaveKeyWithValue("content", "b"))
			})
		})

		Describe("ListIDs", func() {
			It("pages through every id exactly once", func() {
				records := make([]vector.Record, 0, 5)
				for i := range 5 {
					records = append(records, vector.Record{
						ID:       fmt.Sprintf("t%d", i),
						Values:   unit(i),
						Metadata: vector.Metadata{"content": fmt.Sprint(i)},
					})
				}
				Expect(driver.Upsert(ctx, "ns-a", records)).To(Succeed())

				var (
					seen   []string
					cursor string
					pages  int
				)
				for {
					ids, next, err := driver.ListIDs(ctx, "ns-a", cursor, 2)
					Expect(err).NotTo(HaveOccurred())
					Expect(len(ids)).To(BeNumerically("<=", 2))
					seen = append(seen, ids...)
					pages++
					if next == "" {
						break
					}
					cursor = next
					Expect(pages).To(BeNumerically("<", 10))
				}

				Expect(seen).To(ConsistOf("t0", "t1", "t2", "t3", "t4"))
			})

			It("returns nothing for an unknown namespace", func() {
				ids, next, err := driver.ListIDs(ctx, "nobody", "", 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(BeEmpty())
				Expect(next).To(BeEmpty())
			})
		})

		Describe("Query", func() {
			BeforeEach(func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "x", Values: unit(0), Metadata: vector.Metadata{"content": "x"}},
					{ID: "y", Values: unit(1), Metadata: vector.Metadata{"content": "y"}},
					{ID: "xy", Values: []float32{0.8, 0.6, 0, 0}, Metadata: vector.Metadata{"content": "xy"}},
				})).To(Succeed())
				Expect(driver.Upsert(ctx, "ns-b", []vector.Record{
					{ID: "other", Values: unit(0), Metadata: vector.Metadata{"content": "other"}},
				})).To(Succeed())
			})

			It("ranks by cosine similarity", func() {
				matches, err := driver.Query(ctx, "ns-a", unit(0), 3)
				Expect(err).NotTo(HaveOccurred())
				Expect(matches).To(HaveLen(3))
				Expect(matches[0].ID).To(Equal("x"))
				Expect(matches[0].Score).To(BeNumerically("~", 1.0, 1e-3))
				Expect(matches[1].ID).To(Equal("xy"))
				Expect(matches[1].Score).To(BeNumerically("~", 0.8, 1e-3))
				Expect(matches[2].ID).To(Equal("y"))
				Expect(matches[0].Metadata).To(HaveKeyWithValue("content", "x"))
			})

			It("limits results to topK", func() {
				matches, err := driver.Query(ctx, "ns-a", unit(0), 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(matches).To(HaveLen(1))
			})

			It("clamps topK to the namespace size", func() {
				matches, err := driver.Query(ctx, "ns-b", unit(0), 8)
				Expect(err).NotTo(HaveOccurred())
				Expect(matches).To(HaveLen(1))
				Expect(matches[0].ID).To(Equal("other"))
			})

			It("returns nothing for an unknown namespace", func() {
				matches, err := driver.Query(ctx, "nobody", unit(0), 8)
				Expect(err).NotTo(HaveOccurred())
				Expect(matches).To(BeEmpty())
			})
		})

		Describe("DeleteNamespace and Stats", func() {
			It("reports count and dimensions", func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "a", Values: unit(0), Metadata: vector.Metadata{"content": "a"}},
					{ID: "b", Values: unit(1), Metadata: vector.Metadata{"content": "b"}},
				})).To(Succeed())

				stats, err := driver.Stats(ctx, "ns-a")
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Namespace).To(Equal("ns-a"))
				Expect(stats.Count).To(Equal(2))
				Expect(stats.Dimensions).To(Equal(Dimensions))
			})

			It("removes only the deleted namespace", func() {
				Expect(driver.Upsert(ctx, "ns-a", []vector.Record{
					{ID: "a", Values: unit(0), Metadata: vector.Metadata{"content": "a"}},
				})).To(Succeed())
				Expect(driver.Upsert(ctx, "ns-b", []vector.Record{
					{ID: "b", Values: unit(1), Metadata: vector.Metadata{"content": "b"}},
				})).To(Succeed())

				Expect(driver.DeleteNamespace(ctx, "ns-a")).To(Succeed())

				a, err := driver.Stats(ctx, "ns-a")
				Expect(err).NotTo(HaveOccurred())
				Expect(a.Count).To(Equal(0))

				b, err := driver.Stats(ctx, "ns-b")
				Expect(err).NotTo(HaveOccurred())
				Expect(b.Count).To(Equal(1))
			})

			It("tolerates deleting an unknown namespace", func() {
				Expect(driver.DeleteNamespace(ctx, "nobody")).To(Succeed())
			})
		})
	})
}
