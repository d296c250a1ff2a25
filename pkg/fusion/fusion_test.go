package fusion_test

import (
	"context"
	"fmt"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/fusion"
	testutils "github.com/papercomputeco/chatmerge/pkg/utils/test"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	"github.com/papercomputeco/chatmerge/pkg/vector/inmemory"
)

func basis(dims, i int) []float32 {
	v := make([]float32, dims)
	v[i] = 1
	return v
}

func record(id, content string, values []float32) vector.Record {
	return vector.Record{
		ID:     id,
		Values: values,
		Metadata: vector.Metadata{
			vector.MetaContent: content,
			vector.MetaRole:    "user",
		},
	}
}

func readAll(ctx context.Context, d vector.Driver, ns string) map[string]vector.Record {
	ids, next, err := d.ListIDs(ctx, ns, "", 0)
	Expect(err).NotTo(HaveOccurred())
	Expect(next).To(BeEmpty())
	out, err := d.Fetch(ctx, ns, ids)
	Expect(err).NotTo(HaveOccurred())
	return out
}

// randomUnit draws a gaussian vector. In high dimensions independent draws
// are nearly orthogonal.
func randomUnit(r *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return vector.Normalize(v)
}

func jitter(r *rand.Rand, v []float32, scale float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] + float32(r.NormFloat64()*scale)
	}
	return vector.Normalize(out)
}

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		engine *fusion.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		engine = fusion.NewEngine(fusion.Config{Driver: driver})
	})

	seed := func(ns string, recs ...vector.Record) {
		Expect(driver.Upsert(ctx, ns, recs)).To(Succeed())
	}

	Describe("Fuse", func() {
		It("keeps every vector of disjoint sources", func() {
			seed("a", record("1", "alpha", basis(4, 0)), record("2", "beta", basis(4, 1)))
			seed("b", record("1", "gamma", basis(4, 2)), record("2", "delta", basis(4, 3)))

			result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(fusion.Result{Fused: 0, Kept: 2, Total: 4}))

			stored := readAll(ctx, driver, "t")
			Expect(stored).To(HaveLen(4))
			Expect(stored).To(HaveKey("a_1"))
			Expect(stored).To(HaveKey("b_2"))
		})

		It("collapses identical sources", func() {
			recs := []vector.Record{
				record("1", "x", basis(4, 0)),
				record("2", "y", basis(4, 1)),
				record("3", "z", basis(4, 2)),
			}
			seed("a", recs...)
			seed("b", recs...)

			result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(fusion.Result{Fused: 3, Kept: 0, Total: 3}))
		})

		It("writes kept provenance on top of the original metadata", func() {
			seed("a", record("1", "alpha", basis(4, 0)))

			_, err := engine.Fuse(ctx, []string{"a"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())

			rec := readAll(ctx, driver, "t")["a_1"]
			Expect(rec.Metadata).To(Equal(vector.Metadata{
				vector.MetaContent:      "alpha",
				vector.MetaRole:         "user",
				vector.MetaType:         vector.TypeKept,
				vector.MetaSourceChatID: "a",
				vector.MetaChatID:       "t",
			}))
		})

		It("replaces matches with an averaged fused entry", func() {
			seed("a", record("1", "cats purr", []float32{1, 0, 0, 0}))
			seed("b", record("9", "cats meow", []float32{0.9, 0.1, 0, 0}))

			result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", 0.8)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(fusion.Result{Fused: 1, Kept: 0, Total: 1}))

			rec := readAll(ctx, driver, "t")["a_1"]
			Expect(rec.Metadata).To(Equal(vector.Metadata{
				vector.MetaType:          vector.TypeFused,
				vector.MetaContent:       "[A]: cats purr\n[B]: cats meow",
				vector.MetaSourceAChatID: "a",
				vector.MetaSourceBChatID: "b",
				vector.MetaChatID:        "t",
			}))

			want := vector.Average([]float32{1, 0, 0, 0}, []float32{0.9, 0.1, 0, 0})
			for i := range want {
				Expect(rec.Values[i]).To(BeNumerically("~", want[i], 1e-6))
			}
			Expect(vector.Cosine(rec.Values, rec.Values)).To(BeNumerically("~", 1, 1e-6))
		})

		It("fuses against vectors appended earlier in the same source", func() {
			seed("a", record("1", "far", basis(4, 0)))
			seed("b", record("1", "first", basis(4, 1)), record("2", "again", basis(4, 1)))

			result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(fusion.Result{Fused: 1, Kept: 1, Total: 2}))

			rec := readAll(ctx, driver, "t")["b_1"]
			Expect(rec.Metadata[vector.MetaType]).To(Equal(vector.TypeFused))
			Expect(rec.Metadata[vector.MetaSourceAChatID]).To(Equal("a"))
			Expect(rec.Metadata[vector.MetaSourceBChatID]).To(Equal("b"))
		})

		It("seeds from the first non-empty source", func() {
			seed("b", record("1", "only", basis(4, 0)))
			seed("c", record("1", "same", basis(4, 0)))

			result, err := engine.Fuse(ctx, []string{"empty", "b", "c"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(Equal(1))

			rec := readAll(ctx, driver, "t")["b_1"]
			Expect(rec.Metadata[vector.MetaSourceAChatID]).To(Equal("b"))
			Expect(rec.Metadata[vector.MetaSourceBChatID]).To(Equal("c"))
		})

		It("returns the zero result without touching the target when every source is empty", func() {
			failing := testutils.NewFailingVectorDriver(driver)
			engine = fusion.NewEngine(fusion.Config{Driver: failing})

			result, err := engine.Fuse(ctx, []string{"x", "y"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(fusion.Result{}))
			Expect(failing.UpsertCalls.Load()).To(BeZero())
		})

		It("treats zero vectors as dissimilar", func() {
			seed("a", record("1", "zero", []float32{0, 0, 0, 0}))
			seed("b", record("1", "zero too", []float32{0, 0, 0, 0}))

			result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(fusion.Result{Fused: 0, Kept: 1, Total: 2}))
		})

		It("uses the default threshold when none is given", func() {
			seed("a", record("1", "a", []float32{1, 0, 0, 0}))
			// cosine 0.8, just under the default
			seed("b", record("1", "b", []float32{0.8, 0.6, 0, 0}))

			result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Kept).To(Equal(1))
		})

		It("pages sources and batches upserts", func() {
			recs := make([]vector.Record, 0, 450)
			for i := range 450 {
				recs = append(recs, record(fmt.Sprintf("%03d", i), "c", basis(450, i)))
			}
			seed("big", recs...)

			failing := testutils.NewFailingVectorDriver(driver)
			engine = fusion.NewEngine(fusion.Config{Driver: failing})

			result, err := engine.Fuse(ctx, []string{"big"}, "t", fusion.DefaultThreshold)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(Equal(450))
			Expect(failing.UpsertCalls.Load()).To(BeEquivalentTo(5))

			stats, err := driver.Stats(ctx, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(Equal(450))
		})

		It("aborts on a fetch error without writing", func() {
			seed("a", record("1", "x", basis(4, 0)))
			failing := testutils.NewFailingVectorDriver(driver)
			failing.FailFetch.Store(true)
			engine = fusion.NewEngine(fusion.Config{Driver: failing})

			_, err := engine.Fuse(ctx, []string{"a", "b"}, "t", fusion.DefaultThreshold)
			Expect(err).To(MatchError(testutils.ErrInjected))
			Expect(err.Error()).To(ContainSubstring("fetching vectors of a"))
			Expect(failing.UpsertCalls.Load()).To(BeZero())
		})

		It("wraps upsert errors", func() {
			seed("a", record("1", "x", basis(4, 0)))
			failing := testutils.NewFailingVectorDriver(driver)
			failing.FailUpsert.Store(true)
			engine = fusion.NewEngine(fusion.Config{Driver: failing})

			_, err := engine.Fuse(ctx, []string{"a"}, "t", fusion.DefaultThreshold)
			Expect(err).To(MatchError(testutils.ErrInjected))
			Expect(err.Error()).To(ContainSubstring("upserting vectors into t"))
		})

		Context("properties", func() {
			const dims = 64

			It("stays within [max(a,b), a+b] and accounts for every vector", func() {
				r := rand.New(rand.NewPCG(7, 11))

				for trial := range 20 {
					ctx := context.Background()
					driver := inmemory.NewDriver()
					engine := fusion.NewEngine(fusion.Config{Driver: driver})

					nA := 1 + r.IntN(15)
					base := make([][]float32, nA)
					recsA := make([]vector.Record, nA)
					for i := range nA {
						base[i] = randomUnit(r, dims)
						recsA[i] = record(fmt.Sprintf("a%d", i), "a", base[i])
					}

					// b holds noisy copies of a prefix of a plus fresh vectors
					copies := r.IntN(nA + 1)
					fresh := r.IntN(15)
					recsB := make([]vector.Record, 0, copies+fresh)
					for i := range copies {
						recsB = append(recsB, record(fmt.Sprintf("c%d", i), "b", jitter(r, base[i], 0.01)))
					}
					for i := range fresh {
						recsB = append(recsB, record(fmt.Sprintf("f%d", i), "b", randomUnit(r, dims)))
					}
					r.Shuffle(len(recsB), func(i, j int) { recsB[i], recsB[j] = recsB[j], recsB[i] })

					Expect(driver.Upsert(ctx, "a", recsA)).To(Succeed())
					Expect(driver.Upsert(ctx, "b", recsB)).To(Succeed())

					result, err := engine.Fuse(ctx, []string{"a", "b"}, "t", fusion.DefaultThreshold)
					Expect(err).NotTo(HaveOccurred(), "trial %d", trial)

					nB := len(recsB)
					Expect(result.Fused).To(Equal(copies), "trial %d", trial)
					Expect(result.Kept).To(Equal(fresh), "trial %d", trial)
					Expect(result.Fused+result.Kept).To(Equal(nB))
					Expect(result.Total).To(Equal(nA + result.Kept))
					Expect(result.Total).To(BeNumerically(">=", max(nA, nB)))
					Expect(result.Total).To(BeNumerically("<=", nA+nB))

					stats, err := driver.Stats(ctx, "t")
					Expect(err).NotTo(HaveOccurred())
					Expect(stats.Count).To(Equal(result.Total))
				}
			})

			It("is idempotent on its own output", func() {
				r := rand.New(rand.NewPCG(3, 5))
				recsA := make([]vector.Record, 10)
				recsB := make([]vector.Record, 8)
				for i := range recsA {
					recsA[i] = record(fmt.Sprintf("a%d", i), "a", randomUnit(r, dims))
				}
				for i := range recsB {
					recsB[i] = record(fmt.Sprintf("b%d", i), "b", randomUnit(r, dims))
				}
				seed("a", recsA...)
				seed("b", recsB...)

				first, err := engine.Fuse(ctx, []string{"a", "b"}, "t1", fusion.DefaultThreshold)
				Expect(err).NotTo(HaveOccurred())

				again, err := engine.Fuse(ctx, []string{"t1", "t1"}, "t2", fusion.DefaultThreshold)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Total).To(Equal(first.Total))
				Expect(again.Kept).To(BeZero())
				Expect(again.Fused).To(Equal(first.Total))
			})
		})
	})

	Describe("Union", func() {
		It("copies every vector with provenance", func() {
			a := record("1", "x", basis(4, 0))
			a.Metadata[vector.MetaChatID] = "orig-a"
			seed("a", a)
			seed("b", record("1", "x", basis(4, 0)))

			copied, err := engine.Union(ctx, []string{"a", "b"}, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(copied).To(Equal(2))

			stored := readAll(ctx, driver, "t")
			Expect(stored).To(HaveLen(2))
			Expect(stored["a_1"].Metadata).To(Equal(vector.Metadata{
				vector.MetaContent:        "x",
				vector.MetaRole:           "user",
				vector.MetaSourceChatID:   "a",
				vector.MetaOriginalChatID: "orig-a",
				vector.MetaChatID:         "t",
			}))
			Expect(stored["b_1"].Metadata[vector.MetaOriginalChatID]).To(Equal("b"))
		})

		It("ignores unknown sources", func() {
			seed("a", record("1", "x", basis(4, 0)))

			copied, err := engine.Union(ctx, []string{"a", "missing"}, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(copied).To(Equal(1))
		})

		It("fails when nothing could be copied", func() {
			seed("a", record("1", "x", basis(4, 0)))
			failing := testutils.NewFailingVectorDriver(driver)
			failing.FailUpsert.Store(true)
			engine = fusion.NewEngine(fusion.Config{Driver: failing})

			copied, err := engine.Union(ctx, []string{"a"}, "t")
			Expect(err).To(MatchError(testutils.ErrInjected))
			Expect(copied).To(BeZero())
		})

		It("copies nothing from empty sources without error", func() {
			copied, err := engine.Union(ctx, []string{"x"}, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(copied).To(BeZero())
		})
	})
})
