package worker_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/storage"
	testutils "github.com/papercomputeco/chatmerge/pkg/utils/test"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	"github.com/papercomputeco/chatmerge/pkg/vector/inmemory"
	"github.com/papercomputeco/chatmerge/pkg/worker"
)

func turn(id, chat, role, content string) *storage.Turn {
	return &storage.Turn{ID: id, ConversationID: chat, Role: role, Content: content}
}

var _ = Describe("Worker Pool", func() {
	var (
		ctx      context.Context
		vectors  *inmemory.Driver
		embedder *testutils.MockEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		vectors = inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder()
	})

	newPool := func(resolver vector.Resolver) *worker.Pool {
		wp, err := worker.NewPool(&worker.Config{
			Vectors:  resolver,
			Embedder: embedder,
		})
		Expect(err).NotTo(HaveOccurred())
		return wp
	}

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp := newPool(testutils.StaticResolver{Driver: vectors})
			Expect(wp.Enqueue(worker.IndexJob("chat-1", turn("t1", "chat-1", "user", "hello")))).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			resolver := newBlockingResolver(vectors)

			wp, err := worker.NewPool(&worker.Config{
				Vectors:    resolver,
				Embedder:   embedder,
				NumWorkers: 1,
				QueueSize:  1,
			})
			Expect(err).NotTo(HaveOccurred())

			// The first job parks the only worker, the second fills the queue.
			Expect(wp.Enqueue(worker.DeleteJob("a"))).To(BeTrue())
			Eventually(resolver.started).Should(BeClosed())
			Expect(wp.Enqueue(worker.DeleteJob("b"))).To(BeTrue())
			Expect(wp.Enqueue(worker.DeleteJob("c"))).To(BeFalse())

			close(resolver.release)
			wp.Close()
		})

		It("drops jobs after Close instead of panicking", func() {
			wp := newPool(testutils.StaticResolver{Driver: vectors})
			wp.Close()

			var queued bool
			Expect(func() { queued = wp.Enqueue(worker.DeleteJob("late")) }).NotTo(Panic())
			Expect(queued).To(BeFalse())
		})
	})

	Describe("index jobs", func() {
		It("upserts one record per turn keyed by turn ID", func() {
			wp := newPool(testutils.StaticResolver{Driver: vectors})
			embedder.Set("hello", []float32{1, 0, 0, 0})

			wp.Enqueue(worker.IndexJob("chat-1",
				turn("t1", "chat-1", storage.RoleUser, "hello"),
				turn("t2", "chat-1", storage.RoleAssistant, "hi there"),
			))
			wp.Close()

			got, err := vectors.Fetch(ctx, "chat-1", []string{"t1", "t2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got["t1"].Values).To(Equal([]float32{1, 0, 0, 0}))
			Expect(got["t1"].Metadata).To(Equal(vector.Metadata{
				vector.MetaChatID:         "chat-1",
				vector.MetaRole:           storage.RoleUser,
				vector.MetaContent:        "hello",
				vector.MetaTurnID:         "t1",
				vector.MetaHasAttachments: "false",
			}))
			Expect(got["t2"].Metadata[vector.MetaRole]).To(Equal(storage.RoleAssistant))
		})

		It("skips turns with no text", func() {
			wp := newPool(testutils.StaticResolver{Driver: vectors})
			wp.Enqueue(worker.IndexJob("chat-1", turn("t1", "chat-1", "user", "   "), nil))
			wp.Close()

			stats, err := vectors.Stats(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(Equal(0))
			Expect(embedder.Calls()).To(BeEmpty())
		})

		It("skips silently when the vector store is not configured", func() {
			wp := newPool(testutils.StaticResolver{})
			wp.Enqueue(worker.IndexJob("chat-1", turn("t1", "chat-1", "user", "hello")))
			wp.Close()

			var reported []error
			for err := range wp.Errors() {
				reported = append(reported, err)
			}
			Expect(reported).To(BeEmpty())
		})

		It("reports embedding failures on the error channel", func() {
			embedder.FailAll = true
			wp := newPool(testutils.StaticResolver{Driver: vectors})
			wp.Enqueue(worker.IndexJob("chat-1", turn("t1", "chat-1", "user", "hello")))
			wp.Close()

			var reported []error
			for err := range wp.Errors() {
				reported = append(reported, err)
			}
			Expect(reported).To(HaveLen(1))
			Expect(reported[0]).To(MatchError(vector.ErrEmbedding))

			var jobErr *worker.JobError
			Expect(errors.As(reported[0], &jobErr)).To(BeTrue())
			Expect(jobErr.Job.Namespace).To(Equal("chat-1"))
		})

		It("reports upsert failures on the error channel", func() {
			failing := testutils.NewFailingVectorDriver(vectors)
			failing.FailUpsert.Store(true)

			wp := newPool(testutils.StaticResolver{Driver: failing})
			wp.Enqueue(worker.IndexJob("chat-1", turn("t1", "chat-1", "user", "hello")))
			wp.Close()

			err := <-wp.Errors()
			Expect(err).To(MatchError(testutils.ErrInjected))
		})
	})

	Describe("delete jobs", func() {
		It("removes the namespace", func() {
			Expect(vectors.Upsert(ctx, "chat-1", []vector.Record{{ID: "t1", Values: []float32{1, 0}}})).To(Succeed())

			wp := newPool(testutils.StaticResolver{Driver: vectors})
			wp.Enqueue(worker.DeleteJob("chat-1"))
			wp.Close()

			stats, err := vectors.Stats(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(Equal(0))
		})
	})

	It("can be closed more than once", func() {
		wp := newPool(testutils.StaticResolver{Driver: vectors})
		wp.Close()
		Expect(wp.Close).NotTo(Panic())
	})
})

// blockingResolver parks the resolving worker until release is closed.
type blockingResolver struct {
	driver  vector.Driver
	release chan struct{}
	started chan struct{}
	once    *sync.Once
}

func newBlockingResolver(driver vector.Driver) blockingResolver {
	return blockingResolver{
		driver:  driver,
		release: make(chan struct{}),
		started: make(chan struct{}),
		once:    &sync.Once{},
	}
}

func (b blockingResolver) Resolve(context.Context) (vector.Driver, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.driver, nil
}
