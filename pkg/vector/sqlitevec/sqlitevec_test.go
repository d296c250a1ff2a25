package sqlitevec_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	"github.com/papercomputeco/chatmerge/pkg/vector/sqlitevec"
	"github.com/papercomputeco/chatmerge/pkg/vector/vectortest"
)

var _ = Describe("Driver", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = logger.Nop()
	})

	vectortest.DescribeDriver("sqlite-vec", func() vector.Driver {
		driver, err := sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     ":memory:",
			Dimensions: vectortest.Dimensions,
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return driver
	})

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ""}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, log)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("dimensions", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.EnsureReady(context.Background())).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("rejects a record of the wrong size", func() {
			err := driver.Upsert(context.Background(), "ns", []vector.Record{
				{ID: "a", Values: []float32{1, 0}},
			})
			Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
		})

		It("rejects a query of the wrong size", func() {
			_, err := driver.Query(context.Background(), "ns", []float32{1, 0}, 3)
			Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
		})
	})

	It("persists records in a file database", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "vectors.db")

		driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: dbPath, Dimensions: 4}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.EnsureReady(ctx)).To(Succeed())
		Expect(driver.Upsert(ctx, "ns", []vector.Record{
			{ID: "a", Values: []float32{1, 0, 0, 0}, Metadata: vector.Metadata{"content": "kept"}},
		})).To(Succeed())
		Expect(driver.Close()).To(Succeed())

		reopened, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: dbPath, Dimensions: 4}, log)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()
		Expect(reopened.EnsureReady(ctx)).To(Succeed())

		got, err := reopened.Fetch(ctx, "ns", []string{"a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got["a"].Metadata).To(HaveKeyWithValue("content", "kept"))
	})
})
