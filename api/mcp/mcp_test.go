package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/api/mcp"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/retrieval"
	"github.com/papercomputeco/chatmerge/pkg/storage/inmemory"
)

var _ = Describe("MCP Server", func() {
	var (
		server   *mcp.Server
		driver   *inmemory.Driver
		searcher *retrieval.Assembler
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		searcher = retrieval.NewAssembler(retrieval.Config{Store: driver})

		var err error
		server, err = mcp.NewServer(mcp.Config{
			Store:    driver,
			Searcher: searcher,
			Logger:   logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when storage driver is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Searcher: searcher,
				Logger:   logger.Nop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("storage driver is required"))
		})

		It("returns an error when searcher is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Store:  driver,
				Logger: logger.Nop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("searcher is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Store:    driver,
				Searcher: searcher,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a server with valid config", func() {
			Expect(server).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("serves an empty server in noop mode", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})
	})
})
