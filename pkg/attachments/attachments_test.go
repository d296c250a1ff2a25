package attachments_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/attachments"
)

var _ = Describe("Validate", func() {
	DescribeTable("accepts supported types",
		func(mimeType string) {
			Expect(attachments.Validate("f", mimeType, 10)).To(Succeed())
		},
		Entry("png", "image/png"),
		Entry("pdf", "application/pdf"),
		Entry("markdown", "text/markdown"),
		Entry("zip", "application/zip"),
	)

	It("rejects unsupported types", func() {
		err := attachments.Validate("a.exe", "application/x-msdownload", 10)
		Expect(err).To(MatchError(attachments.ErrTypeNotAllowed))
		Expect(err.Error()).To(ContainSubstring("File type application/x-msdownload not allowed"))
	})

	It("rejects oversized files", func() {
		err := attachments.Validate("big.txt", "text/plain", attachments.MaxFileSize+1)
		Expect(err).To(MatchError(attachments.ErrTooLarge))
		Expect(err.Error()).To(ContainSubstring("File big.txt exceeds max size of 10MB"))
	})

	It("accepts files at the size limit", func() {
		Expect(attachments.Validate("ok.txt", "text/plain", attachments.MaxFileSize)).To(Succeed())
	})
})
