package apiclient_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/apiclient"
	"github.com/papercomputeco/chatmerge/pkg/config"
)

var _ = Describe("Resolve", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatmerge-client-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		setEnv("CHATMERGE_CLIENT_API_TARGET", "")
		Expect(os.Unsetenv("CHATMERGE_CLIENT_API_TARGET")).To(Succeed())

		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfger.SetConfigValue("client.api_target", "http://from-config:8081")).To(Succeed())
	})

	It("uses the config file by default", func() {
		opts, err := apiclient.Resolve(tmpDir, "http://flag-default:8081", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(opts.Target).To(Equal("http://from-config:8081"))
	})

	It("lets the environment override the config file", func() {
		setEnv("CHATMERGE_CLIENT_API_TARGET", "http://from-env:8081")

		opts, err := apiclient.Resolve(tmpDir, "http://flag-default:8081", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(opts.Target).To(Equal("http://from-env:8081"))
	})

	It("lets an explicit flag override everything", func() {
		setEnv("CHATMERGE_CLIENT_API_TARGET", "http://from-env:8081")

		opts, err := apiclient.Resolve(tmpDir, "http://from-flag:8081", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(opts.Target).To(Equal("http://from-flag:8081"))
	})
})
