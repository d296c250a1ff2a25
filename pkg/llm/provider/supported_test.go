package provider_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
)

var _ = Describe("New", func() {
	DescribeTable("builds every supported provider",
		func(name string, requiresKey bool) {
			p, err := provider.New(name, provider.Options{APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal(name))
			Expect(p.RequiresKey()).To(Equal(requiresKey))
			Expect(p.Models()).NotTo(BeEmpty())
		},
		Entry("openai", provider.OpenAI, true),
		Entry("anthropic", provider.Anthropic, true),
		Entry("gemini", provider.Gemini, true),
		Entry("ollama", provider.Ollama, false),
	)

	It("rejects unknown providers", func() {
		_, err := provider.New("cohere", provider.Options{})
		Expect(err).To(MatchError(provider.ErrUnknownProvider))
		Expect(err.Error()).To(ContainSubstring(`"cohere"`))
	})
})

var _ = Describe("RequiresKey", func() {
	It("is false only for ollama", func() {
		Expect(provider.RequiresKey(provider.Ollama)).To(BeFalse())
		Expect(provider.RequiresKey(provider.OpenAI)).To(BeTrue())
		Expect(provider.RequiresKey("unknown")).To(BeTrue())
	})
})

var _ = Describe("AllModels", func() {
	It("lists models for every provider", func() {
		models := provider.AllModels()
		Expect(models).To(HaveLen(len(provider.SupportedProviders())))
		Expect(models[provider.OpenAI]).To(ContainElement("gpt-4o"))
		Expect(models[provider.Anthropic]).To(ContainElement("claude-sonnet-4-20250514"))
		Expect(models[provider.Gemini]).To(ContainElement("gemini-2.0-flash"))
	})
})
