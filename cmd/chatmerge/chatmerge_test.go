package chatmergecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	chatmergecmder "github.com/papercomputeco/chatmerge/cmd/chatmerge"
)

var _ = Describe("NewChatmergeCmd", func() {
	It("registers every subcommand", func() {
		cmd := chatmergecmder.NewChatmergeCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"serve", "chats", "chat", "merge", "history", "models",
			"init", "config", "auth", "version",
		))
	})

	It("has global --debug and --config-dir flags", func() {
		cmd := chatmergecmder.NewChatmergeCmd()
		debug := cmd.PersistentFlags().Lookup("debug")
		Expect(debug).NotTo(BeNil())
		Expect(debug.Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("gives subcommands access to the global flags", func() {
		cmd := chatmergecmder.NewChatmergeCmd()
		merge, _, err := cmd.Find([]string{"merge"})
		Expect(err).NotTo(HaveOccurred())
		Expect(merge.InheritedFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
