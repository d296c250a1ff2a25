// Package storagetest provides shared ginkgo specs that every storage.Driver
// implementation must pass.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/storage"
)

// DescribeDriver registers the conformance specs against drivers built by newDriver.
func DescribeDriver(name string, newDriver func() storage.Driver) {
	Describe(name+" conformance", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		newConversation := func(title string) *storage.Conversation {
			c := &storage.Conversation{Title: title, Provider: "openai", Model: "gpt-4o"}
			Expect(driver.CreateConversation(ctx, c)).To(Succeed())
			return c
		}

		appendTurn := func(convID, role, content string, at time.Time) *storage.Turn {
			t := &storage.Turn{ConversationID: convID, Role: role, Content: content, CreatedAt: at}
			Expect(driver.AppendTurn(ctx, t)).To(Succeed())
			return t
		}

		Describe("conversations", func() {
			It("stamps and retrieves a conversation", func() {
				c := &storage.Conversation{
					Title:        "Trip planning",
					Provider:     "anthropic",
					Model:        "claude-sonnet-4-20250514",
					SystemPrompt: "be brief",
					Fused:        true,
				}
				Expect(driver.CreateConversation(ctx, c)).To(Succeed())
				Expect(c.ID).NotTo(BeEmpty())
				Expect(c.CreatedAt).NotTo(BeZero())

				got, err := driver.GetConversation(ctx, c.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Title).To(Equal("Trip planning"))
				Expect(got.Provider).To(Equal("anthropic"))
				Expect(got.SystemPrompt).To(Equal("be brief"))
				Expect(got.Fused).To(BeTrue())
			})

			It("returns NotFoundError for unknown conversations", func() {
				_, err := driver.GetConversation(ctx, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("updates mutable fields", func() {
				c := newConversation("before")
				c.Title = "after"
				Expect(driver.UpdateConversation(ctx, c)).To(Succeed())

				got, err := driver.GetConversation(ctx, c.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Title).To(Equal("after"))
			})

			It("fails to update an unknown conversation", func() {
				err := driver.UpdateConversation(ctx, &storage.Conversation{ID: "missing"})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("lists the most recently updated conversation first", func() {
				older := newConversation("older")
				newer := newConversation("newer")
				appendTurn(older.ID, storage.RoleUser, "bump", time.Now().UTC().Add(time.Hour))

				convs, err := driver.ListConversations(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(convs).To(HaveLen(2))
				Expect(convs[0].ID).To(Equal(older.ID))
				Expect(convs[1].ID).To(Equal(newer.ID))
			})

			It("deletes a conversation with its turns", func() {
				c := newConversation("doomed")
				t := appendTurn(c.ID, storage.RoleUser, "hello", time.Time{})

				Expect(driver.DeleteConversation(ctx, c.ID)).To(Succeed())

				_, err := driver.GetConversation(ctx, c.ID)
				Expect(storage.IsNotFound(err)).To(BeTrue())

				turns, err := driver.GetTurns(ctx, []string{t.ID})
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(BeEmpty())
			})

			It("fails to delete an unknown conversation", func() {
				Expect(storage.IsNotFound(driver.DeleteConversation(ctx, "missing"))).To(BeTrue())
			})
		})

		Describe("turns", func() {
			It("lists turns in creation order", func() {
				c := newConversation("ordered")
				base := time.Now().UTC()
				appendTurn(c.ID, storage.RoleAssistant, "second", base.Add(2*time.Second))
				appendTurn(c.ID, storage.RoleUser, "first", base.Add(time.Second))

				turns, err := driver.ListTurns(ctx, c.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(HaveLen(2))
				Expect(turns[0].Content).To(Equal("first"))
				Expect(turns[1].Content).To(Equal("second"))
			})

			It("breaks creation time ties by ID", func() {
				c := newConversation("ties")
				at := time.Now().UTC().Truncate(time.Second)
				for _, id := range []string{"turn-c", "turn-a", "turn-b"} {
					t := &storage.Turn{ID: id, ConversationID: c.ID, Role: storage.RoleUser, Content: id, CreatedAt: at}
					Expect(driver.AppendTurn(ctx, t)).To(Succeed())
				}

				for range 3 {
					turns, err := driver.ListTurns(ctx, c.ID)
					Expect(err).NotTo(HaveOccurred())
					ids := make([]string, 0, len(turns))
					for _, t := range turns {
						ids = append(ids, t.ID)
					}
					Expect(ids).To(Equal([]string{"turn-a", "turn-b", "turn-c"}))
				}
			})

			It("round-trips reasoning and origin", func() {
				c := newConversation("fields")
				t := &storage.Turn{
					ConversationID: c.ID,
					Role:           storage.RoleAssistant,
					Content:        "answer",
					Reasoning:      "thought",
					Origin:         storage.OriginMerge,
				}
				Expect(driver.AppendTurn(ctx, t)).To(Succeed())

				turns, err := driver.GetTurns(ctx, []string{t.ID, "unknown"})
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(HaveLen(1))
				Expect(turns[0].Reasoning).To(Equal("thought"))
				Expect(turns[0].Origin).To(Equal(storage.OriginMerge))
				Expect(turns[0].ConversationID).To(Equal(c.ID))
			})

			It("rejects turns for unknown conversations", func() {
				err := driver.AppendTurn(ctx, &storage.Turn{ConversationID: "missing", Role: storage.RoleUser})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("returns NotFoundError when listing an unknown conversation", func() {
				_, err := driver.ListTurns(ctx, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("attachments", func() {
			It("associates attachments with a turn", func() {
				c := newConversation("files")
				t := appendTurn(c.ID, storage.RoleUser, "see file", time.Time{})

				a := &storage.Attachment{Filename: "notes.txt", MimeType: "text/plain", Size: 5, StoragePath: "ab/notes.txt"}
				Expect(driver.CreateAttachment(ctx, a)).To(Succeed())
				Expect(a.ID).NotTo(BeEmpty())

				Expect(driver.AssociateAttachments(ctx, t.ID, []string{a.ID})).To(Succeed())

				turns, err := driver.ListTurns(ctx, c.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(turns[0].Attachments).To(HaveLen(1))
				Expect(turns[0].Attachments[0].Filename).To(Equal("notes.txt"))

				got, err := driver.GetAttachment(ctx, a.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.TurnID).To(Equal(t.ID))
				Expect(got.StoragePath).To(Equal("ab/notes.txt"))
			})

			It("skips unknown ids when fetching several attachments", func() {
				a := &storage.Attachment{Filename: "a.png", MimeType: "image/png", Size: 1, StoragePath: "a.png"}
				Expect(driver.CreateAttachment(ctx, a)).To(Succeed())

				got, err := driver.GetAttachments(ctx, []string{a.ID, "nope"})
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(1))
			})

			It("deletes attachments", func() {
				a := &storage.Attachment{Filename: "a.png", MimeType: "image/png", Size: 1, StoragePath: "a.png"}
				Expect(driver.CreateAttachment(ctx, a)).To(Succeed())
				Expect(driver.DeleteAttachment(ctx, a.ID)).To(Succeed())

				_, err := driver.GetAttachment(ctx, a.ID)
				Expect(storage.IsNotFound(err)).To(BeTrue())
				Expect(storage.IsNotFound(driver.DeleteAttachment(ctx, a.ID))).To(BeTrue())
			})
		})

		Describe("merge records", func() {
			It("lists merge records newest first", func() {
				base := time.Now().UTC()
				first := &storage.MergeRecord{
					SourceChatIDs: []string{"a", "b"},
					ResultChatID:  "ab",
					MergeProvider: "openai",
					MergeModel:    "gpt-4o",
					CreatedAt:     base,
				}
				second := &storage.MergeRecord{
					SourceChatIDs: []string{"c", "d", "e"},
					ResultChatID:  "cde",
					MergeProvider: "anthropic",
					MergeModel:    "claude-haiku-4-20250414",
					CreatedAt:     base.Add(time.Minute),
				}
				Expect(driver.CreateMergeRecord(ctx, first)).To(Succeed())
				Expect(driver.CreateMergeRecord(ctx, second)).To(Succeed())

				records, err := driver.ListMergeRecords(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
				Expect(records[0].ResultChatID).To(Equal("cde"))
				Expect(records[0].SourceChatIDs).To(Equal([]string{"c", "d", "e"}))
				Expect(records[1].ResultChatID).To(Equal("ab"))
			})
		})
	})
}
