package sse_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/sse"
)

// drain reads every event from input.
func drain(input string) []*sse.Event {
	r := sse.NewReader(strings.NewReader(input))
	var events []*sse.Event
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, ev)
	}
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("parses a single event then reports the end", func() {
			events := drain("data: hello world\n\n")
			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("hello world"))
			Expect(events[0].Type).To(BeEmpty())
			Expect(events[0].ID).To(BeEmpty())
		})

		It("parses consecutive events", func() {
			events := drain("data: first\n\ndata: second\n\n")
			Expect(events).To(HaveLen(2))
			Expect(events[1].Data).To(Equal("second"))
		})

		It("parses event type and id", func() {
			events := drain("id: 7\nevent: content_block_delta\ndata: {\"type\":\"delta\"}\n\n")
			Expect(events).To(HaveLen(1))
			Expect(events[0].ID).To(Equal("7"))
			Expect(events[0].Type).To(Equal("content_block_delta"))
			Expect(events[0].Data).To(Equal(`{"type":"delta"}`))
		})

		It("joins multiple data lines with newline", func() {
			events := drain("data: line one\ndata: line two\n\n")
			Expect(events[0].Data).To(Equal("line one\nline two"))
		})

		It("accepts data without a space after the colon", func() {
			events := drain("data:{\"candidates\":[]}\n\n")
			Expect(events[0].Data).To(Equal(`{"candidates":[]}`))
		})

		It("ignores comments, keep-alives and unknown fields", func() {
			events := drain(": ping\n\n\nretry: 3000\nfoo: bar\ndata: hello\n\n")
			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("hello"))
		})

		It("treats a field without colon as empty", func() {
			events := drain("data\n\n")
			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(BeEmpty())
		})

		It("yields an event when the stream ends without a blank line", func() {
			events := drain("data: unterminated")
			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("unterminated"))
		})

		It("returns nothing for empty input", func() {
			Expect(drain("")).To(BeEmpty())
			Expect(drain("\n\n\n")).To(BeEmpty())
		})
	})

	Describe("NewTeeReader", func() {
		It("copies the raw stream verbatim", func() {
			input := ": comment\nevent: message_stop\ndata: {\"type\":\"message_stop\"}\n\ndata: [DONE]\n\n"
			dst := &bytes.Buffer{}
			r := sse.NewTeeReader(strings.NewReader(input), dst)

			for {
				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
			}

			Expect(dst.String()).To(Equal(input))
		})
	})
})
