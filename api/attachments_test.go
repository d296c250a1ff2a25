package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/storage"
)

type uploadFile struct {
	name, mimeType, content string
}

func multipartRequest(files ...uploadFile) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.name))
		header.Set("Content-Type", f.mimeType)

		part, err := w.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = io.WriteString(part, f.content)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(w.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, "/api/attachments", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// upload stores a single file through the API.
func (ts *testServer) upload(name, mimeType, content string) storage.Attachment {
	resp := ts.do(multipartRequest(uploadFile{name, mimeType, content}))
	Expect(resp.StatusCode).To(Equal(http.StatusOK))

	var stored []storage.Attachment
	decodeBody(resp, &stored)
	Expect(stored).To(HaveLen(1))
	return stored[0]
}

var _ = Describe("Attachment handlers", func() {
	var ts *testServer

	BeforeEach(func() {
		ts = newTestServer(Config{}, true)
	})

	It("stores uploads and serves them back", func() {
		a := ts.upload("notes.txt", "text/plain", "remember the milk")
		Expect(a.ID).NotTo(BeEmpty())
		Expect(a.Filename).To(Equal("notes.txt"))
		Expect(a.MimeType).To(Equal("text/plain"))
		Expect(a.Size).To(BeEquivalentTo(len("remember the milk")))

		resp := ts.request(http.MethodGet, "/api/attachments/"+a.ID, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
		Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("notes.txt"))

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("remember the milk"))
	})

	It("accepts several files at once", func() {
		resp := ts.do(multipartRequest(
			uploadFile{"a.md", "text/markdown", "# a"},
			uploadFile{"b.json", "application/json", "{}"},
		))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var stored []storage.Attachment
		decodeBody(resp, &stored)
		Expect(stored).To(HaveLen(2))
	})

	It("rejects disallowed types", func() {
		resp := ts.do(multipartRequest(uploadFile{"tool.exe", "application/x-msdownload", "MZ"}))
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(errorMessage(resp)).To(Equal("File type application/x-msdownload not allowed"))
	})

	It("requires at least one file", func() {
		resp := ts.do(multipartRequest())
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("deletes attachments", func() {
		a := ts.upload("notes.txt", "text/plain", "hello")

		resp := ts.request(http.MethodDelete, "/api/attachments/"+a.ID, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body map[string]string
		decodeBody(resp, &body)
		Expect(body).To(Equal(map[string]string{"status": "deleted", "attachment_id": a.ID}))

		resp = ts.request(http.MethodGet, "/api/attachments/"+a.ID, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(errorMessage(resp)).To(Equal(fmt.Sprintf("Attachment %s not found", a.ID)))
	})

	It("returns 404 for unknown attachments", func() {
		resp := ts.request(http.MethodDelete, "/api/attachments/missing", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})
