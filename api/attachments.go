package api

import (
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmerge/pkg/attachments"
	"github.com/papercomputeco/chatmerge/pkg/storage"
)

// uploadField is the multipart field carrying uploaded files.
const uploadField = "files"

// handleUploadAttachments stores one or more files. The attachments are
// linked to a turn when a completion request names them.
func (s *Server) handleUploadAttachments(c *fiber.Ctx) error {
	if s.blobs == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Attachment storage is not configured")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "multipart form with files is required")
	}

	files := form.File[uploadField]
	if len(files) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "at least one file is required")
	}

	for _, fh := range files {
		if err := attachments.Validate(fh.Filename, fh.Header.Get(fiber.HeaderContentType), fh.Size); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
	}

	stored := make([]*storage.Attachment, 0, len(files))
	for _, fh := range files {
		a, err := s.saveUpload(c, fh)
		if err != nil {
			if errors.Is(err, attachments.ErrTooLarge) {
				return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("File %s exceeds max size of 10MB", fh.Filename))
			}
			s.logger.Error("failed to store attachment", "filename", fh.Filename, "error", err)
			return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to upload attachments: %v", err))
		}
		stored = append(stored, a)
	}

	return c.JSON(stored)
}

func (s *Server) saveUpload(c *fiber.Ctx, fh *multipart.FileHeader) (*storage.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	path, size, err := s.blobs.Save(c.Context(), fh.Filename, f)
	if err != nil {
		return nil, err
	}

	a := &storage.Attachment{
		Filename:    fh.Filename,
		MimeType:    fh.Header.Get(fiber.HeaderContentType),
		Size:        size,
		StoragePath: path,
	}
	if err := s.store.CreateAttachment(c.Context(), a); err != nil {
		_ = s.blobs.Delete(c.Context(), path)
		return nil, err
	}

	s.logger.Debug("stored attachment", "attachment", a.ID, "filename", a.Filename, "size", a.Size)
	return a, nil
}

// handleGetAttachment streams the bytes of an attachment.
func (s *Server) handleGetAttachment(c *fiber.Ctx) error {
	if s.blobs == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Attachment storage is not configured")
	}

	id := c.Params("id")
	a, err := s.store.GetAttachment(c.Context(), id)
	if err != nil {
		return s.attachmentError(c, id, err)
	}

	rc, err := s.blobs.Open(c.Context(), a.StoragePath)
	if errors.Is(err, fs.ErrNotExist) {
		return errorJSON(c, fiber.StatusNotFound, "File not found")
	}
	if err != nil {
		s.logger.Error("failed to open attachment", "attachment", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to retrieve attachment: %v", err))
	}

	c.Attachment(a.Filename)
	c.Set(fiber.HeaderContentType, a.MimeType)
	return c.SendStream(rc, int(a.Size))
}

// handleDeleteAttachment removes an attachment and its bytes.
func (s *Server) handleDeleteAttachment(c *fiber.Ctx) error {
	id := c.Params("id")
	a, err := s.store.GetAttachment(c.Context(), id)
	if err != nil {
		return s.attachmentError(c, id, err)
	}

	if err := s.removeAttachment(c, a); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to delete attachment: %v", err))
	}

	return c.JSON(fiber.Map{"status": "deleted", "attachment_id": id})
}

// removeAttachment deletes the blob of a, then its record. A blob that
// cannot be removed is logged and does not keep the record alive.
func (s *Server) removeAttachment(c *fiber.Ctx, a *storage.Attachment) error {
	if s.blobs != nil && a.StoragePath != "" {
		if err := s.blobs.Delete(c.Context(), a.StoragePath); err != nil {
			s.logger.Warn("failed to delete attachment bytes", "attachment", a.ID, "error", err)
		}
	}

	if err := s.store.DeleteAttachment(c.Context(), a.ID); err != nil && !storage.IsNotFound(err) {
		s.logger.Error("failed to delete attachment", "attachment", a.ID, "error", err)
		return err
	}
	return nil
}

func (s *Server) attachmentError(c *fiber.Ctx, id string, err error) error {
	if storage.IsNotFound(err) {
		return errorJSON(c, fiber.StatusNotFound, fmt.Sprintf("Attachment %s not found", id))
	}
	s.logger.Error("failed to load attachment", "attachment", id, "error", err)
	return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to retrieve attachment: %v", err))
}
