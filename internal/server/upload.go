package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/dharsanguruparan/FlatDrop/internal/model"
)

// uploadFields are the multipart field names accepted for the document.
var uploadFields = map[string]bool{"pdf": true, "document": true, "file": true}

type tempUpload struct {
	path     string
	size     int64
	filename string
}

// remove deletes the temp file unless the pipeline already did.
func (t *tempUpload) remove() error {
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// receiveUpload streams the first document part of the request to a temp
// file under the upload directory.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (*tempUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, model.BadRequestError(errors.New("expecting multipart form"))
	}
	part, err := nextFilePart(mr)
	if errors.Is(err, io.EOF) {
		return nil, model.BadRequestError(errors.New("missing document field"))
	}
	if err != nil {
		return nil, model.BadRequestError(errors.New("failed to read upload"))
	}
	defer part.Close()
	return s.persistTemp(part)
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp(s.opts.UploadDir, "upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.opts.MaxFileSize {
				discard()
				return nil, model.BadRequestError(fmt.Errorf("file exceeds limit (%d bytes)", s.opts.MaxFileSize))
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				discard()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			discard()
			var maxErr *http.MaxBytesError
			if errors.As(readErr, &maxErr) {
				return nil, model.BadRequestError(fmt.Errorf("file exceeds limit (%d bytes)", s.opts.MaxFileSize))
			}
			return nil, model.BadRequestError(errors.New("failed to read upload"))
		}
	}
	if written == 0 {
		discard()
		return nil, model.BadRequestError(errors.New("empty file"))
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload.pdf"
	}
	return &tempUpload{path: tmpFile.Name(), size: written, filename: filename}, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if uploadFields[part.FormName()] {
			return part, nil
		}
		part.Close()
	}
}
