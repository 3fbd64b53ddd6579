package genflow

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// Media is an attachment sent alongside a prompt. Implementations must report a
// MIME type and return the attachment's bytes; the Request Builder rejects
// attachments where either is missing.
type Media interface {
	MimeType() string
	Bytes() ([]byte, error)
}

// Blob is an in-memory Media attachment.
type Blob struct {
	Mime string
	Data []byte
}

func (b Blob) MimeType() string { return b.Mime }

func (b Blob) Bytes() ([]byte, error) { return b.Data, nil }

// File is a Media attachment read from disk when the request is built.
// When Mime is empty it is derived from the file extension, falling back to
// content sniffing.
type File struct {
	Path string
	Mime string
}

func (f File) MimeType() string {
	if f.Mime != "" {
		return f.Mime
	}
	if t := mime.TypeByExtension(filepath.Ext(f.Path)); t != "" {
		return t
	}
	data, err := os.ReadFile(f.Path)
	if err != nil || len(data) == 0 {
		return ""
	}
	return http.DetectContentType(data)
}

func (f File) Bytes() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

// resolveMedia reads every attachment and converts it to an inline part.
func resolveMedia(media []Media) ([]Part, error) {
	parts := make([]Part, 0, len(media))
	for i, m := range media {
		if m == nil {
			return nil, InvalidMediaErr{Index: i, Reason: "nil attachment"}
		}
		mt := m.MimeType()
		if mt == "" {
			return nil, InvalidMediaErr{Index: i, Reason: "missing mime type"}
		}
		data, err := m.Bytes()
		if err != nil {
			return nil, InvalidMediaErr{Index: i, Reason: "failed to read bytes", Cause: err}
		}
		if len(data) == 0 {
			return nil, InvalidMediaErr{Index: i, Reason: "missing bytes"}
		}
		parts = append(parts, MediaPart(mt, data))
	}
	return parts, nil
}
