package model

import "strings"

const (
	// DefaultContentType is used when a blob has no recorded MIME type.
	DefaultContentType = "application/octet-stream"
	// DefaultDownloadName is used when a blob has no recorded filename.
	DefaultDownloadName = "download"
)

// BlobInfo is the metadata of a stored upload. Loosely typed store fields are
// normalised at the store boundary: absent strings are empty and an unknown
// length is negative.
type BlobInfo struct {
	ID       string
	Filename string
	Length   int64
	MimeType string
}

// HasLength reports whether the byte length is known.
func (b BlobInfo) HasLength() bool {
	return b.Length >= 0
}

// ContentType returns the MIME type to serve the blob with.
func (b BlobInfo) ContentType() string {
	if strings.TrimSpace(b.MimeType) == "" {
		return DefaultContentType
	}
	return b.MimeType
}

// DownloadName returns a filename safe to place inside a quoted
// Content-Disposition parameter.
func (b BlobInfo) DownloadName() string {
	name := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, b.Filename)
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDownloadName
	}
	return name
}

// ContentDisposition returns the attachment header value for the blob.
func (b BlobInfo) ContentDisposition() string {
	return `attachment; filename="` + b.DownloadName() + `"`
}
