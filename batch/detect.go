package batch

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind of an input item.
type Kind int

const (
	KindPDF Kind = iota
	KindZip
)

// DetectKind sniffs the payload and falls back to the file extension. Anything
// that is not a zip archive is treated as a PDF; the signer rejects what it
// cannot parse.
func DetectKind(item Item) Kind {
	mtype := mimetype.Detect(item.Payload)
	switch {
	case mtype.Is("application/zip"):
		return KindZip
	case mtype.Is("application/pdf"):
		return KindPDF
	case strings.EqualFold(filepath.Ext(item.Name), ".zip"):
		return KindZip
	default:
		return KindPDF
	}
}
