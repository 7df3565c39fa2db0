package core

import (
	"context"

	"github.com/markdave123-py/docvault/internal/models"
)

// ContentDecoder turns a document on disk into its pages, in document order.
// Implementations return an error wrapping ErrDecode when the document cannot be opened.
type ContentDecoder interface {
	Decode(ctx context.Context, path string) ([]models.DecodedPage, error)
}
