package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/markdave123-py/docvault/internal/core"
)

var _ core.ImageStore = (*S3Store)(nil)

// S3Store keeps one object per unique image in a bucket. The stored path is
// the object's URL.
type S3Store struct {
	obj    core.ObjectClient
	bucket string
	prefix string
}

func NewS3Store(obj core.ObjectClient, bucket, prefix string) *S3Store {
	return &S3Store{obj: obj, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(raw []byte) string {
	return path.Join(s.prefix, FileName(raw))
}

func (s *S3Store) Store(ctx context.Context, raw []byte) (core.StoredImage, error) {
	if len(raw) == 0 {
		return core.StoredImage{}, fmt.Errorf("%w: empty image", core.ErrInvalidInput)
	}

	key := s.key(raw)
	img := core.StoredImage{Hash: Hash(raw), Path: s.obj.URL(s.bucket, key)}

	exists, err := s.obj.Exists(ctx, s.bucket, key)
	if err != nil {
		return core.StoredImage{}, fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}
	if exists {
		return img, nil
	}

	// The recorded path is always URL(bucket, key) so a hash maps to one path
	// whether or not this call uploaded it.
	if _, err := s.obj.UploadFile(ctx, s.bucket, key, bytes.NewReader(raw), contentType(raw)); err != nil {
		return core.StoredImage{}, fmt.Errorf("%w: %w", core.ErrFilesystemWrite, err)
	}
	img.IsNew = true
	return img, nil
}
