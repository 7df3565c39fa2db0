package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/markdave123-py/docvault/internal/core"
)

var _ core.ImageStore = (*LocalStore)(nil)

// LocalStore keeps one file per unique image under dir.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create images dir: %w", core.ErrFilesystemWrite, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Store writes raw under its hash unless a file for that hash already exists.
// The blob is staged in a temp file and hard-linked into place, so a crash
// never leaves a truncated file under the final name and a racing writer
// never overwrites the winner.
func (s *LocalStore) Store(ctx context.Context, raw []byte) (core.StoredImage, error) {
	if len(raw) == 0 {
		return core.StoredImage{}, fmt.Errorf("%w: empty image", core.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return core.StoredImage{}, err
	}

	img := core.StoredImage{Hash: Hash(raw)}
	img.Path = filepath.Join(s.dir, img.Hash+extension(raw))

	if _, err := os.Stat(img.Path); err == nil {
		return img, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return core.StoredImage{}, fmt.Errorf("%w: stat %s: %w", core.ErrFilesystemWrite, img.Path, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".img-*")
	if err != nil {
		return core.StoredImage{}, fmt.Errorf("%w: stage image: %w", core.ErrFilesystemWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return core.StoredImage{}, fmt.Errorf("%w: write image: %w", core.ErrFilesystemWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return core.StoredImage{}, fmt.Errorf("%w: close image: %w", core.ErrFilesystemWrite, err)
	}

	if err := os.Link(tmp.Name(), img.Path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return img, nil
		}
		return core.StoredImage{}, fmt.Errorf("%w: publish image: %w", core.ErrFilesystemWrite, err)
	}
	img.IsNew = true
	return img, nil
}
