// Package assetsvc stores uploaded page assets on the local disk.
package assetsvc

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/page"
)

// DiskStore keeps assets as files of a directory, served under a base url.
// References are the asset urls: "<baseURL><uuid><ext>".
type DiskStore struct {
	dir     string
	baseURL string
	maxSize int64
}

var _ page.AssetStore = (*DiskStore)(nil)

func NewDiskStore(conf core.AssetsConfig) (*DiskStore, error) {
	if err := os.MkdirAll(conf.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating assets dir")
	}
	base := conf.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &DiskStore{dir: conf.Dir, baseURL: base, maxSize: conf.MaxUploadSize}, nil
}

// Dir returns the directory the assets are stored in.
func (s *DiskStore) Dir() string { return s.dir }

// BaseURL returns the url prefix of the references.
func (s *DiskStore) BaseURL() string { return s.baseURL }

func (s *DiskStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	file := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating asset")
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op once renamed

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: src})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, "writing asset %s", name)
	}
	if s.maxSize > 0 && n > s.maxSize {
		return "", errors.Errorf("asset %s is larger than %d bytes", name, s.maxSize)
	}
	if err = os.Rename(tmp.Name(), filepath.Join(s.dir, file)); err != nil {
		return "", errors.Wrapf(err, "storing asset %s", name)
	}
	return s.baseURL + file, nil
}

func (s *DiskStore) Delete(_ context.Context, ref string) error {
	if !s.Owns(ref) {
		return errors.Errorf("asset %s is not stored here", ref)
	}
	err := os.Remove(filepath.Join(s.dir, path.Base(strings.TrimPrefix(ref, s.baseURL))))
	return errors.Wrapf(err, "deleting asset %s", ref)
}

// Owns reports whether ref is a file directly under the base url.
func (s *DiskStore) Owns(ref string) bool {
	name := strings.TrimPrefix(ref, s.baseURL)
	return name != ref && name != "" && !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
