// Package storage keeps uploaded documents. LocalStore writes them to disk
// under their SHA-256 digest; PinningClient hands them to a remote pinning
// service and references them through its gateway.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
)

const localRefPrefix = "sha256:"

var ErrTooLarge = errors.New("document exceeds upload limit")

type LocalStore struct {
	dir      string
	maxBytes int64
}

// NewLocalStore creates dir if needed. maxBytes <= 0 disables the size
// check.
func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *LocalStore) Store(ctx context.Context, name, contentType string, r io.Reader) (core.Artifact, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return core.Artifact{}, fmt.Errorf("%w: failed to create temp file: %v", core.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), readerWithContext(ctx, src))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Artifact{}, fmt.Errorf("%w: failed to write document: %v", core.ErrStorage, err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrStorage, ErrTooLarge)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if err := os.Rename(tmp.Name(), s.path(digest)); err != nil {
		return core.Artifact{}, fmt.Errorf("%w: failed to commit document: %v", core.ErrStorage, err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	log.Debug().Str("file", name).Str("digest", digest).Int64("bytes", n).Msg("document stored")
	return core.Artifact{Ref: localRefPrefix + digest, Size: n, ContentType: contentType}, nil
}

// Open returns the document stored under ref.
func (s *LocalStore) Open(ref string) (io.ReadCloser, error) {
	digest, ok := strings.CutPrefix(ref, localRefPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return nil, fmt.Errorf("%w: not a local document reference: %q", core.ErrNotFound, ref)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return nil, fmt.Errorf("%w: malformed document reference: %q", core.ErrNotFound, ref)
	}

	f, err := os.Open(s.path(digest))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	return f, nil
}

func (s *LocalStore) path(digest string) string {
	return filepath.Join(s.dir, digest)
}

// IsRemote reports whether ref points outside the local store.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
