// Package imageenc turns user-selected image files into data URIs that can
// travel inline in a report.
package imageenc

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	defaultMaxBytes    = 15 << 20
)

// File is one selected image.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FromPaths wraps files on disk.
func FromPaths(paths ...string) []File {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		p := p
		files = append(files, File{
			Name: filepath.Base(p),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return files
}

// FromBytes wraps an in-memory upload.
func FromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// Encoder converts batches of files. The zero value is usable.
type Encoder struct {
	Concurrency int
	MaxBytes    int64
}

// Encode converts files to data URIs, keeping input order. Files that
// cannot be read or are not images are dropped; the batch never fails.
func (e Encoder) Encode(ctx context.Context, files []File) []string {
	if len(files) == 0 {
		return []string{}
	}
	logger := zerolog.Ctx(ctx)
	results := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			uri, err := e.encodeOne(gctx, f)
			if err != nil {
				logger.Warn().Err(err).Str("file", f.Name).Msg("image dropped")
				return nil
			}
			results[i] = uri
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(results))
	for _, uri := range results {
		if uri != "" {
			out = append(out, uri)
		}
	}
	return out
}

func (e Encoder) encodeOne(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Open == nil {
		return "", fmt.Errorf("no reader")
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	limit := e.maxBytes()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("larger than %d bytes", limit)
	}
	return DataURI(data)
}

// DataURI encodes raw image bytes. Non-image content is rejected.
func DataURI(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("not an image: %s", mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Append returns existing followed by encoded, without touching existing.
func Append(existing, encoded []string) []string {
	out := make([]string, 0, len(existing)+len(encoded))
	out = append(out, existing...)
	return append(out, encoded...)
}

func (e Encoder) concurrency() int {
	if e.Concurrency <= 0 {
		return defaultConcurrency
	}
	return e.Concurrency
}

func (e Encoder) maxBytes() int64 {
	if e.MaxBytes <= 0 {
		return defaultMaxBytes
	}
	return e.MaxBytes
}
