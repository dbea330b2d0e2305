package imageenc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEncodeKeepsInputOrderAndDropsFailures(t *testing.T) {
	small := pngBytes(t, 1, 1)
	wide := pngBytes(t, 4, 1)
	files := []File{
		FromBytes("a.png", small),
		{Name: "broken.png", Open: func() (io.ReadCloser, error) { return nil, errors.New("disk gone") }},
		FromBytes("notes.txt", []byte("plain text, not an image")),
		FromBytes("b.png", wide),
	}
	out := Encoder{Concurrency: 2}.Encode(context.Background(), files)
	require.Len(t, out, 2)
	first, err := DataURI(small)
	require.NoError(t, err)
	second, err := DataURI(wide)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, out)
	assert.True(t, strings.HasPrefix(out[0], "data:image/png;base64,"))
}

func TestEncodeZeroFiles(t *testing.T) {
	out := Encoder{}.Encode(context.Background(), nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestEncodeRespectsMaxBytes(t *testing.T) {
	data := pngBytes(t, 64, 64)
	out := Encoder{MaxBytes: 10}.Encode(context.Background(), []File{FromBytes("big.png", data)})
	assert.Empty(t, out)
}

func TestFromPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 2, 2), 0o644))
	out := Encoder{}.Encode(context.Background(), FromPaths(path, filepath.Join(dir, "missing.png")))
	assert.Len(t, out, 1)
}

func TestAppendDoesNotDisturbExisting(t *testing.T) {
	existing := make([]string, 1, 4)
	existing[0] = "data:image/png;base64,AAA"
	out := Append(existing, []string{"data:image/png;base64,BBB"})
	assert.Equal(t, []string{"data:image/png;base64,AAA", "data:image/png;base64,BBB"}, out)
	extended := append(existing, "x")
	assert.Equal(t, "data:image/png;base64,BBB", out[1])
	assert.Equal(t, "x", extended[1])
}
