package pdfdoc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

var errNotDataURI = errors.New("not a base64 data URI")

// embeddable is a photo ready for fpdf: JPEG bytes as they came, anything
// else re-encoded to PNG.
type embeddable struct {
	kind   string
	data   []byte
	width  int
	height int
}

func decodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, errNotDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errNotDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

func prepareImage(uri string) (embeddable, error) {
	raw, err := decodeDataURI(uri)
	if err != nil {
		return embeddable{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return embeddable{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return embeddable{}, fmt.Errorf("empty %s image", format)
	}
	if format == "jpeg" {
		return embeddable{kind: "JPG", data: raw, width: cfg.Width, height: cfg.Height}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return embeddable{}, fmt.Errorf("decode %s: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return embeddable{}, fmt.Errorf("re-encode %s: %w", format, err)
	}
	return embeddable{kind: "PNG", data: buf.Bytes(), width: cfg.Width, height: cfg.Height}, nil
}

// fitCentered scales a w×h image into the page minus margin, keeping its
// aspect ratio, and centers it.
func fitCentered(w, h, pageW, pageH, margin float64) (x, y, fw, fh float64) {
	ratio := w / h
	fw = pageW - 2*margin
	fh = fw / ratio
	if fh > pageH-2*margin {
		fh = pageH - 2*margin
		fw = fh * ratio
	}
	return (pageW - fw) / 2, (pageH - fh) / 2, fw, fh
}
