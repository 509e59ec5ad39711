// Package imageprep downsamples uploaded meter photos into bounded-size JPEG
// payloads before they are embedded in an extraction request. Decoding and
// re-encoding happen fully in memory; nothing is written to disk.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/baloghm/meterbill/internal/common"
)

// ErrImageDecode marks a corrupt or unsupported source image.
var ErrImageDecode = errors.New("image decode failed")

// Payload is an encoded image ready for embedding in a request body.
type Payload struct {
	Base64 string
	MIME   string
	Width  int
	Height int
}

// Empty reports whether the payload carries no image.
func (p Payload) Empty() bool { return p.Base64 == "" }

// DataURL renders the payload as a data URL for a vision request part.
func (p Payload) DataURL() string {
	return "data:" + p.MIME + ";base64," + p.Base64
}

type Processor struct {
	cfg    common.ImageConfig
	logger *slog.Logger
}

func NewProcessor(cfg common.ImageConfig, logger *slog.Logger) *Processor {
	if cfg.MaxEdge <= 0 {
		cfg.MaxEdge = 1024
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 70
	}
	if cfg.ThumbEdge <= 0 {
		cfg.ThumbEdge = 120
	}
	if cfg.ThumbQuality <= 0 {
		cfg.ThumbQuality = 40
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, logger: logger}
}

// Compress decodes data, clamps its longest side to MaxEdge and re-encodes it
// as JPEG at the configured quality.
func (p *Processor) Compress(data []byte) (Payload, error) {
	return p.encode(data, p.cfg.MaxEdge, p.cfg.JPEGQuality)
}

// Thumbnail produces the tiny preview embedded in share payloads. Thumbnails
// are optional, so any failure degrades to an empty payload instead of
// propagating.
func (p *Processor) Thumbnail(data []byte) Payload {
	out, err := p.encode(data, p.cfg.ThumbEdge, p.cfg.ThumbQuality)
	if err != nil {
		p.logger.Warn("imageprep.thumbnail.skipped", "error", err)
		return Payload{}
	}
	return out
}

func (p *Processor) encode(data []byte, maxEdge, quality int) (Payload, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	// Fit never upscales; small photos pass through at native size.
	img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Payload{}, fmt.Errorf("jpeg encode: %w", err)
	}

	b := img.Bounds()
	p.logger.Debug("imageprep.encode.ok",
		"in_bytes", len(data),
		"out_bytes", buf.Len(),
		"width", b.Dx(),
		"height", b.Dy(),
	)
	return Payload{
		Base64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MIME:   "image/jpeg",
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
