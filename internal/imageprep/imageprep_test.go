package imageprep

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baloghm/meterbill/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestCompressClampsLongEdge(t *testing.T) {
	p := NewProcessor(common.ImageConfig{MaxEdge: 100, JPEGQuality: 70}, testLogger())

	out, err := p.Compress(pngBytes(t, 400, 200))
	require.NoError(t, err)
	assert.False(t, out.Empty())
	assert.Equal(t, "image/jpeg", out.MIME)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 50, out.Height, "aspect ratio is preserved")

	// output must be decodable base64 JPEG
	raw, err := base64.StdEncoding.DecodeString(out.Base64)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
}

func TestCompressNeverUpscales(t *testing.T) {
	p := NewProcessor(common.ImageConfig{MaxEdge: 1024}, testLogger())

	out, err := p.Compress(pngBytes(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 30, out.Height)
}

func TestCompressRejectsGarbage(t *testing.T) {
	p := NewProcessor(common.ImageConfig{}, testLogger())
	_, err := p.Compress([]byte("this is not an image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestThumbnailDegradesToEmpty(t *testing.T) {
	p := NewProcessor(common.ImageConfig{}, testLogger())
	out := p.Thumbnail([]byte("broken"))
	assert.True(t, out.Empty())
	assert.Empty(t, out.DataURL()[len("data:;base64,"):])
}

func TestThumbnailProducesTinyJPEG(t *testing.T) {
	p := NewProcessor(common.ImageConfig{ThumbEdge: 50, ThumbQuality: 40}, testLogger())
	out := p.Thumbnail(pngBytes(t, 500, 500))
	require.False(t, out.Empty())
	assert.Equal(t, 50, out.Width)
	assert.Equal(t, 50, out.Height)
}

func TestDataURL(t *testing.T) {
	p := Payload{Base64: "Zm9v", MIME: "image/jpeg"}
	url := p.DataURL()
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
	assert.True(t, strings.HasSuffix(url, "Zm9v"))
}
