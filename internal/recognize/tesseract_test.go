package recognize

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Lllllllleong/doctextflow/internal/convert"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func renderText(t *testing.T, lines ...string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 40+30*len(lines)))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	for i, l := range lines {
		d.Dot = fixed.P(10, 40+30*i)
		d.DrawString(l)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTesseractRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	engine := NewTesseract([]string{"eng"}, 2)
	defer engine.Close()
	img := convert.PageImage{Page: 1, DPI: 300, PNG: renderText(t, "HELLO PDF", "SECOND LINE")}

	lines, err := engine.Recognize(context.Background(), img, false)

	require.NoError(t, err)
	require.NotEmpty(t, lines)
	var joined []string
	for _, l := range lines {
		joined = append(joined, l.Text)
	}
	assert.Contains(t, strings.ToUpper(strings.Join(joined, " ")), "HELLO")
}

func TestTesseractAcquireHonoursContext(t *testing.T) {
	engine := NewTesseract(nil, 1)
	engine.slots <- struct{}{} // the only slot is taken and no client is idle
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Recognize(ctx, convert.PageImage{Page: 1}, true)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinesFromBoxes(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(0, 0, 100, 20), Word: "第一行 text\n", Confidence: 91},
		{Box: image.Rect(0, 20, 100, 40), Word: "   ", Confidence: 10},
		{Box: image.Rect(0, 40, 100, 60), Word: "last", Confidence: 50},
	}

	lines := linesFromBoxes(boxes)

	require.Len(t, lines, 2)
	assert.Equal(t, "第一行 text", lines[0].Text)
	assert.InDelta(t, 0.91, lines[0].Confidence, 1e-9)
	assert.Equal(t, "last", lines[1].Text)
}

func TestNewTesseractDefaults(t *testing.T) {
	engine := NewTesseract(nil, 0)

	assert.Equal(t, DefaultLanguages, engine.languages)
	assert.Equal(t, convert.DefaultMaxWorkers, cap(engine.slots))
	assert.NoError(t, engine.Close())
}
