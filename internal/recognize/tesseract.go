// Package recognize provides the OCR engines used for the OCR fallback.
package recognize

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/doctextflow/internal/convert"
)

// DefaultLanguages matches the mixed Chinese/English corpus the converter
// targets.
var DefaultLanguages = []string{"chi_sim", "eng"}

// Tesseract implements convert.Recognizer with a pool of gosseract clients.
// A gosseract client is not safe for concurrent use, so each call checks one
// out; at most poolSize clients are ever created.
type Tesseract struct {
	languages []string
	slots     chan struct{}
	idle      chan *gosseract.Client
	newClient func() *gosseract.Client
}

func NewTesseract(languages []string, poolSize int) *Tesseract {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	if poolSize <= 0 {
		poolSize = convert.DefaultMaxWorkers
	}
	return &Tesseract{
		languages: languages,
		slots:     make(chan struct{}, poolSize),
		idle:      make(chan *gosseract.Client, poolSize),
		newClient: gosseract.NewClient,
	}
}

func (t *Tesseract) Recognize(ctx context.Context, img convert.PageImage, correctOrientation bool) ([]convert.RecognizedLine, error) {
	c, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer t.release(c)

	mode := gosseract.PSM_AUTO
	if correctOrientation {
		// Orientation and script detection rotates skewed or upside-down scans.
		mode = gosseract.PSM_AUTO_OSD
	}
	if err := c.SetPageSegMode(mode); err != nil {
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := c.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if img.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(img.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img.PNG); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize page %d: %w", img.Page, err)
	}
	return linesFromBoxes(boxes), nil
}

// Close releases every idle client. It must not be called while Recognize
// is in flight.
func (t *Tesseract) Close() error {
	for {
		select {
		case c := <-t.idle:
			c.Close()
		default:
			return nil
		}
	}
}

func (t *Tesseract) acquire(ctx context.Context) (*gosseract.Client, error) {
	select {
	case c := <-t.idle:
		return c, nil
	default:
	}
	select {
	case c := <-t.idle:
		return c, nil
	case t.slots <- struct{}{}:
		return t.newClient(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Tesseract) release(c *gosseract.Client) {
	t.idle <- c
}

func linesFromBoxes(boxes []gosseract.BoundingBox) []convert.RecognizedLine {
	lines := make([]convert.RecognizedLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, convert.RecognizedLine{Text: text, Confidence: b.Confidence / 100.0})
	}
	return lines
}
