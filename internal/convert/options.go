package convert

import "time"

const (
	DefaultMaxWorkers    = 4
	DefaultSizeThreshold = 10 * 1024
	DefaultDPI           = 300
)

// Options configures a Converter. Zero values select the defaults.
type Options struct {
	// MaxWorkers bounds the number of documents extracted concurrently.
	MaxWorkers int
	// SizeThreshold is the output size in bytes below which the quality
	// gate reprocesses a document with OCR.
	SizeThreshold int64
	// TaskTimeout bounds a single document's extraction. Zero disables it.
	TaskTimeout time.Duration
	// IgnoreExtensionCase accepts ".PDF" and ".Docx" as eligible inputs.
	IgnoreExtensionCase bool
	// DPI is the rasterization resolution used for OCR.
	DPI int
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.SizeThreshold <= 0 {
		o.SizeThreshold = DefaultSizeThreshold
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.TaskTimeout < 0 {
		o.TaskTimeout = 0
	}
	return o
}
