// Package raster renders PDF pages to PNG images with poppler's pdftoppm.
package raster

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/doctextflow/internal/convert"
)

// Poppler implements convert.Rasterizer by invoking pdftoppm once per page,
// so only one page image is held in memory at a time.
type Poppler struct {
	Pdftoppm string
	Pdfinfo  string
	logger   *slog.Logger
}

func NewPoppler(logger *slog.Logger) *Poppler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poppler{Pdftoppm: "pdftoppm", Pdfinfo: "pdfinfo", logger: logger}
}

func (p *Poppler) Rasterize(ctx context.Context, path string, dpi int) iter.Seq2[convert.PageImage, error] {
	return func(yield func(convert.PageImage, error) bool) {
		pages, err := p.PageCount(ctx, path)
		if err != nil {
			yield(convert.PageImage{}, err)
			return
		}
		dir, err := os.MkdirTemp("", "doctext-raster-*")
		if err != nil {
			yield(convert.PageImage{}, fmt.Errorf("failed to create temp dir: %w", err))
			return
		}
		defer os.RemoveAll(dir)

		for page := 1; page <= pages; page++ {
			img, err := p.renderPage(ctx, path, dir, page, dpi)
			if err != nil {
				yield(convert.PageImage{}, err)
				return
			}
			if !yield(img, nil) {
				return
			}
		}
	}
}

// PageCount asks pdfcpu first. Documents pdfcpu refuses to parse are handed to
// pdfinfo, whose xref reconstruction copes with most damaged files.
func (p *Poppler) PageCount(ctx context.Context, path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err == nil {
		return count, nil
	}
	p.logger.Debug("pdfcpu could not count pages, falling back to pdfinfo.", "path", path, "error", err)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Pdfinfo, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if runErr := cmd.Run(); runErr != nil {
		return 0, fmt.Errorf("page count for %s: pdfcpu: %v; pdfinfo: %w: %s", path, err, runErr, strings.TrimSpace(stderr.String()))
	}
	return parsePdfinfoPages(stdout.String())
}

func (p *Poppler) renderPage(ctx context.Context, path, dir string, page, dpi int) (convert.PageImage, error) {
	root := filepath.Join(dir, fmt.Sprintf("page-%05d", page))
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Pdftoppm, pdftoppmArgs(path, root, page, dpi)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return convert.PageImage{}, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	file := root + ".png"
	data, err := os.ReadFile(file)
	if err != nil {
		return convert.PageImage{}, fmt.Errorf("read rendered page %d: %w", page, err)
	}
	os.Remove(file)
	return convert.PageImage{Page: page, DPI: dpi, PNG: data}, nil
}

func pdftoppmArgs(path, root string, page, dpi int) []string {
	n := strconv.Itoa(page)
	return []string{"-f", n, "-l", n, "-r", strconv.Itoa(dpi), "-png", "-singlefile", path, root}
}

var errNoPageCount = errors.New("pdfinfo output has no page count")

func parsePdfinfoPages(out string) (int, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("parse pdfinfo page count %q: %w", value, err)
		}
		return n, nil
	}
	return 0, errNoPageCount
}
