// Package pdfinfo decodes uploaded plan PDFs just enough to drive the
// annotation model: page count and the native size of the plan raster.
// Rendering stays with the caller's rasterizer.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrDecode means the uploaded bytes could not be decoded as a PDF.
var ErrDecode = errors.New("document could not be decoded")

// Default page size (A4 in PDF points) used when a page carries no MediaBox.
const (
	defaultPageWidth  = 595.28
	defaultPageHeight = 841.89
)

// Info describes an uploaded document: how many pages it has and the
// document-space dimensions of its first page. Point coordinates are stored
// relative to these dimensions, never to the on-screen stage.
type Info struct {
	PageCount  int
	PageWidth  float64
	PageHeight float64
}

// Read decodes raw PDF bytes and returns page count and native page size.
// Undecodable input is reported as ErrDecode.
func Read(raw []byte) (info Info, err error) {
	// The pdf package panics on some malformed inputs instead of
	// returning an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDecode, r)
		}
	}()

	if len(raw) == 0 {
		return Info{}, fmt.Errorf("%w: empty input", ErrDecode)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	pages := reader.NumPage()
	if pages < 1 {
		return Info{}, fmt.Errorf("%w: no pages", ErrDecode)
	}

	info = Info{
		PageCount:  pages,
		PageWidth:  defaultPageWidth,
		PageHeight: defaultPageHeight,
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return info, nil
	}
	box := page.V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return info, nil
	}

	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w > 0 && h > 0 {
		info.PageWidth = w
		info.PageHeight = h
	}
	return info, nil
}
