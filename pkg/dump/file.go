package dump

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ulikunitz/xz"
)

// Compressed returns whether an image path selects xz compression.
func Compressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".xz")
}

type writer struct {
	io.Writer
	closers []func() error
}

func (w *writer) Close() error {
	var errs error
	for _, c := range w.closers {
		if err := c(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// Create creates an image file, xz compressed if path ends in .xz. The
// returned writer must be closed for the image to be complete.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	if !Compressed(path) {
		return &writer{Writer: bw, closers: []func() error{bw.Flush, f.Close}}, nil
	}
	xw, err := xz.NewWriter(bw)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating xz stream: %w", err)
	}
	return &writer{Writer: xw, closers: []func() error{xw.Close, bw.Flush, f.Close}}, nil
}

type reader struct {
	io.Reader
	f *os.File
}

func (r *reader) Close() error {
	return r.f.Close()
}

// Open opens an image file, decompressing it if path ends in .xz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	if !Compressed(path) {
		return &reader{Reader: br, f: f}, nil
	}
	xr, err := xz.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading xz stream: %w", err)
	}
	return &reader{Reader: xr, f: f}, nil
}

// CompareFiles compares two image files record by record, see Compare.
func CompareFiles(a, b string) (int64, error) {
	fa, err := Open(a)
	if err != nil {
		return 0, err
	}
	defer fa.Close()
	fb, err := Open(b)
	if err != nil {
		return 0, err
	}
	defer fb.Close()
	return Compare(fa, fb)
}
