package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/net"
)

const utf8BOM = "\ufeff"

// Load reads the CSV file at path, or downloads it when path is an http(s)
// URL, into a frame. Any failure to open, read, or structurally parse the
// input is reported as failure.ErrDataUnavailable.
func Load(ctx context.Context, path string) (*Frame, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: data path not specified", failure.ErrDataUnavailable)
	}

	var src io.ReadCloser
	if net.IsURL(path) {
		body, err := net.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", failure.ErrDataUnavailable, err)
		}
		src = body
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", failure.ErrDataUnavailable, err)
		}
		src = file
	}
	defer src.Close()

	f, err := Read(src)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", path, err)
	}

	slog.Debug("data loaded", "path", path, "rows", f.Len(), "columns", len(f.columns))
	return f, nil
}

// Read parses CSV content with a header row. Cells are trimmed of
// surrounding whitespace, so whitespace-only cells are missing values.
func Read(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", failure.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("%w: reading header: %w", failure.ErrDataUnavailable, err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	trim(header)

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", failure.ErrDataUnavailable, err)
		}
		trim(rec)
		rows = append(rows, rec)
	}

	return NewFrame(header, rows)
}

func trim(cells []string) {
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
}
