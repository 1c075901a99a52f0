// Package source reads submission sheets exported as delimited text files,
// one file per sheet. The sheet name is the file name without extension.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// Dir is a directory of sheet files. It implements submission.Source.
type Dir struct {
	logger *slog.Logger
	path   string
	sheets map[string]string // sheet name -> file path
}

// OpenDir lists the .csv and .tsv files of a directory.
func OpenDir(ctx context.Context, path string) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("open source directory: %w", err)
	}

	d := &Dir{logger: logging.FromContext(ctx), path: path, sheets: make(map[string]string)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".csv" && ext != ".tsv" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, dup := d.sheets[name]; dup {
			return nil, fmt.Errorf("sheet %s provided by both %s and %s", name, filepath.Base(prev), e.Name())
		}
		d.sheets[name] = filepath.Join(path, e.Name())
	}

	return d, nil
}

// SheetNames returns the sheet names, sorted.
func (d *Dir) SheetNames() []string {
	names := make([]string, 0, len(d.sheets))
	for n := range d.sheets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sheet reads a sheet file into a dataset. The first record is the header.
func (d *Dir) Sheet(name string) (*submission.Dataset, error) {
	p, ok := d.sheets[name]
	if !ok {
		return nil, fmt.Errorf("sheet %s not found in %s", name, d.path)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open sheet %s: %w", name, err)
	}
	defer f.Close()

	counter := wrap(f)
	r := csv.NewReader(counter)
	if strings.EqualFold(filepath.Ext(p), ".tsv") {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	ds, err := ReadDataset(r)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", name, err)
	}

	d.logger.Debug("sheet read", "sheet", name, "rows", ds.Len(), "size", humanize.Bytes(uint64(counter.n)))
	return ds, nil
}

// ReadDataset reads a header record and data records into a dataset.
// Blank header cells are skipped along with their column; fully empty rows
// are dropped.
func ReadDataset(r *csv.Reader) (*submission.Dataset, error) {
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var columns []string
	var positions []int
	seen := make(map[string]bool)
	for i, h := range header {
		name := HeaderName(h)
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		columns = append(columns, name)
		positions = append(positions, i)
	}

	var records [][]any
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]any, len(columns))
		empty := true
		for j, pos := range positions {
			if pos >= len(rec) {
				continue
			}
			row[j] = ParseCell(rec[pos])
			if row[j] != nil {
				empty = false
			}
		}
		if !empty {
			records = append(records, row)
		}
	}

	return submission.FromRecords(columns, records)
}
