package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Headers of the four wire-format files.
var (
	TablesHeader       = []string{"table_type", "record_count"}
	ColumnsHeader      = []string{"table_type", "column_name", "column_type"}
	RecordsHeader      = []string{"class_name", "system_id", "public_id"}
	RecordValuesHeader = []string{"class_name", "system_id", "public_id", "column_name", "column_type", "fk_system_id", "fk_public_id", "column_value"}
)

// File suffixes appended to the export basename.
const (
	TablesSuffix       = "_tables.csv"
	ColumnsSuffix      = "_columns.csv"
	RecordsSuffix      = "_records.csv"
	RecordValuesSuffix = "_recordvalues.csv"
)

// outputFile is one file of an export.
type outputFile struct {
	name   string
	header []string
	rows   [][]string
}

// writeFiles writes files into dir and returns their paths. Every file is
// staged to a temporary file before any is renamed into place, so a failure
// while writing leaves the previous export untouched.
func writeFiles(dir string, files []outputFile) ([]string, error) {
	staged := make([]stagedFile, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		tmp, err := stageTSV(p, f.header, f.rows)
		if err != nil {
			discard(staged)
			return nil, fmt.Errorf("export %s: %w", f.name, err)
		}
		staged = append(staged, stagedFile{tmp: tmp, path: p})
	}

	if err := commit(staged); err != nil {
		return nil, err
	}

	paths := make([]string, len(staged))
	for i, f := range staged {
		paths[i] = f.path
	}
	return paths, nil
}

// stagedFile is a complete temporary file waiting to replace path.
type stagedFile struct {
	tmp  string
	path string
}

// stageTSV writes a header and rows as tab-separated lines to a temporary
// file next to path and returns its name.
//
// Fields are written verbatim: values arrive already quoted, and
// encoding/csv would quote them a second time.
func stageTSV(path string, header []string, rows [][]string) (name string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := writeLine(w, header); err != nil {
		return "", err
	}
	for i, row := range rows {
		if err := writeLine(w, row); err != nil {
			return "", fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", path, err)
	}
	return tmp.Name(), nil
}

// commit renames every staged file over its target. Staged files that were
// not renamed are removed on failure.
func commit(files []stagedFile) error {
	for i, f := range files {
		if err := os.Rename(f.tmp, f.path); err != nil {
			discard(files[i:])
			return fmt.Errorf("rename %s: %w", f.path, err)
		}
	}
	return nil
}

func discard(files []stagedFile) {
	for _, f := range files {
		os.Remove(f.tmp)
	}
}

func writeLine(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if strings.ContainsAny(f, "\t\r\n") {
			return fmt.Errorf("field %d contains a tab or line break: %q", i+1, f)
		}
	}
	if _, err := w.WriteString(strings.Join(fields, "\t")); err != nil {
		return err
	}
	return w.WriteByte('\n')
}
