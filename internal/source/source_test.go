package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"file with BOM", append([]byte{0xEF, 0xBB, 0xBF}, []byte("site_id,name")...), "site_id,name"},
		{"file without BOM", []byte("site_id,name"), "site_id,name"},
		{"empty file", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM at start", []byte{0xEF, 0xBB, 'a', 'b', 'c'}, string([]byte{0xEF, 0xBB, 'a', 'b', 'c'})},
		{"short file", []byte("a"), "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(newBOMReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestSanitizingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid ASCII", []byte("hello,world"), "hello,world"},
		{"valid multibyte", []byte("Åsa,Göteborg"), "Åsa,Göteborg"},
		{"invalid single byte replaced", []byte{'h', 'e', 0x80, 'l', 'o'}, "he?lo"},
		{"truncated sequence at end", []byte{'o', 'k', 0xC3}, "ok?"},
		{"empty input", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(newSanitizingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestSanitizingReader_SplitRunes(t *testing.T) {
	// One byte per underlying read splits every multi-byte rune.
	input := "Ängelholm;Lövånger"
	r := newSanitizingReader(iotest.OneByteReader(strings.NewReader(input)))

	result, err := io.ReadAll(iotest.HalfReader(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != input {
		t.Errorf("got %q, want %q", string(result), input)
	}
}

func TestWrap(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	reader := wrap(bytes.NewReader(input))
	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(result) != "he?lo" {
		t.Errorf("got %q, want %q", string(result), "he?lo")
	}
	if reader.n != 5 {
		t.Errorf("bytes counted = %d, want 5", reader.n)
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{`="0012"`, "0012"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{`core depth 12"`, `core depth 12"`},
		{"5'", "5'"},
		{"'t Hoen", "'t Hoen"},
		{"O'Brien'", "O'Brien'"},
		{`"mixed'`, `"mixed'`},
		{`""inner""`, `"inner"`},
		{`"`, `"`},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"empty", "", nil},
		{"null token", "NULL", nil},
		{"nan token", "NaN", nil},
		{"integer", "42", int64(42)},
		{"negative integer", "-7", int64(-7)},
		{"leading zero kept as text", "0012", "0012"},
		{"leading zero negative kept as text", "-007", "-007"},
		{"plus sign kept as text", "+5", "+5"},
		{"zero", "0", int64(0)},
		{"decimal kept as text", "12.50", "12.50"},
		{"scientific kept as text", "1e3", "1e3"},
		{"unpaired quote kept", "5'", "5'"},
		{"out of range kept as text", "99999999999999999999", "99999999999999999999"},
		{"text", "Test A", "Test A"},
		{"excel formula", `="100"`, int64(100)},
		{"date stays text", "2024-03-01", "2024-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCell(tt.in); got != tt.want {
				t.Errorf("ParseCell(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadDataset(t *testing.T) {
	input := "System_ID, Name ,,lookup_id\n1,Test A,x,100\n,,,\n2,\"Beta, Gamma\",,\n"
	ds, err := ReadDataset(csv.NewReader(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("ReadDataset() error = %v", err)
	}

	cols := ds.Columns()
	if strings.Join(cols, ",") != "system_id,name,lookup_id" {
		t.Errorf("columns = %v", cols)
	}
	if ds.Len() != 2 {
		t.Fatalf("rows = %d, want 2 (empty row dropped)", ds.Len())
	}
	if v := ds.Value(0, "lookup_id"); v != int64(100) {
		t.Errorf("lookup_id = %#v", v)
	}
	if v := ds.Value(1, "name"); v != "Beta, Gamma" {
		t.Errorf("name = %#v", v)
	}
	if v := ds.Value(1, "lookup_id"); v != nil {
		t.Errorf("missing cell = %#v, want nil", v)
	}

	dup := "a,A\n1,2\n"
	if _, err := ReadDataset(csv.NewReader(strings.NewReader(dup))); err == nil {
		t.Error("expected duplicate column error")
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("tbl_sites.csv", "\xEF\xBB\xBFsystem_id,site_name\n1,Abisko\n")
	write("Lookups.tsv", "system_id\tlookup_id\n5\t5\n")
	write("notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := OpenDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("OpenDir() error = %v", err)
	}

	names := d.SheetNames()
	if strings.Join(names, ",") != "Lookups,tbl_sites" {
		t.Errorf("SheetNames() = %v", names)
	}

	sites, err := d.Sheet("tbl_sites")
	if err != nil {
		t.Fatalf("Sheet() error = %v", err)
	}
	if !sites.HasColumn("system_id") || sites.Value(0, "site_name") != "Abisko" {
		t.Errorf("tbl_sites = %v (BOM not stripped?)", sites.Columns())
	}

	lookups, err := d.Sheet("Lookups")
	if err != nil {
		t.Fatalf("Sheet() error = %v", err)
	}
	if lookups.Value(0, "lookup_id") != int64(5) {
		t.Errorf("Lookups row = %v", lookups.Row(0))
	}

	if _, err := d.Sheet("missing"); err == nil {
		t.Error("expected error for missing sheet")
	}
}

func TestOpenDir_DuplicateSheet(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "a.tsv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := OpenDir(context.Background(), dir); err == nil {
		t.Error("expected duplicate sheet error")
	}
}
