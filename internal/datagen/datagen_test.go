package datagen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateRowCountAndHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := Generate(Spec{Rows: 100, Seed: 1, Path: path}); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if lines[0] != Header {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 101 {
		t.Errorf("file has %d lines, want 101", len(lines))
	}

	n, err := CountRows(path)
	if err != nil || n != 100 {
		t.Errorf("CountRows() = %d, %v, want 100", n, err)
	}
}

func TestGenerateDeterministicBySeed(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")

	if err := Generate(Spec{Rows: 50, Seed: 7, Path: a}); err != nil {
		t.Fatal(err)
	}
	if err := Generate(Spec{Rows: 50, Seed: 7, Path: b}); err != nil {
		t.Fatal(err)
	}

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Error("same seed produced different files")
	}

	if err := Generate(Spec{Rows: 50, Seed: 8, Path: b}); err != nil {
		t.Fatal(err)
	}
	db, _ = os.ReadFile(b)
	if string(da) == string(db) {
		t.Error("different seeds produced identical files")
	}
}

func TestGenerateZeroRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := Generate(Spec{Rows: 0, Seed: 1, Path: path}); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	n, err := CountRows(path)
	if err != nil || n != 0 {
		t.Errorf("CountRows() = %d, %v, want 0", n, err)
	}
}
