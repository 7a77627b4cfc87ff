package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanDataset(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"s-101_Jana_Novakova/a.jpg",
		"s-101_Jana_Novakova/b.PNG",
		"s-101_Jana_Novakova/notes.txt",
		"s-102_Petr/front.jpeg",
		"badname/x.jpg",
		"loose.jpg",
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	images, err := scanDataset(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("expected 3 images, got %d: %+v", len(images), images)
	}

	perStudent := make(map[string]int)
	for _, img := range images {
		perStudent[img.StudentID]++
		if img.StudentID == "s-101" && img.Name != "Jana Novakova" {
			t.Errorf("expected underscores in names to become spaces, got %q", img.Name)
		}
	}
	if perStudent["s-101"] != 2 || perStudent["s-102"] != 1 {
		t.Errorf("unexpected per-student counts %v", perStudent)
	}
}

func TestScanDataset_MissingDir(t *testing.T) {
	if _, err := scanDataset(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		arg     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseSessionID(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSessionID(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSessionID(%q) = %d, want %d", tt.arg, got, tt.want)
			}
		})
	}
}
