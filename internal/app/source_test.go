package app

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writePhoto(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func itemNames(t *testing.T, s *DirectorySource) []string {
	t.Helper()
	items, err := s.Items()
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.DisplayName)
	}
	sort.Strings(names)
	return names
}

func TestDirectorySource_Items(t *testing.T) {
	dir := t.TempDir()
	writePhoto(t, filepath.Join(dir, "a.jpg"), "aaa")
	writePhoto(t, filepath.Join(dir, "b.PNG"), "bbb")
	writePhoto(t, filepath.Join(dir, "notes.txt"), "not a photo")
	writePhoto(t, filepath.Join(dir, "sub", "c.heic"), "ccc")

	t.Run("non-recursive skips subdirectories", func(t *testing.T) {
		got := itemNames(t, NewDirectorySource(dir, false))
		want := []string{"a.jpg", "b.PNG"}
		if len(got) != len(want) {
			t.Fatalf("items = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("items[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("recursive includes subdirectories", func(t *testing.T) {
		got := itemNames(t, NewDirectorySource(dir, true))
		want := []string{"a.jpg", "b.PNG", "c.heic"}
		if len(got) != len(want) {
			t.Fatalf("items = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("items[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})
}

func TestDirectorySource_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solo.jpeg")
	writePhoto(t, path, "photo bytes")

	items, err := NewDirectorySource(path, false).Items()
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].DisplayName != "solo.jpeg" {
		t.Errorf("DisplayName = %q, want %q", items[0].DisplayName, "solo.jpeg")
	}

	rc, err := items[0].Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading item: %v", err)
	}
	if string(data) != "photo bytes" {
		t.Errorf("content = %q, want %q", data, "photo bytes")
	}
}

func TestDirectorySource_SingleFileNotAPhoto(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	writePhoto(t, path, "pdf")

	if _, err := NewDirectorySource(path, false).Items(); err == nil {
		t.Fatal("Items() error = nil, want error for non-photo file")
	}
}

func TestDirectorySource_MissingRoot(t *testing.T) {
	if _, err := NewDirectorySource("/does/not/exist", false).Items(); err == nil {
		t.Fatal("Items() error = nil, want error for missing root")
	}
}
