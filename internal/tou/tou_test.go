package tou

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFallbackWithoutDir(t *testing.T) {
	l := NewLoader("")
	text, err := l.Load(MetadataImport)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if text != Fallback {
		t.Errorf("text = %q, want fallback", text)
	}
}

func TestFallbackForMissingFile(t *testing.T) {
	l := NewLoader(t.TempDir())
	text, err := l.Load("does-not-exist")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if text != Fallback {
		t.Errorf("text = %q, want fallback", text)
	}
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	want := "# Terms\n\nBe nice.\n"
	if err := os.WriteFile(filepath.Join(dir, MetadataImport+".md"), []byte(want), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	text, err := l.Load(MetadataImport)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestCachedAfterFirstRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, UserRegister+".md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	if text, _ := l.Load(UserRegister); text != "v1" {
		t.Fatalf("first read = %q", text)
	}

	// A change on disk is not picked up while cached.
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if text, _ := l.Load(UserRegister); text != "v1" {
		t.Errorf("cached read = %q, want v1", text)
	}
}

func TestRejectsPathSeparators(t *testing.T) {
	l := NewLoader(t.TempDir())
	if _, err := l.Load("../etc/passwd"); err == nil {
		t.Error("expected error for name with separators")
	}
}
