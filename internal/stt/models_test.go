package stt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListModels(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "ggml-tiny.bin")
	touch(t, dir, "ggml-base.bin")
	touch(t, dir, "README.md")
	if err := os.Mkdir(filepath.Join(dir, "archive.bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	models, err := ListModels(dir, "")
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 || models[0] != "ggml-base.bin" || models[1] != "ggml-tiny.bin" {
		t.Fatalf("unexpected models %v", models)
	}
}

func TestListModelsMissingDir(t *testing.T) {
	models, err := ListModels(filepath.Join(t.TempDir(), "nope"), ".bin")
	if err != nil {
		t.Fatalf("missing dir should not fail: %v", err)
	}
	if len(models) != 0 {
		t.Fatalf("expected no models, got %v", models)
	}
}
