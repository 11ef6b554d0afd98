package confkit_test

import (
	"os"
	"path/filepath"
	"testing"

	"vietmarket-api/pkg/confkit"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		file     string
		expected string
	}{
		{"absolute path wins", "/base/dir", "/etc/vietmarket/sources.yaml", "/etc/vietmarket/sources.yaml"},
		{"relative joins base", "/base/dir", "sources.yaml", "/base/dir/sources.yaml"},
		{"nested relative", "/base", "etc/news.yaml", "/base/etc/news.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := confkit.ResolvePath(tt.base, tt.file); got != tt.expected {
				t.Errorf("ResolvePath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestResolvePathExpandsEnv(t *testing.T) {
	t.Setenv("VM_CONF_DIR", "/opt/vm")
	if got := confkit.ResolvePath("/base", "${VM_CONF_DIR}/sources.yaml"); got != "/opt/vm/sources.yaml" {
		t.Errorf("ResolvePath() = %v", got)
	}
}

func TestSectionHydrate(t *testing.T) {
	type sub struct {
		Name string
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub.yaml")
	if err := os.WriteFile(path, []byte("Name: vci\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := confkit.Section[sub]{File: "sub.yaml"}
	if err := s.Hydrate(dir, func(p string) (*sub, error) {
		return confkit.LoadFile[sub](p, false)
	}); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	if s.Value == nil || s.Value.Name != "vci" {
		t.Errorf("Hydrate() value = %+v", s.Value)
	}
	if s.File != path {
		t.Errorf("Hydrate() file = %v, want %v", s.File, path)
	}
}

func TestSectionHydrateEmptyFileIsNoop(t *testing.T) {
	s := confkit.Section[struct{}]{}
	if err := s.Hydrate("/nowhere", nil); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	if s.Value != nil {
		t.Error("Hydrate() should leave Value nil")
	}
}
