package pipeline

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		path    string
		section string
		url     string
	}{
		{"top level", "getting-started.rst", "getting-started.rst", "root", "https://cloudcustodian.io/docs/getting-started.html"},
		{"section", "aws/s3.rst", "aws/s3.rst", "aws", "https://cloudcustodian.io/docs/aws/s3.html"},
		{"nested", "aws/resources/ec2.rst", "aws/resources/ec2.rst", "aws", "https://cloudcustodian.io/docs/aws/resources/ec2.html"},
		{"rest extension", "azure/vm.rest", "azure/vm.rest", "azure", "https://cloudcustodian.io/docs/azure/vm.html"},
		{"alias", "source/gcp/intro.rst", "source/gcp/intro.rst", "gcp", "https://cloudcustodian.io/docs/gcp/intro.html"},
		{"alias top level", "source/alternative.rst", "source/alternative.rst", "alternative.rst", "https://cloudcustodian.io/docs/alternative.html"},
		{"other extension", "notes/readme.txt", "notes/readme.txt", "notes", "https://cloudcustodian.io/docs/notes/readme.txt"},
	}
	base := filepath.Join("/docs")
	r := DefaultResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(base, filepath.Join(base, filepath.FromSlash(tt.file)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Path != tt.path {
				t.Fatalf("unexpected path: %s", got.Path)
			}
			if got.Section != tt.section {
				t.Fatalf("unexpected section: %s", got.Section)
			}
			if got.URL != tt.url {
				t.Fatalf("unexpected url: %s", got.URL)
			}
		})
	}
}

func TestResolveNotUnderRoot(t *testing.T) {
	r := DefaultResolver()
	for _, file := range []string{"/elsewhere/a.rst", "/docs", "/docs/../a.rst"} {
		if _, err := r.Resolve("/docs", file); !errors.Is(err, ErrNotUnderRoot) {
			t.Fatalf("Resolve(%q): expected ErrNotUnderRoot, got %v", file, err)
		}
	}
	if _, err := r.Resolve("/docs", "relative/a.rst"); !errors.Is(err, ErrNotUnderRoot) {
		t.Fatalf("expected ErrNotUnderRoot for mixed paths, got %v", err)
	}
}

func TestResolveCustomSettings(t *testing.T) {
	r := PathResolver{
		BaseURL:    "https://docs.example.com/",
		RootAlias:  "content",
		SourceExts: []string{".rst"},
		PublishExt: "/",
	}
	got, err := r.Resolve("/srv", "/srv/content/guide/setup.rst")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Section != "guide" {
		t.Fatalf("unexpected section: %s", got.Section)
	}
	if got.URL != "https://docs.example.com/guide/setup/" {
		t.Fatalf("unexpected url: %s", got.URL)
	}
}

func TestIsSource(t *testing.T) {
	r := DefaultResolver()
	if !r.IsSource("a/b.rst") || !r.IsSource("c.rest") {
		t.Fatal("expected markup extensions to be sources")
	}
	if r.IsSource("a/b.md") || r.IsSource("rst") {
		t.Fatal("unexpected source match")
	}
}
