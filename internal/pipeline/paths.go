package pipeline

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotUnderRoot is returned when a source file lies outside the
// documentation root it is resolved against.
var ErrNotUnderRoot = errors.New("path not under root")

// RootSection is the section of files that sit directly in the root.
const RootSection = "root"

const (
	DefaultBaseURL    = "https://cloudcustodian.io/docs"
	DefaultRootAlias  = "source"
	DefaultPublishExt = ".html"
)

// DefaultSourceExts are the markup extensions rewritten to the publish
// extension.
var DefaultSourceExts = []string{".rst", ".rest"}

// PathResolver derives a document's key, section and public URL from where
// its source file sits under the documentation root.
type PathResolver struct {
	BaseURL    string
	RootAlias  string
	SourceExts []string
	PublishExt string
}

func DefaultResolver() PathResolver {
	return PathResolver{
		BaseURL:    DefaultBaseURL,
		RootAlias:  DefaultRootAlias,
		SourceExts: DefaultSourceExts,
		PublishExt: DefaultPublishExt,
	}
}

type DocPaths struct {
	// Path is the root-relative, slash-separated source path.
	Path    string
	Section string
	URL     string
}

// Resolve maps filePath, which must be a descendant of basePath, to its
// document paths.
func (r PathResolver) Resolve(basePath, filePath string) (DocPaths, error) {
	rel, err := RelativePath(basePath, filePath)
	if err != nil {
		return DocPaths{}, err
	}
	return DocPaths{
		Path:    rel,
		Section: r.Section(rel),
		URL:     r.URL(rel),
	}, nil
}

// RelativePath returns filePath relative to basePath in slash form.
func RelativePath(basePath, filePath string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(basePath), filepath.Clean(filePath))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotUnderRoot, filePath, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrNotUnderRoot, filePath)
	}
	return rel, nil
}

// Section returns the facet for a root-relative path: the directory under
// the root alias, else the first directory, else RootSection.
func (r PathResolver) Section(rel string) string {
	parts := strings.Split(rel, "/")
	if r.RootAlias != "" && parts[0] == r.RootAlias && len(parts) > 1 {
		return parts[1]
	}
	if len(parts) > 1 {
		return parts[0]
	}
	return RootSection
}

// URL returns the published location of a root-relative path.
func (r PathResolver) URL(rel string) string {
	if r.RootAlias != "" {
		rel = strings.TrimPrefix(rel, r.RootAlias+"/")
	}
	if ext := path.Ext(rel); ext != "" && slices.Contains(r.SourceExts, ext) {
		rel = strings.TrimSuffix(rel, ext) + r.PublishExt
	}
	return strings.TrimRight(r.BaseURL, "/") + "/" + rel
}

// IsSource reports whether name carries one of the markup extensions.
func (r PathResolver) IsSource(name string) bool {
	return slices.Contains(r.SourceExts, filepath.Ext(name))
}
