package pipeline

import (
	"github.com/canonical/docsearch/internal/rst"
	"github.com/canonical/docsearch/internal/search"
	"github.com/canonical/docsearch/internal/transform"
)

// Extractor turns markup source into documents ready for the store. It
// never touches the store or the filesystem.
type Extractor struct {
	Paths PathResolver
}

func NewExtractor(paths PathResolver) *Extractor {
	return &Extractor{Paths: paths}
}

// Extract runs Extractor.Extract with the default resolver.
func Extract(raw []byte, basePath, filePath string) (search.Document, error) {
	return NewExtractor(DefaultResolver()).Extract(raw, basePath, filePath)
}

// Extract parses raw, pulls out its title, description and prose and
// places it under basePath. Failures are *ExtractError; timestamps are
// left for the store.
func (e *Extractor) Extract(raw []byte, basePath, filePath string) (search.Document, error) {
	tree, err := rst.Parse(raw)
	if err != nil {
		return search.Document{}, &ExtractError{Path: filePath, Err: err}
	}

	meta := transform.ExtractMetadata(tree)
	if meta.Title == "" {
		meta.Title = transform.TitleFromFilename(filePath)
	}
	content := transform.CleanContent(transform.ExtractText(tree))

	paths, err := e.Paths.Resolve(basePath, filePath)
	if err != nil {
		return search.Document{}, &ExtractError{Path: filePath, Err: err}
	}

	return search.Document{
		Path:        paths.Path,
		Title:       meta.Title,
		Description: meta.Description,
		Section:     paths.Section,
		URL:         paths.URL,
		Content:     content,
	}, nil
}
