package transform

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTitle is used when neither the document nor its file name yields
// a title.
const DefaultTitle = "Untitled"

// TitleFromFilename derives a display title from a file name: the
// extension is dropped, dashes and underscores become spaces and each word
// is title-cased ("my-test_file.rst" -> "My Test File").
func TitleFromFilename(filename string) string {
	name := filepath.Base(filename)
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = collapseWhitespace(name)
	if name == "" || name == "." {
		return DefaultTitle
	}
	return cases.Title(language.Und).String(name)
}
