// Package sitemap writes sitemap XML for the indexed documents.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/canonical/docsearch/internal/search"
	"github.com/canonical/docsearch/internal/storage"
)

const (
	maxSitemapURLs = 50000
	sitemapDir     = "sitemaps"
	sitemapNS      = "http://www.sitemaps.org/schemas/sitemap/0.9"
)

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	XMLNS    string            `xml:"xmlns,attr"`
	Sitemaps []sitemapIndexRef `xml:"sitemap"`
}

type sitemapIndexRef struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

// Lister lists indexed documents.
type Lister interface {
	List(ctx context.Context) ([]search.Entry, error)
}

// SitemapGenerator creates one sitemap per documentation section plus a
// sitemap index.
type SitemapGenerator struct {
	Source  Lister
	Storage *storage.FSStorage
	SiteURL string // where the sitemaps directory is published
	Logger  *slog.Logger
}

// Generate writes {Storage.Root}/sitemaps/sitemap-<section>.xml for every
// section and sitemaps/sitemap-index.xml referencing them.
func (g *SitemapGenerator) Generate(ctx context.Context) error {
	entries, err := g.Source.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	bySection := make(map[string][]sitemapURL)
	for _, e := range entries {
		bySection[e.Section] = append(bySection[e.Section], sitemapURL{
			Loc:     e.URL,
			LastMod: e.UpdatedAt.UTC().Format("2006-01-02"),
		})
	}
	sections := make([]string, 0, len(bySection))
	for s := range bySection {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	now := time.Now().UTC().Format("2006-01-02")
	siteURL := strings.TrimRight(g.SiteURL, "/")
	var refs []sitemapIndexRef
	for _, section := range sections {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunks := splitURLs(bySection[section], maxSitemapURLs)
		for i, chunk := range chunks {
			filename := "sitemap-" + section
			if len(chunks) > 1 {
				filename = fmt.Sprintf("%s-%d", filename, i+1)
			}
			filename += ".xml"

			urlset := sitemapURLSet{XMLNS: sitemapNS, URLs: chunk}
			if err := g.writeXML(ctx, path.Join(sitemapDir, filename), urlset); err != nil {
				return fmt.Errorf("write sitemap %s: %w", filename, err)
			}
			refs = append(refs, sitemapIndexRef{
				Loc:     siteURL + "/" + sitemapDir + "/" + filename,
				LastMod: now,
			})
		}
	}

	idx := sitemapIndex{XMLNS: sitemapNS, Sitemaps: refs}
	if err := g.writeXML(ctx, path.Join(sitemapDir, "sitemap-index.xml"), idx); err != nil {
		return fmt.Errorf("write sitemap index: %w", err)
	}
	if g.Logger != nil {
		g.Logger.Info("sitemaps written", "sections", len(sections), "urls", len(entries))
	}
	return nil
}

func (g *SitemapGenerator) writeXML(ctx context.Context, destPath string, v any) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return g.Storage.WriteFile(ctx, destPath, buf.Bytes())
}

func splitURLs(urls []sitemapURL, maxPerFile int) [][]sitemapURL {
	if len(urls) <= maxPerFile {
		return [][]sitemapURL{urls}
	}
	var chunks [][]sitemapURL
	for i := 0; i < len(urls); i += maxPerFile {
		end := i + maxPerFile
		if end > len(urls) {
			end = len(urls)
		}
		chunks = append(chunks, urls[i:end])
	}
	return chunks
}
