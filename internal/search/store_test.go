package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc(path, title, section, content string) Document {
	return Document{
		Path:    path,
		Title:   title,
		Section: section,
		URL:     "https://example.com/" + strings.TrimSuffix(path, ".rst") + ".html",
		Content: content,
	}
}

func TestUpsert_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := doc("aws/ec2.rst", "EC2", "aws", "instances and images")
	in.Description = "Amazon compute"
	require.NoError(t, s.Upsert(ctx, in))

	got, ok, err := s.Get(ctx, "aws/ec2.rst")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Section, got.Section)
	assert.Equal(t, in.URL, got.URL)
	assert.Equal(t, in.Content, got.Content)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestGet_Missing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "nope.rst")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsert_PreservesIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	second := first.Add(time.Hour)
	s.now = func() time.Time { return first }
	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Old", "root", "alpha content")))

	var idBefore int64
	require.NoError(t, s.db.QueryRow(`SELECT id FROM documents WHERE path = 'a.rst'`).Scan(&idBefore))

	s.now = func() time.Time { return second }
	updated := doc("a.rst", "New", "root", "beta content")
	updated.Description = "now described"
	require.NoError(t, s.Upsert(ctx, updated))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok, err := s.Get(ctx, "a.rst")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "now described", got.Description)
	assert.Equal(t, "beta content", got.Content)
	assert.True(t, got.CreatedAt.Equal(first))
	assert.True(t, got.UpdatedAt.Equal(second))

	var idAfter int64
	require.NoError(t, s.db.QueryRow(`SELECT id FROM documents WHERE path = 'a.rst'`).Scan(&idAfter))
	assert.Equal(t, idBefore, idAfter)
}

func TestUpsert_ReplacesIndexEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "zebra")))
	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "giraffe")))

	old, err := s.Search(ctx, "zebra", Options{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, old)

	current, err := s.Search(ctx, "giraffe", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "a.rst", current[0].Path)

	assert.NoError(t, s.Verify(ctx))
}

func TestUpsert_DescriptionClearedKeepsIndexConsistent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	withDesc := doc("a.rst", "Doc", "root", "body")
	withDesc.Description = "walrus"
	require.NoError(t, s.Upsert(ctx, withDesc))
	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "body")))

	results, err := s.Search(ctx, "walrus", Options{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, s.Verify(ctx))
}

func TestUpsert_RejectsEmptyPath(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Upsert(context.Background(), doc("", "T", "root", "c")))
}

func TestUpsertBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var docs []Document
	for i := 0; i < batchSize+5; i++ {
		docs = append(docs, doc(fmt.Sprintf("doc-%d.rst", i), fmt.Sprintf("Doc %d", i), "root", "shared"))
	}
	require.NoError(t, s.UpsertBatch(ctx, docs))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, batchSize+5, n)
	assert.NoError(t, s.Verify(ctx))
}

func TestStoreIndexConsistency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	titles := map[string]string{
		"aws/ec2.rst":       "Elastic Compute",
		"azure/vm.rst":      "Virtual Machines",
		"gcp/instances.rst": "Compute Engine Instances",
	}
	for path, title := range titles {
		section := strings.Split(path, "/")[0]
		require.NoError(t, s.Upsert(ctx, doc(path, title, section, "some body text")))
	}

	for path, title := range titles {
		results, err := s.Search(ctx, title, Options{Limit: 10})
		require.NoError(t, err)
		var paths []string
		for _, r := range results {
			paths = append(paths, r.Path)
		}
		assert.Contains(t, paths, path)
	}
	require.NoError(t, s.Verify(ctx))

	require.NoError(t, s.DeleteAll(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, title := range titles {
		results, err := s.Search(ctx, title, Options{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.NoError(t, s.Verify(ctx))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "pelican")))

	removed, err := s.Delete(ctx, "a.rst")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "a.rst")
	require.NoError(t, err)
	assert.False(t, removed)

	results, err := s.Search(ctx, "pelican", Options{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, s.Verify(ctx))
}

func TestVerify_DetectsDivergence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "original words")))
	// Bypass the store so the index keeps the old tokens.
	_, err := s.db.Exec(`UPDATE documents SET content = 'entirely different' WHERE path = 'a.rst'`)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(ctx), ErrIndexOutOfSync)
}

func TestSectionsAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, doc("aws/a.rst", "A", "aws", "x")))
	require.NoError(t, s.Upsert(ctx, doc("aws/b.rst", "B", "aws", "x")))
	require.NoError(t, s.Upsert(ctx, doc("index.rst", "Index", "root", "x")))

	sections, err := s.Sections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []SectionCount{{Section: "aws", Count: 2}, {Section: "root", Count: 1}}, sections)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "aws/a.rst", entries[0].Path)
	assert.Equal(t, "https://example.com/aws/a.html", entries[0].URL)
	assert.False(t, entries[0].UpdatedAt.IsZero())
}

func TestOptimize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "heron")))
	require.NoError(t, s.Optimize(ctx))

	results, err := s.Search(ctx, "heron", Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "search.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, doc("a.rst", "Doc", "root", "osprey")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	results, err := s.Search(ctx, "osprey", Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChecksumStoredWithDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := doc("aws/ec2.rst", "EC2", "aws", "instances")
	in.Checksum = "sum-1"
	require.NoError(t, s.Upsert(ctx, in))

	got, ok, err := s.Get(ctx, "aws/ec2.rst")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sum-1", got.Checksum)

	in.Checksum = "sum-2"
	require.NoError(t, s.Upsert(ctx, in))
	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sum-2", entries[0].Checksum)
}

func TestOpenMigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.db")
	db, err := openDB(path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		section TEXT NOT NULL,
		url TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	in := doc("a.rst", "Doc", "root", "osprey")
	in.Checksum = "abc"
	require.NoError(t, s.Upsert(ctx, in))
	got, ok, err := s.Get(ctx, "a.rst")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", got.Checksum)
	assert.NoError(t, s.Verify(ctx))
}

// Writers on two handles to one database file race on distinct paths and on
// one shared path while readers query. Every hit must resolve to a stored
// document and the index must match the table afterwards.
func TestConcurrentUpsertsAndSearches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.db")
	first, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	stores := []*Store{first, second}

	const (
		writers   = 8
		perWriter = 10
	)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*4)

	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := stores[w%len(stores)]
			for i := range perWriter {
				own := doc(fmt.Sprintf("w%d/d%d.rst", w, i), "Kestrel page", "root", fmt.Sprintf("kestrel writer%d item%d", w, i))
				if err := s.Upsert(ctx, own); err != nil {
					errs <- err
					return
				}
				shared := doc("shared.rst", "Kestrel shared", "root", fmt.Sprintf("kestrel shared writer%d item%d", w, i))
				if err := s.Upsert(ctx, shared); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			s := stores[r%len(stores)]
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := s.Search(ctx, "kestrel", Options{Limit: 1000})
				if err != nil {
					errs <- err
					return
				}
				for _, res := range results {
					if _, ok, err := s.Get(ctx, res.Path); err != nil || !ok {
						errs <- fmt.Errorf("hit %s has no document (err %v)", res.Path, err)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, first.Verify(ctx))
	n, err := first.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter+1, n)

	results, err := second.Search(ctx, "kestrel", Options{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, results, n)

	shared, ok, err := first.Get(ctx, "shared.rst")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, shared.Content, "kestrel shared writer")
}
