// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned documents and counts loads per ID.
type fakeSource struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	loads map[string]int
	delay time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs:  make(map[string]string),
		errs:  make(map[string]error),
		loads: make(map[string]int),
	}
}

func (f *fakeSource) Load(ctx context.Context, id string) (*Document, Diagnostics, error) {
	f.mu.Lock()
	f.loads[id]++
	raw, ok := f.docs[id]
	err := f.errs[id]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, Diagnostics{}, err
	}
	if !ok {
		return nil, Diagnostics{}, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	doc, diag := Parse(id, []byte(raw))
	return doc, diag, nil
}

func (f *fakeSource) loadCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[id]
}

func TestCachingSource_HitAvoidsSecondLoad(t *testing.T) {
	inner := newFakeSource()
	inner.docs["a"] = "doc a"

	source, err := NewCachingSource(inner, CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	defer source.Close()

	for i := 0; i < 3; i++ {
		doc, _, err := source.Load(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "doc a", doc.Body)
	}

	assert.Equal(t, 1, inner.loadCount("a"))
	assert.Equal(t, 1, source.Len())
}

func TestCachingSource_TTLExpiry(t *testing.T) {
	inner := newFakeSource()
	inner.docs["a"] = "v1"

	source, err := NewCachingSource(inner, CacheConfig{TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	defer source.Close()

	_, _, err = source.Load(context.Background(), "a")
	require.NoError(t, err)

	inner.mu.Lock()
	inner.docs["a"] = "v2"
	inner.mu.Unlock()

	time.Sleep(80 * time.Millisecond)

	doc, _, err := source.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Body)
	assert.Equal(t, 2, inner.loadCount("a"))
}

func TestCachingSource_ErrorsNotCached(t *testing.T) {
	inner := newFakeSource()
	inner.errs["a"] = fmt.Errorf("backend down")

	source, err := NewCachingSource(inner, CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	defer source.Close()

	_, _, err = source.Load(context.Background(), "a")
	require.Error(t, err)

	inner.mu.Lock()
	delete(inner.errs, "a")
	inner.docs["a"] = "recovered"
	inner.mu.Unlock()

	doc, _, err := source.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "recovered", doc.Body)
	assert.Equal(t, 2, inner.loadCount("a"))
}

func TestCachingSource_ConcurrentMissesCollapse(t *testing.T) {
	inner := newFakeSource()
	inner.docs["a"] = "shared"
	inner.delay = 50 * time.Millisecond

	source, err := NewCachingSource(inner, CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	defer source.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, _, err := source.Load(context.Background(), "a")
			assert.NoError(t, err)
			assert.Equal(t, "shared", doc.Body)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inner.loadCount("a"))
}

func TestCachingSource_ReturnsIndependentCopies(t *testing.T) {
	inner := newFakeSource()
	inner.docs["a"] = "---\nrelatedDocumentIds: [x, y]\ntitle: T\n---\nbody"

	source, err := NewCachingSource(inner, CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	defer source.Close()

	first, _, err := source.Load(context.Background(), "a")
	require.NoError(t, err)
	first.RelatedDocumentIDs[0] = "mutated"
	first.Meta["title"] = "mutated"

	second, _, err := source.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, second.RelatedDocumentIDs)
	assert.Equal(t, "T", second.Meta["title"])
	assert.Equal(t, 1, inner.loadCount("a"))
}

func TestCachingSource_CapacityEviction(t *testing.T) {
	inner := newFakeSource()
	inner.docs["a"] = "a"
	inner.docs["b"] = "b"
	inner.docs["c"] = "c"

	source, err := NewCachingSource(inner, CacheConfig{TTL: time.Minute, Capacity: 2})
	require.NoError(t, err)
	defer source.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := source.Load(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, source.Len())

	// "a" was least recently used and should have been evicted.
	_, _, err = source.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.loadCount("a"))
	assert.Equal(t, 1, inner.loadCount("b"))
}

func TestCachingSource_Purge(t *testing.T) {
	inner := newFakeSource()
	inner.docs["a"] = "a"

	source, err := NewCachingSource(inner, CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	defer source.Close()

	_, _, err = source.Load(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 1, source.Len())

	source.Purge()
	assert.Equal(t, 0, source.Len())

	_, _, err = source.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.loadCount("a"))
}

func TestCachingSource_WatchInvalidation(t *testing.T) {
	root := t.TempDir()
	docPath := filepath.Join(root, "doc.md")
	require.NoError(t, os.WriteFile(docPath, []byte("v1"), 0o644))

	fsSource, err := NewFSSource(root)
	require.NoError(t, err)

	source, err := NewCachingSource(fsSource, CacheConfig{
		TTL:      time.Minute,
		WatchDir: root,
	})
	require.NoError(t, err)
	defer source.Close()

	doc, _, err := source.Load(context.Background(), "doc.md")
	require.NoError(t, err)
	require.Equal(t, "v1", doc.Body)
	require.Equal(t, 1, source.Len())

	require.NoError(t, os.WriteFile(docPath, []byte("v2"), 0o644))

	assert.Eventually(t, func() bool {
		return source.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "cache should flush after the file changes")

	doc, _, err = source.Load(context.Background(), "doc.md")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Body)
}
