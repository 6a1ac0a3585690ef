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
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// CacheConfig controls the caching decorator.
type CacheConfig struct {
	// TTL is how long a cached document stays valid. Zero uses the default.
	TTL time.Duration

	// Capacity bounds the number of cached documents. Zero uses the default.
	Capacity int

	// WatchDir, when non-empty, enables filesystem invalidation: any write,
	// remove, or rename under this directory tree flushes the cache.
	WatchDir string
}

// DefaultCacheConfig returns the settings used when callers pass zero values.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:      30 * time.Second,
		Capacity: 256,
	}
}

// cachedDoc is one cache slot. Documents are stored as loaded and cloned on
// the way out so callers can never corrupt the cached copy.
type cachedDoc struct {
	id       string
	doc      *Document
	diag     Diagnostics
	loadedAt time.Time
}

// loadResult carries a parsed document through the singleflight group.
type loadResult struct {
	doc  *Document
	diag Diagnostics
}

// CachingSource decorates a Source with a TTL-bounded LRU cache, singleflight
// deduplication of concurrent loads, and optional file-watch invalidation.
//
// # Description
//
// A hit returns a defensive copy of the cached document. A miss loads
// through the inner source exactly once per ID no matter how many goroutines
// ask concurrently. Load errors are never cached.
//
// When a watch directory is configured, any change under it flushes the
// whole cache. Mapping changed paths back to document IDs is layout
// knowledge the inner source owns, so this layer invalidates coarsely
// rather than guessing.
//
// # Thread Safety
//
// Safe for concurrent use.
type CachingSource struct {
	inner    Source
	ttl      time.Duration
	capacity int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // Front = most recent, Back = least recent

	group   singleflight.Group
	watcher *fsnotify.Watcher

	closeOnce sync.Once
	done      chan struct{}
}

// NewCachingSource wraps inner with caching per config.
//
// Description:
//
//	Applies defaults for zero-valued config fields. When WatchDir is set,
//	the directory tree as it exists now is watched; directories created
//	afterwards are not added to the watch set.
//
// Inputs:
//   - inner: The source to decorate. Must not be nil.
//   - config: Cache settings. Zero values take defaults.
//
// Outputs:
//   - *CachingSource: The decorated source.
//   - error: Non-nil when the file watcher could not be set up.
func NewCachingSource(inner Source, config CacheConfig) (*CachingSource, error) {
	defaults := DefaultCacheConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.Capacity <= 0 {
		config.Capacity = defaults.Capacity
	}

	s := &CachingSource{
		inner:    inner,
		ttl:      config.TTL,
		capacity: config.Capacity,
		items:    make(map[string]*list.Element, config.Capacity),
		order:    list.New(),
		done:     make(chan struct{}),
	}

	if config.WatchDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating file watcher: %w", err)
		}
		if err := watchTree(watcher, config.WatchDir); err != nil {
			watcher.Close()
			return nil, err
		}
		s.watcher = watcher
		go s.watchLoop()
	}

	return s, nil
}

// watchTree registers dir and every directory beneath it.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Load returns the document under id, from cache when fresh.
func (s *CachingSource) Load(ctx context.Context, id string) (*Document, Diagnostics, error) {
	if cached, diag, ok := s.get(id); ok {
		return cached, diag, nil
	}

	// Singleflight collapses concurrent misses into one inner load.
	resultI, err, _ := s.group.Do(id, func() (any, error) {
		if cached, diag, ok := s.get(id); ok {
			return loadResult{doc: cached, diag: diag}, nil
		}

		doc, diag, err := s.inner.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		s.set(id, doc, diag)
		return loadResult{doc: doc, diag: diag}, nil
	})
	if err != nil {
		return nil, Diagnostics{}, err
	}

	result, ok := resultI.(loadResult)
	if !ok {
		return nil, Diagnostics{}, fmt.Errorf("unexpected type from singleflight group: got %T", resultI)
	}
	return cloneDocument(result.doc), result.diag, nil
}

// get returns a fresh cached copy, expiring stale slots on contact.
func (s *CachingSource) get(id string) (*Document, Diagnostics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[id]
	if !ok {
		return nil, Diagnostics{}, false
	}
	entry := elem.Value.(*cachedDoc)
	if time.Since(entry.loadedAt) > s.ttl {
		s.order.Remove(elem)
		delete(s.items, id)
		return nil, Diagnostics{}, false
	}
	s.order.MoveToFront(elem)
	return cloneDocument(entry.doc), entry.diag, true
}

// set stores a freshly loaded document, evicting from the back when full.
func (s *CachingSource) set(id string, doc *Document, diag Diagnostics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[id]; ok {
		entry := elem.Value.(*cachedDoc)
		entry.doc = doc
		entry.diag = diag
		entry.loadedAt = time.Now()
		s.order.MoveToFront(elem)
		return
	}

	for len(s.items) >= s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*cachedDoc).id)
	}

	elem := s.order.PushFront(&cachedDoc{
		id:       id,
		doc:      doc,
		diag:     diag,
		loadedAt: time.Now(),
	})
	s.items[id] = elem
}

// Purge discards every cached document.
func (s *CachingSource) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element, s.capacity)
	s.order.Init()
}

// Len returns the number of cached documents.
func (s *CachingSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close stops the file watcher. The cache itself remains usable.
func (s *CachingSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

// watchLoop handles fsnotify events until Close.
func (s *CachingSource) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleWatchEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error",
				"error", err)

		case <-s.done:
			return
		}
	}
}

// handleWatchEvent flushes the cache on any content-changing event.
func (s *CachingSource) handleWatchEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Write != 0:
	case event.Op&fsnotify.Remove != 0:
	case event.Op&fsnotify.Rename != 0:
	case event.Op&fsnotify.Create != 0:
	default:
		return
	}

	slog.Debug("Document change detected, flushing cache",
		"path", event.Name,
		"op", event.Op.String())
	s.Purge()
}

// cloneDocument returns a copy whose slices and map are independent of the
// cached original.
func cloneDocument(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	out := *doc
	if len(doc.RelatedDocumentIDs) > 0 {
		out.RelatedDocumentIDs = make([]string, len(doc.RelatedDocumentIDs))
		copy(out.RelatedDocumentIDs, doc.RelatedDocumentIDs)
	}
	if len(doc.Meta) > 0 {
		out.Meta = make(map[string]any, len(doc.Meta))
		for k, v := range doc.Meta {
			out.Meta[k] = v
		}
	}
	return &out
}
