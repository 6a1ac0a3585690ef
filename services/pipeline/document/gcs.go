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
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianScribe/pkg/validation"
)

// GCSSource loads documents from a Google Cloud Storage bucket. Document IDs
// map to object names under an optional prefix, with the same ".md" fallback
// as the filesystem source.
type GCSSource struct {
	storageClient *storage.Client
	BucketName    string
	Prefix        string
}

// NewGCSSource connects to a bucket. With an empty saKeyPath the client uses
// application default credentials.
func NewGCSSource(ctx context.Context, bucketName, prefix, saKeyPath string) (*GCSSource, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSSource{
		storageClient: storageClient,
		BucketName:    bucketName,
		Prefix:        prefix,
	}, nil
}

func (s *GCSSource) Load(ctx context.Context, id string) (*Document, Diagnostics, error) {
	normalized, err := validation.NormalizeDocumentID(id)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("document %q: %w: %v", id, ErrNotFound, err)
	}

	candidates := []string{normalized}
	if path.Ext(normalized) == "" {
		candidates = append(candidates, normalized+".md")
	}

	for _, candidate := range candidates {
		objectName := candidate
		if s.Prefix != "" {
			objectName = path.Join(s.Prefix, candidate)
		}
		raw, err := s.readObject(ctx, objectName)
		if err == nil {
			doc, diag := Parse(normalized, raw)
			return doc, diag, nil
		}
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return nil, Diagnostics{}, fmt.Errorf("failed to read GCS object %s: %w", objectName, err)
		}
	}

	return nil, Diagnostics{}, fmt.Errorf("document %q: %w", normalized, ErrNotFound)
}

func (s *GCSSource) readObject(ctx context.Context, objectName string) ([]byte, error) {
	reader, err := s.storageClient.Bucket(s.BucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Close releases the underlying storage client.
func (s *GCSSource) Close() error {
	return s.storageClient.Close()
}
