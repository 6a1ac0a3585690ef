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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianScribe/pkg/validation"
)

// DocumentClassName is the Weaviate class holding raw document content.
const DocumentClassName = "ScribeDocument"

// DocumentClassSchema returns the class definition for stored documents.
// Content is stored raw, frontmatter included, so that parsing semantics
// live in one place regardless of which source loaded the document.
func DocumentClassSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       DocumentClassName,
		Description: "A source document stored verbatim, frontmatter included.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "doc_id",
				DataType:        []string{"text"},
				Description:     "The stable identifier the document is requested by.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "Raw document text including any frontmatter block.",
			},
			{
				Name:        "ingested_at",
				DataType:    []string{"number"},
				Description: "Unix milliseconds when this document was stored.",
			},
		},
	}
}

// EnsureDocumentClass creates the document class if it does not exist yet.
func EnsureDocumentClass(ctx context.Context, client *weaviate.Client) error {
	_, err := client.Schema().ClassGetter().WithClassName(DocumentClassName).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", DocumentClassName)
		return nil
	}

	slog.Info("Schema not found, creating it...", "class", DocumentClassName)
	if err := client.Schema().ClassCreator().WithClass(DocumentClassSchema()).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", DocumentClassName, err)
	}
	slog.Info("Successfully created schema", "class", DocumentClassName)
	return nil
}

// WeaviateSource loads documents stored in a Weaviate class by exact ID.
//
// # Description
//
// Lookups filter on the doc_id property and never use vector search; the
// pipeline resolves only author-declared references, so retrieval must be
// exact or a miss, never "closest match".
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is.
type WeaviateSource struct {
	client *weaviate.Client
}

// NewWeaviateSource wraps an existing client.
func NewWeaviateSource(client *weaviate.Client) *WeaviateSource {
	return &WeaviateSource{client: client}
}

// Load fetches the document stored under id.
func (s *WeaviateSource) Load(ctx context.Context, id string) (*Document, Diagnostics, error) {
	normalized, err := validation.NormalizeDocumentID(id)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("document %q: %w: %v", id, ErrNotFound, err)
	}

	where := filters.Where().
		WithPath([]string{"doc_id"}).
		WithOperator(filters.Equal).
		WithValueString(normalized)

	fields := []graphql.Field{
		{Name: "doc_id"},
		{Name: "content"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(DocumentClassName).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("failed to query Weaviate for document %q: %w", normalized, err)
	}
	if len(result.Errors) > 0 {
		return nil, Diagnostics{}, fmt.Errorf("weaviate query for document %q: %s", normalized, result.Errors[0].Message)
	}

	content, ok := extractContent(result.Data)
	if !ok {
		return nil, Diagnostics{}, fmt.Errorf("document %q: %w", normalized, ErrNotFound)
	}

	doc, diag := Parse(normalized, []byte(content))
	return doc, diag, nil
}

// Put stores raw document content under id, replacing any previous object.
// The object UUID is derived from the ID so repeated ingestion of the same
// document updates in place instead of accumulating duplicates.
func (s *WeaviateSource) Put(ctx context.Context, id string, raw []byte) error {
	normalized, err := validation.NormalizeDocumentID(id)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}

	hash := sha256.Sum256([]byte(normalized))
	objUUID, _ := uuid.FromBytes(hash[:16])

	obj := &models.Object{
		Class: DocumentClassName,
		ID:    strfmt.UUID(objUUID.String()),
		Properties: map[string]interface{}{
			"doc_id":      normalized,
			"content":     string(raw),
			"ingested_at": time.Now().UnixMilli(),
		},
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to save document %q to Weaviate: %w", normalized, err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to save document %q to Weaviate: %s", normalized, item.Result.Errors.Error[0].Message)
		}
	}

	slog.Info("Stored document", "doc_id", normalized, "bytes", len(raw))
	return nil
}

// extractContent walks the GraphQL response shape down to the content field
// of the first returned object.
func extractContent(data map[string]models.JSONObject) (string, bool) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return "", false
	}
	objects, ok := get[DocumentClassName].([]interface{})
	if !ok || len(objects) == 0 {
		return "", false
	}
	first, ok := objects[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := first["content"].(string)
	return content, ok
}
