package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Read читает документ и декодирует его в T.
// Для отсутствующего документа возвращает (nil, EmptyEtag, nil).
func Read[T any](ctx context.Context, s Store, id string) (*T, Etag, error) {
	doc, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, EmptyEtag, nil
	}
	if err != nil {
		return nil, EmptyEtag, fmt.Errorf("get %s: %w", id, err)
	}

	var v T
	if err := json.Unmarshal(doc.Body, &v); err != nil {
		return nil, EmptyEtag, fmt.Errorf("unmarshal %s: %w", id, err)
	}

	return &v, doc.Etag, nil
}

// Write сериализует v и записывает его с expected etag.
func Write(ctx context.Context, s Store, id string, v any, expected Etag) (Etag, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return EmptyEtag, fmt.Errorf("marshal %s: %w", id, err)
	}
	return s.Put(ctx, id, body, expected)
}
