package store

import (
	"context"
	"errors"
	"fmt"
)

// Etag — непрозрачная версия документа.
//
// Меняется при каждой успешной записи. EmptyEtag обозначает
// отсутствующий документ.
type Etag string

// EmptyEtag — etag отсутствующего документа.
const EmptyEtag Etag = ""

// String возвращает etag для логов (EMPTY для отсутствующего документа).
func (e Etag) String() string {
	if e == EmptyEtag {
		return "EMPTY"
	}
	return string(e)
}

// Ошибки хранилища.
var (
	// ErrNotFound — документ отсутствует.
	ErrNotFound = errors.New("document not found")

	// ErrConflict — expected etag не совпал с текущим.
	ErrConflict = errors.New("etag conflict")
)

// ConflictError — запись с устаревшим etag.
type ConflictError struct {
	ID       string
	Current  Etag
	Expected Etag
}

// Error реализует интерфейс error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("etag conflict on %s: current %s, expected %s", e.ID, e.Current, e.Expected)
}

// Unwrap позволяет проверять errors.Is(err, ErrConflict).
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// AsConflict извлекает ConflictError из цепочки ошибок.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// Document — документ вместе с его etag.
type Document struct {
	ID   string
	Etag Etag
	Body []byte
}

// Store — versioned state store.
//
// Транзакций между ids нет: единственная гарантия порядка записей —
// сравнение expected etag с текущим.
type Store interface {
	// Get возвращает документ или ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Put записывает документ, если его текущий etag равен expected.
	// Возвращает новый etag или *ConflictError.
	Put(ctx context.Context, id string, body []byte, expected Etag) (Etag, error)

	// ListIDsWithPrefix возвращает отсортированные ids с префиксом.
	ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
