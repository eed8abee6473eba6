package store

import (
	"context"
	"errors"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStore_PutCreatesWithEmptyEtag(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	etag, err := s.Put(ctx, "a/", []byte(`{"name":"a"}`), EmptyEtag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if etag == EmptyEtag {
		t.Fatal("etag of a written document must not be EMPTY")
	}

	got, err := s.Get(ctx, "a/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Etag != etag {
		t.Errorf("expected etag %s, got %s", etag, got.Etag)
	}
	if string(got.Body) != `{"name":"a"}` {
		t.Errorf("unexpected body %s", got.Body)
	}
}

func TestMemoryStore_StaleEtagFailsWithoutMutation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.Put(ctx, "a/", []byte(`1`), EmptyEtag)
	second, err := s.Put(ctx, "a/", []byte(`2`), first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Запись со старым etag
	_, err = s.Put(ctx, "a/", []byte(`3`), first)
	conflict, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Current != second || conflict.Expected != first {
		t.Errorf("unexpected conflict etags: current=%s expected=%s", conflict.Current, conflict.Expected)
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("ConflictError should unwrap to ErrConflict")
	}

	got, _ := s.Get(ctx, "a/")
	if string(got.Body) != `2` || got.Etag != second {
		t.Errorf("store mutated by failed put: body=%s etag=%s", got.Body, got.Etag)
	}
}

func TestMemoryStore_CreateOverExistingConflicts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	current, _ := s.Put(ctx, "a/", []byte(`1`), EmptyEtag)

	_, err := s.Put(ctx, "a/", []byte(`2`), EmptyEtag)
	conflict, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Current != current {
		t.Errorf("expected current %s, got %s", current, conflict.Current)
	}
}

func TestMemoryStore_EtagAdvancesOnIdenticalContent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	seen := map[Etag]bool{}
	etag := EmptyEtag
	for i := 0; i < 5; i++ {
		next, err := s.Put(ctx, "a/", []byte(`{}`), etag)
		if err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
		if seen[next] {
			t.Fatalf("etag %s repeated on write %d", next, i)
		}
		seen[next] = true
		etag = next
	}
}

func TestMemoryStore_UpdateOfMissingDocumentReportsEmpty(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Put(context.Background(), "gone/", []byte(`{}`), Etag(`"abc"`))
	conflict, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Current != EmptyEtag {
		t.Errorf("expected current EMPTY, got %s", conflict.Current)
	}
}

func TestMemoryStore_ListIDsWithPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"x/services/b/", "x/services/a/", "x/agents/a-0/"} {
		if _, err := s.Put(ctx, id, []byte(`{}`), EmptyEtag); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	ids, err := s.ListIDsWithPrefix(ctx, "x/services/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "x/services/a/" || ids[1] != "x/services/b/" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(ctx, "a/", []byte(`{}`), EmptyEtag)
	s.Clear()

	if _, err := s.Get(ctx, "a/"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after Clear, got %v", err)
	}
}

func TestReadWrite_Typed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v, etag, err := Read[doc](ctx, s, "d/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil || etag != EmptyEtag {
		t.Fatalf("expected absent document, got %+v %s", v, etag)
	}

	etag, err = Write(ctx, s, "d/", doc{Name: "d", Count: 1}, EmptyEtag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, got, err := Read[doc](ctx, s, "d/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != etag {
		t.Errorf("expected etag %s, got %s", etag, got)
	}
	if v.Name != "d" || v.Count != 1 {
		t.Errorf("unexpected document %+v", v)
	}
}
