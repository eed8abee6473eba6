package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/shaiso/ServiceGrid/internal/store"
)

// DefaultPrefix — корень ключей service grid в etcd.
const DefaultPrefix = "/servicegrid/"

const defaultDialTimeout = 5 * time.Second

// Config — конфигурация StateStore.
type Config struct {
	Endpoints []string

	// Prefix — корень ключей (default: DefaultPrefix).
	Prefix string

	DialTimeout time.Duration
}

// StateStore — store.Store на etcd.
//
// Документ id хранится в двух ключах:
//
//	<prefix>states/<id> — тело
//	<prefix>etags/<id>  — etag
//
// Put — одна транзакция: сравнение etag-ключа с expected
// (для EmptyEtag — CreateRevision ключа тела равна 0), затем запись
// обоих ключей. При неудаче та же транзакция читает текущий etag.
type StateStore struct {
	client *clientv3.Client
	kv     clientv3.KV
	keys   keys
}

var _ store.Store = (*StateStore)(nil)

// NewStateStore подключается к etcd.
func NewStateStore(cfg Config) (*StateStore, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return &StateStore{
		client: client,
		kv:     client.KV,
		keys:   newKeys(cfg.Prefix),
	}, nil
}

// Close закрывает клиент etcd.
func (s *StateStore) Close() error {
	return s.client.Close()
}

// Get возвращает документ. Тело и etag читаются одной транзакцией.
func (s *StateStore) Get(ctx context.Context, id string) (store.Document, error) {
	resp, err := s.kv.Txn(ctx).Then(
		clientv3.OpGet(s.keys.state(id)),
		clientv3.OpGet(s.keys.etag(id)),
	).Commit()
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to get state %s: %w", id, err)
	}

	body, ok := rangeValue(resp, 0)
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	etag, _ := rangeValue(resp, 1)

	return store.Document{ID: id, Etag: store.Etag(etag), Body: body}, nil
}

// Put записывает документ, если текущий etag равен expected.
func (s *StateStore) Put(ctx context.Context, id string, body []byte, expected store.Etag) (store.Etag, error) {
	next := store.NextEtag(expected, body)
	stateKey, etagKey := s.keys.state(id), s.keys.etag(id)

	var cmp clientv3.Cmp
	if expected == store.EmptyEtag {
		cmp = clientv3.Compare(clientv3.CreateRevision(stateKey), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.Value(etagKey), "=", string(expected))
	}

	resp, err := s.kv.Txn(ctx).If(cmp).Then(
		clientv3.OpPut(stateKey, string(body)),
		clientv3.OpPut(etagKey, string(next)),
	).Else(
		clientv3.OpGet(etagKey),
	).Commit()
	if err != nil {
		return store.EmptyEtag, fmt.Errorf("failed to put state %s: %w", id, err)
	}

	if resp.Succeeded {
		return next, nil
	}

	current, _ := rangeValue(resp, 0)
	return store.EmptyEtag, &store.ConflictError{ID: id, Current: store.Etag(current), Expected: expected}
}

// ListIDsWithPrefix возвращает отсортированные ids с префиксом.
func (s *StateStore) ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	resp, err := s.kv.Get(ctx, s.keys.state(prefix),
		clientv3.WithPrefix(),
		clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	ids := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ids = append(ids, s.keys.stateID(string(kv.Key)))
	}
	return ids, nil
}

// rangeValue возвращает значение первого ключа i-го ответа транзакции.
func rangeValue(resp *clientv3.TxnResponse, i int) ([]byte, bool) {
	if i >= len(resp.Responses) {
		return nil, false
	}
	r := resp.Responses[i].GetResponseRange()
	if r == nil || len(r.Kvs) == 0 {
		return nil, false
	}
	return r.Kvs[0].Value, true
}

// keys строит ключи etcd. Ids — URL, поэтому склеиваются без path.Join.
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return keys{prefix: prefix}
}

func (k keys) state(id string) string {
	return k.prefix + "states/" + id
}

func (k keys) etag(id string) string {
	return k.prefix + "etags/" + id
}

func (k keys) stateID(key string) string {
	return strings.TrimPrefix(key, k.prefix+"states/")
}
