// Package store определяет versioned state store.
//
// Каждый документ хранится вместе с etag. Запись выполняется только
// если expected etag совпадает с текущим (optimistic concurrency),
// иначе возвращается *ConflictError с текущим и ожидаемым etag.
// EmptyEtag обозначает отсутствующий документ: Put с EmptyEtag создаёт
// документ, только если его ещё нет.
//
// Реализации:
//   - MemoryStore         — в памяти (тесты, локальная симуляция)
//   - repo.StateRepo      — PostgreSQL
//   - etcd.StateStore     — etcd
package store
