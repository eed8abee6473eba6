// Package repo — хранилище состояний и очереди tasks на PostgreSQL.
//
//   - StateRepo реализует store.Store: etag в отдельной колонке,
//     запись только при совпадении etag
//   - TaskRepo реализует broker.Broker: очередь consumer'а упорядочена
//     по seq, дубликаты отсекает уникальный ключ (consumer_id, fingerprint)
//   - Lease — session advisory lock, один активный оркестратор на базу
//
// Схема применяется Migrate при старте процесса.
package repo
