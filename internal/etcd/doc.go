// Package etcd — хранилище состояний service grid на etcd.
//
// Подходит, когда etcd уже есть в инфраструктуре. Tasks в etcd
// не хранятся: broker для этого backend'а — PostgreSQL или память.
package etcd
