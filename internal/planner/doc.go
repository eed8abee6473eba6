// Package planner строит deployment plan из описания сервисов.
//
// Описание сервисов хранится в YAML: имя, число instances, границы
// и целевой progress. Planner раскладывает каждый instance на свой
// агент с детерминированными ids.
package planner
