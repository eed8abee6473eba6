// Package worker — runtime выполнения tasks.
//
// # Обзор
//
// У каждого executor'а (оркестратор, агент, machine provisioner) свой
// Runtime со своей очередью в Broker. Runtime отвечает за:
//
//   - Привязку обработчиков по типу task (Registry)
//   - Одну выполняющуюся task на consumer'а (executing_task)
//   - Историю выполненных tasks (tasks_history)
//   - Доступ обработчика к чужому документу (impersonation)
//   - Восстановление после конфликта с EMPTY etag
//   - Persisted log для persistent tasks
//
// Worker крутит Runtime: polling очереди плюс уведомления из RabbitMQ.
//
// # Ключевые компоненты
//
// ## Registry
//
// Таблица обработчиков, заполняется при создании executor'а:
//
//	r := worker.NewRegistry()
//	r.Register(domain.TaskTypePingAgent, worker.Consumer(a.ping), worker.NoHistory())
//	r.RegisterImpersonating(domain.TaskTypePlanAgent, worker.Consumer(o.planAgent))
//	r.RegisterProducer(worker.Producer(o.orchestrate))
//
// Виды обработчиков:
//   - KindConsumer — меняет собственный документ consumer'а
//   - KindImpersonating — меняет документ task.StateID
//   - KindProducer — вызывается по TaskProducerTask, возвращает новые tasks
//
// ## StateHandle / Handle[T]
//
// Доступ к одному документу на время выполнения task. Первый Get
// читает документ и кэширует etag, Put пишет с кэшированным etag.
//
// # Выполнение task
//
//  1. Поиск обработчика (нет обработчика — ErrNoHandler)
//  2. Запись task в executing_task (уже занято — ErrTaskInFlight)
//  3. Вызов обработчика
//  4. Очистка executing_task, запись в tasks_history
//  5. Для impersonating task — запись в tasks_history целевого документа
//
// # Ошибки
//
// Фатальные ошибки оборачивают ErrFatal: ErrNoHandler, ErrTaskInFlight,
// ErrConcurrentWriter. Worker останавливается на первой из них.
// Остальные ошибки относятся к одной task: она считается выполненной
// с ошибкой, reconciliation пришлёт её снова.
package worker
