// Package cli реализует gridctl, инструмент командной строки ServiceGrid.
//
// # Обзор
//
// gridctl работает через HTTP API. Файл сервисов проверяется локально
// (internal/planner) и отправляется как YAML, ids строит сервер по своей схеме.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для ServiceGrid API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	ids, err := client.ListStates("agents/")
//
// ## Output
//
// Печатает ids, обзор status, документы, очереди и план. Таблицы
// (text/tabwriter) по умолчанию, JSON с флагом --json. Данные идут
// в stdout, сообщения (Notice/Warn) в stderr.
//
// ## Commands
//
//   - plan: apply, show
//   - state: list, get, set-property
//   - tasks: list
//   - status
//
// Каждая группа создаётся через фабричную функцию (NewPlanCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
