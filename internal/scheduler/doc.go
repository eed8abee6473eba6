// Package scheduler отправляет producer'ам тики.
//
// Producer-обработчики (reconciliation оркестратора, выдача машин)
// вызываются не по внешнему событию, а по TaskProducerTask. Scheduler
// отправляет такую task каждому producer'у по расписанию.
//
// Структура:
//   - scheduler.go — Tick, Start/Stop
//   - cron.go      — разбор расписания (robfig/cron)
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Broker:    b,
//	    Producers: []string{scheme.Orchestrator()},
//	    Schedule:  "@every 2s",
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// При PostgreSQL backend это делается в main.go через pg_try_advisory_lock.
package scheduler
