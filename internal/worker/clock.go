package worker

import (
	"sync"
	"time"
)

// Clock — источник текущего времени для runtime и обработчиков.
type Clock interface {
	Now() time.Time
}

// SystemClock — реальное время.
type SystemClock struct{}

// Now возвращает time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock — время, которое двигается только вручную.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock создаёт ManualClock, показывающий start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now возвращает текущее значение часов.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд на d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set устанавливает часы в t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
