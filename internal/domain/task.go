package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Task — идемпотентная команда, адресованная consumer'у.
//
// ConsumerID — кто достаёт task из очереди.
// StateID — чей документ меняет task. Для обычных tasks совпадает
// с ConsumerID, для impersonating tasks указывает на другую сущность
// (например, агент пишет документ service instance).
type Task struct {
	// ID — уникальный идентификатор task (не участвует в дедупликации).
	ID uuid.UUID `json:"id"`

	// Type — тип task, ключ в реестре обработчиков.
	Type TaskType `json:"type"`

	// ProducerID — кто создал task.
	ProducerID string `json:"producer_id,omitempty"`

	// ConsumerID — владелец очереди.
	ConsumerID string `json:"consumer_id"`

	// StateID — документ, на который действует task.
	StateID string `json:"state_id"`

	// ProducerTimestamp — время создания task (не участвует в дедупликации).
	ProducerTimestamp time.Time `json:"producer_timestamp"`

	// Payload — параметры task, зависят от Type.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewTask создаёт task с сериализованным payload.
// payload может быть nil.
func NewTask(taskType TaskType, consumerID, stateID string, payload any) (*Task, error) {
	task := &Task{
		ID:         uuid.New(),
		Type:       taskType,
		ConsumerID: consumerID,
		StateID:    stateID,
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
		}
		task.Payload = raw
	}

	return task, nil
}

// IsImpersonating возвращает true, если task меняет чужой документ.
func (t *Task) IsImpersonating() bool {
	return t.StateID != "" && t.StateID != t.ConsumerID
}

// Fingerprint возвращает ключ дедупликации task.
//
// Две task эквивалентны, если совпадают type, producer, consumer, state
// и payload. ID и ProducerTimestamp игнорируются.
func (t *Task) Fingerprint() string {
	h := xxhash.New()
	h.WriteString(string(t.Type))
	h.WriteString("\x00")
	h.WriteString(t.ProducerID)
	h.WriteString("\x00")
	h.WriteString(t.ConsumerID)
	h.WriteString("\x00")
	h.WriteString(t.StateID)
	h.WriteString("\x00")
	h.Write(compactJSON(t.Payload))

	var sum [8]byte
	return hex.EncodeToString(h.Sum(sum[:0]))
}

// Summary возвращает запись для tasksHistory.
func (t *Task) Summary() TaskRecord {
	return TaskRecord{
		ID:                t.ID,
		Type:              t.Type,
		ProducerID:        t.ProducerID,
		ProducerTimestamp: t.ProducerTimestamp,
	}
}

// ParsePayload парсит payload task в указанный тип.
func ParsePayload[T any](t *Task) (T, error) {
	var result T

	if len(t.Payload) == 0 {
		return result, nil
	}

	if err := json.Unmarshal(t.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s payload: %w", t.Type, err)
	}

	return result, nil
}

// compactJSON убирает пробелы, чтобы форматирование не влияло на fingerprint.
func compactJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}

	// json.Marshal сортирует ключи map, порядок полей не важен
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
