package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// Output печатает результаты команд gridctl: таблицы в stdout или,
// с --json, те же данные в JSON. Сообщения идут в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output для stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// kindOrder — порядок групп в обзоре status.
var kindOrder = []string{"agent", "service", "instance", "other"}

// IDs печатает список ids документов.
func (o *Output) IDs(ids []string) error {
	rows := make([][]string, len(ids))
	for i, id := range ids {
		rows[i] = []string{id}
	}
	return o.render([]string{"ID"}, rows, ids)
}

// Summaries печатает обзор сущностей: агенты, затем сервисы, затем instances.
func (o *Output) Summaries(summaries []stateSummary) error {
	sorted := slices.Clone(summaries)
	slices.SortStableFunc(sorted, func(a, b stateSummary) int {
		return slices.Index(kindOrder, a.Kind) - slices.Index(kindOrder, b.Kind)
	})

	rows := make([][]string, len(sorted))
	for i, s := range sorted {
		rows[i] = []string{s.Kind, s.ID, s.Progress, s.Detail}
	}
	return o.render([]string{"KIND", "ID", "PROGRESS", "DETAIL"}, rows, sorted)
}

// Document печатает строку с id, etag и progress, затем тело документа.
func (o *Output) Document(state *StateResponse, summary stateSummary) error {
	if o.jsonMode {
		return o.JSON(state)
	}
	if err := o.table([]string{"ID", "ETAG", "PROGRESS"}, [][]string{{state.ID, state.Etag, summary.Progress}}); err != nil {
		return err
	}
	return o.JSON(state.State)
}

// Tasks печатает очередь consumer'а. Время отправки выводится как
// возраст task относительно now.
func (o *Output) Tasks(tasks []TaskResponse, now time.Time) error {
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{t.ID, t.Type, t.StateID, taskAge(t.ProducerTimestamp, now)}
	}
	return o.render([]string{"ID", "TYPE", "STATE", "AGE"}, rows, tasks)
}

// planRow — строка таблицы плана.
type planRow struct {
	Service   string
	Instances int
	Min       int
	Max       int
}

// Plan печатает сервисы плана. В JSON выводится jsonData целиком.
func (o *Output) Plan(services []planRow, jsonData any) error {
	rows := make([][]string, len(services))
	for i, s := range services {
		rows[i] = []string{s.Service, strconv.Itoa(s.Instances), strconv.Itoa(s.Min), strconv.Itoa(s.Max)}
	}
	return o.render([]string{"SERVICE", "INSTANCES", "MIN", "MAX"}, rows, jsonData)
}

// Notice пишет сообщение в stderr.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}

// Warn пишет предупреждение в stderr.
func (o *Output) Warn(format string, args ...any) {
	fmt.Fprintf(o.errW, "warning: "+format+"\n", args...)
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) render(headers []string, rows [][]string, jsonData any) error {
	if o.jsonMode {
		return o.JSON(jsonData)
	}
	return o.table(headers, rows)
}

// table печатает заголовок и строки колонками. Пустая ячейка
// выводится как "-".
func (o *Output) table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell == "" {
				cell = "-"
			}
			cells[i] = cell
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	return tw.Flush()
}

// taskAge переводит producer_timestamp в возраст "42s". Неразобранное
// время выводится как есть.
func taskAge(ts string, now time.Time) string {
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	return age.Truncate(time.Second).String()
}
