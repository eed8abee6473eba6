package lifecycle

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// StateMachine — граф переходов между именованными состояниями.
type StateMachine struct {
	// edges — исходящие переходы в порядке объявления (state → targets).
	edges map[string][]string

	// states — все состояния в порядке первого упоминания.
	states []string
}

var (
	// separators — рёбра разделяются запятыми и/или пробелами.
	separators = regexp.MustCompile(`[,\s]+`)

	// operators — порядок важен: длинные операторы проверяются первыми.
	operators = regexp.MustCompile(`<-->|<->|<>|->`)

	stateName = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

// Parse строит StateMachine из текстового описания.
//
// Синтаксис:
//
//	A->B         переход из A в B
//	A<->B        переходы в обе стороны (также A<>B и A<-->B)
//	A->B->C      цепочка, эквивалентна A->B B->C
//	A            одиночное состояние без переходов
//
// Рёбра разделяются запятыми или пробелами. Повторные упоминания
// состояния сливаются в один узел.
func Parse(spec string) (*StateMachine, error) {
	m := &StateMachine{edges: make(map[string][]string)}

	for _, token := range separators.Split(strings.TrimSpace(spec), -1) {
		if token == "" {
			continue
		}
		if err := m.parseChain(token); err != nil {
			return nil, err
		}
	}

	if len(m.states) == 0 {
		return nil, ErrEmptySpec
	}

	return m, nil
}

// MustParse — Parse, паникующий при ошибке. Для графов-констант.
func MustParse(spec string) *StateMachine {
	m, err := Parse(spec)
	if err != nil {
		panic(fmt.Sprintf("lifecycle: %v", err))
	}
	return m
}

// parseChain разбирает одну цепочку вида A->B<->C.
func (m *StateMachine) parseChain(token string) error {
	names := operators.Split(token, -1)
	ops := operators.FindAllString(token, -1)

	for _, name := range names {
		if !stateName.MatchString(name) {
			return fmt.Errorf("%w: %q in %q", ErrInvalidState, name, token)
		}
		m.addState(name)
	}

	for i, op := range ops {
		from, to := names[i], names[i+1]
		m.addEdge(from, to)
		if op != "->" {
			m.addEdge(to, from)
		}
	}

	return nil
}

func (m *StateMachine) addState(name string) {
	if _, ok := m.edges[name]; ok {
		return
	}
	m.edges[name] = nil
	m.states = append(m.states, name)
}

func (m *StateMachine) addEdge(from, to string) {
	if slices.Contains(m.edges[from], to) {
		return
	}
	m.edges[from] = append(m.edges[from], to)
}

// States возвращает все состояния в порядке первого упоминания.
func (m *StateMachine) States() []string {
	return slices.Clone(m.states)
}

// Has проверяет, есть ли состояние в графе.
func (m *StateMachine) Has(state string) bool {
	_, ok := m.edges[state]
	return ok
}

// Successors возвращает прямые переходы из state.
func (m *StateMachine) Successors(state string) []string {
	return slices.Clone(m.edges[state])
}

// Next возвращает следующий шаг кратчайшего пути из current в target.
//
// Если current == target, возвращает current. Если target недостижим,
// возвращает ("", false): вызывающий обычно просто ждёт.
func (m *StateMachine) Next(current, target string) (string, bool) {
	if current == target {
		return current, true
	}
	if !m.Has(current) || !m.Has(target) {
		return "", false
	}

	// BFS: first[x] — первый шаг кратчайшего пути из current в x
	first := map[string]string{current: current}
	queue := []string{current}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for _, succ := range m.edges[state] {
			if _, seen := first[succ]; seen {
				continue
			}

			if state == current {
				first[succ] = succ
			} else {
				first[succ] = first[state]
			}

			if succ == target {
				return first[succ], true
			}
			queue = append(queue, succ)
		}
	}

	return "", false
}

// Next — типизированная обёртка для строковых enum'ов состояний.
func Next[S ~string](m *StateMachine, current, target S) (S, bool) {
	next, ok := m.Next(string(current), string(target))
	return S(next), ok
}

// Path возвращает кратчайший путь из current в target (включая оба конца).
func (m *StateMachine) Path(current, target string) []string {
	path := []string{current}
	for current != target {
		next, ok := m.Next(current, target)
		if !ok {
			return nil
		}
		path = append(path, next)
		current = next
	}
	return path
}
