package memory

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rental-platform/rental-service/internal/domain"
)

// eventSource is implemented by aggregates that queue domain events
type eventSource interface {
	GetDomainEvents() []domain.DomainEvent
	ClearDomainEvents()
}

// table holds committed rows of one aggregate type keyed by id
type table[T any] struct {
	name    string
	rows    map[string]*T
	id      func(*T) string
	version func(*T) *int64
}

func newTable[T any](name string, id func(*T) string, version func(*T) *int64) *table[T] {
	return &table[T]{name: name, rows: make(map[string]*T), id: id, version: version}
}

// clone deep copies a row through its BSON form so callers never share state with the store
func clone[T any](row *T) (*T, error) {
	data, err := bson.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	out := new(T)
	if err := bson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return out, nil
}

// tableTx stages writes to a table until the unit of work commits
type tableTx[T any] struct {
	t      *table[T]
	writes map[string]*T
	events *[]domain.DomainEvent
}

func (t *table[T]) begin(events *[]domain.DomainEvent) *tableTx[T] {
	return &tableTx[T]{t: t, writes: make(map[string]*T), events: events}
}

func (tx *tableTx[T]) current(id string) *T {
	if row, ok := tx.writes[id]; ok {
		return row
	}
	return tx.t.rows[id]
}

func (tx *tableTx[T]) get(id string) (*T, error) {
	row := tx.current(id)
	if row == nil {
		return nil, nil
	}
	return clone(row)
}

// find returns copies of every row matching keep, ordered by id
func (tx *tableTx[T]) find(keep func(*T) bool) ([]*T, error) {
	ids := make(map[string]bool, len(tx.t.rows)+len(tx.writes))
	for id := range tx.t.rows {
		ids[id] = true
	}
	for id := range tx.writes {
		ids[id] = true
	}
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	out := make([]*T, 0)
	for _, id := range ordered {
		row := tx.current(id)
		if !keep(row) {
			continue
		}
		c, err := clone(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// save stages row under the optimistic version rule and bumps the caller's version
func (tx *tableTx[T]) save(row *T) error {
	id := tx.t.id(row)
	if id == "" {
		return fmt.Errorf("%s without id: %w", tx.t.name, domain.ErrValidation)
	}
	v := tx.t.version(row)
	current := tx.current(id)
	switch {
	case *v == 0 && current != nil:
		return fmt.Errorf("%s %s already exists: %w", tx.t.name, id, domain.ErrConcurrentModification)
	case *v != 0 && current == nil:
		return fmt.Errorf("%s %s does not exist: %w", tx.t.name, id, domain.ErrConcurrentModification)
	case *v != 0 && *tx.t.version(current) != *v:
		return fmt.Errorf("%s %s is at version %d, not %d: %w",
			tx.t.name, id, *tx.t.version(current), *v, domain.ErrConcurrentModification)
	}

	*v++
	staged, err := clone(row)
	if err != nil {
		*v--
		return err
	}
	tx.writes[id] = staged
	if src, ok := any(row).(eventSource); ok {
		*tx.events = append(*tx.events, src.GetDomainEvents()...)
		src.ClearDomainEvents()
	}
	return nil
}

func (tx *tableTx[T]) commit() {
	for id, row := range tx.writes {
		tx.t.rows[id] = row
	}
}
