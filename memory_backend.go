package gomanager

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// MemoryBackend keeps items of one resource in process. Items are keyed by
// storage attribute. Changes made with commit = false are staged and become
// visible on Commit.
type MemoryBackend struct {
	resource *Resource

	mu     sync.RWMutex
	items  []Properties
	staged []func() error
	nextID int64
}

// NewMemoryBackend returns an empty backend for the resource.
func NewMemoryBackend(resource *Resource) *MemoryBackend {
	return &MemoryBackend{resource: resource}
}

// NewMemoryManager is a shortcut for a Manager over a MemoryBackend.
func NewMemoryManager(resource *Resource, opts ...ManagerOption) (*Manager[Properties], error) {
	return NewManager[Properties](resource, nil, NewMemoryBackend(resource), opts...)
}

// FieldComparators - implements ComparatorBackend. Every comparator can be
// evaluated in process.
func (b *MemoryBackend) FieldComparators(*Field) []Comparator {
	return FilterNames
}

// Instances - implements Backend.
func (b *MemoryBackend) Instances(_ context.Context, where Where, sort Orderings) ([]Properties, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ret := make([]Properties, 0, len(b.items))
	for _, item := range b.items {
		ok, err := where.Match(func(attribute string) any { return item[attribute] })
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, maps.Clone(item))
		}
	}

	if len(sort) > 0 {
		if err := sort.validateDirections(); err != nil {
			return nil, err
		}

		slices.SortStableFunc(ret, func(a, b Properties) int {
			return compareItems(a, b, sort)
		})
	}

	return ret, nil
}

// compareItems orders items by the orderings. Missing and incomparable
// values sort first.
func compareItems(a, b Properties, sort Orderings) int {
	for _, orderBy := range sort {
		av, bv := a[orderBy.Column], b[orderBy.Column]

		res, err := compareValues(av, bv)
		if err != nil {
			res = cmp.Compare(lo.Ternary(av == nil, 0, 1), lo.Ternary(bv == nil, 0, 1))
		}
		if orderBy.Direction == DirectionDESC {
			res = -res
		}
		if res != 0 {
			return res
		}
	}

	return 0
}

// PaginatedInstances - implements Backend.
func (b *MemoryBackend) PaginatedInstances(ctx context.Context, page, perPage int, where Where, sort Orderings) (*Pagination[Properties], error) {
	items, err := b.Instances(ctx, where, sort)
	if err != nil {
		return nil, err
	}

	return PaginationFromList(items, page, perPage), nil
}

// Create - implements Backend.
func (b *MemoryBackend) Create(ctx context.Context, properties Properties, commit bool) (Properties, error) {
	item, err := b.toAttributes(properties)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idAttribute := b.resource.Meta.IDAttribute
	if item[idAttribute] == nil {
		item[idAttribute] = b.newID()
	}

	apply := func() error {
		if b.indexOf(item[idAttribute]) != -1 {
			return fmt.Errorf("%s with id '%v' already exists", b.resource.Name(), item[idAttribute])
		}

		b.items = append(b.items, item)
		return nil
	}

	log.Ctx(ctx).Debug().
		Str("resource", b.resource.Name()).
		Interface("id", item[idAttribute]).
		Bool("commit", commit).
		Msg("create item")

	err = b.applyOrStage(apply, commit)
	if err != nil {
		return nil, err
	}

	return maps.Clone(item), nil
}

func (b *MemoryBackend) newID() any {
	if b.resource.Meta.IDKind == FieldString {
		return uuid.NewString()
	}

	b.nextID++
	return b.nextID
}

// Read - implements Backend.
func (b *MemoryBackend) Read(_ context.Context, id any) (Properties, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := b.indexOf(id)
	if idx == -1 {
		return nil, &ItemNotFoundError{Resource: b.resource, ID: id}
	}

	return maps.Clone(b.items[idx]), nil
}

// Update - implements Backend.
func (b *MemoryBackend) Update(ctx context.Context, item Properties, changes Properties, commit bool) (Properties, error) {
	attributes, err := b.toAttributes(changes)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := item[b.resource.Meta.IDAttribute]
	if _, ok := attributes[b.resource.Meta.IDAttribute]; ok {
		return nil, fmt.Errorf("id of %s cannot be changed", b.resource.Name())
	}

	apply := func() error {
		idx := b.indexOf(id)
		if idx == -1 {
			return &ItemNotFoundError{Resource: b.resource, ID: id}
		}

		updated := maps.Clone(b.items[idx])
		maps.Copy(updated, attributes)
		b.items[idx] = updated
		return nil
	}

	log.Ctx(ctx).Debug().
		Str("resource", b.resource.Name()).
		Interface("id", id).
		Bool("commit", commit).
		Msg("update item")

	err = b.applyOrStage(apply, commit)
	if err != nil {
		return nil, err
	}

	ret := maps.Clone(item)
	maps.Copy(ret, attributes)
	return ret, nil
}

// Delete - implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, item Properties) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := item[b.resource.Meta.IDAttribute]
	idx := b.indexOf(id)
	if idx == -1 {
		return &ItemNotFoundError{Resource: b.resource, ID: id}
	}

	b.items = slices.Delete(b.items, idx, idx+1)
	return nil
}

// Begin - implements Backend. Staged changes are kept.
func (b *MemoryBackend) Begin(context.Context) error {
	return nil
}

// Commit - implements Backend. Applies staged changes in order and stops at
// the first failing one.
func (b *MemoryBackend) Commit(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := b.staged
	b.staged = nil

	for _, apply := range staged {
		if err := apply(); err != nil {
			return fmt.Errorf("cannot commit %s: %w", b.resource.Name(), err)
		}
	}

	return nil
}

func (b *MemoryBackend) applyOrStage(apply func() error, commit bool) error {
	if !commit {
		b.staged = append(b.staged, apply)
		return nil
	}

	return apply()
}

func (b *MemoryBackend) indexOf(id any) int {
	idAttribute := b.resource.Meta.IDAttribute
	return slices.IndexFunc(b.items, func(item Properties) bool {
		return valuesEqual(item[idAttribute], id)
	})
}

// toAttributes maps field names to storage attributes. The id attribute is
// accepted as is.
func (b *MemoryBackend) toAttributes(properties Properties) (Properties, error) {
	ret := make(Properties, len(properties))
	for name, value := range properties {
		if name == b.resource.Meta.IDAttribute {
			ret[name] = value
			continue
		}

		field, ok := b.resource.Schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("unknown field '%s' of %s", name, b.resource.Name())
		}

		ret[field.StorageAttribute()] = value
	}

	return ret, nil
}

var (
	_ Backend[Properties] = (*MemoryBackend)(nil)
	_ ComparatorBackend   = (*MemoryBackend)(nil)
)
