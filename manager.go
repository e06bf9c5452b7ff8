package gomanager

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Properties are attribute values of an item keyed by field name.
type Properties = map[string]any

// Backend is the storage a Manager delegates to. Every backend provides
// queries, CRUD and transaction markers. Embed Unimplemented to get
// ErrNotSupported for operations a backend does not provide.
//
// When commit is false, Create and Update must not persist durably until
// Commit is called. Backends that always autocommit may implement Begin and
// Commit as no-ops. Nested transactions are backend-defined.
type Backend[T any] interface {
	// Instances returns every item matching where, ordered by sort.
	Instances(ctx context.Context, where Where, sort Orderings) ([]T, error)
	// PaginatedInstances returns the page of Instances. page is 1-based.
	PaginatedInstances(ctx context.Context, page, perPage int, where Where, sort Orderings) (*Pagination[T], error)
	Create(ctx context.Context, properties Properties, commit bool) (T, error)
	// Read returns the item with the given id or an error matching
	// ErrItemNotFound.
	Read(ctx context.Context, id any) (T, error)
	Update(ctx context.Context, item T, changes Properties, commit bool) (T, error)
	Delete(ctx context.Context, item T) error
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
}

// RelationBackend is implemented by backends able to traverse and mutate
// relations stored under an attribute of an item.
type RelationBackend[T any] interface {
	RelationInstances(ctx context.Context, item T, attribute string, target *Resource, page, perPage int) (*Pagination[any], error)
	RelationAdd(ctx context.Context, item T, attribute string, target *Resource, targetItem any) error
	RelationRemove(ctx context.Context, item T, attribute string, target *Resource, targetItem any) error
}

// ComparatorBackend is implemented by backends that restrict the
// comparators available for a field.
type ComparatorBackend interface {
	FieldComparators(field *Field) []Comparator
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger        zerolog.Logger
	filtersByKind map[FieldKind][]Comparator
	maxPerPage    int
}

// WithLogger sets the logger used while the manager is configured.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithFiltersByKind replaces the default kind -> comparator table.
func WithFiltersByKind(filtersByKind map[FieldKind][]Comparator) ManagerOption {
	return func(o *managerOptions) {
		o.filtersByKind = filtersByKind
	}
}

// WithMaxPerPage caps the page size of paginated queries. Without it page
// sizes are only defaulted, never capped.
func WithMaxPerPage(maxPerPage int) ManagerOption {
	return func(o *managerOptions) {
		o.maxPerPage = maxPerPage
	}
}

// Manager binds a resource to a storage backend. It builds the filters of
// the resource, resolves keys and exposes CRUD and query operations.
//
// A Manager is safe for concurrent use as long as its backend is.
type Manager[T any] struct {
	resource *Resource
	model    any
	backend  Backend[T]
	opts     managerOptions

	keyConverters       []KeyConverter
	keyConvertersByType map[string]KeyConverter

	filtersOnce sync.Once
	filters     Filters
}

// NewManager binds key converters of the resource and returns a manager.
// model is an opaque reference to the backend model and is only kept for
// callers. Filters are built on first use.
func NewManager[T any](resource *Resource, model any, backend Backend[T], opts ...ManagerOption) (*Manager[T], error) {
	if resource == nil {
		return nil, newConfigurationError("resource is nil")
	}
	if backend == nil {
		return nil, newConfigurationError("backend of %s is nil", resource.Name())
	}

	m := &Manager[T]{
		resource: resource,
		model:    model,
		backend:  backend,
		opts: managerOptions{
			logger:        zerolog.Nop(),
			filtersByKind: FiltersByKind,
		},
	}
	for _, opt := range opts {
		opt(&m.opts)
	}

	err := m.initKeyConverters()
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager[T]) initKeyConverters() error {
	meta := m.resource.Meta
	declared := append([]KeyConverter(nil), meta.KeyConverters...)

	if meta.NaturalKey != nil {
		if meta.NaturalKey.Composite {
			declared = append(declared, PropertiesKey{Properties: meta.NaturalKey.Properties})
		} else if len(meta.NaturalKey.Properties) == 1 {
			declared = append(declared, PropertyKey{Property: meta.NaturalKey.Properties[0]})
		} else {
			return newConfigurationError("natural key of %s must name exactly one property", meta.Name)
		}
	}

	m.keyConverters = make([]KeyConverter, 0, len(declared))
	m.keyConvertersByType = make(map[string]KeyConverter, len(declared))

	for _, converter := range declared {
		bound, err := converter.Bind(m.resource)
		if err != nil {
			return err
		}

		matcherType := bound.MatcherType()
		if _, ok := m.keyConvertersByType[matcherType]; ok {
			return newConfigurationError("multiple keys of type %s defined for %s", matcherType, meta.Name)
		}

		m.keyConverters = append(m.keyConverters, bound)
		m.keyConvertersByType[matcherType] = bound

		m.opts.logger.Debug().
			Str("resource", meta.Name).
			Str("matcherType", matcherType).
			Msgf("bound key converter %T", bound)
	}

	return nil
}

// Resource returns the managed resource.
func (m *Manager[T]) Resource() *Resource {
	return m.resource
}

// Model returns the model reference the manager was created with.
func (m *Manager[T]) Model() any {
	return m.model
}

// Backend returns the storage backend.
func (m *Manager[T]) Backend() Backend[T] {
	return m.backend
}

// KeyConverters returns the bound key converters in declaration order.
func (m *Manager[T]) KeyConverters() []KeyConverter {
	return m.keyConverters
}

// KeyConverter returns the converter registered for the matcher type.
func (m *Manager[T]) KeyConverter(matcherType string) (KeyConverter, bool) {
	converter, ok := m.keyConvertersByType[matcherType]
	return converter, ok
}

// Filters returns the filters of the resource, field name -> comparator ->
// filter. They are built once, on the first call.
func (m *Manager[T]) Filters() Filters {
	m.filtersOnce.Do(func() {
		m.filters = m.buildFilters()
	})

	return m.filters
}

func (m *Manager[T]) buildFilters() Filters {
	fields := m.resource.Schema.Fields()
	comparatorsByField := FiltersForFields(fields, m.resource.Meta.Filters, m.opts.filtersByKind)

	ret := make(Filters, len(comparatorsByField))
	for _, field := range fields {
		comparators, ok := comparatorsByField[field.Name]
		if !ok {
			continue
		}
		if supported := m.FieldComparators(field); supported != nil {
			comparators = lo.Filter(comparators, func(c Comparator, _ int) bool {
				return lo.Contains(supported, c)
			})
		}
		if len(comparators) == 0 {
			continue
		}

		ret[field.Name] = lo.SliceToMap(comparators, func(c Comparator) (Comparator, *Filter) {
			return c, NewFilter(c, field, field.Name)
		})
	}

	m.opts.logger.Debug().
		Str("resource", m.resource.Name()).
		Int("fields", len(ret)).
		Msg("built filters")

	return ret
}

var _sortableKinds = []FieldKind{
	FieldString,
	FieldBoolean,
	FieldNumber,
	FieldInteger,
	FieldDate,
	FieldDateTime,
}

// IsSortableField reports whether items can be ordered by the field. Only
// scalar kinds are sortable.
func (m *Manager[T]) IsSortableField(field *Field) bool {
	return field != nil && lo.Contains(_sortableKinds, field.Kind)
}

// FieldComparators returns the comparators the backend supports for the
// field, or nil when the backend does not restrict them. Filters are limited
// to this list.
func (m *Manager[T]) FieldComparators(field *Field) []Comparator {
	if b, ok := m.backend.(ComparatorBackend); ok {
		return b.FieldComparators(field)
	}

	return nil
}

// ParseSort builds orderings from "field asc|desc" strings. Only sortable
// fields are accepted; field names are mapped to storage attributes.
func (m *Manager[T]) ParseSort(sort []string) (Orderings, error) {
	mapping := make(ColumnMapping)
	for _, field := range m.resource.Schema.Fields() {
		if m.IsSortableField(field) {
			mapping[field.Name] = field.StorageAttribute()
		}
	}

	return ParseSort(sort, mapping)
}

func (m *Manager[T]) Instances(ctx context.Context, where Where, sort Orderings) ([]T, error) {
	return m.backend.Instances(ctx, where, sort)
}

// PaginatedInstances returns one page of the matching items. perPage
// defaults to DefaultPerPage and is capped only with WithMaxPerPage.
func (m *Manager[T]) PaginatedInstances(ctx context.Context, page, perPage int, where Where, sort Orderings) (*Pagination[T], error) {
	return m.backend.PaginatedInstances(ctx, NormalizePage(page), m.normalizePerPage(perPage), where, sort)
}

func (m *Manager[T]) normalizePerPage(perPage int) int {
	return NormalizePerPageMax(perPage, m.opts.maxPerPage)
}

// First returns the first matching item. An empty result is reported as
// *ItemNotFoundError carrying where.
func (m *Manager[T]) First(ctx context.Context, where Where, sort Orderings) (T, error) {
	items, err := m.Instances(ctx, where, sort)
	if err != nil {
		return lo.Empty[T](), err
	}

	item, ok := lo.First(items)
	if !ok {
		log.Ctx(ctx).Debug().
			Str("resource", m.resource.Name()).
			Stringer("where", where).
			Msg("no item matched")

		return item, &ItemNotFoundError{Resource: m.resource, Where: where}
	}

	return item, nil
}

func (m *Manager[T]) Create(ctx context.Context, properties Properties, commit bool) (T, error) {
	return m.backend.Create(ctx, properties, commit)
}

func (m *Manager[T]) Read(ctx context.Context, id any) (T, error) {
	item, err := m.backend.Read(ctx, id)
	if err == nil {
		return item, nil
	}

	var notFound *ItemNotFoundError
	if errors.Is(err, ErrItemNotFound) && !errors.As(err, &notFound) {
		err = &ItemNotFoundError{Resource: m.resource, ID: id}
	}

	return item, err
}

func (m *Manager[T]) Update(ctx context.Context, item T, changes Properties, commit bool) (T, error) {
	return m.backend.Update(ctx, item, changes, commit)
}

func (m *Manager[T]) Delete(ctx context.Context, item T) error {
	return m.backend.Delete(ctx, item)
}

// DeleteByID reads the item and deletes it. Errors of Read are returned as
// is.
func (m *Manager[T]) DeleteByID(ctx context.Context, id any) error {
	item, err := m.Read(ctx, id)
	if err != nil {
		return err
	}

	return m.Delete(ctx, item)
}

// ReadByKey resolves a key value with the converter registered for the JSON
// type of the value: ids and references are read, natural keys are looked up
// with First.
func (m *Manager[T]) ReadByKey(ctx context.Context, value any) (T, error) {
	matcherType := matcherTypeOf(value)
	converter, ok := m.keyConvertersByType[matcherType]
	if !ok && matcherType == string(FieldNumber) {
		// JSON decoders produce floats for integral ids.
		converter, ok = m.keyConvertersByType[string(FieldInteger)]
	}
	if !ok {
		return lo.Empty[T](), &ItemNotFoundError{Resource: m.resource, ID: value}
	}

	switch c := converter.(type) {
	case IDKeyConverter:
		id, err := c.ResolveID(value)
		if err != nil {
			return lo.Empty[T](), &ItemNotFoundError{Resource: m.resource, ID: value}
		}

		return m.Read(ctx, id)
	case WhereKeyConverter:
		where, err := c.ResolveWhere(value)
		if err != nil {
			return lo.Empty[T](), &ItemNotFoundError{Resource: m.resource, ID: value}
		}

		return m.First(ctx, where, nil)
	default:
		return lo.Empty[T](), newNotSupportedError("key lookup", m.resource)
	}
}

func (m *Manager[T]) RelationInstances(ctx context.Context, item T, attribute string, target *Resource, page, perPage int) (*Pagination[any], error) {
	b, ok := m.backend.(RelationBackend[T])
	if !ok {
		return nil, newNotSupportedError("relation instances", m.resource)
	}

	return b.RelationInstances(ctx, item, attribute, target, NormalizePage(page), m.normalizePerPage(perPage))
}

func (m *Manager[T]) RelationAdd(ctx context.Context, item T, attribute string, target *Resource, targetItem any) error {
	b, ok := m.backend.(RelationBackend[T])
	if !ok {
		return newNotSupportedError("relation add", m.resource)
	}

	return b.RelationAdd(ctx, item, attribute, target, targetItem)
}

func (m *Manager[T]) RelationRemove(ctx context.Context, item T, attribute string, target *Resource, targetItem any) error {
	b, ok := m.backend.(RelationBackend[T])
	if !ok {
		return newNotSupportedError("relation remove", m.resource)
	}

	return b.RelationRemove(ctx, item, attribute, target, targetItem)
}

// Begin opens a unit of work.
func (m *Manager[T]) Begin(ctx context.Context) error {
	return m.backend.Begin(ctx)
}

// Commit persists the changes made since the last Begin or Commit.
func (m *Manager[T]) Commit(ctx context.Context) error {
	return m.backend.Commit(ctx)
}

// Unimplemented is embedded by backends that provide only part of Backend.
// Every method returns an error matching ErrNotSupported.
type Unimplemented[T any] struct {
	Resource *Resource
}

func (u Unimplemented[T]) Instances(context.Context, Where, Orderings) ([]T, error) {
	return nil, newNotSupportedError("instances", u.Resource)
}

func (u Unimplemented[T]) PaginatedInstances(context.Context, int, int, Where, Orderings) (*Pagination[T], error) {
	return nil, newNotSupportedError("paginated instances", u.Resource)
}

func (u Unimplemented[T]) Create(context.Context, Properties, bool) (T, error) {
	return lo.Empty[T](), newNotSupportedError("create", u.Resource)
}

func (u Unimplemented[T]) Read(context.Context, any) (T, error) {
	return lo.Empty[T](), newNotSupportedError("read", u.Resource)
}

func (u Unimplemented[T]) Update(context.Context, T, Properties, bool) (T, error) {
	return lo.Empty[T](), newNotSupportedError("update", u.Resource)
}

func (u Unimplemented[T]) Delete(context.Context, T) error {
	return newNotSupportedError("delete", u.Resource)
}

func (u Unimplemented[T]) Begin(context.Context) error {
	return newNotSupportedError("begin", u.Resource)
}

func (u Unimplemented[T]) Commit(context.Context) error {
	return newNotSupportedError("commit", u.Resource)
}

var _ Backend[any] = Unimplemented[any]{}
