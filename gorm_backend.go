package gomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// GORMBackend stores items of type T, a GORM model struct, through a
// *gorm.DB. Changes made with commit = false run in a transaction that stays
// open until Commit.
type GORMBackend[T any] struct {
	db       *gorm.DB
	resource *Resource
	schema   *schema.Schema

	mu sync.Mutex
	tx *gorm.DB
}

// NewGORMBackend parses the model T and returns a backend for the resource.
func NewGORMBackend[T any](db *gorm.DB, resource *Resource) (*GORMBackend[T], error) {
	s, err := parseModel(db, new(T))
	if err != nil {
		return nil, err
	}

	return &GORMBackend[T]{
		db:       db,
		resource: resource,
		schema:   s,
	}, nil
}

// NewGORMManager is a shortcut for a Manager over a GORMBackend. The model
// reference of the manager is the parsed GORM schema of T.
func NewGORMManager[T any](db *gorm.DB, resource *Resource, opts ...ManagerOption) (*Manager[T], error) {
	backend, err := NewGORMBackend[T](db, resource)
	if err != nil {
		return nil, err
	}

	return NewManager[T](resource, backend.schema, backend, opts...)
}

func parseModel(db *gorm.DB, model any) (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return nil, newConfigurationError("cannot parse model %T: %s", model, err)
	}

	return stmt.Schema, nil
}

// ResourceFromModel builds a resource whose schema is inferred from a GORM
// model. Columns become fields named after their json tag (or column name)
// and bound to the column; relations become custom fields. The id attribute
// and kind default to the primary key of the model.
func ResourceFromModel(db *gorm.DB, meta Meta, model any) (*Resource, error) {
	s, err := parseModel(db, model)
	if err != nil {
		return nil, err
	}

	fields := make([]*Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.DBName == "" {
			if _, ok := s.Relationships.Relations[f.Name]; ok {
				fields = append(fields, &Field{Name: jsonName(f, f.Name), Kind: FieldCustom, Attribute: f.Name})
			}
			continue
		}

		kind, err := gormFieldKind(f)
		if err != nil {
			return nil, fmt.Errorf("field '%s' of %s: %w", f.Name, s.Name, err)
		}

		fields = append(fields, &Field{
			Name:      jsonName(f, f.DBName),
			Kind:      kind,
			Attribute: f.DBName,
			ReadOnly:  !f.Creatable && !f.Updatable,
		})
	}

	fieldSchema, err := NewSchema(fields...)
	if err != nil {
		return nil, err
	}

	if primary := s.PrioritizedPrimaryField; primary != nil {
		if meta.IDAttribute == "" {
			meta.IDAttribute = primary.DBName
		}
		if meta.IDKind == "" {
			meta.IDKind, err = gormFieldKind(primary)
			if err != nil {
				return nil, err
			}
		}
	}
	if meta.Name == "" {
		meta.Name = s.Table
	}

	return NewResource(meta, fieldSchema), nil
}

var _nullableKinds = map[reflect.Type]FieldKind{
	reflect.TypeOf(gorm.DeletedAt{}):  FieldDateTime,
	reflect.TypeOf(sql.NullTime{}):    FieldDateTime,
	reflect.TypeOf(sql.NullString{}):  FieldString,
	reflect.TypeOf(sql.NullInt64{}):   FieldInteger,
	reflect.TypeOf(sql.NullInt32{}):   FieldInteger,
	reflect.TypeOf(sql.NullFloat64{}): FieldNumber,
	reflect.TypeOf(sql.NullBool{}):    FieldBoolean,
}

func gormFieldKind(f *schema.Field) (FieldKind, error) {
	if kind, ok := _nullableKinds[f.FieldType]; ok {
		return kind, nil
	}

	return FieldKindForType(f.FieldType)
}

func jsonName(f *schema.Field, fallback string) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fallback
	}

	return name
}

// FieldComparators - implements ComparatorBackend. Array columns have no
// portable SQL form and get no comparators; every comparator has a SQL
// template for other columns.
func (b *GORMBackend[T]) FieldComparators(field *Field) []Comparator {
	if field.Kind == FieldArray {
		return []Comparator{}
	}

	return FilterNames
}

// session returns the open transaction or the database.
func (b *GORMBackend[T]) session(ctx context.Context) *gorm.DB {
	b.mu.Lock()
	defer b.mu.Unlock()

	return lo.Ternary(b.tx != nil, b.tx, b.db).WithContext(ctx)
}

func (b *GORMBackend[T]) filtered(ctx context.Context, where Where) (*gorm.DB, error) {
	db, err := where.Apply(b.session(ctx).Model(new(T)))
	if err != nil {
		return nil, err
	}

	return db.Session(&gorm.Session{}), nil
}

func applySort(db *gorm.DB, sort Orderings) (*gorm.DB, error) {
	if len(sort) == 0 {
		return db, nil
	}

	if err := sort.validate(); err != nil {
		return nil, fmt.Errorf("cannot sort: %w", err)
	}

	return sort.Apply(db), nil
}

// Instances - implements Backend.
func (b *GORMBackend[T]) Instances(ctx context.Context, where Where, sort Orderings) ([]T, error) {
	db, err := b.filtered(ctx, where)
	if err != nil {
		return nil, err
	}
	db, err = applySort(db, sort)
	if err != nil {
		return nil, err
	}

	var items []T
	if err = db.Find(&items).Error; err != nil {
		return nil, err
	}

	return items, nil
}

// PaginatedInstances - implements Backend. Counts the matching rows, then
// selects the page with LIMIT/OFFSET.
func (b *GORMBackend[T]) PaginatedInstances(ctx context.Context, page, perPage int, where Where, sort Orderings) (*Pagination[T], error) {
	db, err := b.filtered(ctx, where)
	if err != nil {
		return nil, err
	}

	var total int64
	if err = db.Count(&total).Error; err != nil {
		return nil, err
	}

	ret := NewPagination[T](nil, page, perPage, int(total))

	db, err = applySort(db, sort)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, perPage)
	if err = db.Offset(ret.Offset()).Limit(perPage).Find(&items).Error; err != nil {
		return nil, err
	}
	ret.Items = items

	return ret, nil
}

// write runs fn in the open transaction, opening one when commit is false,
// and commits the transaction when commit is true. A failing fn rolls the
// transaction back unless the item was not found.
func (b *GORMBackend[T]) write(ctx context.Context, commit bool, fn func(db *gorm.DB) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !commit && b.tx == nil {
		if err := b.begin(ctx); err != nil {
			return err
		}
	}

	db := lo.Ternary(b.tx != nil, b.tx, b.db).WithContext(ctx)
	if err := fn(db); err != nil {
		if b.tx != nil && !errors.Is(err, ErrItemNotFound) {
			b.rollback(ctx, err)
		}
		return err
	}

	if commit && b.tx != nil {
		return b.commit()
	}

	return nil
}

// rollback discards the open transaction after a failed statement. Staged
// changes of the transaction are lost.
func (b *GORMBackend[T]) rollback(ctx context.Context, cause error) {
	tx := b.tx
	b.tx = nil

	log.Ctx(ctx).Warn().
		Err(cause).
		Str("resource", b.resource.Name()).
		Msg("rolling back transaction")

	if err := tx.Rollback().Error; err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("resource", b.resource.Name()).
			Msg("cannot roll back transaction")
	}
}

// lookUpField returns the column of a resource field name or storage
// attribute.
func (b *GORMBackend[T]) lookUpField(name string) (*schema.Field, error) {
	attribute := name
	if field, ok := b.resource.Schema.Field(name); ok {
		attribute = field.StorageAttribute()
	}

	f := b.schema.LookUpField(attribute)
	if f == nil || f.DBName == "" {
		return nil, fmt.Errorf("unknown field '%s' of %s", name, b.resource.Name())
	}

	return f, nil
}

// assign sets item fields from properties keyed by resource field name.
// It returns the assigned values keyed by column.
func (b *GORMBackend[T]) assign(ctx context.Context, item *T, properties Properties) (map[string]any, error) {
	rv := reflect.ValueOf(item).Elem()
	columns := make(map[string]any, len(properties))

	for name, value := range properties {
		f, err := b.lookUpField(name)
		if err != nil {
			return nil, err
		}

		if err = f.Set(ctx, rv, value); err != nil {
			return nil, fmt.Errorf("cannot set field '%s' of %s: %w", name, b.resource.Name(), err)
		}
		columns[f.DBName] = value
	}

	return columns, nil
}

// Create - implements Backend.
func (b *GORMBackend[T]) Create(ctx context.Context, properties Properties, commit bool) (T, error) {
	item := new(T)
	if _, err := b.assign(ctx, item, properties); err != nil {
		return *item, err
	}

	log.Ctx(ctx).Debug().
		Str("resource", b.resource.Name()).
		Bool("commit", commit).
		Msg("create item")

	err := b.write(ctx, commit, func(db *gorm.DB) error {
		return db.Create(item).Error
	})

	return *item, err
}

// Read - implements Backend.
func (b *GORMBackend[T]) Read(ctx context.Context, id any) (T, error) {
	item := new(T)
	err := b.session(ctx).
		Where(clause.Eq{Column: clause.Column{Name: b.resource.Meta.IDAttribute}, Value: id}).
		Take(item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return *item, &ItemNotFoundError{Resource: b.resource, ID: id}
	}

	return *item, err
}

// Update - implements Backend. The id and primary key columns cannot be
// changed; the row is selected by the primary key of item.
func (b *GORMBackend[T]) Update(ctx context.Context, item T, changes Properties, commit bool) (T, error) {
	for name := range changes {
		f, err := b.lookUpField(name)
		if err != nil {
			return item, err
		}
		if f.PrimaryKey || f.DBName == b.resource.Meta.IDAttribute {
			return item, fmt.Errorf("id of %s cannot be changed", b.resource.Name())
		}
	}

	columns, err := b.assign(ctx, &item, changes)
	if err != nil {
		return item, err
	}
	if len(columns) == 0 {
		return item, nil
	}

	log.Ctx(ctx).Debug().
		Str("resource", b.resource.Name()).
		Bool("commit", commit).
		Msg("update item")

	err = b.write(ctx, commit, func(db *gorm.DB) error {
		return db.Model(&item).Updates(columns).Error
	})

	return item, err
}

// Delete - implements Backend.
func (b *GORMBackend[T]) Delete(ctx context.Context, item T) error {
	return b.write(ctx, true, func(db *gorm.DB) error {
		res := db.Delete(&item)
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return &ItemNotFoundError{Resource: b.resource}
		}

		return nil
	})
}

// Begin - implements Backend. Nested transactions are not supported.
func (b *GORMBackend[T]) Begin(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tx != nil {
		return fmt.Errorf("transaction of %s is already open", b.resource.Name())
	}

	return b.begin(ctx)
}

func (b *GORMBackend[T]) begin(ctx context.Context) error {
	tx := b.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	b.tx = tx
	return nil
}

// Commit - implements Backend. Without an open transaction it is a no-op.
func (b *GORMBackend[T]) Commit(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tx == nil {
		return nil
	}

	return b.commit()
}

func (b *GORMBackend[T]) commit() error {
	tx := b.tx
	b.tx = nil

	return tx.Commit().Error
}

// relationship looks a relation up by resource field name or struct field
// name.
func (b *GORMBackend[T]) relationship(attribute string) (*schema.Relationship, error) {
	name := attribute
	if field, ok := b.resource.Schema.Field(attribute); ok {
		name = field.StorageAttribute()
	}

	rel, ok := b.schema.Relationships.Relations[name]
	if !ok {
		return nil, fmt.Errorf("'%s' is not a relation of %s", attribute, b.resource.Name())
	}

	return rel, nil
}

// RelationInstances - implements RelationBackend.
func (b *GORMBackend[T]) RelationInstances(ctx context.Context, item T, attribute string, _ *Resource, page, perPage int) (*Pagination[any], error) {
	rel, err := b.relationship(attribute)
	if err != nil {
		return nil, err
	}

	total := b.session(ctx).Model(&item).Association(rel.Name).Count()
	ret := NewPagination[any](nil, page, perPage, int(total))

	targets := reflect.New(reflect.SliceOf(rel.FieldSchema.ModelType))
	err = b.session(ctx).
		Model(&item).
		Offset(ret.Offset()).
		Limit(perPage).
		Association(rel.Name).
		Find(targets.Interface())
	if err != nil {
		return nil, err
	}

	targetsValue := targets.Elem()
	ret.Items = make([]any, 0, targetsValue.Len())
	for i := 0; i < targetsValue.Len(); i++ {
		ret.Items = append(ret.Items, targetsValue.Index(i).Interface())
	}

	return ret, nil
}

// RelationAdd - implements RelationBackend.
func (b *GORMBackend[T]) RelationAdd(ctx context.Context, item T, attribute string, _ *Resource, targetItem any) error {
	rel, err := b.relationship(attribute)
	if err != nil {
		return err
	}

	return b.write(ctx, true, func(db *gorm.DB) error {
		return db.Model(&item).Association(rel.Name).Append(targetItem)
	})
}

// RelationRemove - implements RelationBackend.
func (b *GORMBackend[T]) RelationRemove(ctx context.Context, item T, attribute string, _ *Resource, targetItem any) error {
	rel, err := b.relationship(attribute)
	if err != nil {
		return err
	}

	return b.write(ctx, true, func(db *gorm.DB) error {
		return db.Model(&item).Association(rel.Name).Delete(targetItem)
	})
}

var (
	_ Backend[struct{}]         = (*GORMBackend[struct{}])(nil)
	_ RelationBackend[struct{}] = (*GORMBackend[struct{}])(nil)
	_ ComparatorBackend         = (*GORMBackend[struct{}])(nil)
)
