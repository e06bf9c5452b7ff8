// Package gomanager binds declared REST resources to storage backends.
//
// Overview
//
// A Resource describes an entity: an ordered Schema of typed fields and a
// Meta configuration (filter allow-list, natural key, key converters). A
// Manager adapts a resource to a Backend:
//   - Filters: for every field, the comparators applicable to its kind and
//     allowed by the resource, bound to the field's storage attribute.
//   - Keys: ids, references and natural keys resolved through key
//     converters, at most one per matcher type.
//   - Queries and CRUD: Instances, PaginatedInstances, First, Create, Read,
//     Update, Delete and relation traversal, delegated to the backend.
//
// Backends
//   - GORMBackend: SQL storage through GORM, with deferred commits in an open
//     transaction and relations through GORM associations.
//   - MemoryBackend: in-process storage evaluating conditions with
//     Condition.Match.
//
// Operations a backend does not provide return errors matching
// ErrNotSupported; failed lookups return errors matching ErrItemNotFound.
package gomanager
