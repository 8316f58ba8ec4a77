// Package remote provides generic transactional access to named remote
// document collections, independent of entity type. All reads and writes are
// scoped to the authenticated owner bound at construction time.
package remote

import (
	"context"
	"time"

	"github.com/mkorchagin/finsync/internal/syncable"
)

// OpKind tags a batch sub-operation.
type OpKind string

const (
	OpUpsert OpKind = "upsert"
	OpDelete OpKind = "delete"
)

// Operation is one element of a transactional batch.
type Operation struct {
	Kind       OpKind
	Collection string
	ID         string
	Doc        syncable.Document // nil for OpDelete
}

// UpsertOp builds a create-or-replace operation.
func UpsertOp(collection, id string, doc syncable.Document) Operation {
	return Operation{Kind: OpUpsert, Collection: collection, ID: id, Doc: doc}
}

// DeleteOp builds a hard-delete operation. Hard deletes are cleanup only;
// user-initiated deletes travel as tombstone upserts.
func DeleteOp(collection, id string) Operation {
	return Operation{Kind: OpDelete, Collection: collection, ID: id}
}

// Store is the remote document-collection abstraction.
//
// Error contract: connectivity loss surfaces as common.ErrRemoteUnavailable,
// a rejected batch as common.ErrTransactionAborted, and writes against a
// document owned by someone else as common.ErrPermissionDenied.
type Store interface {
	// Upsert creates or fully replaces one document.
	Upsert(ctx context.Context, collection, id string, doc syncable.Document) error

	// Get returns a document, or nil without error when absent.
	Get(ctx context.Context, collection, id string) (syncable.Document, error)

	// ChangedSince returns all owner-scoped documents whose server-side
	// update marker is strictly greater than since, tombstones included.
	// The zero time means "everything" (first sync).
	ChangedSince(ctx context.Context, collection string, since time.Time) (map[string]syncable.Document, error)

	// Delete removes a document permanently.
	Delete(ctx context.Context, collection, id string) error

	// ExecuteTransaction applies the operations atomically: either every
	// operation takes effect or none does.
	ExecuteTransaction(ctx context.Context, ops []Operation) error
}
