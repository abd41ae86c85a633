// Package repository has the errors shared by the repositories of the installed apps
// and a generic MemoryRepository backing them without a database.
// The data of a MemoryRepository can be kept in a Store, e.g. to keep local users across restarts.
package repository

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStorage       = errors.New("storage error")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrSaveFailed   = fmt.Errorf("%w: save failed", ErrStorage)
	ErrDeleteFailed = fmt.Errorf("%w: delete failed", ErrStorage)
)

// Repository is the method set of MemoryRepository for the entity E with primary key K.
// App repositories embed or wrap it and add their own finders, e.g. by a unique field.
type Repository[E any, K key] interface {
	Create(ctx context.Context, entity E) error
	Update(ctx context.Context, entity E) error
	Save(ctx context.Context, entity E) error
	Delete(ctx context.Context, entity E) error
	DeleteByID(ctx context.Context, id K) error
	Clear(ctx context.Context) error

	Read(ctx context.Context, id K) (E, error)
	FindByID(ctx context.Context, id K) (E, error)
	FindBy(ctx context.Context, match func(E) bool) ([]E, error)
	All(ctx context.Context) ([]E, error)
	Exists(ctx context.Context, id K) (bool, error)
	Count(ctx context.Context) (int, error)
}

// key are the types usable as primary key.
type key interface {
	~string | ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}
