package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"sync"
)

// Option configures a MemoryRepository.
type Option func(*repoConfig)

type repoConfig struct {
	store       Store
	filename    string
	idFieldName string
}

// WithStore sets a Store used to persist the Repository.
// There are no transactions: if a store fails, the change is reverted in memory.
func WithStore(store Store) Option {
	return func(config *repoConfig) {
		config.store = store
	}
}

// WithStoreFilename overwrites the file name a Store should use to persist this Repository.
func WithStoreFilename(name string) Option {
	return func(config *repoConfig) {
		config.filename = name
	}
}

// WithIDField sets the name of the field that is used as the primary key.
// If not set, it is assumed that the entity struct has a field with the name "ID".
func WithIDField(idFieldName string) Option {
	return func(config *repoConfig) {
		config.idFieldName = idFieldName
	}
}

// NewMemoryRepository returns an implementation of Repository for the given entity E.
// It panics, if an existing Store cannot be loaded. Use LoadMemoryRepository for stores
// that are not under control of the program, e.g. a file on disc.
func NewMemoryRepository[E any, ID key](opts ...Option) *MemoryRepository[E, ID] {
	repo, err := LoadMemoryRepository[E, ID](opts...)
	if err != nil {
		panic("could not load data for memory repository from store: " + err.Error())
	}

	return repo
}

// LoadMemoryRepository is like NewMemoryRepository, but returns an error wrapping ErrLoad,
// if an existing Store cannot be loaded. Not yet stored data is no error.
func LoadMemoryRepository[E any, ID key](opts ...Option) (*MemoryRepository[E, ID], error) {
	repo := &MemoryRepository[E, ID]{
		Mutex: &sync.Mutex{},
		Data:  make(map[ID]E),
		repoConfig: repoConfig{
			store:       noopStore{},
			filename:    reflect.TypeOf(new(E)).Elem().Name() + ".json",
			idFieldName: "ID",
		},
	}

	for _, opt := range opts {
		opt(&repo.repoConfig)
	}

	err := repo.store.Load(repo.filename, &repo.Data)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if !errors.Is(err, ErrLoad) {
			err = fmt.Errorf("%w: %w", ErrLoad, err)
		}

		return nil, fmt.Errorf("%s: %w", repo.filename, err)
	}

	return repo, nil
}

// MemoryRepository implements Repository in a generic way.
type MemoryRepository[E any, ID key] struct {
	// Mutex is embedded, so that repositories extending MemoryRepository can lock the same mutex.
	*sync.Mutex

	// Data is the repository's collection.
	// If you write to Data, USE the Mutex to lock first.
	Data map[ID]E

	repoConfig
}

var _ Repository[struct{ ID string }, string] = (*MemoryRepository[struct{ ID string }, string])(nil)

func (repo *MemoryRepository[E, ID]) getID(entity E) ID { //nolint:ireturn // generic
	val := reflect.ValueOf(entity)
	if val.Kind() == reflect.Pointer {
		val = val.Elem()
	}

	idField := val.FieldByName(repo.idFieldName)
	if !idField.IsValid() {
		panic("entity does not have the field with name: " + repo.idFieldName)
	}

	var id ID

	target := reflect.ValueOf(&id).Elem()
	if !idField.Type().ConvertibleTo(target.Type()) {
		panic("type of ID is not supported: " + idField.Kind().String())
	}

	target.Set(idField.Convert(target.Type()))

	return id
}

// persist writes Data to the store. On failure, Data is reset to old.
func (repo *MemoryRepository[E, ID]) persist(old map[ID]E) error {
	if err := repo.store.Store(repo.filename, repo.Data); err != nil {
		repo.Data = old

		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	return nil
}

func (repo *MemoryRepository[E, ID]) Create(_ context.Context, entity E) error {
	repo.Lock()
	defer repo.Unlock()

	id := repo.getID(entity)
	if id == *new(ID) {
		return fmt.Errorf("%w: missing ID", ErrSaveFailed)
	}

	if _, found := repo.Data[id]; found {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, id)
	}

	old := maps.Clone(repo.Data)
	repo.Data[id] = entity

	return repo.persist(old)
}

func (repo *MemoryRepository[E, ID]) Read(ctx context.Context, id ID) (E, error) { //nolint:ireturn // generic
	return repo.FindByID(ctx, id)
}

func (repo *MemoryRepository[E, ID]) Update(_ context.Context, entity E) error {
	repo.Lock()
	defer repo.Unlock()

	id := repo.getID(entity)
	if _, found := repo.Data[id]; !found {
		return fmt.Errorf("%w: entity does not exist yet: %w", ErrSaveFailed, ErrNotFound)
	}

	old := maps.Clone(repo.Data)
	repo.Data[id] = entity

	return repo.persist(old)
}

// Save creates or updates the entity.
func (repo *MemoryRepository[E, ID]) Save(_ context.Context, entity E) error {
	repo.Lock()
	defer repo.Unlock()

	id := repo.getID(entity)
	if id == *new(ID) {
		return fmt.Errorf("%w: missing ID", ErrSaveFailed)
	}

	old := maps.Clone(repo.Data)
	repo.Data[id] = entity

	return repo.persist(old)
}

func (repo *MemoryRepository[E, ID]) Delete(ctx context.Context, entity E) error {
	return repo.DeleteByID(ctx, repo.getID(entity))
}

func (repo *MemoryRepository[E, ID]) DeleteByID(_ context.Context, id ID) error {
	repo.Lock()
	defer repo.Unlock()

	old := maps.Clone(repo.Data)
	delete(repo.Data, id)

	if err := repo.persist(old); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	return nil
}

func (repo *MemoryRepository[E, ID]) All(ctx context.Context) ([]E, error) {
	return repo.FindBy(ctx, func(E) bool { return true })
}

// FindBy returns all entities for which match returns true.
func (repo *MemoryRepository[E, ID]) FindBy(_ context.Context, match func(E) bool) ([]E, error) {
	repo.Lock()
	defer repo.Unlock()

	result := []E{}

	for _, e := range repo.Data {
		if match(e) {
			result = append(result, e)
		}
	}

	return result, nil
}

func (repo *MemoryRepository[E, ID]) FindByID(_ context.Context, id ID) (E, error) { //nolint:ireturn // generic
	repo.Lock()
	defer repo.Unlock()

	if e, ok := repo.Data[id]; ok {
		return e, nil
	}

	return *new(E), ErrNotFound
}

func (repo *MemoryRepository[E, ID]) Exists(_ context.Context, id ID) (bool, error) {
	repo.Lock()
	defer repo.Unlock()

	_, ok := repo.Data[id]

	return ok, nil
}

func (repo *MemoryRepository[E, ID]) Count(_ context.Context) (int, error) {
	repo.Lock()
	defer repo.Unlock()

	return len(repo.Data), nil
}

func (repo *MemoryRepository[E, ID]) Clear(_ context.Context) error {
	repo.Lock()
	defer repo.Unlock()

	old := maps.Clone(repo.Data)
	clear(repo.Data)

	return repo.persist(old)
}
