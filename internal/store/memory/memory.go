// Package memory implements every store in process memory for development
// and testing.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/store"
)

// DB is a mutex-guarded in-memory database.
type DB struct {
	mu       sync.Mutex
	users    []store.User
	profiles map[int]nutrition.Profile
	foods    map[int][]nutrition.SavedFood
	cache    map[int][]byte

	userIDCounter int
}

// New creates an empty database.
func New() *DB {
	return &DB{
		profiles: map[int]nutrition.Profile{},
		foods:    map[int][]nutrition.SavedFood{},
		cache:    map[int][]byte{},
	}
}

// Ensure interfaces are met.
var _ advice.ProfileStore = (*DB)(nil)
var _ advice.FoodStore = (*DB)(nil)
var _ advice.CacheStore = (*DB)(nil)

// --- Users ---

// CreateUser adds a user and returns it with its new id.
func (db *DB) CreateUser(ctx context.Context, username, email, passwordHash, token string) (store.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.userIDCounter++
	now := time.Now().UTC()
	u := store.User{
		ID:        db.userIDCounter,
		Username:  username,
		Email:     email,
		Password:  passwordHash,
		AuthToken: token,
		CreatedAt: &now,
	}
	db.users = append(db.users, u)
	db.profiles[u.ID] = nutrition.Profile{UserID: u.ID}
	return u, nil
}

func (db *DB) UserByUsername(ctx context.Context, username string) (store.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (db *DB) UserIDByToken(ctx context.Context, token string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if token != "" && u.AuthToken == token {
			return u.ID, nil
		}
	}
	return 0, store.ErrNotFound
}

// --- Profiles ---

func (db *DB) GetProfile(ctx context.Context, userID int) (nutrition.Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.profiles[userID]
	if !ok {
		return nutrition.Profile{}, store.ErrNotFound
	}
	return p, nil
}

// PutProfile replaces the whole profile.
func (db *DB) PutProfile(ctx context.Context, p nutrition.Profile) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	now := time.Now().UTC()
	p.UpdatedAt = &now
	db.profiles[p.UserID] = p
	return nil
}

// UpdateProfile applies patch and returns the updated profile.
func (db *DB) UpdateProfile(ctx context.Context, userID int, patch store.ProfilePatch) (nutrition.Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.profiles[userID]
	if !ok {
		return nutrition.Profile{}, store.ErrNotFound
	}
	patch.Apply(&p)
	now := time.Now().UTC()
	p.UpdatedAt = &now
	db.profiles[userID] = p
	return p, nil
}

// --- Saved foods ---

func (db *DB) AddSavedFood(ctx context.Context, userID int, f nutrition.SavedFood) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.foods[userID] = append(db.foods[userID], f)
	return nil
}

func (db *DB) SavedFoods(ctx context.Context, userID int) ([]nutrition.SavedFood, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]nutrition.SavedFood(nil), db.foods[userID]...), nil
}

// --- Advice cache ---

// Entries are stored encoded so callers never share slices with the store.

func (db *DB) Get(ctx context.Context, userID int) (*advice.CacheEntry, error) {
	db.mu.Lock()
	raw, ok := db.cache[userID]
	db.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var e advice.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (db *DB) Put(ctx context.Context, e advice.CacheEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cache[e.UserID] = raw
	return nil
}

func (db *DB) Delete(ctx context.Context, userID int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.cache, userID)
	return nil
}

// CacheLen reports how many users have a cached plan.
func (db *DB) CacheLen() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.cache)
}
