// Package postgres implements the stores on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/platform/logger"
	"lg/nutrition-advice-api/internal/store"
)

// DB wraps a pgx pool.
type DB struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

var _ advice.ProfileStore = (*DB)(nil)
var _ advice.FoodStore = (*DB)(nil)
var _ advice.CacheStore = (*DB)(nil)

// Open creates a connection pool. We use a pool (not a single conn) because
// managed Postgres providers close idle connections after a few minutes.
func Open(ctx context.Context, url string, log *logger.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Simple protocol avoids "cached plan must not change result type" errors
	// from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DB{pool: pool, log: log}, nil
}

func (db *DB) Close() { db.pool.Close() }

func (db *DB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

/* ─── Query helpers ───────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// pgx.ErrNoRows becomes store.ErrNotFound.
func queryOne[T any](ctx context.Context, db *DB, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := db.pool.Query(ctx, sql, args)
	if err != nil {
		db.log.Error("queryOne: query failed", "error", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return result, store.ErrNotFound
	}
	if err != nil {
		db.log.Error("queryOne: scan failed", "error", err)
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, db *DB, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := db.pool.Query(ctx, sql, args)
	if err != nil {
		db.log.Error("queryMany: query failed", "error", err)
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		db.log.Error("queryMany: scan failed", "error", err)
	}
	return results, err
}

/* ─── Users ───────────────────────────────────────────────────────────── */

const userColumns = "id, username, email, auth_token, password, created_at"

func (db *DB) UserByUsername(ctx context.Context, username string) (store.User, error) {
	return queryOne[store.User](ctx, db,
		"SELECT "+userColumns+" FROM users WHERE username = @username",
		pgx.NamedArgs{"username": username})
}

func (db *DB) UserIDByToken(ctx context.Context, token string) (int, error) {
	var userID int
	err := db.pool.QueryRow(ctx, "SELECT id FROM users WHERE auth_token = $1", token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return userID, err
}

// CreateUser inserts the user and an empty profile in one transaction.
func (db *DB) CreateUser(ctx context.Context, username, email, passwordHash, token string) (store.User, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return store.User{}, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`INSERT INTO users (username, email, password, auth_token)
		 VALUES (@username, @email, @password, @token)
		 RETURNING `+userColumns,
		pgx.NamedArgs{"username": username, "email": email, "password": passwordHash, "token": token})
	if err != nil {
		return store.User{}, err
	}
	u, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[store.User])
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO profiles (user_id) VALUES ($1)", u.ID); err != nil {
		return store.User{}, fmt.Errorf("create profile: %w", err)
	}
	return u, tx.Commit(ctx)
}

/* ─── Profiles ────────────────────────────────────────────────────────── */

const profileColumns = `user_id, display_name, sex, date_of_birth, height_cm, weight_kg, goal,
	activity_level, change_speed, country, target_weight_kg, food_preferences,
	daily_protein_g, meal_types, updated_at`

func (db *DB) GetProfile(ctx context.Context, userID int) (nutrition.Profile, error) {
	return queryOne[nutrition.Profile](ctx, db,
		"SELECT "+profileColumns+" FROM profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

// UpdateProfile writes only the fields the patch carries and returns the row.
func (db *DB) UpdateProfile(ctx context.Context, userID int, patch store.ProfilePatch) (nutrition.Profile, error) {
	setClauses, args := profileSetClauses(patch)
	if len(setClauses) == 0 {
		return db.GetProfile(ctx, userID)
	}
	args["userID"] = userID
	setClauses = append(setClauses, "updated_at = now()")

	query := "UPDATE profiles SET " +
		strings.Join(setClauses, ", ") +
		" WHERE user_id = @userID RETURNING " + profileColumns
	return queryOne[nutrition.Profile](ctx, db, query, args)
}

// profileSetClauses builds the SET list for the fields the client sent.
func profileSetClauses(p store.ProfilePatch) ([]string, pgx.NamedArgs) {
	setClauses := []string{}
	args := pgx.NamedArgs{}
	set := func(column, arg string, value any) {
		setClauses = append(setClauses, column+" = @"+arg)
		args[arg] = value
	}

	if p.DisplayName != nil {
		set("display_name", "displayName", *p.DisplayName)
	}
	if p.Sex != nil {
		set("sex", "sex", *p.Sex)
	}
	if p.DateOfBirth != nil {
		set("date_of_birth", "dateOfBirth", p.DateOfBirth.Time)
	}
	if p.HeightCM != nil {
		set("height_cm", "heightCM", *p.HeightCM)
	}
	if p.WeightKG != nil {
		set("weight_kg", "weightKG", *p.WeightKG)
	}
	if p.Goal != nil {
		set("goal", "goal", *p.Goal)
	}
	if p.ActivityLevel != nil {
		set("activity_level", "activityLevel", *p.ActivityLevel)
	}
	if p.ChangeSpeed != nil {
		set("change_speed", "changeSpeed", *p.ChangeSpeed)
	}
	if p.Country != nil {
		set("country", "country", *p.Country)
	}
	if p.TargetWeightKG != nil {
		set("target_weight_kg", "targetWeightKG", *p.TargetWeightKG)
	}
	if p.FoodPreferences != nil {
		set("food_preferences", "foodPreferences", *p.FoodPreferences)
	}
	if p.DailyProteinG != nil {
		set("daily_protein_g", "dailyProteinG", *p.DailyProteinG)
	}
	if p.MealTypes != nil {
		set("meal_types", "mealTypes", *p.MealTypes)
	}
	return setClauses, args
}

/* ─── Saved foods ─────────────────────────────────────────────────────── */

func (db *DB) SavedFoods(ctx context.Context, userID int) ([]nutrition.SavedFood, error) {
	return queryMany[nutrition.SavedFood](ctx, db,
		"SELECT name, meal_type FROM saved_foods WHERE user_id = @userID ORDER BY created_at, id",
		pgx.NamedArgs{"userID": userID})
}

func (db *DB) AddSavedFood(ctx context.Context, userID int, f nutrition.SavedFood) error {
	_, err := db.pool.Exec(ctx,
		"INSERT INTO saved_foods (user_id, name, meal_type) VALUES (@userID, @name, @mealType)",
		pgx.NamedArgs{"userID": userID, "name": f.Name, "mealType": f.MealType})
	return err
}

/* ─── Advice cache ────────────────────────────────────────────────────── */

// Get returns nil, nil when the user has no cached plan.
func (db *DB) Get(ctx context.Context, userID int) (*advice.CacheEntry, error) {
	var (
		hash      string
		raw       []byte
		createdAt time.Time
	)
	err := db.pool.QueryRow(ctx,
		"SELECT profile_hash, result, created_at FROM advice_cache WHERE user_id = $1", userID,
	).Scan(&hash, &raw, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e := &advice.CacheEntry{UserID: userID, ProfileHash: hash, CreatedAt: createdAt}
	if err := json.Unmarshal(raw, &e.Result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return e, nil
}

// Put upserts the user's single entry; the last writer wins.
func (db *DB) Put(ctx context.Context, e advice.CacheEntry) error {
	raw, err := json.Marshal(e.Result)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO advice_cache (user_id, profile_hash, result, created_at)
		 VALUES (@userID, @hash, @result, @createdAt)
		 ON CONFLICT (user_id) DO UPDATE
		 SET profile_hash = EXCLUDED.profile_hash, result = EXCLUDED.result, created_at = EXCLUDED.created_at`,
		pgx.NamedArgs{"userID": e.UserID, "hash": e.ProfileHash, "result": string(raw), "createdAt": e.CreatedAt})
	return err
}

func (db *DB) Delete(ctx context.Context, userID int) error {
	_, err := db.pool.Exec(ctx, "DELETE FROM advice_cache WHERE user_id = $1", userID)
	return err
}
