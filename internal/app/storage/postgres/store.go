package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL. Aggregates are
// kept as JSONB documents next to the columns that carry their keys and the
// optimistic-concurrency version.
type Store struct {
	db *sqlx.DB
}

var _ storage.FacilityStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.MenuItemStore = (*Store)(nil)
var _ storage.DailyMenuStore = (*Store)(nil)
var _ storage.RatingStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the pool bounds used in production and verifies
// the connection within connectTimeout.
func Open(ctx context.Context, dsn string, maxOpen int, connectTimeout, idleTimeout time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if idleTimeout > 0 {
		db.SetConnMaxIdleTime(idleTimeout)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, core.Unavailable("connect postgres", err)
	}
	return db, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return core.Unavailable("ping postgres", s.db.PingContext(ctx))
}

// DB exposes the handle for stats collection.
func (s *Store) DB() *sqlx.DB { return s.db }

type docRow struct {
	ID      string `db:"id"`
	Version int64  `db:"version"`
	Doc     []byte `db:"doc"`
}

// --- FacilityStore -----------------------------------------------------------

func (s *Store) CreateFacility(ctx context.Context, f facility.Facility) (facility.Facility, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt, f.Version = now, now, 1

	doc, err := json.Marshal(f)
	if err != nil {
		return facility.Facility{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO facilities (id, name, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.Name, f.Version, doc, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return facility.Facility{}, classify("create facility", err, "facility", f.Name)
	}
	return f, nil
}

func (s *Store) UpdateFacility(ctx context.Context, f facility.Facility) (facility.Facility, error) {
	f.UpdatedAt = time.Now().UTC()
	next := f
	next.Version = f.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return facility.Facility{}, err
	}

	var created time.Time
	err = s.db.QueryRowxContext(ctx, `
		UPDATE facilities
		SET name = $3, doc = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2
		RETURNING created_at
	`, f.ID, f.Version, f.Name, doc, f.UpdatedAt).Scan(&created)
	if err != nil {
		return facility.Facility{}, s.casError(ctx, "facilities", "facility", f.ID, err)
	}
	next.CreatedAt = created
	return next, nil
}

func (s *Store) GetFacility(ctx context.Context, id string) (facility.Facility, error) {
	return s.getFacility(ctx, "get facility", `SELECT id, version, doc FROM facilities WHERE id = $1`, id)
}

func (s *Store) GetFacilityByName(ctx context.Context, name string) (facility.Facility, error) {
	return s.getFacility(ctx, "get facility by name", `SELECT id, version, doc FROM facilities WHERE name = $1`, name)
}

func (s *Store) GetFacilityByMess(ctx context.Context, messID string) (facility.Facility, error) {
	needle, err := json.Marshal([]map[string]string{{"messId": messID}})
	if err != nil {
		return facility.Facility{}, err
	}
	f, err := s.getFacility(ctx, "get facility by mess", `SELECT id, version, doc FROM facilities WHERE doc -> 'messes' @> $1::jsonb LIMIT 1`, string(needle))
	if core.IsNotFound(err) {
		return facility.Facility{}, core.NewNotFoundError("mess", messID)
	}
	return f, err
}

func (s *Store) getFacility(ctx context.Context, op, query string, arg interface{}) (facility.Facility, error) {
	var row docRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		return facility.Facility{}, classify(op, err, "facility", fmt.Sprint(arg))
	}
	var f facility.Facility
	if err := decode(row, &f); err != nil {
		return facility.Facility{}, err
	}
	f.ID, f.Version = row.ID, row.Version
	return f, nil
}

func (s *Store) ListFacilities(ctx context.Context) ([]facility.Facility, error) {
	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, version, doc FROM facilities ORDER BY name`); err != nil {
		return nil, classify("list facilities", err, "facility", "")
	}
	result := make([]facility.Facility, 0, len(rows))
	for _, row := range rows {
		var f facility.Facility
		if err := decode(row, &f); err != nil {
			return nil, err
		}
		f.ID, f.Version = row.ID, row.Version
		result = append(result, f)
	}
	return result, nil
}

// --- UserStore ---------------------------------------------------------------

type userRow struct {
	ID            string       `db:"id"`
	Name          string       `db:"name"`
	Email         string       `db:"email"`
	PasswordHash  string       `db:"password_hash"`
	Role          string       `db:"role"`
	FacilityID    string       `db:"facility_id"`
	MessID        string       `db:"mess_id"`
	RollNumber    string       `db:"roll_number"`
	IsActive      bool         `db:"is_active"`
	LoginAttempts int          `db:"login_attempts"`
	LockUntil     sql.NullTime `db:"lock_until"`
	LastLoginAt   sql.NullTime `db:"last_login_at"`
	Version       int64        `db:"version"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

const userColumns = `id, name, email, password_hash, role, facility_id, mess_id, roll_number,
	is_active, login_attempts, lock_until, last_login_at, version, created_at, updated_at`

func (r userRow) toUser() user.User {
	u := user.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		Role:          user.Role(r.Role),
		FacilityID:    r.FacilityID,
		MessID:        r.MessID,
		RollNumber:    r.RollNumber,
		IsActive:      r.IsActive,
		LoginAttempts: r.LoginAttempts,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LockUntil.Valid {
		t := r.LockUntil.Time
		u.LockUntil = &t
	}
	if r.LastLoginAt.Valid {
		t := r.LastLoginAt.Time
		u.LastLoginAt = &t
	}
	return u
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt, u.Version = now, now, 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.FacilityID, u.MessID, u.RollNumber,
		u.IsActive, u.LoginAttempts, nullTime(u.LockUntil), nullTime(u.LastLoginAt), u.Version, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, classify("create user", err, "user", u.Email)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE users
		SET name = $3, password_hash = $4, role = $5, facility_id = $6, mess_id = $7, roll_number = $8,
			is_active = $9, login_attempts = $10, lock_until = $11, last_login_at = $12,
			version = version + 1, updated_at = $13
		WHERE id = $1 AND version = $2
		RETURNING `+userColumns,
		u.ID, u.Version, u.Name, u.PasswordHash, string(u.Role), u.FacilityID, u.MessID, u.RollNumber,
		u.IsActive, u.LoginAttempts, nullTime(u.LockUntil), nullTime(u.LastLoginAt), u.UpdatedAt)
	if err != nil {
		return user.User{}, s.casError(ctx, "users", "user", u.ID, err)
	}
	return row.toUser(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return user.User{}, classify("get user", err, "user", id)
	}
	return row.toUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(email)
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return user.User{}, classify("get user by email", err, "user", email)
	}
	return row.toUser(), nil
}

// --- MenuItemStore -----------------------------------------------------------

func (s *Store) CreateMenuItem(ctx context.Context, it menuitem.Item) (menuitem.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt, it.Version = now, now, 1

	doc, err := json.Marshal(it)
	if err != nil {
		return menuitem.Item{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, facility_id, mess_id, name, category, is_veg, is_active, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, it.ID, it.FacilityID, it.MessID, it.Name, string(it.Category), it.IsVeg, it.IsActive, it.Version, doc, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return menuitem.Item{}, classify("create menu item", err, "menu item", it.ID)
	}
	return it, nil
}

func (s *Store) UpdateMenuItem(ctx context.Context, it menuitem.Item) (menuitem.Item, error) {
	it.UpdatedAt = time.Now().UTC()
	next := it
	next.Version = it.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return menuitem.Item{}, err
	}

	var created time.Time
	err = s.db.QueryRowxContext(ctx, `
		UPDATE menu_items
		SET name = $3, category = $4, is_veg = $5, is_active = $6, doc = $7, version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2
		RETURNING created_at
	`, it.ID, it.Version, it.Name, string(it.Category), it.IsVeg, it.IsActive, doc, it.UpdatedAt).Scan(&created)
	if err != nil {
		return menuitem.Item{}, s.casError(ctx, "menu_items", "menu item", it.ID, err)
	}
	next.CreatedAt = created
	return next, nil
}

func (s *Store) GetMenuItem(ctx context.Context, id string) (menuitem.Item, error) {
	var row docRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, version, doc FROM menu_items WHERE id = $1`, id); err != nil {
		return menuitem.Item{}, classify("get menu item", err, "menu item", id)
	}
	var it menuitem.Item
	if err := decode(row, &it); err != nil {
		return menuitem.Item{}, err
	}
	it.ID, it.Version = row.ID, row.Version
	return it, nil
}

func (s *Store) ListMenuItems(ctx context.Context, filter menuitem.Filter) ([]menuitem.Item, error) {
	q := newQuery(`SELECT id, version, doc FROM menu_items`)
	q.eq("facility_id", filter.FacilityID)
	q.eq("mess_id", filter.MessID)
	q.eq("category", string(filter.Category))
	if filter.VegOnly {
		q.where("is_veg = TRUE")
	}
	if !filter.IncludeInactive {
		q.where("is_active = TRUE")
	}

	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, q.String()+" ORDER BY name", q.args...); err != nil {
		return nil, classify("list menu items", err, "menu item", "")
	}
	result := make([]menuitem.Item, 0, len(rows))
	for _, row := range rows {
		var it menuitem.Item
		if err := decode(row, &it); err != nil {
			return nil, err
		}
		it.ID, it.Version = row.ID, row.Version
		result = append(result, it)
	}
	return result, nil
}

// --- DailyMenuStore ----------------------------------------------------------

func (s *Store) CreateDailyMenu(ctx context.Context, m dailymenu.Menu) (dailymenu.Menu, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt, m.Version = now, now, 1

	doc, err := json.Marshal(m)
	if err != nil {
		return dailymenu.Menu{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_menus (id, menu_date, meal_type, facility_id, mess_id, status, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.Date, string(m.MealType), m.FacilityID, m.MessID, string(m.Status), m.Version, doc, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return dailymenu.Menu{}, classify("create daily menu", err, "daily menu", m.Date+"/"+string(m.MealType))
	}
	return m, nil
}

func (s *Store) UpdateDailyMenu(ctx context.Context, m dailymenu.Menu) (dailymenu.Menu, error) {
	m.UpdatedAt = time.Now().UTC()
	next := m
	next.Version = m.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return dailymenu.Menu{}, err
	}

	var created time.Time
	err = s.db.QueryRowxContext(ctx, `
		UPDATE daily_menus
		SET status = $3, doc = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2
		RETURNING created_at
	`, m.ID, m.Version, string(m.Status), doc, m.UpdatedAt).Scan(&created)
	if err != nil {
		return dailymenu.Menu{}, s.casError(ctx, "daily_menus", "daily menu", m.ID, err)
	}
	next.CreatedAt = created
	return next, nil
}

func (s *Store) GetDailyMenu(ctx context.Context, id string) (dailymenu.Menu, error) {
	var row docRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, version, doc FROM daily_menus WHERE id = $1`, id); err != nil {
		return dailymenu.Menu{}, classify("get daily menu", err, "daily menu", id)
	}
	return decodeMenu(row)
}

func (s *Store) GetDailyMenuByKey(ctx context.Context, key dailymenu.Key) (dailymenu.Menu, error) {
	var row docRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, version, doc FROM daily_menus
		WHERE menu_date = $1 AND meal_type = $2 AND facility_id = $3 AND mess_id = $4
	`, key.Date, string(key.MealType), key.FacilityID, key.MessID)
	if err != nil {
		return dailymenu.Menu{}, classify("get daily menu by key", err, "daily menu", key.Date+"/"+string(key.MealType))
	}
	return decodeMenu(row)
}

func (s *Store) ListDailyMenus(ctx context.Context, filter dailymenu.Filter) ([]dailymenu.Menu, error) {
	q := newQuery(`SELECT id, version, doc FROM daily_menus`)
	q.eq("facility_id", filter.FacilityID)
	q.eq("mess_id", filter.MessID)
	q.eq("meal_type", string(filter.MealType))
	if filter.From != "" {
		q.where("menu_date >= "+q.arg(filter.From))
	}
	if filter.To != "" {
		q.where("menu_date <= "+q.arg(filter.To))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q.where("status = ANY(" + q.arg(pq.Array(statuses)) + ")")
	}

	var rows []docRow
	query := q.String() + ` ORDER BY menu_date, CASE meal_type WHEN 'breakfast' THEN 0 WHEN 'lunch' THEN 1 ELSE 2 END`
	if err := s.db.SelectContext(ctx, &rows, query, q.args...); err != nil {
		return nil, classify("list daily menus", err, "daily menu", "")
	}
	result := make([]dailymenu.Menu, 0, len(rows))
	for _, row := range rows {
		m, err := decodeMenu(row)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func decodeMenu(row docRow) (dailymenu.Menu, error) {
	var m dailymenu.Menu
	if err := decode(row, &m); err != nil {
		return dailymenu.Menu{}, err
	}
	m.ID, m.Version = row.ID, row.Version
	return m, nil
}

// --- RatingStore -------------------------------------------------------------

type ratingRow struct {
	docRow
	Votes []byte `db:"votes"`
}

func (s *Store) CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt, r.Version = now, 1

	doc, votes, err := encodeRating(r)
	if err != nil {
		return rating.Rating{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ratings (id, student_id, menu_item_id, meal_date, meal_type, daily_menu_id, facility_id, mess_id,
			is_active, version, doc, votes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.ID, r.StudentID, r.MenuItemID, r.MealDate, string(r.MealType), r.DailyMenuID, r.FacilityID, r.MessID,
		r.IsActive, r.Version, doc, votes, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return rating.Rating{}, core.NewConflictError("rating", "", "already submitted for this meal")
		}
		return rating.Rating{}, classify("create rating", err, "rating", r.ID)
	}
	return r, nil
}

func (s *Store) UpdateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	r.UpdatedAt = time.Now().UTC()
	next := r
	next.Version = r.Version + 1
	doc, votes, err := encodeRating(next)
	if err != nil {
		return rating.Rating{}, err
	}

	var created time.Time
	err = s.db.QueryRowxContext(ctx, `
		UPDATE ratings
		SET is_active = $3, doc = $4, votes = $5, version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2
		RETURNING created_at
	`, r.ID, r.Version, r.IsActive, doc, votes, r.UpdatedAt).Scan(&created)
	if err != nil {
		return rating.Rating{}, s.casError(ctx, "ratings", "rating", r.ID, err)
	}
	next.CreatedAt = created
	return next, nil
}

func (s *Store) GetRating(ctx context.Context, id string) (rating.Rating, error) {
	var row ratingRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, version, doc, votes FROM ratings WHERE id = $1`, id); err != nil {
		return rating.Rating{}, classify("get rating", err, "rating", id)
	}
	return decodeRating(row)
}

func (s *Store) GetRatingByKey(ctx context.Context, key rating.Key) (rating.Rating, error) {
	var row ratingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, version, doc, votes FROM ratings
		WHERE student_id = $1 AND menu_item_id = $2 AND meal_date = $3 AND meal_type = $4
	`, key.StudentID, key.MenuItemID, key.MealDate, string(key.MealType))
	if err != nil {
		return rating.Rating{}, classify("get rating by key", err, "rating", "")
	}
	return decodeRating(row)
}

func (s *Store) ListRatings(ctx context.Context, filter rating.Filter) ([]rating.Rating, error) {
	q := newQuery(`SELECT id, version, doc, votes FROM ratings`)
	q.eq("facility_id", filter.FacilityID)
	q.eq("mess_id", filter.MessID)
	q.eq("menu_item_id", filter.MenuItemID)
	q.eq("daily_menu_id", filter.DailyMenuID)
	q.eq("student_id", filter.StudentID)
	if filter.From != "" {
		q.where("meal_date >= " + q.arg(filter.From))
	}
	if filter.To != "" {
		q.where("meal_date <= " + q.arg(filter.To))
	}
	if filter.ActiveOnly {
		q.where("is_active = TRUE")
	}

	var rows []ratingRow
	if err := s.db.SelectContext(ctx, &rows, q.String()+" ORDER BY created_at DESC", q.args...); err != nil {
		return nil, classify("list ratings", err, "rating", "")
	}
	result := make([]rating.Rating, 0, len(rows))
	for _, row := range rows {
		r, err := decodeRating(row)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

func encodeRating(r rating.Rating) ([]byte, []byte, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, nil, err
	}
	votes := r.Votes
	if votes == nil {
		votes = []rating.Vote{}
	}
	ledger, err := json.Marshal(votes)
	if err != nil {
		return nil, nil, err
	}
	return doc, ledger, nil
}

func decodeRating(row ratingRow) (rating.Rating, error) {
	var r rating.Rating
	if err := decode(row.docRow, &r); err != nil {
		return rating.Rating{}, err
	}
	if len(row.Votes) > 0 {
		if err := json.Unmarshal(row.Votes, &r.Votes); err != nil {
			return rating.Rating{}, fmt.Errorf("decode votes of rating %s: %w", row.ID, err)
		}
	}
	r.ID, r.Version = row.ID, row.Version
	return r, nil
}

// --- helpers -----------------------------------------------------------------

func decode(row docRow, v interface{}) error {
	if err := json.Unmarshal(row.Doc, v); err != nil {
		return fmt.Errorf("decode document %s: %w", row.ID, err)
	}
	return nil
}

// casError resolves a failed conditional update into NotFound or a version
// conflict.
func (s *Store) casError(ctx context.Context, table, resource, id string, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return classify("update "+resource, err, resource, id)
	}
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return core.Unavailable("update "+resource, err)
	}
	if !exists {
		return core.NewNotFoundError(resource, id)
	}
	return storage.ErrVersionConflict
}

func classify(op string, err error, resource, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return core.NewNotFoundError(resource, key)
	case isUniqueViolation(err):
		return core.NewConflictError(resource, key, "already exists")
	}
	return core.Unavailable(op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// query accumulates AND-ed conditions with positional arguments.
type query struct {
	base  string
	conds []string
	args  []interface{}
}

func newQuery(base string) *query { return &query{base: base} }

func (q *query) arg(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *query) where(cond string) { q.conds = append(q.conds, cond) }

func (q *query) eq(column, value string) {
	if value != "" {
		q.where(column + " = " + q.arg(value))
	}
}

func (q *query) String() string {
	if len(q.conds) == 0 {
		return q.base
	}
	return q.base + " WHERE " + strings.Join(q.conds, " AND ")
}
