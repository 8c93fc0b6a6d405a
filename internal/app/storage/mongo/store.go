// Package mongo stores aggregates as documents in MongoDB. Facilities keep
// their messes embedded; every document carries a version field that Update*
// uses as its compare-and-swap guard.
package mongo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
)

const (
	facilitiesCollection = "facilities"
	usersCollection      = "users"
	menuItemsCollection  = "menu_items"
	dailyMenusCollection = "daily_menus"
	ratingsCollection    = "ratings"
)

// Store implements the storage interfaces on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.FacilityStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.MenuItemStore = (*Store)(nil)
var _ storage.DailyMenuStore = (*Store)(nil)
var _ storage.RatingStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// Options bounds the client connection pool.
type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxIdleTime    time.Duration
	MaxPoolSize    uint64
}

// Open connects, verifies the server within ConnectTimeout and ensures the
// indexes the uniqueness rules rely on.
func Open(ctx context.Context, opts Options) (*Store, error) {
	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.ConnectTimeout).
		SetMaxConnIdleTime(opts.MaxIdleTime)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, core.Unavailable("connect mongo", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, core.Unavailable("ping mongo", err)
	}

	s := &Store{client: client, db: client.Database(opts.Database)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique and lookup indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		facilitiesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "messes.messId", Value: 1}}},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		},
		menuItemsCollection: {
			{Keys: bson.D{{Key: "facilityId", Value: 1}, {Key: "messId", Value: 1}, {Key: "isActive", Value: 1}}},
		},
		dailyMenusCollection: {
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "mealType", Value: 1}, {Key: "facilityId", Value: 1}, {Key: "messId", Value: 1}}, Options: unique},
		},
		ratingsCollection: {
			{Keys: bson.D{{Key: "studentId", Value: 1}, {Key: "menuItemId", Value: 1}, {Key: "mealDate", Value: 1}, {Key: "mealType", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "menuItemId", Value: 1}, {Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for name, models := range specs {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return core.Unavailable("create indexes on "+name, err)
		}
	}
	return nil
}

// Ping reports whether the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return core.Unavailable("ping mongo", s.client.Ping(ctx, nil))
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// --- FacilityStore -----------------------------------------------------------

func (s *Store) CreateFacility(ctx context.Context, f facility.Facility) (facility.Facility, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt, f.Version = now, now, 1
	if err := s.insert(ctx, facilitiesCollection, f, "facility", f.Name); err != nil {
		return facility.Facility{}, err
	}
	return f, nil
}

func (s *Store) UpdateFacility(ctx context.Context, f facility.Facility) (facility.Facility, error) {
	prev := f.Version
	f.UpdatedAt = time.Now().UTC()
	f.Version = prev + 1
	if err := s.replace(ctx, facilitiesCollection, f.ID, prev, f, "facility"); err != nil {
		return facility.Facility{}, err
	}
	return f, nil
}

func (s *Store) GetFacility(ctx context.Context, id string) (facility.Facility, error) {
	var f facility.Facility
	err := s.findOne(ctx, facilitiesCollection, bson.M{"_id": id}, &f, "facility", id)
	return f, err
}

func (s *Store) GetFacilityByName(ctx context.Context, name string) (facility.Facility, error) {
	var f facility.Facility
	err := s.findOne(ctx, facilitiesCollection, bson.M{"name": name}, &f, "facility", name)
	return f, err
}

func (s *Store) GetFacilityByMess(ctx context.Context, messID string) (facility.Facility, error) {
	var f facility.Facility
	err := s.findOne(ctx, facilitiesCollection, bson.M{"messes.messId": messID}, &f, "mess", messID)
	return f, err
}

func (s *Store) ListFacilities(ctx context.Context) ([]facility.Facility, error) {
	var result []facility.Facility
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	if err := s.findAll(ctx, facilitiesCollection, bson.M{}, opts, &result, "list facilities"); err != nil {
		return nil, err
	}
	return result, nil
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt, u.Version = now, now, 1
	if err := s.insert(ctx, usersCollection, u, "user", u.Email); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	prev := u.Version
	u.UpdatedAt = time.Now().UTC()
	u.Version = prev + 1
	if err := s.replace(ctx, usersCollection, u.ID, prev, u, "user"); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.findOne(ctx, usersCollection, bson.M{"_id": id}, &u, "user", id)
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(email)
	var u user.User
	err := s.findOne(ctx, usersCollection, bson.M{"email": email}, &u, "user", email)
	return u, err
}

// --- MenuItemStore -----------------------------------------------------------

func (s *Store) CreateMenuItem(ctx context.Context, it menuitem.Item) (menuitem.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt, it.Version = now, now, 1
	if err := s.insert(ctx, menuItemsCollection, it, "menu item", it.ID); err != nil {
		return menuitem.Item{}, err
	}
	return it, nil
}

func (s *Store) UpdateMenuItem(ctx context.Context, it menuitem.Item) (menuitem.Item, error) {
	prev := it.Version
	it.UpdatedAt = time.Now().UTC()
	it.Version = prev + 1
	if err := s.replace(ctx, menuItemsCollection, it.ID, prev, it, "menu item"); err != nil {
		return menuitem.Item{}, err
	}
	return it, nil
}

func (s *Store) GetMenuItem(ctx context.Context, id string) (menuitem.Item, error) {
	var it menuitem.Item
	err := s.findOne(ctx, menuItemsCollection, bson.M{"_id": id}, &it, "menu item", id)
	return it, err
}

func (s *Store) ListMenuItems(ctx context.Context, filter menuitem.Filter) ([]menuitem.Item, error) {
	q := bson.M{}
	setIf(q, "facilityId", filter.FacilityID)
	setIf(q, "messId", filter.MessID)
	setIf(q, "category", string(filter.Category))
	if filter.VegOnly {
		q["isVeg"] = true
	}
	if !filter.IncludeInactive {
		q["isActive"] = true
	}

	var result []menuitem.Item
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	if err := s.findAll(ctx, menuItemsCollection, q, opts, &result, "list menu items"); err != nil {
		return nil, err
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
	if err := s.insert(ctx, dailyMenusCollection, m, "daily menu", m.Date+"/"+string(m.MealType)); err != nil {
		return dailymenu.Menu{}, err
	}
	return m, nil
}

func (s *Store) UpdateDailyMenu(ctx context.Context, m dailymenu.Menu) (dailymenu.Menu, error) {
	prev := m.Version
	m.UpdatedAt = time.Now().UTC()
	m.Version = prev + 1
	if err := s.replace(ctx, dailyMenusCollection, m.ID, prev, m, "daily menu"); err != nil {
		return dailymenu.Menu{}, err
	}
	return m, nil
}

func (s *Store) GetDailyMenu(ctx context.Context, id string) (dailymenu.Menu, error) {
	var m dailymenu.Menu
	err := s.findOne(ctx, dailyMenusCollection, bson.M{"_id": id}, &m, "daily menu", id)
	return m, err
}

func (s *Store) GetDailyMenuByKey(ctx context.Context, key dailymenu.Key) (dailymenu.Menu, error) {
	var m dailymenu.Menu
	q := bson.M{"date": key.Date, "mealType": key.MealType, "facilityId": key.FacilityID, "messId": key.MessID}
	err := s.findOne(ctx, dailyMenusCollection, q, &m, "daily menu", key.Date+"/"+string(key.MealType))
	return m, err
}

func (s *Store) ListDailyMenus(ctx context.Context, filter dailymenu.Filter) ([]dailymenu.Menu, error) {
	q := bson.M{}
	setIf(q, "facilityId", filter.FacilityID)
	setIf(q, "messId", filter.MessID)
	setIf(q, "mealType", string(filter.MealType))
	if r := dateRange(filter.From, filter.To); r != nil {
		q["date"] = r
	}
	if len(filter.Statuses) > 0 {
		q["status"] = bson.M{"$in": filter.Statuses}
	}

	var result []dailymenu.Menu
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	if err := s.findAll(ctx, dailyMenusCollection, q, opts, &result, "list daily menus"); err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].MealType.Order() < result[j].MealType.Order()
	})
	return result, nil
}

// --- RatingStore -------------------------------------------------------------

func (s *Store) CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt, r.Version = now, 1
	if _, err := s.db.Collection(ratingsCollection).InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return rating.Rating{}, core.NewConflictError("rating", "", "already submitted for this meal")
		}
		return rating.Rating{}, core.Unavailable("insert rating", err)
	}
	return r, nil
}

func (s *Store) UpdateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	prev := r.Version
	r.UpdatedAt = time.Now().UTC()
	r.Version = prev + 1
	if err := s.replace(ctx, ratingsCollection, r.ID, prev, r, "rating"); err != nil {
		return rating.Rating{}, err
	}
	return r, nil
}

func (s *Store) GetRating(ctx context.Context, id string) (rating.Rating, error) {
	var r rating.Rating
	err := s.findOne(ctx, ratingsCollection, bson.M{"_id": id}, &r, "rating", id)
	return r, err
}

func (s *Store) GetRatingByKey(ctx context.Context, key rating.Key) (rating.Rating, error) {
	var r rating.Rating
	q := bson.M{"studentId": key.StudentID, "menuItemId": key.MenuItemID, "mealDate": key.MealDate, "mealType": key.MealType}
	err := s.findOne(ctx, ratingsCollection, q, &r, "rating", "")
	return r, err
}

func (s *Store) ListRatings(ctx context.Context, filter rating.Filter) ([]rating.Rating, error) {
	q := bson.M{}
	setIf(q, "facilityId", filter.FacilityID)
	setIf(q, "messId", filter.MessID)
	setIf(q, "menuItemId", filter.MenuItemID)
	setIf(q, "dailyMenuId", filter.DailyMenuID)
	setIf(q, "studentId", filter.StudentID)
	if r := dateRange(filter.From, filter.To); r != nil {
		q["mealDate"] = r
	}
	if filter.ActiveOnly {
		q["isActive"] = true
	}

	var result []rating.Rating
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := s.findAll(ctx, ratingsCollection, q, opts, &result, "list ratings"); err != nil {
		return nil, err
	}
	return result, nil
}

// --- helpers -----------------------------------------------------------------

func (s *Store) insert(ctx context.Context, collection string, doc interface{}, resource, key string) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.NewConflictError(resource, key, "already exists")
		}
		return core.Unavailable("insert "+resource, err)
	}
	return nil
}

// replace swaps the document only when the stored version still equals prev.
func (s *Store) replace(ctx context.Context, collection, id string, prev int64, doc interface{}, resource string) error {
	coll := s.db.Collection(collection)
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": prev}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.NewConflictError(resource, id, "already exists")
		}
		return core.Unavailable("replace "+resource, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return core.Unavailable("replace "+resource, err)
	}
	if n == 0 {
		return core.NewNotFoundError(resource, id)
	}
	return storage.ErrVersionConflict
}

func (s *Store) findOne(ctx context.Context, collection string, filter bson.M, out interface{}, resource, key string) error {
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return core.NewNotFoundError(resource, key)
	}
	return core.Unavailable("find "+resource, err)
}

func (s *Store) findAll(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions, out interface{}, op string) error {
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return core.Unavailable(op, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return core.Unavailable(op, err)
	}
	return nil
}

func setIf(q bson.M, field, value string) {
	if value != "" {
		q[field] = value
	}
}

func dateRange(from, to string) bson.M {
	if from == "" && to == "" {
		return nil
	}
	r := bson.M{}
	if from != "" {
		r["$gte"] = from
	}
	if to != "" {
		r["$lte"] = to
	}
	return r
}
