// Package appstate keeps a process-local copy of the shared document for
// display. It is filled by one fetch and then patched after each successful
// mutation instead of being re-read.
//
// The HTTP adapter patches the Cache through Apply and Forget. Session is the
// entry point for a single interactive user: it remembers who is logged in
// and routes that user's mutations through the service before patching.
package appstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cabincore/internal/docstore"
	"cabincore/pkg/domain"
)

// Status is the lifecycle state of the cache.
type Status string

// Lifecycle states. A failed load ends in StatusError with empty or seed
// collections and is not retried automatically.
const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
)

// ErrDegraded records a load served from the seed document because the store
// could not be read.
var ErrDegraded = errors.New("shared document unavailable, showing defaults")

// Loader fetches the shared document. *core.Service satisfies it.
type Loader interface {
	Document(ctx context.Context) (docstore.Snapshot, error)
}

// Cache holds the collections of the last loaded document.
type Cache struct {
	loader  Loader
	catalog domain.Catalog
	logger  *slog.Logger

	mu       sync.RWMutex
	status   Status
	loadErr  error
	doc      domain.Document
	revision string
}

// Option customises a Cache.
type Option func(*Cache)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCatalog overrides the catalog used by seat selectors.
func WithCatalog(catalog domain.Catalog) Option {
	return func(c *Cache) { c.catalog = catalog }
}

// New returns an uninitialized cache.
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:  loader,
		catalog: domain.DefaultCatalog(),
		logger:  slog.Default(),
		status:  StatusUninitialized,
	}
	c.doc.Normalize()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces every collection with one fetch of the shared document. A
// failed fetch leaves empty collections and the error state; a degraded fetch
// keeps the seed contents and also ends in the error state.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	c.status = StatusLoading
	c.loadErr = nil
	c.mu.Unlock()

	snap, err := c.loader.Document(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err != nil:
		c.doc = domain.Document{}
		c.doc.Normalize()
		c.revision = ""
		c.status = StatusError
		c.loadErr = err
		c.logger.ErrorContext(ctx, "state load failed", "error", err)
	case snap.Degraded:
		c.doc = snap.Document.Clone()
		c.revision = ""
		c.status = StatusError
		c.loadErr = ErrDegraded
		c.logger.WarnContext(ctx, "state loaded from defaults")
	default:
		c.doc = snap.Document.Clone()
		c.revision = snap.Revision
		c.status = StatusReady
	}
	return c.loadErr
}

// Status returns the lifecycle state.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the error of the last load, if any.
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadErr
}

// Revision returns the document revision observed by the last successful
// load. Local patches do not advance it.
func (c *Cache) Revision() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Catalog returns the static catalog.
func (c *Cache) Catalog() domain.Catalog { return c.catalog }

// Apply patches the cache with a record returned by a successful mutation.
// Nil pointers and unknown types are ignored.
func (c *Cache) Apply(record any) {
	switch v := record.(type) {
	case domain.User:
		c.putUser(v)
	case *domain.User:
		if v != nil {
			c.putUser(*v)
		}
	case domain.Booking:
		c.putBooking(v)
	case *domain.Booking:
		if v != nil {
			c.putBooking(*v)
		}
	case domain.DayVisit:
		c.putDayVisit(v)
	case domain.Activity:
		c.putActivity(v)
	case *domain.Activity:
		if v != nil {
			c.putActivity(*v)
		}
	case domain.ScheduledActivity:
		c.putScheduled(v)
	case *domain.ScheduledActivity:
		if v != nil {
			c.putScheduled(*v)
		}
	case domain.CarRide:
		c.putRide(v)
	case *domain.CarRide:
		if v != nil {
			c.putRide(*v)
		}
	}
}

// Forget removes a deleted record, following the same cascade the service
// applies for users and activities.
func (c *Cache) Forget(entity domain.EntityType, id string) {
	switch entity {
	case domain.EntityUser:
		c.dropUser(id)
	case domain.EntityBooking:
		c.dropBooking(id)
	case domain.EntityDayVisit:
		c.dropDayVisit(id)
	case domain.EntityActivity:
		c.dropActivity(id)
	case domain.EntityScheduledActivity:
		c.dropScheduled(id)
	case domain.EntityCarRide:
		c.dropRide(id)
	}
}

func (c *Cache) update(fn func(doc *domain.Document)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.doc)
}

func replaceByID[T any](items []T, id func(T) string, next T) []T {
	for i := range items {
		if id(items[i]) == id(next) {
			items[i] = next
			return items
		}
	}
	return append(items, next)
}

func removeWhere[T any](items []T, drop func(T) bool) []T {
	out := items[:0:0]
	for _, item := range items {
		if !drop(item) {
			out = append(out, item)
		}
	}
	return out
}

func (c *Cache) putUser(u domain.User) {
	c.update(func(doc *domain.Document) {
		doc.Users = replaceByID(doc.Users, func(u domain.User) string { return u.ID }, domain.CloneUser(u))
	})
}

// dropUser mirrors the server-side cascade of a user deletion.
func (c *Cache) dropUser(id string) {
	c.update(func(doc *domain.Document) {
		doc.Users = removeWhere(doc.Users, func(u domain.User) bool { return u.ID == id })
		doc.Bookings = removeWhere(doc.Bookings, func(b domain.Booking) bool { return b.UserID == id })
		doc.DayVisits = removeWhere(doc.DayVisits, func(v domain.DayVisit) bool { return v.UserID == id })
		gone := make(map[string]bool)
		for _, a := range doc.Activities {
			if a.UserID == id {
				gone[a.ID] = true
			}
		}
		doc.Activities = removeWhere(doc.Activities, func(a domain.Activity) bool { return a.UserID == id })
		doc.ScheduledActivities = removeWhere(doc.ScheduledActivities, func(sa domain.ScheduledActivity) bool { return gone[sa.ActivityID] })
		for i := range doc.Activities {
			doc.Activities[i].Likes, _ = domain.RemoveString(doc.Activities[i].Likes, id)
		}
		doc.CarRides = removeWhere(doc.CarRides, func(r domain.CarRide) bool { return r.UserID == id })
		for i := range doc.CarRides {
			doc.CarRides[i].PassengersOutbound, _ = domain.RemoveString(doc.CarRides[i].PassengersOutbound, id)
			doc.CarRides[i].PassengersReturn, _ = domain.RemoveString(doc.CarRides[i].PassengersReturn, id)
		}
	})
}

func (c *Cache) putBooking(b domain.Booking) {
	c.update(func(doc *domain.Document) {
		doc.Bookings = replaceByID(doc.Bookings, func(b domain.Booking) string { return b.ID }, b)
	})
}

func (c *Cache) dropBooking(id string) {
	c.update(func(doc *domain.Document) {
		doc.Bookings = removeWhere(doc.Bookings, func(b domain.Booking) bool { return b.ID == id })
	})
}

func (c *Cache) putDayVisit(v domain.DayVisit) {
	c.update(func(doc *domain.Document) {
		doc.DayVisits = removeWhere(doc.DayVisits, func(existing domain.DayVisit) bool {
			return existing.UserID == v.UserID && existing.Date == v.Date && existing.Period == v.Period
		})
		doc.DayVisits = append(doc.DayVisits, v)
	})
}

func (c *Cache) dropDayVisit(id string) {
	c.update(func(doc *domain.Document) {
		doc.DayVisits = removeWhere(doc.DayVisits, func(v domain.DayVisit) bool { return v.ID == id })
	})
}

func (c *Cache) putActivity(a domain.Activity) {
	c.update(func(doc *domain.Document) {
		doc.Activities = replaceByID(doc.Activities, func(a domain.Activity) string { return a.ID }, domain.CloneActivity(a))
	})
}

func (c *Cache) dropActivity(id string) {
	c.update(func(doc *domain.Document) {
		doc.Activities = removeWhere(doc.Activities, func(a domain.Activity) bool { return a.ID == id })
		doc.ScheduledActivities = removeWhere(doc.ScheduledActivities, func(sa domain.ScheduledActivity) bool { return sa.ActivityID == id })
	})
}

func (c *Cache) putScheduled(sa domain.ScheduledActivity) {
	c.update(func(doc *domain.Document) {
		doc.ScheduledActivities = replaceByID(doc.ScheduledActivities, func(sa domain.ScheduledActivity) string { return sa.ID }, sa)
	})
}

func (c *Cache) dropScheduled(id string) {
	c.update(func(doc *domain.Document) {
		doc.ScheduledActivities = removeWhere(doc.ScheduledActivities, func(sa domain.ScheduledActivity) bool { return sa.ID == id })
	})
}

func (c *Cache) putRide(r domain.CarRide) {
	c.update(func(doc *domain.Document) {
		doc.CarRides = replaceByID(doc.CarRides, func(r domain.CarRide) string { return r.ID }, domain.CloneCarRide(r))
	})
}

func (c *Cache) dropRide(id string) {
	c.update(func(doc *domain.Document) {
		doc.CarRides = removeWhere(doc.CarRides, func(r domain.CarRide) bool { return r.ID == id })
	})
}
