package appstate

import (
	"cabincore/internal/core"
	"cabincore/pkg/domain"
)

// Snapshot returns a deep copy of every cached collection.
func (c *Cache) Snapshot() domain.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.Clone()
}

// UserByID returns the cached user with id.
func (c *Cache) UserByID(id string) (domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.doc.FindUser(id)
	if !ok {
		return domain.User{}, false
	}
	return domain.CloneUser(u), true
}

// BookingsForBed returns the bookings of bedID on night.
func (c *Cache) BookingsForBed(bedID, night string) []domain.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.BookingsFor(bedID, night)
}

// BookingsForUser returns every booking held by userID.
func (c *Cache) BookingsForUser(userID string) []domain.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Booking
	for _, b := range c.doc.Bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out
}

// AvailableSeats returns the free seats of bedID on night, or zero for an
// unknown bed.
func (c *Cache) AvailableSeats(bedID, night string) int {
	bed, ok := c.catalog.Bed(bedID)
	if !ok {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return core.AvailableSeats(c.doc, bed, night, "")
}

// UserBookingForNight returns the booking userID holds on night.
func (c *Cache) UserBookingForNight(userID, night string) (domain.Booking, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.UserBookingForNight(userID, night)
}

// DayVisitsForUser returns the presence declarations of userID.
func (c *Cache) DayVisitsForUser(userID string) []domain.DayVisit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.DayVisit
	for _, v := range c.doc.DayVisits {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out
}

// DayVisitsForDate returns the presence declarations for date.
func (c *Cache) DayVisitsForDate(date string) []domain.DayVisit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.DayVisit
	for _, v := range c.doc.DayVisits {
		if v.Date == date {
			out = append(out, v)
		}
	}
	return out
}

// ScheduledForActivity returns the calendar entries of activityID.
func (c *Cache) ScheduledForActivity(activityID string) []domain.ScheduledActivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.ScheduledActivity
	for _, sa := range c.doc.ScheduledActivities {
		if sa.ActivityID == activityID {
			out = append(out, sa)
		}
	}
	return out
}

// RidesForUser returns rides userID drives or rides on.
func (c *Cache) RidesForUser(userID string) []domain.CarRide {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.CarRide
	for _, r := range c.doc.CarRides {
		if r.UserID == userID || contains(r.PassengersOutbound, userID) || contains(r.PassengersReturn, userID) {
			out = append(out, domain.CloneCarRide(r))
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
