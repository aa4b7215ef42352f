package core

import (
	"fmt"
	"strings"

	"cabincore/pkg/domain"
)

func (tx *Transaction) assignID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return tx.newID()
}

// CreateUser stores a new user.
func (tx *Transaction) CreateUser(u domain.User) (domain.User, error) {
	u.Nome = strings.TrimSpace(u.Nome)
	u.Cognome = strings.TrimSpace(u.Cognome)
	if err := validateUser(u); err != nil {
		return domain.User{}, err
	}
	u.ID = tx.assignID(u.ID)
	if _, exists := tx.doc.FindUser(u.ID); exists {
		return domain.User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	u.CreatedAt = tx.now
	tx.doc.Users = append(tx.doc.Users, domain.CloneUser(u))
	tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: domain.CloneUser(u)})
	return u, nil
}

// UpdateUser applies mutator to the user with id. A missing user yields nil
// and no change.
func (tx *Transaction) UpdateUser(id string, mutator func(*domain.User) error) (*domain.User, error) {
	for i := range tx.doc.Users {
		if tx.doc.Users[i].ID != id {
			continue
		}
		before := domain.CloneUser(tx.doc.Users[i])
		updated := domain.CloneUser(before)
		if err := mutator(&updated); err != nil {
			return nil, err
		}
		updated.ID = before.ID
		updated.CreatedAt = before.CreatedAt
		if err := validateUser(updated); err != nil {
			return nil, err
		}
		tx.doc.Users[i] = updated
		tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: domain.CloneUser(updated)})
		return &updated, nil
	}
	return nil, nil
}

// DeleteUser removes the user with id and everything that references it:
// bookings, day visits, proposed activities with their calendar entries,
// likes, rides driven and seats taken on other rides.
func (tx *Transaction) DeleteUser(id string) (bool, error) {
	user, ok := tx.doc.FindUser(id)
	if !ok {
		return false, nil
	}
	tx.doc.Users = filter(tx.doc.Users, func(u domain.User) bool { return u.ID != id })

	tx.doc.Bookings = filterRecorded(tx, tx.doc.Bookings, domain.EntityBooking, func(b domain.Booking) bool { return b.UserID != id })
	tx.doc.DayVisits = filterRecorded(tx, tx.doc.DayVisits, domain.EntityDayVisit, func(v domain.DayVisit) bool { return v.UserID != id })

	removedActivities := make(map[string]struct{})
	for _, a := range tx.doc.Activities {
		if a.UserID == id {
			removedActivities[a.ID] = struct{}{}
		}
	}
	tx.doc.Activities = filterRecorded(tx, tx.doc.Activities, domain.EntityActivity, func(a domain.Activity) bool { return a.UserID != id })
	tx.doc.ScheduledActivities = filterRecorded(tx, tx.doc.ScheduledActivities, domain.EntityScheduledActivity, func(sa domain.ScheduledActivity) bool {
		_, gone := removedActivities[sa.ActivityID]
		return !gone
	})
	for i := range tx.doc.Activities {
		likes, removed := domain.RemoveString(tx.doc.Activities[i].Likes, id)
		if !removed {
			continue
		}
		before := domain.CloneActivity(tx.doc.Activities[i])
		tx.doc.Activities[i].Likes = likes
		tx.recordChange(domain.Change{Entity: domain.EntityActivity, Action: domain.ActionUpdate, Before: before, After: domain.CloneActivity(tx.doc.Activities[i])})
	}

	tx.doc.CarRides = filterRecorded(tx, tx.doc.CarRides, domain.EntityCarRide, func(r domain.CarRide) bool { return r.UserID != id })
	for i := range tx.doc.CarRides {
		ride := &tx.doc.CarRides[i]
		before := domain.CloneCarRide(*ride)
		out, removedOut := domain.RemoveString(ride.PassengersOutbound, id)
		ret, removedRet := domain.RemoveString(ride.PassengersReturn, id)
		if !removedOut && !removedRet {
			continue
		}
		ride.PassengersOutbound = out
		ride.PassengersReturn = ret
		tx.recordChange(domain.Change{Entity: domain.EntityCarRide, Action: domain.ActionUpdate, Before: before, After: domain.CloneCarRide(*ride)})
	}

	tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: user})
	return true, nil
}

// CreateBooking claims one seat of a bed for one night after running the
// booking guards.
func (tx *Transaction) CreateBooking(b domain.Booking) (domain.Booking, error) {
	if err := validateBookingTarget(tx.catalog, b.BedID, b.Night); err != nil {
		return domain.Booking{}, err
	}
	if _, ok := tx.doc.FindUser(b.UserID); !ok {
		return domain.Booking{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: b.UserID}
	}
	if err := tx.guardBooking(b, nil); err != nil {
		return domain.Booking{}, err
	}
	b.ID = tx.assignID(b.ID)
	b.CreatedAt = tx.now
	tx.doc.Bookings = append(tx.doc.Bookings, b)
	tx.recordChange(domain.Change{Entity: domain.EntityBooking, Action: domain.ActionCreate, After: b})
	return b, nil
}

// guardBooking runs the booking guards for b. For an update, before is the
// stored booking and guards whose slot did not change are skipped.
func (tx *Transaction) guardBooking(b domain.Booking, before *domain.Booking) error {
	excludeID := ""
	sameNight, sameBed := false, false
	if before != nil {
		excludeID = before.ID
		sameNight = before.UserID == b.UserID && before.Night == b.Night
		sameBed = before.BedID == b.BedID && before.Night == b.Night
	}
	if !sameNight {
		if err := GuardOneBookingPerNight(tx.doc, b.UserID, b.Night, excludeID); err != nil {
			return err
		}
	}
	if !sameNight || !sameBed {
		if err := GuardNoDuplicateBedClaim(tx.doc, b.UserID, b.BedID, b.Night, excludeID); err != nil {
			return err
		}
	}
	if sameBed {
		return nil
	}
	return GuardBedCapacity(tx.doc, tx.catalog, b.BedID, b.Night, excludeID)
}

// UpdateBooking applies mutator to the booking with id and re-runs the
// booking guards against the other bookings.
func (tx *Transaction) UpdateBooking(id string, mutator func(*domain.Booking) error) (*domain.Booking, error) {
	for i := range tx.doc.Bookings {
		if tx.doc.Bookings[i].ID != id {
			continue
		}
		before := tx.doc.Bookings[i]
		updated := before
		if err := mutator(&updated); err != nil {
			return nil, err
		}
		updated.ID = before.ID
		updated.CreatedAt = before.CreatedAt
		if updated == before {
			return &updated, nil
		}
		if err := validateBookingTarget(tx.catalog, updated.BedID, updated.Night); err != nil {
			return nil, err
		}
		if _, ok := tx.doc.FindUser(updated.UserID); !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntityUser, ID: updated.UserID}
		}
		if err := tx.guardBooking(updated, &before); err != nil {
			return nil, err
		}
		tx.doc.Bookings[i] = updated
		tx.recordChange(domain.Change{Entity: domain.EntityBooking, Action: domain.ActionUpdate, Before: before, After: updated})
		return &updated, nil
	}
	return nil, nil
}

// DeleteBooking removes the booking with id.
func (tx *Transaction) DeleteBooking(id string) bool {
	before := len(tx.doc.Bookings)
	tx.doc.Bookings = filterRecorded(tx, tx.doc.Bookings, domain.EntityBooking, func(b domain.Booking) bool { return b.ID != id })
	return len(tx.doc.Bookings) != before
}

// PutDayVisit records presence for (user, date, period), replacing any
// record for the same triple.
func (tx *Transaction) PutDayVisit(v domain.DayVisit) (domain.DayVisit, error) {
	if err := validateDayVisit(tx.catalog, v.Date, v.Period); err != nil {
		return domain.DayVisit{}, err
	}
	if _, ok := tx.doc.FindUser(v.UserID); !ok {
		return domain.DayVisit{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: v.UserID}
	}
	tx.doc.DayVisits = filterRecorded(tx, tx.doc.DayVisits, domain.EntityDayVisit, func(existing domain.DayVisit) bool {
		return !(existing.UserID == v.UserID && existing.Date == v.Date && existing.Period == v.Period)
	})
	v.ID = tx.newID()
	v.CreatedAt = tx.now
	tx.doc.DayVisits = append(tx.doc.DayVisits, v)
	tx.recordChange(domain.Change{Entity: domain.EntityDayVisit, Action: domain.ActionCreate, After: v})
	return v, nil
}

// DeleteDayVisit removes the day visit with id.
func (tx *Transaction) DeleteDayVisit(id string) bool {
	before := len(tx.doc.DayVisits)
	tx.doc.DayVisits = filterRecorded(tx, tx.doc.DayVisits, domain.EntityDayVisit, func(v domain.DayVisit) bool { return v.ID != id })
	return len(tx.doc.DayVisits) != before
}

// CreateActivity stores a proposed activity with an empty like set.
func (tx *Transaction) CreateActivity(a domain.Activity) (domain.Activity, error) {
	a.Title = strings.TrimSpace(a.Title)
	a.Description = strings.TrimSpace(a.Description)
	if err := validateActivity(a); err != nil {
		return domain.Activity{}, err
	}
	if _, ok := tx.doc.FindUser(a.UserID); !ok {
		return domain.Activity{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: a.UserID}
	}
	a.ID = tx.assignID(a.ID)
	a.Likes = []string{}
	a.CreatedAt = tx.now
	tx.doc.Activities = append(tx.doc.Activities, domain.CloneActivity(a))
	tx.recordChange(domain.Change{Entity: domain.EntityActivity, Action: domain.ActionCreate, After: domain.CloneActivity(a)})
	return a, nil
}

// UpdateActivity applies mutator to the activity with id.
func (tx *Transaction) UpdateActivity(id string, mutator func(*domain.Activity) error) (*domain.Activity, error) {
	for i := range tx.doc.Activities {
		if tx.doc.Activities[i].ID != id {
			continue
		}
		before := domain.CloneActivity(tx.doc.Activities[i])
		updated := domain.CloneActivity(before)
		if err := mutator(&updated); err != nil {
			return nil, err
		}
		updated.ID = before.ID
		updated.CreatedAt = before.CreatedAt
		if updated.Likes == nil {
			updated.Likes = []string{}
		}
		if err := validateActivity(updated); err != nil {
			return nil, err
		}
		tx.doc.Activities[i] = updated
		tx.recordChange(domain.Change{Entity: domain.EntityActivity, Action: domain.ActionUpdate, Before: before, After: domain.CloneActivity(updated)})
		out := domain.CloneActivity(updated)
		return &out, nil
	}
	return nil, nil
}

// ToggleLike adds userID to the like set of the activity or removes it when
// already present.
func (tx *Transaction) ToggleLike(id, userID string) (*domain.Activity, error) {
	return tx.UpdateActivity(id, func(a *domain.Activity) error {
		likes, removed := domain.RemoveString(a.Likes, userID)
		if !removed {
			likes = append(likes, userID)
		}
		a.Likes = likes
		return nil
	})
}

// DeleteActivity removes the activity with id and its calendar entries.
func (tx *Transaction) DeleteActivity(id string) bool {
	before := len(tx.doc.Activities)
	tx.doc.Activities = filterRecorded(tx, tx.doc.Activities, domain.EntityActivity, func(a domain.Activity) bool { return a.ID != id })
	if len(tx.doc.Activities) == before {
		return false
	}
	tx.doc.ScheduledActivities = filterRecorded(tx, tx.doc.ScheduledActivities, domain.EntityScheduledActivity, func(sa domain.ScheduledActivity) bool { return sa.ActivityID != id })
	return true
}

// CreateScheduledActivity places an existing activity on the calendar.
func (tx *Transaction) CreateScheduledActivity(sa domain.ScheduledActivity) (domain.ScheduledActivity, error) {
	if _, ok := tx.doc.FindActivity(sa.ActivityID); !ok {
		return domain.ScheduledActivity{}, domain.ErrNotFound{Entity: domain.EntityActivity, ID: sa.ActivityID}
	}
	if err := validateSchedule(tx.catalog, sa); err != nil {
		return domain.ScheduledActivity{}, err
	}
	sa.ID = tx.assignID(sa.ID)
	sa.CreatedAt = tx.now
	tx.doc.ScheduledActivities = append(tx.doc.ScheduledActivities, sa)
	tx.recordChange(domain.Change{Entity: domain.EntityScheduledActivity, Action: domain.ActionCreate, After: sa})
	return sa, nil
}

// UpdateScheduledActivity applies mutator to the calendar entry with id.
func (tx *Transaction) UpdateScheduledActivity(id string, mutator func(*domain.ScheduledActivity) error) (*domain.ScheduledActivity, error) {
	for i := range tx.doc.ScheduledActivities {
		if tx.doc.ScheduledActivities[i].ID != id {
			continue
		}
		before := tx.doc.ScheduledActivities[i]
		updated := before
		if err := mutator(&updated); err != nil {
			return nil, err
		}
		updated.ID = before.ID
		updated.CreatedAt = before.CreatedAt
		if _, ok := tx.doc.FindActivity(updated.ActivityID); !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntityActivity, ID: updated.ActivityID}
		}
		if err := validateSchedule(tx.catalog, updated); err != nil {
			return nil, err
		}
		tx.doc.ScheduledActivities[i] = updated
		tx.recordChange(domain.Change{Entity: domain.EntityScheduledActivity, Action: domain.ActionUpdate, Before: before, After: updated})
		return &updated, nil
	}
	return nil, nil
}

// DeleteScheduledActivity removes the calendar entry with id.
func (tx *Transaction) DeleteScheduledActivity(id string) bool {
	before := len(tx.doc.ScheduledActivities)
	tx.doc.ScheduledActivities = filterRecorded(tx, tx.doc.ScheduledActivities, domain.EntityScheduledActivity, func(sa domain.ScheduledActivity) bool { return sa.ID != id })
	return len(tx.doc.ScheduledActivities) != before
}

// CreateCarRide stores a ride offer with empty passenger lists.
func (tx *Transaction) CreateCarRide(r domain.CarRide) (domain.CarRide, error) {
	r.PassengersOutbound = []string{}
	r.PassengersReturn = []string{}
	if err := validateRide(r, nil); err != nil {
		return domain.CarRide{}, err
	}
	if _, ok := tx.doc.FindUser(r.UserID); !ok {
		return domain.CarRide{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: r.UserID}
	}
	r.ID = tx.assignID(r.ID)
	r.CreatedAt = tx.now
	tx.doc.CarRides = append(tx.doc.CarRides, domain.CloneCarRide(r))
	tx.recordChange(domain.Change{Entity: domain.EntityCarRide, Action: domain.ActionCreate, After: domain.CloneCarRide(r)})
	return r, nil
}

// UpdateCarRide applies mutator to the ride with id. Seat counts may not drop
// below the passengers on a leg unless that leg was already over and got no
// fuller.
func (tx *Transaction) UpdateCarRide(id string, mutator func(*domain.CarRide) error) (*domain.CarRide, error) {
	for i := range tx.doc.CarRides {
		if tx.doc.CarRides[i].ID != id {
			continue
		}
		before := domain.CloneCarRide(tx.doc.CarRides[i])
		updated := domain.CloneCarRide(before)
		if err := mutator(&updated); err != nil {
			return nil, err
		}
		updated.ID = before.ID
		updated.CreatedAt = before.CreatedAt
		if updated.PassengersOutbound == nil {
			updated.PassengersOutbound = []string{}
		}
		if updated.PassengersReturn == nil {
			updated.PassengersReturn = []string{}
		}
		if err := validateRide(updated, &before); err != nil {
			return nil, err
		}
		tx.doc.CarRides[i] = updated
		tx.recordChange(domain.Change{Entity: domain.EntityCarRide, Action: domain.ActionUpdate, Before: before, After: domain.CloneCarRide(updated)})
		out := domain.CloneCarRide(updated)
		return &out, nil
	}
	return nil, nil
}

// JoinRide adds userID to the passenger list of leg.
func (tx *Transaction) JoinRide(id, userID string, leg domain.Leg) (*domain.CarRide, error) {
	if !leg.Valid() {
		return nil, domain.NewGuardError(domain.CodeInvalidInput, "unknown ride leg %q", leg)
	}
	return tx.UpdateCarRide(id, func(r *domain.CarRide) error {
		if err := GuardRideJoin(*r, userID, leg); err != nil {
			return err
		}
		r.SetPassengers(leg, append(r.Passengers(leg), userID))
		return nil
	})
}

// LeaveRide removes userID from the passenger list of leg. Leaving a leg the
// user is not on changes nothing.
func (tx *Transaction) LeaveRide(id, userID string, leg domain.Leg) (*domain.CarRide, error) {
	if !leg.Valid() {
		return nil, domain.NewGuardError(domain.CodeInvalidInput, "unknown ride leg %q", leg)
	}
	ride, ok := tx.View().FindCarRide(id)
	if !ok {
		return nil, nil
	}
	if _, on := domain.RemoveString(ride.Passengers(leg), userID); !on {
		return &ride, nil
	}
	return tx.UpdateCarRide(id, func(r *domain.CarRide) error {
		passengers, _ := domain.RemoveString(r.Passengers(leg), userID)
		r.SetPassengers(leg, passengers)
		return nil
	})
}

// DeleteCarRide removes the ride with id.
func (tx *Transaction) DeleteCarRide(id string) bool {
	before := len(tx.doc.CarRides)
	tx.doc.CarRides = filterRecorded(tx, tx.doc.CarRides, domain.EntityCarRide, func(r domain.CarRide) bool { return r.ID != id })
	return len(tx.doc.CarRides) != before
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// filterRecorded drops the items keep rejects and records a delete change for
// each of them.
func filterRecorded[T any](tx *Transaction, items []T, entity domain.EntityType, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
			continue
		}
		tx.recordChange(domain.Change{Entity: entity, Action: domain.ActionDelete, Before: item})
	}
	return out
}
