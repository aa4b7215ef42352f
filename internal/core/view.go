package core

import "cabincore/pkg/domain"

// TransactionView exposes a read-only snapshot of the document to rules and
// service reads. Returned records are copies.
type TransactionView struct {
	doc     *domain.Document
	catalog domain.Catalog
}

func newTransactionView(doc *domain.Document, catalog domain.Catalog) TransactionView {
	return TransactionView{doc: doc, catalog: catalog}
}

// Catalog returns the static catalog.
func (v TransactionView) Catalog() domain.Catalog { return v.catalog }

// Document returns a deep copy of the whole document.
func (v TransactionView) Document() domain.Document { return v.doc.Clone() }

// ListUsers returns all users.
func (v TransactionView) ListUsers() []domain.User {
	out := make([]domain.User, 0, len(v.doc.Users))
	for _, u := range v.doc.Users {
		out = append(out, domain.CloneUser(u))
	}
	return out
}

// ListBookings returns all bookings.
func (v TransactionView) ListBookings() []domain.Booking {
	return append([]domain.Booking{}, v.doc.Bookings...)
}

// ListDayVisits returns all day visits.
func (v TransactionView) ListDayVisits() []domain.DayVisit {
	return append([]domain.DayVisit{}, v.doc.DayVisits...)
}

// ListActivities returns all activities.
func (v TransactionView) ListActivities() []domain.Activity {
	out := make([]domain.Activity, 0, len(v.doc.Activities))
	for _, a := range v.doc.Activities {
		out = append(out, domain.CloneActivity(a))
	}
	return out
}

// ListScheduledActivities returns all calendar entries.
func (v TransactionView) ListScheduledActivities() []domain.ScheduledActivity {
	return append([]domain.ScheduledActivity{}, v.doc.ScheduledActivities...)
}

// ListCarRides returns all car rides.
func (v TransactionView) ListCarRides() []domain.CarRide {
	out := make([]domain.CarRide, 0, len(v.doc.CarRides))
	for _, r := range v.doc.CarRides {
		out = append(out, domain.CloneCarRide(r))
	}
	return out
}

// FindUser returns the user with id.
func (v TransactionView) FindUser(id string) (domain.User, bool) {
	u, ok := v.doc.FindUser(id)
	if !ok {
		return domain.User{}, false
	}
	return domain.CloneUser(u), true
}

// FindBooking returns the booking with id.
func (v TransactionView) FindBooking(id string) (domain.Booking, bool) {
	for _, b := range v.doc.Bookings {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Booking{}, false
}

// FindDayVisit returns the day visit with id.
func (v TransactionView) FindDayVisit(id string) (domain.DayVisit, bool) {
	for _, dv := range v.doc.DayVisits {
		if dv.ID == id {
			return dv, true
		}
	}
	return domain.DayVisit{}, false
}

// FindActivity returns the activity with id.
func (v TransactionView) FindActivity(id string) (domain.Activity, bool) {
	a, ok := v.doc.FindActivity(id)
	if !ok {
		return domain.Activity{}, false
	}
	return domain.CloneActivity(a), true
}

// FindScheduledActivity returns the calendar entry with id.
func (v TransactionView) FindScheduledActivity(id string) (domain.ScheduledActivity, bool) {
	for _, sa := range v.doc.ScheduledActivities {
		if sa.ID == id {
			return sa, true
		}
	}
	return domain.ScheduledActivity{}, false
}

// FindCarRide returns the ride with id.
func (v TransactionView) FindCarRide(id string) (domain.CarRide, bool) {
	for _, r := range v.doc.CarRides {
		if r.ID == id {
			return domain.CloneCarRide(r), true
		}
	}
	return domain.CarRide{}, false
}
