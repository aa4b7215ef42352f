// Package domain defines the persisted records of the shared event document,
// the static cabin catalog, and the rule evaluation primitives used by cabincore.
package domain

import "time"

// EntityType identifies the collection a record belongs to.
type EntityType string

// Collections stored in the shared document.
const (
	EntityUser              EntityType = "user"
	EntityBooking           EntityType = "booking"
	EntityDayVisit          EntityType = "day_visit"
	EntityActivity          EntityType = "activity"
	EntityScheduledActivity EntityType = "scheduled_activity"
	EntityCarRide           EntityType = "car_ride"
)

// Action captures the type of mutation recorded in a Change.
type Action string

// Mutation kinds recorded by transactions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a single mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Period is one of the three daily segments used for presence declarations.
type Period string

// Daily segments, identified by the values stored in existing documents.
const (
	PeriodMorning   Period = "mattina"
	PeriodAfternoon Period = "pomeriggio"
	PeriodEvening   Period = "sera"
)

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening:
		return true
	default:
		return false
	}
}

// Leg is one direction of a shared car ride.
type Leg string

// Ride directions.
const (
	LegOutbound Leg = "outbound"
	LegReturn   Leg = "return"
)

// Valid reports whether l names a known leg.
func (l Leg) Valid() bool {
	return l == LegOutbound || l == LegReturn
}

// User is a registered guest. Nome and Cognome keep the field names used by
// the stored document.
type User struct {
	ID         string    `json:"id"`
	Nome       string    `json:"nome"`
	Cognome    string    `json:"cognome"`
	AvatarType string    `json:"avatarType"`
	AvatarID   string    `json:"avatarId"`
	IsAdmin    bool      `json:"isAdmin"`
	Email      *string   `json:"email,omitempty"`
	Telefono   *string   `json:"telefono,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DisplayName joins given and family name.
func (u User) DisplayName() string {
	switch {
	case u.Nome == "":
		return u.Cognome
	case u.Cognome == "":
		return u.Nome
	default:
		return u.Nome + " " + u.Cognome
	}
}

// Booking claims one seat of a bed for one night.
type Booking struct {
	ID        string    `json:"id"`
	BedID     string    `json:"bedId"`
	Night     string    `json:"night"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// DayVisit declares daytime presence of a user for one date and period.
type DayVisit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Date      string    `json:"date"`
	Period    Period    `json:"period"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity is a group activity proposed by a user. Likes holds user ids with
// set semantics.
type Activity struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	UserID      string    `json:"userId"`
	Likes       []string  `json:"likes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LikedBy reports whether userID is in the like set.
func (a Activity) LikedBy(userID string) bool {
	return containsString(a.Likes, userID)
}

// ScheduledActivity places a proposed activity on the calendar.
type ScheduledActivity struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activityId"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CarRide is a shared ride offered by a driver, with independent outbound and
// return legs.
type CarRide struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	DepartureDate      string    `json:"departureDate"`
	DepartureTime      string    `json:"departureTime"`
	DepartureTimeEnd   *string   `json:"departureTimeEnd"`
	SeatsOutbound      int       `json:"seatsOutbound"`
	PassengersOutbound []string  `json:"passengersOutbound"`
	ReturnDate         string    `json:"returnDate"`
	ReturnTime         string    `json:"returnTime"`
	ReturnTimeEnd      *string   `json:"returnTimeEnd"`
	SeatsReturn        int       `json:"seatsReturn"`
	PassengersReturn   []string  `json:"passengersReturn"`
	StartingPoint      string    `json:"startingPoint,omitempty"`
	Note               string    `json:"note,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Seats returns the seat count for the leg.
func (r CarRide) Seats(leg Leg) int {
	if leg == LegReturn {
		return r.SeatsReturn
	}
	return r.SeatsOutbound
}

// Passengers returns the passenger ids for the leg.
func (r CarRide) Passengers(leg Leg) []string {
	if leg == LegReturn {
		return r.PassengersReturn
	}
	return r.PassengersOutbound
}

// SetPassengers replaces the passenger list of the leg.
func (r *CarRide) SetPassengers(leg Leg, ids []string) {
	if leg == LegReturn {
		r.PassengersReturn = ids
		return
	}
	r.PassengersOutbound = ids
}

// FreeSeats returns remaining capacity on the leg, never negative.
func (r CarRide) FreeSeats(leg Leg) int {
	free := r.Seats(leg) - len(r.Passengers(leg))
	if free < 0 {
		return 0
	}
	return free
}

// Document is the whole persisted dataset. It is always read and written in
// full.
type Document struct {
	Users               []User              `json:"users"`
	Bookings            []Booking           `json:"bookings"`
	DayVisits           []DayVisit          `json:"dayVisits"`
	Activities          []Activity          `json:"activities"`
	ScheduledActivities []ScheduledActivity `json:"scheduledActivities"`
	CarRides            []CarRide           `json:"carRides"`
}

// Normalize replaces missing collections and list fields with empty slices so
// documents written by older clients behave like empty collections.
func (d *Document) Normalize() {
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.Bookings == nil {
		d.Bookings = []Booking{}
	}
	if d.DayVisits == nil {
		d.DayVisits = []DayVisit{}
	}
	if d.Activities == nil {
		d.Activities = []Activity{}
	}
	if d.ScheduledActivities == nil {
		d.ScheduledActivities = []ScheduledActivity{}
	}
	if d.CarRides == nil {
		d.CarRides = []CarRide{}
	}
	for i := range d.Activities {
		if d.Activities[i].Likes == nil {
			d.Activities[i].Likes = []string{}
		}
	}
	for i := range d.CarRides {
		if d.CarRides[i].PassengersOutbound == nil {
			d.CarRides[i].PassengersOutbound = []string{}
		}
		if d.CarRides[i].PassengersReturn == nil {
			d.CarRides[i].PassengersReturn = []string{}
		}
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		Users:               append([]User(nil), d.Users...),
		Bookings:            append([]Booking(nil), d.Bookings...),
		DayVisits:           append([]DayVisit(nil), d.DayVisits...),
		Activities:          make([]Activity, len(d.Activities)),
		ScheduledActivities: append([]ScheduledActivity(nil), d.ScheduledActivities...),
		CarRides:            make([]CarRide, len(d.CarRides)),
	}
	for i, u := range out.Users {
		out.Users[i] = CloneUser(u)
	}
	for i, a := range d.Activities {
		out.Activities[i] = CloneActivity(a)
	}
	for i, r := range d.CarRides {
		out.CarRides[i] = CloneCarRide(r)
	}
	out.Normalize()
	return out
}

// CloneUser copies optional contact fields.
func CloneUser(u User) User {
	cp := u
	if u.Email != nil {
		v := *u.Email
		cp.Email = &v
	}
	if u.Telefono != nil {
		v := *u.Telefono
		cp.Telefono = &v
	}
	return cp
}

// CloneActivity copies the like set.
func CloneActivity(a Activity) Activity {
	cp := a
	cp.Likes = append([]string{}, a.Likes...)
	return cp
}

// CloneCarRide copies passenger lists and optional time windows.
func CloneCarRide(r CarRide) CarRide {
	cp := r
	cp.PassengersOutbound = append([]string{}, r.PassengersOutbound...)
	cp.PassengersReturn = append([]string{}, r.PassengersReturn...)
	if r.DepartureTimeEnd != nil {
		v := *r.DepartureTimeEnd
		cp.DepartureTimeEnd = &v
	}
	if r.ReturnTimeEnd != nil {
		v := *r.ReturnTimeEnd
		cp.ReturnTimeEnd = &v
	}
	return cp
}

// FindUser returns the user with the given id.
func (d Document) FindUser(id string) (User, bool) {
	for _, u := range d.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// FindActivity returns the activity with the given id.
func (d Document) FindActivity(id string) (Activity, bool) {
	for _, a := range d.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

// BookingsFor returns bookings referencing bed on night.
func (d Document) BookingsFor(bedID, night string) []Booking {
	var out []Booking
	for _, b := range d.Bookings {
		if b.BedID == bedID && b.Night == night {
			out = append(out, b)
		}
	}
	return out
}

// UserBookingForNight returns the booking held by userID for night, if any.
func (d Document) UserBookingForNight(userID, night string) (Booking, bool) {
	for _, b := range d.Bookings {
		if b.UserID == userID && b.Night == night {
			return b, true
		}
	}
	return Booking{}, false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// RemoveString returns values without any occurrence of v and whether
// something was removed.
func RemoveString(values []string, v string) ([]string, bool) {
	out := make([]string, 0, len(values))
	removed := false
	for _, s := range values {
		if s == v {
			removed = true
			continue
		}
		out = append(out, s)
	}
	return out, removed
}
