package core

import (
	"context"
	"fmt"

	"cabincore/pkg/domain"
)

// NewDefaultRulesEngine returns an engine with the document invariants
// registered.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewBedCapacityRule())
	engine.Register(NewBookingPerNightRule())
	engine.Register(NewRideCapacityRule())
	return engine
}

// NewBedCapacityRule blocks writes that place a booking on a bed and night
// already holding as many bookings as the bed has seats. Only the slots the
// changes move a booking into are inspected.
func NewBedCapacityRule() domain.Rule {
	return bedCapacityRule{}
}

type bedCapacityRule struct{}

func (bedCapacityRule) Name() string { return "bed_capacity" }

type bedSlot struct{ bed, night string }

func (bedCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := make(map[bedSlot]struct{})
	for _, b := range enteredBookings(changes, func(a, b domain.Booking) bool { return a.BedID == b.BedID && a.Night == b.Night }) {
		touched[bedSlot{b.BedID, b.Night}] = struct{}{}
	}
	if len(touched) == 0 {
		return res, nil
	}
	occupancy := make(map[bedSlot]int, len(touched))
	for _, b := range view.ListBookings() {
		if _, ok := touched[bedSlot{b.BedID, b.Night}]; ok {
			occupancy[bedSlot{b.BedID, b.Night}]++
		}
	}
	catalog := view.Catalog()
	for slot := range touched {
		bed, ok := catalog.Bed(slot.bed)
		if !ok {
			continue
		}
		if count := occupancy[slot]; count > bed.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "bed_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("bed %s over capacity on %s: %d/%d", slot.bed, slot.night, count, bed.Capacity),
				Entity:   domain.EntityBooking,
				EntityID: slot.bed,
			})
		}
	}
	return res, nil
}

// NewBookingPerNightRule blocks writes that give a user a second booking for
// the same night.
func NewBookingPerNightRule() domain.Rule {
	return bookingPerNightRule{}
}

type bookingPerNightRule struct{}

func (bookingPerNightRule) Name() string { return "booking_per_night" }

func (bookingPerNightRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := make(map[[2]string]struct{})
	for _, b := range enteredBookings(changes, func(a, b domain.Booking) bool { return a.UserID == b.UserID && a.Night == b.Night }) {
		touched[[2]string{b.UserID, b.Night}] = struct{}{}
	}
	if len(touched) == 0 {
		return res, nil
	}
	seen := make(map[[2]string]string)
	for _, b := range view.ListBookings() {
		key := [2]string{b.UserID, b.Night}
		if _, ok := touched[key]; !ok {
			continue
		}
		if first, dup := seen[key]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "booking_per_night",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("user %s holds bookings %s and %s on %s", b.UserID, first, b.ID, b.Night),
				Entity:   domain.EntityBooking,
				EntityID: b.ID,
			})
			continue
		}
		seen[key] = b.ID
	}
	return res, nil
}

// enteredBookings returns the bookings created by changes or updated so that
// sameSlot no longer holds between before and after. Deletes enter nothing.
func enteredBookings(changes []domain.Change, sameSlot func(a, b domain.Booking) bool) []domain.Booking {
	var out []domain.Booking
	for _, c := range changes {
		if c.Entity != domain.EntityBooking {
			continue
		}
		after, ok := c.After.(domain.Booking)
		if !ok {
			continue
		}
		if before, ok := c.Before.(domain.Booking); ok && sameSlot(before, after) {
			continue
		}
		out = append(out, after)
	}
	return out
}

// NewRideCapacityRule blocks ride writes that push a leg further over its
// seats or list a passenger twice more than before, and warns about
// passengers unknown to the document. Rides the changes leave untouched are
// not inspected.
func NewRideCapacityRule() domain.Rule {
	return rideCapacityRule{}
}

type rideCapacityRule struct{}

func (rideCapacityRule) Name() string { return "ride_capacity" }

func (rideCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		if c.Entity != domain.EntityCarRide {
			continue
		}
		ride, ok := c.After.(domain.CarRide)
		if !ok {
			continue
		}
		before, hadBefore := c.Before.(domain.CarRide)
		for _, leg := range []domain.Leg{domain.LegOutbound, domain.LegReturn} {
			passengers := ride.Passengers(leg)
			overflow, dups := legProblems(ride, leg)
			var prevOverflow, prevDups int
			if hadBefore {
				prevOverflow, prevDups = legProblems(before, leg)
			}
			if overflow > 0 && overflow > prevOverflow {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "ride_capacity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("ride %s %s leg over capacity: %d/%d", ride.ID, leg, len(passengers), ride.Seats(leg)),
					Entity:   domain.EntityCarRide,
					EntityID: ride.ID,
				})
			}
			if dups > prevDups {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "ride_capacity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("ride %s lists a passenger twice on the %s leg", ride.ID, leg),
					Entity:   domain.EntityCarRide,
					EntityID: ride.ID,
				})
			}
			for _, id := range passengers {
				if _, ok := view.FindUser(id); !ok {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "ride_capacity",
						Severity: domain.SeverityWarn,
						Message:  fmt.Sprintf("ride %s lists unknown passenger %s", ride.ID, id),
						Entity:   domain.EntityCarRide,
						EntityID: ride.ID,
					})
				}
			}
		}
	}
	return res, nil
}

// legProblems reports how many passengers exceed the seats of leg and how
// many entries repeat an earlier one.
func legProblems(ride domain.CarRide, leg domain.Leg) (overflow, dups int) {
	passengers := ride.Passengers(leg)
	overflow = len(passengers) - ride.Seats(leg)
	seen := make(map[string]struct{}, len(passengers))
	for _, id := range passengers {
		if _, dup := seen[id]; dup {
			dups++
		}
		seen[id] = struct{}{}
	}
	return overflow, dups
}
