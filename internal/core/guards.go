package core

import (
	"strings"

	"cabincore/pkg/domain"
)

// GuardOneBookingPerNight rejects a booking for userID on night when the user
// already holds a booking for that night on any bed. excludeID skips the
// booking being edited.
func GuardOneBookingPerNight(doc domain.Document, userID, night, excludeID string) error {
	for _, b := range doc.Bookings {
		if b.ID == excludeID {
			continue
		}
		if b.UserID == userID && b.Night == night {
			return domain.NewGuardError(domain.CodeDuplicateNight, "you already have a booking for this night; cancel it before booking another bed")
		}
	}
	return nil
}

// GuardNoDuplicateBedClaim rejects a booking when userID already claimed a
// seat of bedID on night.
func GuardNoDuplicateBedClaim(doc domain.Document, userID, bedID, night, excludeID string) error {
	for _, b := range doc.Bookings {
		if b.ID == excludeID {
			continue
		}
		if b.UserID == userID && b.BedID == bedID && b.Night == night {
			return domain.NewGuardError(domain.CodeDuplicateBedClaim, "you already booked this bed for this night")
		}
	}
	return nil
}

// GuardBedCapacity rejects a booking when every seat of the bed is already
// taken on night.
func GuardBedCapacity(doc domain.Document, catalog domain.Catalog, bedID, night, excludeID string) error {
	bed, ok := catalog.Bed(bedID)
	if !ok {
		return domain.NewGuardError(domain.CodeInvalidInput, "unknown bed %q", bedID)
	}
	if AvailableSeats(doc, bed, night, excludeID) <= 0 {
		return domain.NewGuardError(domain.CodeBedFull, "no seats left on %s for this night", catalog.BedLabel(bedID))
	}
	return nil
}

// AvailableSeats returns the bed's capacity minus the bookings referencing it
// on night, never negative.
func AvailableSeats(doc domain.Document, bed domain.Bed, night, excludeID string) int {
	taken := 0
	for _, b := range doc.Bookings {
		if b.ID == excludeID {
			continue
		}
		if b.BedID == bed.ID && b.Night == night {
			taken++
		}
	}
	if free := bed.Capacity - taken; free > 0 {
		return free
	}
	return 0
}

// GuardRideJoin rejects joining a ride leg the user is already on or that has
// no free seats.
func GuardRideJoin(ride domain.CarRide, userID string, leg domain.Leg) error {
	if !leg.Valid() {
		return domain.NewGuardError(domain.CodeInvalidInput, "unknown ride leg %q", leg)
	}
	for _, id := range ride.Passengers(leg) {
		if id == userID {
			return domain.NewGuardError(domain.CodeRideAlreadyJoined, "you already joined this ride")
		}
	}
	if len(ride.Passengers(leg)) >= ride.Seats(leg) {
		return domain.NewGuardError(domain.CodeRideFull, "no seats available")
	}
	return nil
}

func validateBookingTarget(catalog domain.Catalog, bedID, night string) error {
	if _, ok := catalog.Bed(bedID); !ok {
		return domain.NewGuardError(domain.CodeInvalidInput, "unknown bed %q", bedID)
	}
	if !catalog.HasNight(night) {
		return domain.NewGuardError(domain.CodeInvalidInput, "night %q is not bookable", night)
	}
	return nil
}

func validateDayVisit(catalog domain.Catalog, date string, period domain.Period) error {
	if !catalog.HasDay(date) {
		return domain.NewGuardError(domain.CodeInvalidInput, "day %q is not part of the event", date)
	}
	if !period.Valid() {
		return domain.NewGuardError(domain.CodeInvalidInput, "unknown period %q", period)
	}
	return nil
}

func validateUser(u domain.User) error {
	if strings.TrimSpace(u.Nome) == "" || strings.TrimSpace(u.Cognome) == "" {
		return domain.NewGuardError(domain.CodeInvalidInput, "first and last name are required")
	}
	return nil
}

func validateActivity(a domain.Activity) error {
	if strings.TrimSpace(a.Title) == "" {
		return domain.NewGuardError(domain.CodeInvalidInput, "activity title is required")
	}
	return nil
}

func validateSchedule(catalog domain.Catalog, sa domain.ScheduledActivity) error {
	if !catalog.HasDay(sa.Date) {
		return domain.NewGuardError(domain.CodeInvalidInput, "day %q is not part of the event", sa.Date)
	}
	if !validClock(sa.Time) {
		return domain.NewGuardError(domain.CodeInvalidInput, "time %q must be HH:MM", sa.Time)
	}
	return nil
}

func validateRide(r domain.CarRide, before *domain.CarRide) error {
	if r.SeatsOutbound < 0 || r.SeatsReturn < 0 {
		return domain.NewGuardError(domain.CodeInvalidInput, "seat counts cannot be negative")
	}
	if r.DepartureDate == "" && r.ReturnDate == "" {
		return domain.NewGuardError(domain.CodeInvalidInput, "a ride needs an outbound or a return date")
	}
	for _, clock := range []string{r.DepartureTime, r.ReturnTime} {
		if clock != "" && !validClock(clock) {
			return domain.NewGuardError(domain.CodeInvalidInput, "time %q must be HH:MM", clock)
		}
	}
	return guardRideSeats(r, before)
}

// guardRideSeats rejects a leg holding more passengers than seats. When
// before is set, a leg that was already over is accepted as long as the
// overflow did not grow.
func guardRideSeats(r domain.CarRide, before *domain.CarRide) error {
	for _, leg := range []domain.Leg{domain.LegOutbound, domain.LegReturn} {
		overflow := len(r.Passengers(leg)) - r.Seats(leg)
		if overflow <= 0 {
			continue
		}
		if before != nil && overflow <= len(before.Passengers(leg))-before.Seats(leg) {
			continue
		}
		return domain.NewGuardError(domain.CodeRideFull, "%s leg has %d passengers but only %d seats", leg, len(r.Passengers(leg)), r.Seats(leg))
	}
	return nil
}

// validClock accepts 24h "HH:MM".
func validClock(v string) bool {
	if len(v) != 5 || v[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	h := int(v[0]-'0')*10 + int(v[1]-'0')
	m := int(v[3]-'0')*10 + int(v[4]-'0')
	return h < 24 && m < 60
}
