package appstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cabincore/internal/core"
	"cabincore/pkg/domain"
)

// ErrNotLoggedIn is returned by mutations issued without a current user.
var ErrNotLoggedIn = fmt.Errorf("%w: login required", domain.ErrForbidden)

// ErrUnknownUser is returned by Login for ids missing from the cache.
var ErrUnknownUser = errors.New("unknown user")

// Session binds a current user to the service and keeps the cache in step
// with the mutations it performs. The cache is patched only after the
// service reports success.
type Session struct {
	svc   *core.Service
	cache *Cache

	mu      sync.RWMutex
	current *domain.User
}

// NewSession creates a logged-out session.
func NewSession(svc *core.Service, cache *Cache) *Session {
	return &Session{svc: svc, cache: cache}
}

// Cache returns the state cache backing the session.
func (s *Session) Cache() *Cache { return s.cache }

// Login selects an existing user as the current user.
func (s *Session) Login(userID string) (domain.User, error) {
	u, ok := s.cache.UserByID(userID)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	s.setCurrent(&u)
	return u, nil
}

// Logout clears the current user.
func (s *Session) Logout() { s.setCurrent(nil) }

// CurrentUser returns the logged-in user.
func (s *Session) CurrentUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.User{}, false
	}
	return domain.CloneUser(*s.current), true
}

// IsAdmin reports whether the current user is an administrator.
func (s *Session) IsAdmin() bool {
	u, ok := s.CurrentUser()
	return ok && u.IsAdmin
}

func (s *Session) setCurrent(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.current = nil
		return
	}
	cp := domain.CloneUser(*u)
	s.current = &cp
}

func (s *Session) actorID() (string, error) {
	u, ok := s.CurrentUser()
	if !ok {
		return "", ErrNotLoggedIn
	}
	return u.ID, nil
}

// Register creates an account and logs it in.
func (s *Session) Register(ctx context.Context, user domain.User) (domain.User, error) {
	created, _, err := s.svc.RegisterUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.cache.putUser(created)
	s.setCurrent(&created)
	return created, nil
}

// UpdateProfile edits the current user.
func (s *Session) UpdateProfile(ctx context.Context, patch core.UserPatch) (*domain.User, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := s.svc.UpdateUser(ctx, id, id, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putUser(*updated)
	s.setCurrent(updated)
	return updated, nil
}

// DeleteUser removes a user with its cascade. Administrators only.
func (s *Session) DeleteUser(ctx context.Context, userID string) error {
	id, err := s.actorID()
	if err != nil {
		return err
	}
	if _, err := s.svc.DeleteUser(ctx, id, userID); err != nil {
		return err
	}
	s.cache.dropUser(userID)
	if userID == id {
		s.Logout()
	}
	return nil
}

// Book claims a seat for the current user. The per-night guard is checked
// against the cache first so an obvious conflict fails without a round trip.
func (s *Session) Book(ctx context.Context, bedID, night string) (domain.Booking, error) {
	id, err := s.actorID()
	if err != nil {
		return domain.Booking{}, err
	}
	local := s.cache.Snapshot()
	if err := core.GuardOneBookingPerNight(local, id, night, ""); err != nil {
		return domain.Booking{}, err
	}
	if err := core.GuardNoDuplicateBedClaim(local, id, bedID, night, ""); err != nil {
		return domain.Booking{}, err
	}
	created, _, err := s.svc.CreateBooking(ctx, id, core.BookingRequest{BedID: bedID, Night: night})
	if err != nil {
		return domain.Booking{}, err
	}
	s.cache.putBooking(created)
	return created, nil
}

// MoveBooking changes the bed or night of a booking.
func (s *Session) MoveBooking(ctx context.Context, bookingID string, patch core.BookingPatch) (*domain.Booking, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := s.svc.UpdateBooking(ctx, id, bookingID, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putBooking(*updated)
	return updated, nil
}

// CancelBooking removes a booking.
func (s *Session) CancelBooking(ctx context.Context, bookingID string) error {
	id, err := s.actorID()
	if err != nil {
		return err
	}
	if _, err := s.svc.DeleteBooking(ctx, id, bookingID); err != nil {
		return err
	}
	s.cache.dropBooking(bookingID)
	return nil
}

// AddDayVisit declares the current user present for date and period.
func (s *Session) AddDayVisit(ctx context.Context, date string, period domain.Period) (domain.DayVisit, error) {
	id, err := s.actorID()
	if err != nil {
		return domain.DayVisit{}, err
	}
	created, _, err := s.svc.AddDayVisit(ctx, id, date, period)
	if err != nil {
		return domain.DayVisit{}, err
	}
	s.cache.putDayVisit(created)
	return created, nil
}

// RemoveDayVisit withdraws a presence declaration.
func (s *Session) RemoveDayVisit(ctx context.Context, visitID string) error {
	id, err := s.actorID()
	if err != nil {
		return err
	}
	if _, err := s.svc.DeleteDayVisit(ctx, id, visitID); err != nil {
		return err
	}
	s.cache.dropDayVisit(visitID)
	return nil
}

// ProposeActivity records an activity proposed by the current user.
func (s *Session) ProposeActivity(ctx context.Context, title, description string) (domain.Activity, error) {
	id, err := s.actorID()
	if err != nil {
		return domain.Activity{}, err
	}
	created, _, err := s.svc.ProposeActivity(ctx, id, title, description)
	if err != nil {
		return domain.Activity{}, err
	}
	s.cache.putActivity(created)
	return created, nil
}

// EditActivity changes an activity's text.
func (s *Session) EditActivity(ctx context.Context, activityID string, patch core.ActivityPatch) (*domain.Activity, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := s.svc.UpdateActivity(ctx, id, activityID, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putActivity(*updated)
	return updated, nil
}

// ToggleLike flips the current user's like on an activity.
func (s *Session) ToggleLike(ctx context.Context, activityID string) (*domain.Activity, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := s.svc.ToggleLike(ctx, id, activityID)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putActivity(*updated)
	return updated, nil
}

// DeleteActivity removes an activity and its calendar entries.
func (s *Session) DeleteActivity(ctx context.Context, activityID string) error {
	id, err := s.actorID()
	if err != nil {
		return err
	}
	if _, err := s.svc.DeleteActivity(ctx, id, activityID); err != nil {
		return err
	}
	s.cache.dropActivity(activityID)
	return nil
}

// ScheduleActivity places an activity on the calendar.
func (s *Session) ScheduleActivity(ctx context.Context, activityID, date, clock string) (domain.ScheduledActivity, error) {
	id, err := s.actorID()
	if err != nil {
		return domain.ScheduledActivity{}, err
	}
	created, _, err := s.svc.ScheduleActivity(ctx, id, activityID, date, clock)
	if err != nil {
		return domain.ScheduledActivity{}, err
	}
	s.cache.putScheduled(created)
	return created, nil
}

// UpdateScheduledActivity moves a calendar entry.
func (s *Session) UpdateScheduledActivity(ctx context.Context, scheduledID string, patch core.SchedulePatch) (*domain.ScheduledActivity, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := s.svc.UpdateScheduledActivity(ctx, id, scheduledID, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putScheduled(*updated)
	return updated, nil
}

// DeleteScheduledActivity removes a calendar entry.
func (s *Session) DeleteScheduledActivity(ctx context.Context, scheduledID string) error {
	id, err := s.actorID()
	if err != nil {
		return err
	}
	if _, err := s.svc.DeleteScheduledActivity(ctx, id, scheduledID); err != nil {
		return err
	}
	s.cache.dropScheduled(scheduledID)
	return nil
}

// OfferRide records a ride driven by the current user.
func (s *Session) OfferRide(ctx context.Context, offer core.RideOffer) (domain.CarRide, error) {
	id, err := s.actorID()
	if err != nil {
		return domain.CarRide{}, err
	}
	created, _, err := s.svc.OfferRide(ctx, id, offer)
	if err != nil {
		return domain.CarRide{}, err
	}
	s.cache.putRide(created)
	return created, nil
}

// UpdateRide edits a ride offer.
func (s *Session) UpdateRide(ctx context.Context, rideID string, patch core.RidePatch) (*domain.CarRide, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := s.svc.UpdateCarRide(ctx, id, rideID, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putRide(*updated)
	return updated, nil
}

// DeleteRide removes a ride offer.
func (s *Session) DeleteRide(ctx context.Context, rideID string) error {
	id, err := s.actorID()
	if err != nil {
		return err
	}
	if _, err := s.svc.DeleteCarRide(ctx, id, rideID); err != nil {
		return err
	}
	s.cache.dropRide(rideID)
	return nil
}

// JoinRide takes a seat on one leg of a ride.
func (s *Session) JoinRide(ctx context.Context, rideID string, leg domain.Leg) (*domain.CarRide, error) {
	return s.rideSeat(ctx, rideID, leg, s.svc.JoinRide)
}

// LeaveRide gives up a seat on one leg of a ride.
func (s *Session) LeaveRide(ctx context.Context, rideID string, leg domain.Leg) (*domain.CarRide, error) {
	return s.rideSeat(ctx, rideID, leg, s.svc.LeaveRide)
}

func (s *Session) rideSeat(ctx context.Context, rideID string, leg domain.Leg, op func(context.Context, string, string, domain.Leg) (*domain.CarRide, domain.Result, error)) (*domain.CarRide, error) {
	id, err := s.actorID()
	if err != nil {
		return nil, err
	}
	updated, _, err := op(ctx, id, rideID, leg)
	if err != nil || updated == nil {
		return updated, err
	}
	s.cache.putRide(*updated)
	return updated, nil
}
