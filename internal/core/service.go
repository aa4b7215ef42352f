package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cabincore/internal/docstore"
	"cabincore/pkg/domain"
)

// Service exposes the entity repositories. Every mutation takes the id of the
// acting user, which must exist in the document.
type Service struct {
	store   *Store
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewService constructs a service backed by store.
func NewService(store *Store) *Service {
	return &Service{store: store, logger: store.logger, metrics: store.metrics}
}

// Store returns the underlying transactional store.
func (s *Service) Store() *Store { return s.store }

// Catalog returns the static catalog.
func (s *Service) Catalog() domain.Catalog { return s.store.catalog }

func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	if err == nil {
		return
	}
	level := slog.LevelError
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrForbidden) {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "operation failed", "operation", operation, "error", err)
}

func actor(tx *Transaction, actorID string) (domain.User, error) {
	if actorID == "" {
		return domain.User{}, fmt.Errorf("%w: no acting user", domain.ErrForbidden)
	}
	u, ok := tx.View().FindUser(actorID)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: unknown user %q", domain.ErrForbidden, actorID)
	}
	return u, nil
}

func requireAdmin(u domain.User) error {
	if !u.IsAdmin {
		return fmt.Errorf("%w: %s is not an administrator", domain.ErrForbidden, u.ID)
	}
	return nil
}

func requireOwnerOrAdmin(u domain.User, ownerID string) error {
	if u.ID != ownerID && !u.IsAdmin {
		return fmt.Errorf("%w: %s does not own this record", domain.ErrForbidden, u.ID)
	}
	return nil
}

// Document returns the current document. Store failures degrade to the seed
// document when the client allows read fallback.
func (s *Service) Document(ctx context.Context) (docstore.Snapshot, error) {
	start := time.Now()
	snap, err := s.store.Snapshot(ctx)
	s.observe(ctx, "document", start, err)
	return snap, err
}

// --- users ---

// UserPatch lists the user fields an update may change. Nil fields are kept.
type UserPatch struct {
	Nome       *string
	Cognome    *string
	AvatarType *string
	AvatarID   *string
	Email      *string
	Telefono   *string
	IsAdmin    *bool
}

func (p UserPatch) apply(u *domain.User) {
	if p.Nome != nil {
		u.Nome = strings.TrimSpace(*p.Nome)
	}
	if p.Cognome != nil {
		u.Cognome = strings.TrimSpace(*p.Cognome)
	}
	if p.AvatarType != nil {
		u.AvatarType = *p.AvatarType
	}
	if p.AvatarID != nil {
		u.AvatarID = *p.AvatarID
	}
	if p.Email != nil {
		u.Email = optional(*p.Email)
	}
	if p.Telefono != nil {
		u.Telefono = optional(*p.Telefono)
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// RegisterUser creates a guest account. New accounts are never
// administrators.
func (s *Service) RegisterUser(ctx context.Context, user domain.User) (domain.User, domain.Result, error) {
	start := time.Now()
	user.IsAdmin = false
	if user.Email != nil {
		user.Email = optional(*user.Email)
	}
	if user.Telefono != nil {
		user.Telefono = optional(*user.Telefono)
	}
	var created domain.User
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		var err error
		created, err = tx.CreateUser(user)
		return err
	})
	s.observe(ctx, "register_user", start, err)
	return created, res, err
}

// UpdateUser changes a profile. Users edit themselves; administrators edit
// anyone and alone may change the administrator flag.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, patch UserPatch) (*domain.User, domain.Result, error) {
	start := time.Now()
	var updated *domain.User
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		updated = nil
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		if _, ok := tx.View().FindUser(id); !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, id); err != nil {
			return err
		}
		if patch.IsAdmin != nil {
			if err := requireAdmin(who); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateUser(id, func(u *domain.User) error {
			patch.apply(u)
			return nil
		})
		return err
	})
	s.observe(ctx, "update_user", start, err)
	return updated, res, err
}

// DeleteUser removes a user and everything referencing it. Administrators
// only; a missing user is a no-op.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(who); err != nil {
			return err
		}
		_, err = tx.DeleteUser(id)
		return err
	})
	s.observe(ctx, "delete_user", start, err)
	return res, err
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := s.store.View(ctx, func(v TransactionView) error {
		out = v.ListUsers()
		return nil
	})
	return out, err
}

// GetUser returns the user with id.
func (s *Service) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	var (
		user domain.User
		ok   bool
	)
	err := s.store.View(ctx, func(v TransactionView) error {
		user, ok = v.FindUser(id)
		return nil
	})
	return user, ok, err
}

// --- bookings ---

// BookingRequest asks for one seat of a bed on a night. UserID defaults to
// the acting user; booking for someone else requires an administrator.
type BookingRequest struct {
	UserID string
	BedID  string
	Night  string
}

// BookingPatch moves a booking to another bed or night.
type BookingPatch struct {
	BedID *string
	Night *string
}

// CreateBooking books a seat after checking the per-night and capacity
// guards.
func (s *Service) CreateBooking(ctx context.Context, actorID string, req BookingRequest) (domain.Booking, domain.Result, error) {
	start := time.Now()
	var created domain.Booking
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		owner := req.UserID
		if owner == "" {
			owner = who.ID
		}
		if err := requireOwnerOrAdmin(who, owner); err != nil {
			return err
		}
		created, err = tx.CreateBooking(domain.Booking{UserID: owner, BedID: req.BedID, Night: req.Night})
		return err
	})
	s.observe(ctx, "create_booking", start, err)
	return created, res, err
}

// UpdateBooking moves a booking. The booking guards are evaluated against the
// other bookings.
func (s *Service) UpdateBooking(ctx context.Context, actorID, id string, patch BookingPatch) (*domain.Booking, domain.Result, error) {
	start := time.Now()
	var updated *domain.Booking
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		updated = nil
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindBooking(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		updated, err = tx.UpdateBooking(id, func(b *domain.Booking) error {
			if patch.BedID != nil {
				b.BedID = *patch.BedID
			}
			if patch.Night != nil {
				b.Night = *patch.Night
			}
			return nil
		})
		return err
	})
	s.observe(ctx, "update_booking", start, err)
	return updated, res, err
}

// DeleteBooking cancels a booking. Owner or administrator.
func (s *Service) DeleteBooking(ctx context.Context, actorID, id string) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindBooking(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		tx.DeleteBooking(id)
		return nil
	})
	s.observe(ctx, "delete_booking", start, err)
	return res, err
}

// ListBookings returns all bookings.
func (s *Service) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	var out []domain.Booking
	err := s.store.View(ctx, func(v TransactionView) error {
		out = v.ListBookings()
		return nil
	})
	return out, err
}

// --- day visits ---

// AddDayVisit declares the acting user present on date during period. A
// second declaration for the same triple replaces the first.
func (s *Service) AddDayVisit(ctx context.Context, actorID, date string, period domain.Period) (domain.DayVisit, domain.Result, error) {
	start := time.Now()
	var created domain.DayVisit
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		created, err = tx.PutDayVisit(domain.DayVisit{UserID: who.ID, Date: date, Period: period})
		return err
	})
	s.observe(ctx, "add_day_visit", start, err)
	return created, res, err
}

// DeleteDayVisit withdraws a presence declaration. Owner or administrator.
func (s *Service) DeleteDayVisit(ctx context.Context, actorID, id string) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindDayVisit(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		tx.DeleteDayVisit(id)
		return nil
	})
	s.observe(ctx, "delete_day_visit", start, err)
	return res, err
}

// --- activities ---

// ActivityPatch edits the text of an activity.
type ActivityPatch struct {
	Title       *string
	Description *string
}

// ProposeActivity records an activity proposed by the acting user.
func (s *Service) ProposeActivity(ctx context.Context, actorID, title, description string) (domain.Activity, domain.Result, error) {
	start := time.Now()
	var created domain.Activity
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		created, err = tx.CreateActivity(domain.Activity{Title: title, Description: description, UserID: who.ID})
		return err
	})
	s.observe(ctx, "propose_activity", start, err)
	return created, res, err
}

// UpdateActivity edits an activity. Proposer or administrator.
func (s *Service) UpdateActivity(ctx context.Context, actorID, id string, patch ActivityPatch) (*domain.Activity, domain.Result, error) {
	start := time.Now()
	var updated *domain.Activity
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		updated = nil
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindActivity(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		updated, err = tx.UpdateActivity(id, func(a *domain.Activity) error {
			if patch.Title != nil {
				a.Title = strings.TrimSpace(*patch.Title)
			}
			if patch.Description != nil {
				a.Description = strings.TrimSpace(*patch.Description)
			}
			return nil
		})
		return err
	})
	s.observe(ctx, "update_activity", start, err)
	return updated, res, err
}

// ToggleLike adds or removes the acting user's like.
func (s *Service) ToggleLike(ctx context.Context, actorID, id string) (*domain.Activity, domain.Result, error) {
	start := time.Now()
	var updated *domain.Activity
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		updated, err = tx.ToggleLike(id, who.ID)
		return err
	})
	s.observe(ctx, "toggle_like", start, err)
	return updated, res, err
}

// DeleteActivity removes an activity and its calendar entries. Proposer or
// administrator.
func (s *Service) DeleteActivity(ctx context.Context, actorID, id string) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindActivity(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		tx.DeleteActivity(id)
		return nil
	})
	s.observe(ctx, "delete_activity", start, err)
	return res, err
}

// --- scheduled activities ---

// SchedulePatch moves a calendar entry.
type SchedulePatch struct {
	Date *string
	Time *string
}

// ScheduleActivity places an activity on the calendar. Administrators only.
func (s *Service) ScheduleActivity(ctx context.Context, actorID, activityID, date, clock string) (domain.ScheduledActivity, domain.Result, error) {
	start := time.Now()
	var created domain.ScheduledActivity
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(who); err != nil {
			return err
		}
		created, err = tx.CreateScheduledActivity(domain.ScheduledActivity{ActivityID: activityID, Date: date, Time: clock})
		return err
	})
	s.observe(ctx, "schedule_activity", start, err)
	return created, res, err
}

// UpdateScheduledActivity moves a calendar entry. Administrators only.
func (s *Service) UpdateScheduledActivity(ctx context.Context, actorID, id string, patch SchedulePatch) (*domain.ScheduledActivity, domain.Result, error) {
	start := time.Now()
	var updated *domain.ScheduledActivity
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		updated = nil
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(who); err != nil {
			return err
		}
		updated, err = tx.UpdateScheduledActivity(id, func(sa *domain.ScheduledActivity) error {
			if patch.Date != nil {
				sa.Date = *patch.Date
			}
			if patch.Time != nil {
				sa.Time = *patch.Time
			}
			return nil
		})
		return err
	})
	s.observe(ctx, "update_scheduled_activity", start, err)
	return updated, res, err
}

// DeleteScheduledActivity removes a calendar entry. Administrators only.
func (s *Service) DeleteScheduledActivity(ctx context.Context, actorID, id string) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(who); err != nil {
			return err
		}
		tx.DeleteScheduledActivity(id)
		return nil
	})
	s.observe(ctx, "delete_scheduled_activity", start, err)
	return res, err
}

// --- car rides ---

// RideOffer describes a ride offered by the acting user.
type RideOffer struct {
	DepartureDate    string
	DepartureTime    string
	DepartureTimeEnd *string
	SeatsOutbound    int
	ReturnDate       string
	ReturnTime       string
	ReturnTimeEnd    *string
	SeatsReturn      int
	StartingPoint    string
	Note             string
}

// RidePatch edits a ride offer. Nil fields are kept; an empty string clears
// an optional time window.
type RidePatch struct {
	DepartureDate    *string
	DepartureTime    *string
	DepartureTimeEnd *string
	SeatsOutbound    *int
	ReturnDate       *string
	ReturnTime       *string
	ReturnTimeEnd    *string
	SeatsReturn      *int
	StartingPoint    *string
	Note             *string
}

func (p RidePatch) apply(r *domain.CarRide) {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setString(&r.DepartureDate, p.DepartureDate)
	setString(&r.DepartureTime, p.DepartureTime)
	setString(&r.ReturnDate, p.ReturnDate)
	setString(&r.ReturnTime, p.ReturnTime)
	setString(&r.StartingPoint, p.StartingPoint)
	setString(&r.Note, p.Note)
	if p.DepartureTimeEnd != nil {
		r.DepartureTimeEnd = optional(*p.DepartureTimeEnd)
	}
	if p.ReturnTimeEnd != nil {
		r.ReturnTimeEnd = optional(*p.ReturnTimeEnd)
	}
	if p.SeatsOutbound != nil {
		r.SeatsOutbound = *p.SeatsOutbound
	}
	if p.SeatsReturn != nil {
		r.SeatsReturn = *p.SeatsReturn
	}
}

// OfferRide records a ride driven by the acting user.
func (s *Service) OfferRide(ctx context.Context, actorID string, offer RideOffer) (domain.CarRide, domain.Result, error) {
	start := time.Now()
	ride := domain.CarRide{
		DepartureDate: strings.TrimSpace(offer.DepartureDate),
		DepartureTime: strings.TrimSpace(offer.DepartureTime),
		SeatsOutbound: offer.SeatsOutbound,
		ReturnDate:    strings.TrimSpace(offer.ReturnDate),
		ReturnTime:    strings.TrimSpace(offer.ReturnTime),
		SeatsReturn:   offer.SeatsReturn,
		StartingPoint: strings.TrimSpace(offer.StartingPoint),
		Note:          strings.TrimSpace(offer.Note),
	}
	if offer.DepartureTimeEnd != nil {
		ride.DepartureTimeEnd = optional(*offer.DepartureTimeEnd)
	}
	if offer.ReturnTimeEnd != nil {
		ride.ReturnTimeEnd = optional(*offer.ReturnTimeEnd)
	}
	var created domain.CarRide
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		r := domain.CloneCarRide(ride)
		r.UserID = who.ID
		created, err = tx.CreateCarRide(r)
		return err
	})
	s.observe(ctx, "offer_ride", start, err)
	return created, res, err
}

// UpdateCarRide edits a ride. Driver or administrator.
func (s *Service) UpdateCarRide(ctx context.Context, actorID, id string, patch RidePatch) (*domain.CarRide, domain.Result, error) {
	start := time.Now()
	var updated *domain.CarRide
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		updated = nil
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindCarRide(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		updated, err = tx.UpdateCarRide(id, func(r *domain.CarRide) error {
			patch.apply(r)
			return nil
		})
		return err
	})
	s.observe(ctx, "update_car_ride", start, err)
	return updated, res, err
}

// DeleteCarRide removes a ride. Driver or administrator.
func (s *Service) DeleteCarRide(ctx context.Context, actorID, id string) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		existing, ok := tx.View().FindCarRide(id)
		if !ok {
			return nil
		}
		if err := requireOwnerOrAdmin(who, existing.UserID); err != nil {
			return err
		}
		tx.DeleteCarRide(id)
		return nil
	})
	s.observe(ctx, "delete_car_ride", start, err)
	return res, err
}

// JoinRide takes a seat on one leg of a ride for the acting user.
func (s *Service) JoinRide(ctx context.Context, actorID, id string, leg domain.Leg) (*domain.CarRide, domain.Result, error) {
	start := time.Now()
	var updated *domain.CarRide
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		updated, err = tx.JoinRide(id, who.ID, leg)
		return err
	})
	s.observe(ctx, "join_ride", start, err)
	return updated, res, err
}

// LeaveRide gives up the acting user's seat on one leg of a ride.
func (s *Service) LeaveRide(ctx context.Context, actorID, id string, leg domain.Leg) (*domain.CarRide, domain.Result, error) {
	start := time.Now()
	var updated *domain.CarRide
	res, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		who, err := actor(tx, actorID)
		if err != nil {
			return err
		}
		updated, err = tx.LeaveRide(id, who.ID, leg)
		return err
	})
	s.observe(ctx, "leave_ride", start, err)
	return updated, res, err
}
