package core_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cabincore/internal/blob"
	"cabincore/internal/core"
	"cabincore/internal/docstore"
	"cabincore/pkg/domain"
)

var testNow = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }
}

func newService(t *testing.T, store blob.Store, opts ...core.Option) *core.Service {
	t.Helper()
	if store == nil {
		store = blob.NewMemory()
	}
	client := docstore.New(store, docstore.WithClock(func() time.Time { return testNow }))
	base := []core.Option{
		core.WithClock(func() time.Time { return testNow }),
		core.WithIDGenerator(sequentialIDs()),
		core.WithBackoff(func(int) time.Duration { return 0 }),
	}
	return core.NewService(core.NewStore(client, append(base, opts...)...))
}

func register(t *testing.T, svc *core.Service, nome, cognome string) domain.User {
	t.Helper()
	u, _, err := svc.RegisterUser(context.Background(), domain.User{Nome: nome, Cognome: cognome, AvatarType: "emoji", AvatarID: "bear"})
	if err != nil {
		t.Fatalf("register %s: %v", nome, err)
	}
	return u
}

func mustDocument(t *testing.T, svc *core.Service) domain.Document {
	t.Helper()
	snap, err := svc.Document(context.Background())
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	return snap.Document
}

func TestRegisterUserNeverGrantsAdmin(t *testing.T) {
	svc := newService(t, nil)
	u, _, err := svc.RegisterUser(context.Background(), domain.User{Nome: " Giulia ", Cognome: "Rossi", IsAdmin: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.IsAdmin || u.Nome != "Giulia" || u.ID == "" || !u.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, _, err := svc.RegisterUser(context.Background(), domain.User{Nome: "", Cognome: "X"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
	users, err := svc.ListUsers(context.Background())
	if err != nil || len(users) != 2 {
		t.Fatalf("expected seed admin and new user, got %d (%v)", len(users), err)
	}
	if got, ok, err := svc.GetUser(context.Background(), u.ID); err != nil || !ok || got.Nome != "Giulia" {
		t.Fatalf("get user: %+v %v %v", got, ok, err)
	}
}

func TestUpdateUserPermissions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	alice := register(t, svc, "Alice", "Bianchi")
	bob := register(t, svc, "Bob", "Verdi")

	name := "Alicia"
	updated, _, err := svc.UpdateUser(ctx, alice.ID, alice.ID, core.UserPatch{Nome: &name})
	if err != nil || updated == nil || updated.Nome != "Alicia" {
		t.Fatalf("self update: %+v %v", updated, err)
	}
	if _, _, err := svc.UpdateUser(ctx, bob.ID, alice.ID, core.UserPatch{Nome: &name}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for foreign update, got %v", err)
	}
	yes := true
	if _, _, err := svc.UpdateUser(ctx, alice.ID, alice.ID, core.UserPatch{IsAdmin: &yes}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden self promotion, got %v", err)
	}
	promoted, _, err := svc.UpdateUser(ctx, domain.SeedAdminID, bob.ID, core.UserPatch{IsAdmin: &yes})
	if err != nil || promoted == nil || !promoted.IsAdmin {
		t.Fatalf("admin promotion: %+v %v", promoted, err)
	}
	missing, _, err := svc.UpdateUser(ctx, domain.SeedAdminID, "ghost", core.UserPatch{Nome: &name})
	if err != nil || missing != nil {
		t.Fatalf("expected nil result for missing user, got %+v %v", missing, err)
	}
	if _, _, err := svc.UpdateUser(ctx, "stranger", alice.ID, core.UserPatch{Nome: &name}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for unknown actor, got %v", err)
	}
}

func TestSecondBookingSameNightRejected(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	u := register(t, svc, "Marco", "Neri")

	if _, _, err := svc.CreateBooking(ctx, u.ID, core.BookingRequest{BedID: "A1", Night: "2026-02-20"}); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	for _, bed := range []string{"A1", "B3"} {
		_, _, err := svc.CreateBooking(ctx, u.ID, core.BookingRequest{BedID: bed, Night: "2026-02-20"})
		if code, _ := domain.GuardCodeOf(err); code != domain.CodeDuplicateNight {
			t.Fatalf("bed %s: expected duplicate night, got %v", bed, err)
		}
	}
	count := 0
	for _, b := range mustDocument(t, svc).Bookings {
		if b.UserID == u.ID && b.Night == "2026-02-20" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one booking for the night, got %d", count)
	}
	if _, _, err := svc.CreateBooking(ctx, u.ID, core.BookingRequest{BedID: "A1", Night: "2026-02-21"}); err != nil {
		t.Fatalf("other night should be allowed: %v", err)
	}
}

func TestBookingInputValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	u := register(t, svc, "Marco", "Neri")
	cases := []core.BookingRequest{
		{BedID: "Z9", Night: "2026-02-20"},
		{BedID: "A1", Night: "2026-02-22"},
	}
	for _, req := range cases {
		_, _, err := svc.CreateBooking(ctx, u.ID, req)
		if code, _ := domain.GuardCodeOf(err); code != domain.CodeInvalidInput {
			t.Fatalf("%+v: expected invalid input, got %v", req, err)
		}
	}
	other := register(t, svc, "Luca", "Gialli")
	if _, _, err := svc.CreateBooking(ctx, u.ID, core.BookingRequest{UserID: other.ID, BedID: "A1", Night: "2026-02-20"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden booking on behalf, got %v", err)
	}
	b, _, err := svc.CreateBooking(ctx, domain.SeedAdminID, core.BookingRequest{UserID: other.ID, BedID: "A1", Night: "2026-02-20"})
	if err != nil || b.UserID != other.ID {
		t.Fatalf("admin booking on behalf: %+v %v", b, err)
	}
}

func TestBedCapacityUnderConcurrentBookings(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	users := []domain.User{
		register(t, svc, "Uno", "A"),
		register(t, svc, "Due", "B"),
		register(t, svc, "Tre", "C"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, _, errs[i] = svc.CreateBooking(ctx, id, core.BookingRequest{BedID: "A4", Night: "2026-02-21"})
		}(i, u.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch code, _ := domain.GuardCodeOf(err); {
		case err == nil:
			succeeded++
		case code == domain.CodeBedFull:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Fatalf("expected exactly 2 successful bookings, got %d", succeeded)
	}
	if n := len(mustDocument(t, svc).BookingsFor("A4", "2026-02-21")); n != 2 {
		t.Fatalf("expected 2 stored bookings, got %d", n)
	}
}

func TestUpdateAndDeleteBooking(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	u := register(t, svc, "Sara", "Blu")
	other := register(t, svc, "Paolo", "Viola")
	b, _, err := svc.CreateBooking(ctx, u.ID, core.BookingRequest{BedID: "A2", Night: "2026-02-20"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.CreateBooking(ctx, other.ID, core.BookingRequest{BedID: "A5", Night: "2026-02-20"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	full := "A5"
	if _, _, err := svc.UpdateBooking(ctx, u.ID, b.ID, core.BookingPatch{BedID: &full}); err == nil {
		t.Fatalf("expected capacity rejection when moving into a full bed")
	} else if code, _ := domain.GuardCodeOf(err); code != domain.CodeBedFull {
		t.Fatalf("expected bed full, got %v", err)
	}
	bed := "B1"
	moved, _, err := svc.UpdateBooking(ctx, u.ID, b.ID, core.BookingPatch{BedID: &bed})
	if err != nil || moved == nil || moved.BedID != "B1" || moved.ID != b.ID {
		t.Fatalf("move booking: %+v %v", moved, err)
	}
	if _, _, err := svc.UpdateBooking(ctx, other.ID, b.ID, core.BookingPatch{BedID: &bed}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if res, _, err := svc.UpdateBooking(ctx, u.ID, "missing", core.BookingPatch{BedID: &bed}); err != nil || res != nil {
		t.Fatalf("missing booking update: %+v %v", res, err)
	}

	if _, err := svc.DeleteBooking(ctx, other.ID, b.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if _, err := svc.DeleteBooking(ctx, domain.SeedAdminID, b.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.DeleteBooking(ctx, u.ID, b.ID); err != nil {
		t.Fatalf("repeated delete must be a no-op: %v", err)
	}
	bookings, err := svc.ListBookings(ctx)
	if err != nil || len(bookings) != 1 {
		t.Fatalf("expected one remaining booking, got %+v %v", bookings, err)
	}
}

func TestDayVisitReplacesSameTriple(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	u := register(t, svc, "Elena", "Grigi")

	first, _, err := svc.AddDayVisit(ctx, u.ID, "2026-02-21", domain.PeriodEvening)
	if err != nil {
		t.Fatalf("first visit: %v", err)
	}
	second, _, err := svc.AddDayVisit(ctx, u.ID, "2026-02-21", domain.PeriodEvening)
	if err != nil {
		t.Fatalf("second visit: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("second record should replace the first")
	}
	if _, _, err := svc.AddDayVisit(ctx, u.ID, "2026-02-21", domain.PeriodMorning); err != nil {
		t.Fatalf("other period: %v", err)
	}
	visits := mustDocument(t, svc).DayVisits
	matching := 0
	for _, v := range visits {
		if v.UserID == u.ID && v.Date == "2026-02-21" && v.Period == domain.PeriodEvening {
			matching++
			if v.ID != second.ID {
				t.Fatalf("expected the latest record to survive, got %s", v.ID)
			}
		}
	}
	if matching != 1 || len(visits) != 2 {
		t.Fatalf("expected one record per triple, got %+v", visits)
	}
	if _, _, err := svc.AddDayVisit(ctx, u.ID, "2026-02-23", domain.PeriodEvening); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown day, got %v", err)
	}
	if _, _, err := svc.AddDayVisit(ctx, u.ID, "2026-02-21", domain.Period("notte")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown period, got %v", err)
	}
	if _, err := svc.DeleteDayVisit(ctx, u.ID, second.ID); err != nil {
		t.Fatalf("delete visit: %v", err)
	}
	if got := len(mustDocument(t, svc).DayVisits); got != 1 {
		t.Fatalf("expected one visit left, got %d", got)
	}
}

func TestToggleLikeIsSelfInverse(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	u := register(t, svc, "Ivo", "Rame")
	a, _, err := svc.ProposeActivity(ctx, u.ID, "Ciaspolata", "Giro al lago")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	liked, _, err := svc.ToggleLike(ctx, domain.SeedAdminID, a.ID)
	if err != nil || liked == nil || !liked.LikedBy(domain.SeedAdminID) {
		t.Fatalf("like: %+v %v", liked, err)
	}
	unliked, _, err := svc.ToggleLike(ctx, domain.SeedAdminID, a.ID)
	if err != nil || unliked == nil || len(unliked.Likes) != 0 {
		t.Fatalf("unlike: %+v %v", unliked, err)
	}
	missing, _, err := svc.ToggleLike(ctx, u.ID, "nope")
	if err != nil || missing != nil {
		t.Fatalf("toggle missing: %+v %v", missing, err)
	}
}

func TestActivityLifecycleCascadesSchedule(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	u := register(t, svc, "Nina", "Oro")
	a, _, err := svc.ProposeActivity(ctx, u.ID, "Slittino", "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, _, err := svc.ProposeActivity(ctx, u.ID, "   ", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}
	title := "Slittino notturno"
	if upd, _, err := svc.UpdateActivity(ctx, u.ID, a.ID, core.ActivityPatch{Title: &title}); err != nil || upd == nil || upd.Title != title {
		t.Fatalf("update activity: %+v %v", upd, err)
	}

	if _, _, err := svc.ScheduleActivity(ctx, u.ID, a.ID, "2026-02-21", "21:00"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected only admins to schedule, got %v", err)
	}
	sa, _, err := svc.ScheduleActivity(ctx, domain.SeedAdminID, a.ID, "2026-02-21", "21:00")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, _, err := svc.ScheduleActivity(ctx, domain.SeedAdminID, a.ID, "2026-02-21", "25:00"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid time rejection, got %v", err)
	}
	if _, _, err := svc.ScheduleActivity(ctx, domain.SeedAdminID, "ghost", "2026-02-21", "10:00"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected dangling activity rejection, got %v", err)
	}
	clock := "20:30"
	moved, _, err := svc.UpdateScheduledActivity(ctx, domain.SeedAdminID, sa.ID, core.SchedulePatch{Time: &clock})
	if err != nil || moved == nil || moved.Time != clock {
		t.Fatalf("move schedule: %+v %v", moved, err)
	}

	other := register(t, svc, "Teo", "Ferro")
	if _, err := svc.DeleteActivity(ctx, other.ID, a.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if _, err := svc.DeleteActivity(ctx, u.ID, a.ID); err != nil {
		t.Fatalf("delete activity: %v", err)
	}
	doc := mustDocument(t, svc)
	if len(doc.Activities) != 0 || len(doc.ScheduledActivities) != 0 {
		t.Fatalf("expected activity and schedule removed, got %+v %+v", doc.Activities, doc.ScheduledActivities)
	}
}

func TestRideJoinCapacity(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	driver := register(t, svc, "Dino", "Guida")
	ride, _, err := svc.OfferRide(ctx, driver.ID, core.RideOffer{
		DepartureDate: "2026-02-20", DepartureTime: "08:00", SeatsOutbound: 2,
		ReturnDate: "2026-02-22", ReturnTime: "17:00", SeatsReturn: 1,
		StartingPoint: "Trento",
	})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	riders := []domain.User{register(t, svc, "P1", "X"), register(t, svc, "P2", "X"), register(t, svc, "P3", "X")}
	for _, r := range riders[:2] {
		if _, _, err := svc.JoinRide(ctx, r.ID, ride.ID, domain.LegOutbound); err != nil {
			t.Fatalf("join %s: %v", r.Nome, err)
		}
	}
	_, _, err = svc.JoinRide(ctx, riders[2].ID, ride.ID, domain.LegOutbound)
	if code, _ := domain.GuardCodeOf(err); code != domain.CodeRideFull {
		t.Fatalf("expected ride full, got %v", err)
	}
	_, _, err = svc.JoinRide(ctx, riders[0].ID, ride.ID, domain.LegOutbound)
	if code, _ := domain.GuardCodeOf(err); code != domain.CodeRideAlreadyJoined && code != domain.CodeRideFull {
		t.Fatalf("expected join rejection, got %v", err)
	}
	stored := mustDocument(t, svc).CarRides[0]
	if len(stored.PassengersOutbound) != 2 {
		t.Fatalf("expected 2 outbound passengers, got %v", stored.PassengersOutbound)
	}

	if _, _, err := svc.JoinRide(ctx, riders[0].ID, ride.ID, domain.LegReturn); err != nil {
		t.Fatalf("join return: %v", err)
	}
	_, _, err = svc.JoinRide(ctx, riders[0].ID, ride.ID, domain.LegReturn)
	if code, _ := domain.GuardCodeOf(err); code != domain.CodeRideAlreadyJoined {
		t.Fatalf("expected already joined, got %v", err)
	}
	left, _, err := svc.LeaveRide(ctx, riders[0].ID, ride.ID, domain.LegOutbound)
	if err != nil || left == nil || len(left.PassengersOutbound) != 1 || len(left.PassengersReturn) != 1 {
		t.Fatalf("leave outbound only: %+v %v", left, err)
	}
	if missing, _, err := svc.JoinRide(ctx, riders[2].ID, "ghost", domain.LegOutbound); err != nil || missing != nil {
		t.Fatalf("join missing ride: %+v %v", missing, err)
	}

	one := 1
	if _, _, err := svc.UpdateCarRide(ctx, driver.ID, ride.ID, core.RidePatch{SeatsOutbound: &one}); err != nil {
		t.Fatalf("shrink to passenger count: %v", err)
	}
	zero := 0
	if _, _, err := svc.UpdateCarRide(ctx, driver.ID, ride.ID, core.RidePatch{SeatsOutbound: &zero}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected rejection when seats drop below passengers, got %v", err)
	}
	if _, err := svc.DeleteCarRide(ctx, riders[1].ID, ride.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden ride delete, got %v", err)
	}
	if _, err := svc.DeleteCarRide(ctx, driver.ID, ride.ID); err != nil {
		t.Fatalf("delete ride: %v", err)
	}
}

func TestDeleteUserCascade(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	gone := register(t, svc, "Via", "Presto")
	stay := register(t, svc, "Resta", "Qui")

	mustOK := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	_, _, err := svc.CreateBooking(ctx, gone.ID, core.BookingRequest{BedID: "B3", Night: "2026-02-20"})
	mustOK(err)
	keptBooking, _, err := svc.CreateBooking(ctx, stay.ID, core.BookingRequest{BedID: "B3", Night: "2026-02-20"})
	mustOK(err)
	_, _, err = svc.AddDayVisit(ctx, gone.ID, "2026-02-20", domain.PeriodMorning)
	mustOK(err)
	keptVisit, _, err := svc.AddDayVisit(ctx, stay.ID, "2026-02-20", domain.PeriodMorning)
	mustOK(err)
	goneActivity, _, err := svc.ProposeActivity(ctx, gone.ID, "Fondue", "")
	mustOK(err)
	keptActivity, _, err := svc.ProposeActivity(ctx, stay.ID, "Tombola", "")
	mustOK(err)
	_, _, err = svc.ToggleLike(ctx, gone.ID, keptActivity.ID)
	mustOK(err)
	_, _, err = svc.ToggleLike(ctx, stay.ID, keptActivity.ID)
	mustOK(err)
	_, _, err = svc.ScheduleActivity(ctx, domain.SeedAdminID, goneActivity.ID, "2026-02-21", "19:00")
	mustOK(err)
	keptSchedule, _, err := svc.ScheduleActivity(ctx, domain.SeedAdminID, keptActivity.ID, "2026-02-21", "22:00")
	mustOK(err)
	_, _, err = svc.OfferRide(ctx, gone.ID, core.RideOffer{DepartureDate: "2026-02-20", SeatsOutbound: 3})
	mustOK(err)
	keptRide, _, err := svc.OfferRide(ctx, stay.ID, core.RideOffer{DepartureDate: "2026-02-20", SeatsOutbound: 3, ReturnDate: "2026-02-22", SeatsReturn: 3})
	mustOK(err)
	_, _, err = svc.JoinRide(ctx, gone.ID, keptRide.ID, domain.LegOutbound)
	mustOK(err)
	_, _, err = svc.JoinRide(ctx, gone.ID, keptRide.ID, domain.LegReturn)
	mustOK(err)
	_, _, err = svc.JoinRide(ctx, domain.SeedAdminID, keptRide.ID, domain.LegOutbound)
	mustOK(err)

	if _, err := svc.DeleteUser(ctx, stay.ID, gone.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected only admins to delete users, got %v", err)
	}
	if _, err := svc.DeleteUser(ctx, domain.SeedAdminID, gone.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	doc := mustDocument(t, svc)
	if _, ok := doc.FindUser(gone.ID); ok {
		t.Fatalf("user still present")
	}
	if len(doc.Bookings) != 1 || doc.Bookings[0].ID != keptBooking.ID {
		t.Fatalf("unexpected bookings %+v", doc.Bookings)
	}
	if len(doc.DayVisits) != 1 || doc.DayVisits[0].ID != keptVisit.ID {
		t.Fatalf("unexpected day visits %+v", doc.DayVisits)
	}
	if len(doc.Activities) != 1 || doc.Activities[0].ID != keptActivity.ID {
		t.Fatalf("unexpected activities %+v", doc.Activities)
	}
	if likes := doc.Activities[0].Likes; len(likes) != 1 || likes[0] != stay.ID {
		t.Fatalf("unexpected likes %v", likes)
	}
	if len(doc.ScheduledActivities) != 1 || doc.ScheduledActivities[0].ID != keptSchedule.ID {
		t.Fatalf("unexpected schedule %+v", doc.ScheduledActivities)
	}
	if len(doc.CarRides) != 1 || doc.CarRides[0].ID != keptRide.ID {
		t.Fatalf("unexpected rides %+v", doc.CarRides)
	}
	ride := doc.CarRides[0]
	if len(ride.PassengersOutbound) != 1 || ride.PassengersOutbound[0] != domain.SeedAdminID || len(ride.PassengersReturn) != 0 {
		t.Fatalf("unexpected passengers %+v", ride)
	}
	if _, ok := doc.FindUser(stay.ID); !ok {
		t.Fatalf("unrelated user removed")
	}
	if _, err := svc.DeleteUser(ctx, domain.SeedAdminID, gone.ID); err != nil {
		t.Fatalf("deleting a missing user must be a no-op: %v", err)
	}
}

func TestDocumentSurvivesJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	svc := newService(t, store)
	u := register(t, svc, "Rita", "Neve")
	if _, _, err := svc.CreateBooking(ctx, u.ID, core.BookingRequest{BedID: "A3", Night: "2026-02-21"}); err != nil {
		t.Fatal(err)
	}
	end := "09:00"
	if _, _, err := svc.OfferRide(ctx, u.ID, core.RideOffer{DepartureDate: "2026-02-20", DepartureTime: "08:00", DepartureTimeEnd: &end, SeatsOutbound: 2}); err != nil {
		t.Fatal(err)
	}
	before := mustDocument(t, svc)
	raw, err := docstore.Encode(before)
	if err != nil {
		t.Fatal(err)
	}
	after, err := docstore.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	again, err := docstore.Encode(after)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(again) {
		t.Fatalf("document changed across round trip:\n%s\n---\n%s", raw, again)
	}
}

type conflictingStore struct {
	blob.Store
	puts atomic.Int32
}

func (c *conflictingStore) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if opts.IfMatch != "" {
		c.puts.Add(1)
		return blob.Info{}, fmt.Errorf("put %s: %w", key, blob.ErrRevisionMismatch)
	}
	return c.Store.Put(ctx, key, r, opts)
}

type countingMetrics struct {
	mu        sync.Mutex
	ops       map[string]int
	failures  int
	conflicts int
}

func (m *countingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = map[string]int{}
	}
	m.ops[op]++
	if !success {
		m.failures++
	}
}

func (m *countingMetrics) ObserveConflict(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func TestTransactionGivesUpAfterMaxAttempts(t *testing.T) {
	store := &conflictingStore{Store: blob.NewMemory()}
	metrics := &countingMetrics{}
	svc := newService(t, store, core.WithMaxAttempts(3), core.WithMetrics(metrics))
	_, _, err := svc.RegisterUser(context.Background(), domain.User{Nome: "Lento", Cognome: "Sempre"})
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update error, got %v", err)
	}
	if got := store.puts.Load(); got != 3 {
		t.Fatalf("expected 3 conditional writes, got %d", got)
	}
	if metrics.conflicts != 3 || metrics.failures != 1 || metrics.ops["register_user"] != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestNoChangeWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{Store: blob.NewMemory()}
	svc := newService(t, store)
	if _, err := svc.DeleteBooking(ctx, domain.SeedAdminID, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if res, _, err := svc.ToggleLike(ctx, domain.SeedAdminID, "missing"); err != nil || res != nil {
		t.Fatalf("toggle missing: %+v %v", res, err)
	}
	if got := store.puts.Load(); got != 0 {
		t.Fatalf("expected no conditional writes, got %d", got)
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always_block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "always_block", Severity: domain.SeverityBlock, Message: "closed for maintenance"}}}, nil
}

func TestBlockingRuleAbortsWrite(t *testing.T) {
	engine := core.NewDefaultRulesEngine()
	engine.Register(blockingRule{})
	svc := newService(t, nil, core.WithRulesEngine(engine))
	_, res, err := svc.RegisterUser(context.Background(), domain.User{Nome: "Bloccato", Cognome: "Sempre"})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) || !res.HasBlocking() {
		t.Fatalf("expected rule violation, got %v", err)
	}
	users, err := svc.ListUsers(context.Background())
	if err != nil || len(users) != 1 {
		t.Fatalf("blocked transaction must not write: %d users (%v)", len(users), err)
	}
}

func seedDocument(t *testing.T, store blob.Store, doc domain.Document) {
	t.Helper()
	ctx := context.Background()
	client := docstore.New(store, docstore.WithClock(func() time.Time { return testNow }))
	snap, err := client.FetchStrict(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := client.ReplaceDocument(ctx, doc, snap.Revision); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// Documents written before capacity was enforced may already hold too many
// bookings on a bed or passengers on a ride. Writes elsewhere must still go
// through.
func TestOverCapacityDocumentStaysWritable(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	doc := domain.SeedDocument(testNow)
	doc.Users = append(doc.Users,
		domain.User{ID: "u1", Nome: "Ada", Cognome: "Riva"},
		domain.User{ID: "u2", Nome: "Bruno", Cognome: "Sasso"},
		domain.User{ID: "u3", Nome: "Carla", Cognome: "Pino"},
	)
	doc.Bookings = []domain.Booking{
		{ID: "b1", BedID: "A2", Night: "2026-02-20", UserID: "u1"},
		{ID: "b2", BedID: "A2", Night: "2026-02-20", UserID: "u2"},
		{ID: "b3", BedID: "B3", Night: "2026-02-20", UserID: "u3"},
	}
	doc.CarRides = []domain.CarRide{{
		ID: "r1", UserID: "u1", DepartureDate: "2026-02-20", SeatsOutbound: 1,
		PassengersOutbound: []string{"u2", "u3"}, PassengersReturn: []string{},
	}}
	seedDocument(t, store, doc)
	svc := newService(t, store)

	if _, err := svc.DeleteBooking(ctx, "u3", "b3"); err != nil {
		t.Fatalf("owner delete of an unrelated booking: %v", err)
	}
	ride, _, err := svc.LeaveRide(ctx, "u2", "r1", domain.LegOutbound)
	if err != nil || ride == nil || len(ride.PassengersOutbound) != 1 {
		t.Fatalf("leaving an over-full ride: %+v %v", ride, err)
	}
	if _, _, err := svc.JoinRide(ctx, domain.SeedAdminID, "r1", domain.LegOutbound); !isGuard(err, domain.CodeRideFull) {
		t.Fatalf("expected ride_full, got %v", err)
	}
	if _, _, err := svc.CreateBooking(ctx, domain.SeedAdminID, core.BookingRequest{BedID: "A2", Night: "2026-02-20"}); !isGuard(err, domain.CodeBedFull) {
		t.Fatalf("expected bed_full, got %v", err)
	}
	if _, err := svc.DeleteUser(ctx, domain.SeedAdminID, "u3"); err != nil {
		t.Fatalf("admin delete cascade: %v", err)
	}
	bed := "B3"
	if _, _, err := svc.UpdateBooking(ctx, "u2", "b2", core.BookingPatch{BedID: &bed}); err != nil {
		t.Fatalf("moving out of an over-full bed: %v", err)
	}

	got := mustDocument(t, svc)
	if len(got.Bookings) != 2 || len(got.Users) != 3 {
		t.Fatalf("unexpected document %+v", got)
	}
	if len(got.CarRides) != 1 || len(got.CarRides[0].PassengersOutbound) != 0 {
		t.Fatalf("cascade must drop u3 from the ride: %+v", got.CarRides)
	}
}

func TestJoinRideRejectsUnknownLegFirst(t *testing.T) {
	svc := newService(t, nil)
	if _, _, err := svc.JoinRide(context.Background(), domain.SeedAdminID, "missing", domain.Leg("sideways")); !isGuard(err, domain.CodeInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func isGuard(err error, code domain.GuardCode) bool {
	got, ok := domain.GuardCodeOf(err)
	return ok && got == code
}
