package httpapi

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"cabincore/internal/appstate"
	"cabincore/internal/core"
	"cabincore/internal/summary"
	"cabincore/pkg/domain"
)

func actorOf(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	err := s.cache.Load(r.Context())
	body := map[string]string{
		"status":   string(s.cache.Status()),
		"revision": s.cache.Revision(),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	status := http.StatusOK
	if s.cache.Status() != appstate.StatusReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// --- catalog and document ---

type bedDTO struct {
	ID            string `json:"id"`
	CabinID       string `json:"cabinId"`
	Label         string `json:"label"`
	Room          string `json:"room"`
	Type          string `json:"type"`
	Capacity      int    `json:"capacity"`
	Comfort       string `json:"comfort"`
	Note          string `json:"note,omitempty"`
	CanBookSingle bool   `json:"canBookSingle"`
}

type dateDTO struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type catalogDTO struct {
	Beds    []bedDTO  `json:"beds"`
	Nights  []dateDTO `json:"nights"`
	Days    []dateDTO `json:"days"`
	Periods []dateDTO `json:"periods"`
}

func (s *Server) catalog(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	c := s.svc.Catalog()
	out := catalogDTO{}
	for _, b := range c.Beds {
		out.Beds = append(out.Beds, bedDTO{
			ID: b.ID, CabinID: b.CabinID, Label: c.BedLabel(b.ID), Room: b.Room, Type: b.Type,
			Capacity: b.Capacity, Comfort: b.Comfort.Label(), Note: b.Note, CanBookSingle: b.CanBookSingle,
		})
	}
	for _, n := range c.Nights {
		out.Nights = append(out.Nights, dateDTO{ID: n.ID, Label: n.Label})
	}
	for _, d := range c.Days {
		out.Days = append(out.Days, dateDTO{ID: d.ID, Label: d.Label})
	}
	for _, p := range c.Periods {
		out.Periods = append(out.Periods, dateDTO{ID: string(p.ID), Label: p.Label})
	}
	writeData(w, http.StatusOK, out, domain.Result{})
}

func (s *Server) document(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap, err := s.svc.Document(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if snap.Revision != "" {
		w.Header().Set("ETag", strconv.Quote(snap.Revision))
	}
	w.Header().Set(degradedHeader, strconv.FormatBool(snap.Degraded))
	writeData(w, http.StatusOK, snap.Document, domain.Result{})
}

type seatDTO struct {
	BedID     string `json:"bedId"`
	Label     string `json:"label"`
	Available int    `json:"available"`
}

func (s *Server) availability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	night := ps.ByName("night")
	c := s.svc.Catalog()
	if !c.HasNight(night) {
		writeError(w, http.StatusNotFound, "unknown night "+night, "not_found")
		return
	}
	snap, err := s.svc.Document(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]seatDTO, 0, len(c.Beds))
	for _, b := range c.Beds {
		out = append(out, seatDTO{BedID: b.ID, Label: c.BedLabel(b.ID), Available: core.AvailableSeats(snap.Document, b, night, "")})
	}
	writeData(w, http.StatusOK, out, domain.Result{})
}

func (s *Server) renderSummary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap, err := s.svc.Document(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report := summary.Build(snap.Document, s.svc.Catalog(), s.now())
	var buf bytes.Buffer
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
		err = summary.RenderHTML(&buf, report)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case "pdf":
		err = summary.RenderPDF(&buf, report, summary.PDFOptions{ShareURL: s.shareURL})
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="riepilogo.pdf"`)
	default:
		writeError(w, http.StatusNotAcceptable, "unsupported summary format "+format, "")
		return
	}
	if err != nil {
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// --- users ---

type userRequest struct {
	Nome       string  `json:"nome"`
	Cognome    string  `json:"cognome"`
	AvatarType string  `json:"avatarType"`
	AvatarID   string  `json:"avatarId"`
	Email      *string `json:"email"`
	Telefono   *string `json:"telefono"`
}

type userPatchRequest struct {
	Nome       *string `json:"nome"`
	Cognome    *string `json:"cognome"`
	AvatarType *string `json:"avatarType"`
	AvatarID   *string `json:"avatarId"`
	Email      *string `json:"email"`
	Telefono   *string `json:"telefono"`
	IsAdmin    *bool   `json:"isAdmin"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, users, domain.Result{})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	u, ok, err := s.svc.GetUser(r.Context(), ps.ByName("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "user not found", "not_found")
		return
	}
	writeData(w, http.StatusOK, u, domain.Result{})
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	u, res, err := s.svc.RegisterUser(r.Context(), domain.User{
		Nome: req.Nome, Cognome: req.Cognome, AvatarType: req.AvatarType, AvatarID: req.AvatarID,
		Email: req.Email, Telefono: req.Telefono,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.written(w, http.StatusCreated, u, res)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req userPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	u, res, err := s.svc.UpdateUser(r.Context(), actorOf(r), ps.ByName("id"), core.UserPatch(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found", "not_found")
		return
	}
	s.written(w, http.StatusOK, u, res)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.svc.DeleteUser(r.Context(), actorOf(r), ps.ByName("id"))
	s.deleted(w, domain.EntityUser, ps.ByName("id"), res, err)
}

// deleted answers a delete. Deleting a missing record is not an error.
func (s *Server) deleted(w http.ResponseWriter, entity domain.EntityType, id string, _ domain.Result, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Forget(entity, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// written answers a successful create or update and patches the cache.
func (s *Server) written(w http.ResponseWriter, status int, record any, res domain.Result) {
	if s.cache != nil {
		s.cache.Apply(record)
	}
	writeData(w, status, record, res)
}

// --- bookings ---

type bookingRequest struct {
	UserID string `json:"userId"`
	BedID  string `json:"bedId"`
	Night  string `json:"night"`
}

type bookingPatchRequest struct {
	BedID *string `json:"bedId"`
	Night *string `json:"night"`
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bookings, err := s.svc.ListBookings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, bookings, domain.Result{})
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req bookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	b, res, err := s.svc.CreateBooking(r.Context(), actorOf(r), core.BookingRequest(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.written(w, http.StatusCreated, b, res)
}

func (s *Server) updateBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req bookingPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	b, res, err := s.svc.UpdateBooking(r.Context(), actorOf(r), ps.ByName("id"), core.BookingPatch(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "booking not found", "not_found")
		return
	}
	s.written(w, http.StatusOK, b, res)
}

func (s *Server) deleteBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.svc.DeleteBooking(r.Context(), actorOf(r), ps.ByName("id"))
	s.deleted(w, domain.EntityBooking, ps.ByName("id"), res, err)
}

// --- day visits ---

type dayVisitRequest struct {
	Date   string        `json:"date"`
	Period domain.Period `json:"period"`
}

func (s *Server) addDayVisit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req dayVisitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	v, res, err := s.svc.AddDayVisit(r.Context(), actorOf(r), req.Date, req.Period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.written(w, http.StatusCreated, v, res)
}

func (s *Server) deleteDayVisit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.svc.DeleteDayVisit(r.Context(), actorOf(r), ps.ByName("id"))
	s.deleted(w, domain.EntityDayVisit, ps.ByName("id"), res, err)
}

// --- activities ---

type activityRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type activityPatchRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s *Server) proposeActivity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req activityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	a, res, err := s.svc.ProposeActivity(r.Context(), actorOf(r), req.Title, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.written(w, http.StatusCreated, a, res)
}

func (s *Server) updateActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req activityPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	a, res, err := s.svc.UpdateActivity(r.Context(), actorOf(r), ps.ByName("id"), core.ActivityPatch(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "activity not found", "not_found")
		return
	}
	s.written(w, http.StatusOK, a, res)
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a, res, err := s.svc.ToggleLike(r.Context(), actorOf(r), ps.ByName("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "activity not found", "not_found")
		return
	}
	s.written(w, http.StatusOK, a, res)
}

func (s *Server) deleteActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.svc.DeleteActivity(r.Context(), actorOf(r), ps.ByName("id"))
	s.deleted(w, domain.EntityActivity, ps.ByName("id"), res, err)
}

// --- schedule ---

type scheduleRequest struct {
	ActivityID string `json:"activityId"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type schedulePatchRequest struct {
	Date *string `json:"date"`
	Time *string `json:"time"`
}

func (s *Server) scheduleActivity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	sa, res, err := s.svc.ScheduleActivity(r.Context(), actorOf(r), req.ActivityID, req.Date, req.Time)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.written(w, http.StatusCreated, sa, res)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req schedulePatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	sa, res, err := s.svc.UpdateScheduledActivity(r.Context(), actorOf(r), ps.ByName("id"), core.SchedulePatch(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sa == nil {
		writeError(w, http.StatusNotFound, "scheduled activity not found", "not_found")
		return
	}
	s.written(w, http.StatusOK, sa, res)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.svc.DeleteScheduledActivity(r.Context(), actorOf(r), ps.ByName("id"))
	s.deleted(w, domain.EntityScheduledActivity, ps.ByName("id"), res, err)
}

// --- rides ---

type rideRequest struct {
	DepartureDate    string  `json:"departureDate"`
	DepartureTime    string  `json:"departureTime"`
	DepartureTimeEnd *string `json:"departureTimeEnd"`
	SeatsOutbound    int     `json:"seatsOutbound"`
	ReturnDate       string  `json:"returnDate"`
	ReturnTime       string  `json:"returnTime"`
	ReturnTimeEnd    *string `json:"returnTimeEnd"`
	SeatsReturn      int     `json:"seatsReturn"`
	StartingPoint    string  `json:"startingPoint"`
	Note             string  `json:"note"`
}

type ridePatchRequest struct {
	DepartureDate    *string `json:"departureDate"`
	DepartureTime    *string `json:"departureTime"`
	DepartureTimeEnd *string `json:"departureTimeEnd"`
	SeatsOutbound    *int    `json:"seatsOutbound"`
	ReturnDate       *string `json:"returnDate"`
	ReturnTime       *string `json:"returnTime"`
	ReturnTimeEnd    *string `json:"returnTimeEnd"`
	SeatsReturn      *int    `json:"seatsReturn"`
	StartingPoint    *string `json:"startingPoint"`
	Note             *string `json:"note"`
}

func (s *Server) offerRide(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req rideRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	ride, res, err := s.svc.OfferRide(r.Context(), actorOf(r), core.RideOffer(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.written(w, http.StatusCreated, ride, res)
}

func (s *Server) updateRide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req ridePatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	ride, res, err := s.svc.UpdateCarRide(r.Context(), actorOf(r), ps.ByName("id"), core.RidePatch(req))
	s.rideResult(w, ride, res, err)
}

func (s *Server) deleteRide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.svc.DeleteCarRide(r.Context(), actorOf(r), ps.ByName("id"))
	s.deleted(w, domain.EntityCarRide, ps.ByName("id"), res, err)
}

func (s *Server) joinRide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ride, res, err := s.svc.JoinRide(r.Context(), actorOf(r), ps.ByName("id"), domain.Leg(ps.ByName("leg")))
	s.rideResult(w, ride, res, err)
}

func (s *Server) leaveRide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ride, res, err := s.svc.LeaveRide(r.Context(), actorOf(r), ps.ByName("id"), domain.Leg(ps.ByName("leg")))
	s.rideResult(w, ride, res, err)
}

func (s *Server) rideResult(w http.ResponseWriter, ride *domain.CarRide, res domain.Result, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ride == nil {
		writeError(w, http.StatusNotFound, "ride not found", "not_found")
		return
	}
	s.written(w, http.StatusOK, ride, res)
}
