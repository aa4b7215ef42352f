package summary

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cabincore/pkg/domain"
)

var generated = time.Date(2026, 2, 19, 20, 15, 0, 0, time.UTC)

func fixture() domain.Document {
	mail := "anna@example.com"
	end := "09:30"
	doc := domain.SeedDocument(generated)
	doc.Users = append(doc.Users, domain.User{ID: "u1", Nome: "Anna", Cognome: "Riva", Email: &mail})
	doc.Bookings = []domain.Booking{
		{ID: "b1", BedID: "A4", Night: "2026-02-20", UserID: "u1"},
		{ID: "b2", BedID: "B3", Night: "2026-02-20", UserID: "ghost"},
	}
	doc.DayVisits = []domain.DayVisit{
		{ID: "d1", UserID: "u1", Date: "2026-02-22", Period: domain.PeriodMorning},
		{ID: "d2", UserID: "ghost", Date: "2026-02-22", Period: domain.PeriodEvening},
	}
	doc.Activities = []domain.Activity{{ID: "a1", Title: "Ciaspole <notturne>", Description: "lago", UserID: "u1", Likes: []string{"u1", domain.SeedAdminID}}}
	doc.ScheduledActivities = []domain.ScheduledActivity{
		{ID: "s2", ActivityID: "gone", Date: "2026-02-22", Time: "09:00"},
		{ID: "s1", ActivityID: "a1", Date: "2026-02-21", Time: "20:00"},
	}
	doc.CarRides = []domain.CarRide{{
		ID: "r1", UserID: domain.SeedAdminID, DepartureDate: "2026-02-20", DepartureTime: "08:00", DepartureTimeEnd: &end,
		SeatsOutbound: 3, PassengersOutbound: []string{"u1"}, StartingPoint: "Trento",
	}}
	doc.Normalize()
	return doc
}

func TestBuild(t *testing.T) {
	r := Build(fixture(), domain.DefaultCatalog(), generated)
	if len(r.Participants) != 2 || r.Participants[1].Contact != "anna@example.com" || r.Participants[0].Contact != "–" {
		t.Fatalf("unexpected participants %+v", r.Participants)
	}
	if len(r.Nights) != 2 || len(r.Nights[0].Bookings) != 2 || len(r.Nights[1].Bookings) != 0 {
		t.Fatalf("unexpected nights %+v", r.Nights)
	}
	if r.Nights[0].Free != 16 || r.Nights[1].Free != 18 {
		t.Fatalf("unexpected free seats %d/%d", r.Nights[0].Free, r.Nights[1].Free)
	}
	if r.Nights[0].Bookings[1].Guest != "ghost" {
		t.Fatalf("unknown guests fall back to their id")
	}
	sunday := r.Days[2]
	if len(sunday.Periods) != 1 || sunday.Periods[0].Guests[0] != "Anna Riva" {
		t.Fatalf("unexpected presence %+v", sunday)
	}
	if r.Activities[0].Likes != 2 || r.Activities[0].ProposedBy != "Anna Riva" {
		t.Fatalf("unexpected activities %+v", r.Activities)
	}
	if len(r.Calendar) != 2 || r.Calendar[0].Activity != "Ciaspole <notturne>" || r.Calendar[1].Activity != "(eliminata)" {
		t.Fatalf("calendar must be sorted by date and mark deleted activities: %+v", r.Calendar)
	}
	ride := r.Rides[0]
	if ride.Driver != "Manuel Berno" || !strings.Contains(ride.Outbound.When, "08:00–09:30") || ride.Return.When != "" {
		t.Fatalf("unexpected ride %+v", ride)
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, Build(fixture(), domain.DefaultCatalog(), generated)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>" + Title + "</title>",
		"Partecipanti (2)",
		"Ciaspole &lt;notturne&gt;",
		"Generato il 19/02/2026 20:15",
		"Sabato 21: nessuna prenotazione.",
		"1/3: Anna Riva",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<notturne>") {
		t.Fatalf("activity title not escaped")
	}
}

func TestRenderPDF(t *testing.T) {
	r := Build(fixture(), domain.DefaultCatalog(), generated)
	for _, share := range []string{"", "https://example.com/baite"} {
		var buf bytes.Buffer
		if err := RenderPDF(&buf, r, PDFOptions{ShareURL: share}); err != nil {
			t.Fatalf("render pdf (share=%q): %v", share, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
			t.Fatalf("output is not a PDF")
		}
	}
	var empty bytes.Buffer
	if err := RenderPDF(&empty, Build(domain.Document{}, domain.DefaultCatalog(), generated), PDFOptions{}); err != nil {
		t.Fatalf("render empty pdf: %v", err)
	}
}
