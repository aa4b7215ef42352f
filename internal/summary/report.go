// Package summary builds the printable overview of the event: participants,
// beds per night, daytime presence, proposed and scheduled activities and
// shared rides.
package summary

import (
	"sort"
	"time"

	"cabincore/pkg/domain"
)

// Title is the heading used by every renderer.
const Title = "Riepilogo Weekend in Montagna"

// Report is the renderer-independent summary of a document.
type Report struct {
	Title        string
	Subtitle     string
	GeneratedAt  time.Time
	Participants []Participant
	Nights       []NightSection
	Days         []DaySection
	Activities   []ActivityLine
	Calendar     []CalendarLine
	Rides        []RideLine
}

// Participant is one registered user.
type Participant struct {
	Name    string
	Contact string
	Admin   bool
}

// NightSection lists who sleeps where on one night.
type NightSection struct {
	Label    string
	Bookings []BookingLine
	Free     int
}

// BookingLine pairs a guest with a bed.
type BookingLine struct {
	Guest string
	Bed   string
}

// DaySection lists daytime presence per period.
type DaySection struct {
	Label      string
	ShortLabel string
	Periods    []PeriodLine
}

// PeriodLine lists the guests present during one period.
type PeriodLine struct {
	Label  string
	Guests []string
}

// ActivityLine summarises one proposal.
type ActivityLine struct {
	Title       string
	Description string
	ProposedBy  string
	Likes       int
}

// CalendarLine is one scheduled activity.
type CalendarLine struct {
	Day      string
	Time     string
	Activity string
}

// RideLine summarises one shared ride.
type RideLine struct {
	Driver        string
	StartingPoint string
	Outbound      LegLine
	Return        LegLine
	Note          string
}

// LegLine describes one direction of a ride.
type LegLine struct {
	When       string
	Seats      int
	Passengers []string
}

// Build assembles the report. Records pointing at deleted users or
// activities are kept with placeholder names.
func Build(doc domain.Document, catalog domain.Catalog, now time.Time) Report {
	names := make(map[string]string, len(doc.Users))
	for _, u := range doc.Users {
		names[u.ID] = u.DisplayName()
	}
	nameOf := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	r := Report{
		Title:       Title,
		Subtitle:    "20–23 Febbraio 2026",
		GeneratedAt: now,
	}

	for _, u := range doc.Users {
		contact := "–"
		switch {
		case u.Email != nil && *u.Email != "":
			contact = *u.Email
		case u.Telefono != nil && *u.Telefono != "":
			contact = *u.Telefono
		}
		r.Participants = append(r.Participants, Participant{Name: u.DisplayName(), Contact: contact, Admin: u.IsAdmin})
	}

	totalSeats := 0
	for _, b := range catalog.Beds {
		totalSeats += b.Capacity
	}
	for _, night := range catalog.Nights {
		section := NightSection{Label: night.Label, Free: totalSeats}
		for _, b := range doc.Bookings {
			if b.Night != night.ID {
				continue
			}
			section.Bookings = append(section.Bookings, BookingLine{Guest: nameOf(b.UserID), Bed: catalog.BedLabel(b.BedID)})
			section.Free--
		}
		if section.Free < 0 {
			section.Free = 0
		}
		r.Nights = append(r.Nights, section)
	}

	for _, day := range catalog.Days {
		section := DaySection{Label: day.Label, ShortLabel: day.ShortLabel}
		for _, p := range catalog.Periods {
			line := PeriodLine{Label: p.Label}
			for _, v := range doc.DayVisits {
				if v.Date != day.ID || v.Period != p.ID {
					continue
				}
				if _, known := names[v.UserID]; known {
					line.Guests = append(line.Guests, names[v.UserID])
				}
			}
			if len(line.Guests) > 0 {
				section.Periods = append(section.Periods, line)
			}
		}
		r.Days = append(r.Days, section)
	}

	titles := make(map[string]string, len(doc.Activities))
	for _, a := range doc.Activities {
		titles[a.ID] = a.Title
		proposer := "?"
		if n, ok := names[a.UserID]; ok {
			proposer = n
		}
		r.Activities = append(r.Activities, ActivityLine{Title: a.Title, Description: a.Description, ProposedBy: proposer, Likes: len(a.Likes)})
	}

	scheduled := append([]domain.ScheduledActivity(nil), doc.ScheduledActivities...)
	sort.SliceStable(scheduled, func(i, j int) bool {
		if scheduled[i].Date != scheduled[j].Date {
			return scheduled[i].Date < scheduled[j].Date
		}
		return scheduled[i].Time < scheduled[j].Time
	})
	for _, sa := range scheduled {
		title, ok := titles[sa.ActivityID]
		if !ok {
			title = "(eliminata)"
		}
		clock := sa.Time
		if clock == "" {
			clock = "–"
		}
		r.Calendar = append(r.Calendar, CalendarLine{Day: catalog.DateLabel(sa.Date), Time: clock, Activity: title})
	}

	for _, ride := range doc.CarRides {
		line := RideLine{
			Driver:        nameOf(ride.UserID),
			StartingPoint: ride.StartingPoint,
			Note:          ride.Note,
			Outbound:      legLine(catalog, ride.DepartureDate, ride.DepartureTime, ride.DepartureTimeEnd, ride.SeatsOutbound),
			Return:        legLine(catalog, ride.ReturnDate, ride.ReturnTime, ride.ReturnTimeEnd, ride.SeatsReturn),
		}
		for _, id := range ride.PassengersOutbound {
			line.Outbound.Passengers = append(line.Outbound.Passengers, nameOf(id))
		}
		for _, id := range ride.PassengersReturn {
			line.Return.Passengers = append(line.Return.Passengers, nameOf(id))
		}
		r.Rides = append(r.Rides, line)
	}
	return r
}

func legLine(catalog domain.Catalog, date, clock string, end *string, seats int) LegLine {
	if date == "" {
		return LegLine{Seats: seats}
	}
	when := catalog.DateLabel(date)
	if clock != "" {
		when += " " + clock
		if end != nil && *end != "" {
			when += "–" + *end
		}
	}
	return LegLine{When: when, Seats: seats}
}
