package domain

import "fmt"

// ComfortTier distinguishes proper beds from improvised sleeping spots.
type ComfortTier string

// Comfort tiers.
const (
	ComfortStandard ComfortTier = "standard"
	ComfortRustic   ComfortTier = "alla_buona"
)

// Label returns the display label for the tier.
func (c ComfortTier) Label() string {
	if c == ComfortRustic {
		return "Alla buona"
	}
	return "Standard"
}

// Cabin is a static lodging building.
type Cabin struct {
	ID       string
	Name     string
	Nickname string
}

// Bed is a static sleeping spot inside a cabin. Capacity is the number of
// people that may book it on the same night.
type Bed struct {
	ID            string
	CabinID       string
	Room          string
	Type          string
	Capacity      int
	Comfort       ComfortTier
	Note          string
	CanBookSingle bool
}

// CalendarDate is a bookable night or a presence day.
type CalendarDate struct {
	ID         string
	Label      string
	ShortLabel string
}

// PeriodInfo describes one of the daily presence segments.
type PeriodInfo struct {
	ID    Period
	Label string
	Hours string
}

// Catalog is the immutable event configuration: cabins, beds, nights and days.
type Catalog struct {
	Cabins  []Cabin
	Beds    []Bed
	Nights  []CalendarDate
	Days    []CalendarDate
	Periods []PeriodInfo
}

// DefaultCatalog returns the catalog of the February 2026 weekend.
func DefaultCatalog() Catalog {
	return Catalog{
		Cabins: []Cabin{
			{ID: "A", Name: "Antica Patta", Nickname: "La Baita Alta"},
			{ID: "B", Name: "Nuova Forza", Nickname: "La Baita Bassa"},
		},
		Beds: []Bed{
			{ID: "A1", CabinID: "A", Room: "Camera Matrimoniale", Type: "Letto Matrimoniale", Capacity: 2, Comfort: ComfortStandard, Note: "Letto principale della camera", CanBookSingle: true},
			{ID: "A2", CabinID: "A", Room: "Camera Matrimoniale", Type: "Brandina Singola", Capacity: 1, Comfort: ComfortRustic, Note: "Aggiuntivo nella matrimoniale"},
			{ID: "A3", CabinID: "A", Room: "Camera Matrimoniale", Type: "Matrimoniale Gonfiabile", Capacity: 2, Comfort: ComfortRustic, Note: "Materasso gonfiabile aggiuntivo", CanBookSingle: true},
			{ID: "A4", CabinID: "A", Room: "Camera Doppia", Type: "Letto a Castello", Capacity: 2, Comfort: ComfortStandard, Note: "1 sopra, 1 sotto", CanBookSingle: true},
			{ID: "A5", CabinID: "A", Room: "Camera Doppia", Type: "Letto Singolo", Capacity: 1, Comfort: ComfortStandard, Note: "Aggiuntivo nella doppia"},
			{ID: "A6", CabinID: "A", Room: "Disimpegno (Tenda)", Type: "Materassi a terra", Capacity: 2, Comfort: ComfortRustic, Note: "Spazio separato da tenda, non completamente chiuso", CanBookSingle: true},
			{ID: "A7", CabinID: "A", Room: "Soggiorno", Type: "Divano", Capacity: 1, Comfort: ComfortRustic, Note: "Posto di fortuna"},
			{ID: "B1", CabinID: "B", Room: "Camera Matrimoniale", Type: "Letto Matrimoniale", Capacity: 2, Comfort: ComfortStandard, Note: "Letto principale", CanBookSingle: true},
			{ID: "B2", CabinID: "B", Room: "Soggiorno", Type: "Divano Letto", Capacity: 2, Comfort: ComfortStandard, Note: "In zona comune", CanBookSingle: true},
			{ID: "B3", CabinID: "B", Room: "Mansarda/Disimpegno", Type: "Materassi", Capacity: 3, Comfort: ComfortRustic, Note: "Con cuscini, stile \"Grauno\"", CanBookSingle: true},
		},
		Nights: []CalendarDate{
			{ID: "2026-02-20", Label: "Venerdì 20", ShortLabel: "Ven 20"},
			{ID: "2026-02-21", Label: "Sabato 21", ShortLabel: "Sab 21"},
		},
		Days: []CalendarDate{
			{ID: "2026-02-20", Label: "Venerdì 20 Febbraio", ShortLabel: "Ven 20"},
			{ID: "2026-02-21", Label: "Sabato 21 Febbraio (Compleanno!)", ShortLabel: "Sab 21"},
			{ID: "2026-02-22", Label: "Domenica 22 Febbraio", ShortLabel: "Dom 22"},
		},
		Periods: []PeriodInfo{
			{ID: PeriodMorning, Label: "Mattina", Hours: "8:00 - 12:00"},
			{ID: PeriodAfternoon, Label: "Pomeriggio", Hours: "12:00 - 18:00"},
			{ID: PeriodEvening, Label: "Sera", Hours: "18:00 - 24:00"},
		},
	}
}

// Bed returns the bed with the given id.
func (c Catalog) Bed(id string) (Bed, bool) {
	for _, b := range c.Beds {
		if b.ID == id {
			return b, true
		}
	}
	return Bed{}, false
}

// Cabin returns the cabin with the given id.
func (c Catalog) Cabin(id string) (Cabin, bool) {
	for _, cb := range c.Cabins {
		if cb.ID == id {
			return cb, true
		}
	}
	return Cabin{}, false
}

// BedsInCabin returns the beds of cabinID in catalog order.
func (c Catalog) BedsInCabin(cabinID string) []Bed {
	var out []Bed
	for _, b := range c.Beds {
		if b.CabinID == cabinID {
			out = append(out, b)
		}
	}
	return out
}

// CabinCapacity sums bed capacities for cabinID.
func (c Catalog) CabinCapacity(cabinID string) int {
	total := 0
	for _, b := range c.BedsInCabin(cabinID) {
		total += b.Capacity
	}
	return total
}

// HasNight reports whether id is a bookable night.
func (c Catalog) HasNight(id string) bool {
	return hasDate(c.Nights, id)
}

// HasDay reports whether id is a presence day.
func (c Catalog) HasDay(id string) bool {
	return hasDate(c.Days, id)
}

// Period returns the descriptor for p.
func (c Catalog) Period(p Period) (PeriodInfo, bool) {
	for _, info := range c.Periods {
		if info.ID == p {
			return info, true
		}
	}
	return PeriodInfo{}, false
}

// BedLabel formats a bed as "cabin nickname – room (type)".
func (c Catalog) BedLabel(bedID string) string {
	bed, ok := c.Bed(bedID)
	if !ok {
		return bedID
	}
	cabin, _ := c.Cabin(bed.CabinID)
	return fmt.Sprintf("%s – %s (%s)", cabin.Nickname, bed.Room, bed.Type)
}

func hasDate(dates []CalendarDate, id string) bool {
	for _, d := range dates {
		if d.ID == id {
			return true
		}
	}
	return false
}

// DateLabel returns the label of a night or day id, falling back to the id.
func (c Catalog) DateLabel(id string) string {
	for _, d := range c.Days {
		if d.ID == id {
			return d.Label
		}
	}
	for _, d := range c.Nights {
		if d.ID == id {
			return d.Label
		}
	}
	return id
}
