package summary

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// PDFOptions controls the PDF renderer.
type PDFOptions struct {
	// ShareURL, when set, is printed as a QR code on the first page.
	ShareURL string
}

const (
	pageWidth = 210.0
	margin    = 15.0
	lineH     = 5.5
	qrSize    = 32.0
)

// RenderPDF writes the report as an A4 PDF.
func RenderPDF(w io.Writer, r Report, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(r.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(30, 64, 175)
	pdf.CellFormat(0, 10, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s • Generato il %s", r.Subtitle, r.GeneratedAt.Format("02/01/2006 15:04"))), "", 1, "L", false, 0, "")
	pdf.SetTextColor(31, 41, 55)

	if opts.ShareURL != "" {
		png, err := qrcode.Encode(opts.ShareURL, qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("encode share qr: %w", err)
		}
		imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("share", imgOpts, bytes.NewReader(png))
		pdf.ImageOptions("share", pageWidth-margin-qrSize, margin, qrSize, qrSize, false, imgOpts, 0, "")
		pdf.SetY(margin + qrSize + 2)
	}

	heading := func(text string) {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 8, tr(text), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
	}
	line := func(text string) {
		pdf.MultiCell(0, lineH, tr(text), "", "L", false)
	}

	heading(fmt.Sprintf("Partecipanti (%d)", len(r.Participants)))
	for _, p := range r.Participants {
		name := p.Name
		if p.Admin {
			name += " (admin)"
		}
		line(fmt.Sprintf("%s – %s", name, p.Contact))
	}

	heading("Prenotazioni posti letto")
	for _, n := range r.Nights {
		if len(n.Bookings) == 0 {
			line(n.Label + ": nessuna prenotazione.")
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		line(fmt.Sprintf("%s (%d posti liberi)", n.Label, n.Free))
		pdf.SetFont("Arial", "", 10)
		for _, b := range n.Bookings {
			line(fmt.Sprintf("  • %s -> %s", b.Guest, b.Bed))
		}
	}

	heading("Presenze in giornata")
	for _, d := range r.Days {
		if len(d.Periods) == 0 {
			line(d.ShortLabel + ": nessuna presenza indicata.")
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		line(d.Label)
		pdf.SetFont("Arial", "", 10)
		for _, p := range d.Periods {
			line(fmt.Sprintf("  • %s: %s", p.Label, strings.Join(p.Guests, ", ")))
		}
	}

	heading(fmt.Sprintf("Attività proposte (%d)", len(r.Activities)))
	if len(r.Activities) == 0 {
		line("Nessuna proposta.")
	}
	for _, a := range r.Activities {
		text := a.Title
		if a.Description != "" {
			text += " – " + a.Description
		}
		line(fmt.Sprintf("  • %s (proposta da %s, %d like)", text, a.ProposedBy, a.Likes))
	}

	heading("Attività in calendario")
	if len(r.Calendar) == 0 {
		line("Nessuna attività schedulata.")
	}
	for _, c := range r.Calendar {
		line(fmt.Sprintf("  • %s %s – %s", c.Day, c.Time, c.Activity))
	}

	heading(fmt.Sprintf("Passaggi in auto (%d)", len(r.Rides)))
	if len(r.Rides) == 0 {
		line("Nessun passaggio offerto.")
	}
	for _, ride := range r.Rides {
		head := ride.Driver
		if ride.StartingPoint != "" {
			head += " da " + ride.StartingPoint
		}
		pdf.SetFont("Arial", "B", 10)
		line(head)
		pdf.SetFont("Arial", "", 10)
		for _, leg := range []struct {
			label string
			leg   LegLine
		}{{"Andata", ride.Outbound}, {"Ritorno", ride.Return}} {
			if leg.leg.When == "" {
				continue
			}
			text := fmt.Sprintf("  • %s: %s, %d/%d posti", leg.label, leg.leg.When, len(leg.leg.Passengers), leg.leg.Seats)
			if len(leg.leg.Passengers) > 0 {
				text += " (" + strings.Join(leg.leg.Passengers, ", ") + ")"
			}
			line(text)
		}
		if ride.Note != "" {
			line("  " + ride.Note)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render summary pdf: %w", err)
	}
	return nil
}
