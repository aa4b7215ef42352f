package summary

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

var funcs = template.FuncMap{
	"join":  func(items []string) string { return strings.Join(items, ", ") },
	"stamp": func(r Report) string { return r.GeneratedAt.Format("02/01/2006 15:04") },
}

var page = template.Must(template.New("summary").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="it">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    @page { size: A4; margin: 1.5cm; }
    * { box-sizing: border-box; }
    body { font-family: 'Segoe UI', system-ui, sans-serif; font-size: 11pt; line-height: 1.4; color: #1f2937; margin: 0; padding: 12px; background: #f3f4f6; }
    .page { max-width: 210mm; min-height: 297mm; margin: 0 auto; padding: 14mm; background: #fff; }
    h1 { font-size: 18pt; margin: 0 0 4px 0; color: #1e40af; border-bottom: 2px solid #1e40af; padding-bottom: 6px; }
    .subtitle { font-size: 10pt; color: #6b7280; margin: 0 0 16px 0; }
    h2 { font-size: 13pt; margin: 16px 0 8px 0; color: #374151; }
    table { width: 100%; border-collapse: collapse; margin: 8px 0; font-size: 10pt; }
    th, td { border: 1px solid #e5e7eb; padding: 6px 8px; text-align: left; }
    th { background: #f3f4f6; font-weight: 600; }
    ul { margin: 4px 0; padding-left: 20px; }
    @media print {
      body { background: #fff; padding: 0; }
      .page { max-width: none; padding: 0; min-height: auto; }
    }
  </style>
</head>
<body>
<div class="page">
<h1>{{.Title}}</h1>
<p class="subtitle">{{.Subtitle}} • Generato il {{stamp .}}</p>

<h2>Partecipanti ({{len .Participants}})</h2>
<table><thead><tr><th>Nome</th><th>Contatto</th></tr></thead><tbody>
{{- range .Participants}}
<tr><td>{{.Name}}{{if .Admin}} ★{{end}}</td><td>{{.Contact}}</td></tr>
{{- end}}
</tbody></table>

<h2>Prenotazioni posti letto</h2>
{{- range .Nights}}
{{- if .Bookings}}
<p><strong>{{.Label}}</strong> ({{.Free}} posti liberi)</p>
<ul>
{{- range .Bookings}}
<li>{{.Guest}} → {{.Bed}}</li>
{{- end}}
</ul>
{{- else}}
<p><strong>{{.Label}}</strong>: nessuna prenotazione.</p>
{{- end}}
{{- end}}

<h2>Presenze in giornata</h2>
{{- range .Days}}
{{- if .Periods}}
<p><strong>{{.Label}}</strong></p>
<ul>
{{- range .Periods}}
<li>{{.Label}}: {{join .Guests}}</li>
{{- end}}
</ul>
{{- else}}
<p><strong>{{.ShortLabel}}</strong>: nessuna presenza indicata.</p>
{{- end}}
{{- end}}

<h2>Attività proposte ({{len .Activities}})</h2>
{{- if .Activities}}
<ul>
{{- range .Activities}}
<li><strong>{{.Title}}</strong>{{if .Description}} – {{.Description}}{{end}} (proposta da {{.ProposedBy}}, {{.Likes}} like)</li>
{{- end}}
</ul>
{{- else}}
<p>Nessuna proposta.</p>
{{- end}}

<h2>Attività in calendario</h2>
{{- if .Calendar}}
<table><thead><tr><th>Giorno</th><th>Ora</th><th>Attività</th></tr></thead><tbody>
{{- range .Calendar}}
<tr><td>{{.Day}}</td><td>{{.Time}}</td><td>{{.Activity}}</td></tr>
{{- end}}
</tbody></table>
{{- else}}
<p>Nessuna attività schedulata.</p>
{{- end}}

<h2>Passaggi in auto ({{len .Rides}})</h2>
{{- if .Rides}}
<table><thead><tr><th>Autista</th><th>Andata</th><th>Ritorno</th><th>Note</th></tr></thead><tbody>
{{- range .Rides}}
<tr><td>{{.Driver}}{{if .StartingPoint}} (da {{.StartingPoint}}){{end}}</td>
<td>{{if .Outbound.When}}{{.Outbound.When}} · {{len .Outbound.Passengers}}/{{.Outbound.Seats}}{{if .Outbound.Passengers}}: {{join .Outbound.Passengers}}{{end}}{{else}}–{{end}}</td>
<td>{{if .Return.When}}{{.Return.When}} · {{len .Return.Passengers}}/{{.Return.Seats}}{{if .Return.Passengers}}: {{join .Return.Passengers}}{{end}}{{else}}–{{end}}</td>
<td>{{.Note}}</td></tr>
{{- end}}
</tbody></table>
{{- else}}
<p>Nessun passaggio offerto.</p>
{{- end}}
</div>
</body>
</html>
`))

// RenderHTML writes the report as a printable A4 HTML page.
func RenderHTML(w io.Writer, r Report) error {
	if err := page.Execute(w, r); err != nil {
		return fmt.Errorf("render summary html: %w", err)
	}
	return nil
}
