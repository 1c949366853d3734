package contact

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/microcosm-cc/bluemonday"
)

var labels = map[string]map[string]string{
	"type": {
		TypeIndividual:   "Particulier",
		TypeProfessional: "Professionnel",
	},
	"budget": {
		"moins-500": "Moins de 500 €",
		"500-1000":  "500 € à 1 000 €",
		"1000-5000": "1 000 € à 5 000 €",
		"plus-5000": "Plus de 5 000 €",
		"a-definir": "À définir",
	},
	"deadline": {
		"urgent":    "Urgent",
		"1-semaine": "Sous une semaine",
		"1-mois":    "Sous un mois",
		"flexible":  "Flexible",
	},
}

func label(group, value string) string {
	if l, ok := labels[group][value]; ok {
		return l
	}
	return value
}

var funcs = template.FuncMap{
	"label": label,
	"size":  humanSize,
	"lines": func(s string) []string { return strings.Split(s, "\n") },
}

var adminTemplate = template.Must(template.New("admin").Funcs(funcs).Parse(`<!doctype html>
<html lang="fr"><body style="font-family:sans-serif;color:#1f2937">
<h1 style="font-size:20px">Nouvelle demande de devis</h1>
<table cellpadding="4">
<tr><td><strong>Type</strong></td><td>{{label "type" .Type}}</td></tr>
<tr><td><strong>Nom</strong></td><td>{{.Name}}</td></tr>
<tr><td><strong>Email</strong></td><td><a href="mailto:{{.Email}}">{{.Email}}</a></td></tr>
{{- if .Phone}}
<tr><td><strong>Téléphone</strong></td><td>{{.Phone}}</td></tr>
{{- end}}
{{- if .Company}}
<tr><td><strong>Entreprise</strong></td><td>{{.Company}}</td></tr>
{{- end}}
{{- if .Budget}}
<tr><td><strong>Budget</strong></td><td>{{label "budget" .Budget}}</td></tr>
{{- end}}
{{- if .Deadline}}
<tr><td><strong>Délai</strong></td><td>{{label "deadline" .Deadline}}</td></tr>
{{- end}}
</table>
<h2 style="font-size:16px">Projet</h2>
<p>{{range $i, $l := lines .ProjectDescription}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
{{- if .Files}}
<h2 style="font-size:16px">Fichiers joints</h2>
<ul>
{{- range .Files}}
<li><a href="{{.URL}}">{{.Name}}</a> ({{size .Size}}{{if .Category}}, {{.Category}}{{end}})</li>
{{- end}}
</ul>
{{- end}}
<p style="color:#6b7280;font-size:12px">Reçu le {{.ReceivedAt}}, référence {{.ID}}</p>
</body></html>`))

var customerTemplate = template.Must(template.New("customer").Funcs(funcs).Parse(`<!doctype html>
<html lang="fr"><body style="font-family:sans-serif;color:#1f2937">
<p>Bonjour {{.Name}},</p>
<p>Merci pour votre demande. Nous l'avons bien reçue et reviendrons vers vous sous 48 heures ouvrées avec une première estimation.</p>
<p><strong>Récapitulatif de votre projet :</strong></p>
<p>{{range $i, $l := lines .ProjectDescription}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
{{- if .Files}}
<p>{{len .Files}} fichier(s) joint(s) :</p>
<ul>
{{- range .Files}}
<li>{{.Name}} ({{size .Size}})</li>
{{- end}}
</ul>
{{- end}}
<p>À très bientôt,<br>L'équipe {{.CompanyName}}</p>
<p style="color:#6b7280;font-size:12px">Référence : {{.ID}}</p>
</body></html>`))

type templateData struct {
	Submission
	ID          string
	ReceivedAt  string
	CompanyName string
}

// sanitizer strips markup from user input before it reaches a template. The template escapes
// again, so entities produced by the policy are decoded first.
type sanitizer struct {
	policy *bluemonday.Policy
}

func newSanitizer() sanitizer {
	return sanitizer{policy: bluemonday.StrictPolicy()}
}

func (s sanitizer) text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func (s sanitizer) submission(in Submission) Submission {
	out := in
	out.Name = s.text(in.Name)
	out.Company = s.text(in.Company)
	out.Phone = s.text(in.Phone)
	out.ProjectDescription = s.text(in.ProjectDescription)
	if len(in.Files) > 0 {
		out.Files = make([]FileRef, len(in.Files))
		for i, f := range in.Files {
			f.Name = s.text(f.Name)
			out.Files[i] = f
		}
	}
	return out
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("contact: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func plainText(data templateData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nouvelle demande de devis (%s)\n\n", data.ID)
	fmt.Fprintf(&b, "Type : %s\nNom : %s\nEmail : %s\n", label("type", data.Type), data.Name, data.Email)
	if data.Phone != "" {
		fmt.Fprintf(&b, "Téléphone : %s\n", data.Phone)
	}
	if data.Company != "" {
		fmt.Fprintf(&b, "Entreprise : %s\n", data.Company)
	}
	if data.Budget != "" {
		fmt.Fprintf(&b, "Budget : %s\n", label("budget", data.Budget))
	}
	if data.Deadline != "" {
		fmt.Fprintf(&b, "Délai : %s\n", label("deadline", data.Deadline))
	}
	fmt.Fprintf(&b, "\n%s\n", data.ProjectDescription)
	for _, f := range data.Files {
		fmt.Fprintf(&b, "- %s (%s) %s\n", f.Name, humanSize(f.Size), f.URL)
	}
	return b.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d o", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %co", float64(n)/float64(div), "KMGT"[exp])
}

func formatReceived(t time.Time) string {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		paris = time.UTC
	}
	return t.In(paris).Format("02/01/2006 à 15:04")
}
