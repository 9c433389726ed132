package presentation

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// CardSelector is the CSS selector of the card element in rendered markup.
const CardSelector = "#fortune-card"

// DefaultBackground is the card background used for exports.
const DefaultBackground = "#fff9e6"

// Renderer executes the card templates.
type Renderer struct {
	tmpl       *template.Template
	background string
}

// NewRenderer parses the embedded card templates. An empty background uses
// DefaultBackground.
func NewRenderer(background string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse card templates: %w", err)
	}
	if background == "" {
		background = DefaultBackground
	}
	return &Renderer{tmpl: tmpl, background: background}, nil
}

// Templates exposes the parsed templates so page templates can embed the
// "card" fragment.
func (r *Renderer) Templates() *template.Template {
	return r.tmpl
}

// Fragment renders the card element alone.
func (r *Renderer) Fragment(c Card) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "card", c); err != nil {
		return "", fmt.Errorf("failed to render card: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Document renders the card as a self-contained HTML page with inline styles,
// suitable for a headless browser with no access to the static assets.
func (r *Renderer) Document(c Card) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Card       Card
		Background template.CSS
	}{c, template.CSS(r.background)}
	if err := r.tmpl.ExecuteTemplate(&buf, "card_document", data); err != nil {
		return nil, fmt.Errorf("failed to render card document: %w", err)
	}
	return buf.Bytes(), nil
}

// ViewPage renders an HTML page showing png, for clients that cannot save
// the download directly.
func (r *Renderer) ViewPage(c Card, png []byte) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Title      string
		Image      template.URL
		Background template.CSS
	}{
		Title:      ViewTitle(c.DeityName, c.Title),
		Image:      template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
		Background: template.CSS(r.background),
	}
	if err := r.tmpl.ExecuteTemplate(&buf, "view_page", data); err != nil {
		return nil, fmt.Errorf("failed to render view page: %w", err)
	}
	return buf.Bytes(), nil
}
