// Package presentation renders finalized fortunes: level styling, the result
// card markup and export file naming.
package presentation

import (
	"strings"
	"unicode"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/divination"
)

// Level style classes.
const (
	LevelLow  = "level-low"
	LevelHigh = "level-high"
	LevelMid  = "level-mid"
)

// Level markers. The negative marker is checked first so "下吉" styles low.
const (
	negativeMarker  = "下"
	favorableMarker = "吉"
)

// LevelClass maps a fortune level to its style class.
func LevelClass(level string) string {
	switch {
	case strings.Contains(level, negativeMarker):
		return LevelLow
	case strings.Contains(level, favorableMarker):
		return LevelHigh
	default:
		return LevelMid
	}
}

// OutcomeLabel returns the display name of a throw outcome.
func OutcomeLabel(o divination.Outcome) string {
	switch o {
	case divination.OutcomeAccept:
		return "聖筊"
	case divination.OutcomeLaughing:
		return "笑筊"
	case divination.OutcomeYin:
		return "陰筊"
	default:
		return ""
	}
}

// OutcomeHint is the line shown under the outcome label.
func OutcomeHint(o divination.Outcome) string {
	switch o {
	case divination.OutcomeAccept:
		return "神明應允，此籤為您所求"
	case divination.OutcomeLaughing, divination.OutcomeYin:
		return "神明未允，請重新求籤"
	default:
		return ""
	}
}

// ExportFilename names the exported image: "{deity}靈籤_{title}.png".
func ExportFilename(deityName, title string) string {
	return sanitize(deityName) + "靈籤_" + sanitize(title) + ".png"
}

// ViewTitle is the title of the fallback image view page.
func ViewTitle(deityName, title string) string {
	return deityName + "靈籤 - " + title
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '"' || r == '*' || r == '?' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return s
}

// Card is the view model of a result card.
type Card struct {
	DeityName  string
	Title      string
	Level      string
	LevelClass string
	PoemLines  []string
	Explain    string
	Outcome    string
}

// NewCard builds the card of a finalized entry.
func NewCard(deityName string, e catalog.FortuneEntry) Card {
	return Card{
		DeityName:  deityName,
		Title:      e.Title,
		Level:      e.Level,
		LevelClass: LevelClass(e.Level),
		PoemLines:  PoemLines(e.Poem),
		Explain:    e.Explain,
		Outcome:    OutcomeLabel(divination.OutcomeAccept),
	}
}

// CardFromSnapshot builds the card of a finalized snapshot, or reports
// divination.ErrNoResult.
func CardFromSnapshot(s divination.Snapshot) (Card, error) {
	if s.Finalized == nil {
		return Card{}, divination.ErrNoResult
	}
	return NewCard(s.DeityName, *s.Finalized), nil
}

// Filename is the export file name of the card.
func (c Card) Filename() string {
	return ExportFilename(c.DeityName, c.Title)
}

// PoemLines splits a poem on newlines and the full-width comma, dropping blanks.
func PoemLines(poem string) []string {
	fields := strings.FieldsFunc(poem, func(r rune) bool {
		return r == '\n' || r == '，' || r == '。'
	})
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			lines = append(lines, f)
		}
	}
	return lines
}
