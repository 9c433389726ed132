package handlers

import (
	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/divination"
	"github.com/bobmcallan/lingqian/internal/presentation"
	"github.com/bobmcallan/lingqian/internal/session"
)

// DeityResponse is one entry of the deity menu.
type DeityResponse struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	ShortName   string `json:"short_name"`
	Theme       string `json:"theme"`
	Description string `json:"description"`
	Entries     int    `json:"entries"`
}

// NewDeityResponse summarises a deity without its entries.
func NewDeityResponse(d *catalog.Deity) DeityResponse {
	return DeityResponse{
		Key:         d.Key,
		Name:        d.Name,
		ShortName:   d.ShortName,
		Theme:       d.Theme,
		Description: d.Description,
		Entries:     d.Len(),
	}
}

// ResultResponse is a finalized fortune ready for display.
type ResultResponse struct {
	DeityName  string   `json:"deity_name"`
	Title      string   `json:"title"`
	Level      string   `json:"level"`
	LevelClass string   `json:"level_class"`
	Poem       string   `json:"poem"`
	PoemLines  []string `json:"poem_lines"`
	Explain    string   `json:"explain"`
	Filename   string   `json:"filename"`
	Saved      bool     `json:"saved"`
}

// SnapshotResponse is the session state sent to the browser and MCP clients.
type SnapshotResponse struct {
	divination.Snapshot
	SessionID    string          `json:"session_id,omitempty"`
	Busy         bool            `json:"busy"`
	CanDraw      bool            `json:"can_draw"`
	OutcomeLabel string          `json:"outcome_label,omitempty"`
	OutcomeHint  string          `json:"outcome_hint,omitempty"`
	Result       *ResultResponse `json:"result,omitempty"`
}

// NewSnapshotResponse decorates a snapshot with display fields. s may be nil
// when no session context is available.
func NewSnapshotResponse(s *session.Session, snap divination.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Snapshot:     snap,
		Busy:         snap.Phase.Busy(),
		CanDraw:      snap.Phase == divination.PhaseIdle && snap.DeityKey != "",
		OutcomeLabel: presentation.OutcomeLabel(snap.LastOutcome),
		OutcomeHint:  presentation.OutcomeHint(snap.LastOutcome),
	}
	if s != nil {
		resp.SessionID = s.ID
	}
	if snap.Finalized != nil {
		card := presentation.NewCard(snap.DeityName, *snap.Finalized)
		resp.Result = &ResultResponse{
			DeityName:  snap.DeityName,
			Title:      card.Title,
			Level:      card.Level,
			LevelClass: card.LevelClass,
			Poem:       snap.Finalized.Poem,
			PoemLines:  card.PoemLines,
			Explain:    card.Explain,
			Filename:   card.Filename(),
			Saved:      s != nil && s.Saved(snap.Generation),
		}
	}
	return resp
}
