// Package preview tracks one preview surface: the template being filled,
// its fill-in values, the generated preview and the export handshake.
package preview

import (
	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/renderer"
)

// State is the lifecycle position of a Session
type State int

const (
	StateClosed State = iota
	StateOpen
	StateFilled
	StateExporting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateFilled:
		return "filled"
	case StateExporting:
		return "exporting"
	default:
		return "unknown"
	}
}

// ExportRequest is the frozen template and values handed to the exporter
type ExportRequest struct {
	Template *models.Template
	Values   models.FillValues
}

// Session owns the fill-in values of a single preview. It is not safe for
// concurrent use; the UI event loop is its only owner.
type Session struct {
	state    State
	template *models.Template
	renderer *renderer.Renderer
	markers  []models.Marker
	values   models.FillValues
	preview  string
	lastErr  error
}

// NewSession returns a closed session
func NewSession() *Session {
	return &Session{state: StateClosed}
}

// State returns the current state
func (s *Session) State() State {
	return s.state
}

// Template returns the open template, or nil when closed
func (s *Session) Template() *models.Template {
	return s.template
}

// Markers returns the distinct markers of the open template
func (s *Session) Markers() []models.Marker {
	out := make([]models.Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Empty reports whether the open template has no markers
func (s *Session) Empty() bool {
	return s.state != StateClosed && len(s.markers) == 0
}

// Open starts a fresh session for tmpl. Any previous values, preview and
// export error are discarded.
func (s *Session) Open(tmpl *models.Template) error {
	if tmpl == nil {
		return apperrors.InvalidTemplateError("no template to preview")
	}
	s.reset()
	s.template = tmpl
	s.renderer = renderer.NewRenderer(tmpl)
	s.markers = s.renderer.Markers()
	s.values = make(models.FillValues, len(s.markers))
	s.state = StateOpen
	return nil
}

// Close discards everything and returns to Closed. It is valid from any
// state.
func (s *Session) Close() {
	s.reset()
}

func (s *Session) reset() {
	s.state = StateClosed
	s.template = nil
	s.renderer = nil
	s.markers = nil
	s.values = nil
	s.preview = ""
	s.lastErr = nil
}

// Set records a value for m. Editing a Filled session keeps the old preview
// until Generate runs again.
func (s *Session) Set(m models.Marker, value string) error {
	if s.state != StateOpen && s.state != StateFilled {
		return apperrors.InvalidStateError("edit values", s.state.String())
	}
	if !m.Valid() {
		return apperrors.NewAppError(apperrors.ErrCodeInvalidMarker, "invalid marker").
			WithContext("marker", string(m))
	}
	s.values[m] = value
	return nil
}

// SetAll records several values at once
func (s *Session) SetAll(values models.FillValues) error {
	for m, v := range values {
		if err := s.Set(m, v); err != nil {
			return err
		}
	}
	return nil
}

// Value returns the current value for m
func (s *Session) Value(m models.Marker) string {
	return s.values.Get(m)
}

// Values returns a copy of the current values
func (s *Session) Values() models.FillValues {
	return s.values.Clone()
}

// Generate renders the preview from the current values
func (s *Session) Generate() (string, error) {
	if s.state != StateOpen && s.state != StateFilled {
		return "", apperrors.InvalidStateError("generate a preview", s.state.String())
	}
	s.preview = s.renderer.RenderPreview(s.values)
	s.state = StateFilled
	return s.preview, nil
}

// Preview returns the last generated preview, which may be stale if values
// changed since Generate.
func (s *Session) Preview() string {
	return s.preview
}

// BeginExport freezes the template and values for the exporter. Export is
// only possible once a preview has been generated.
func (s *Session) BeginExport() (ExportRequest, error) {
	if s.state != StateFilled {
		return ExportRequest{}, apperrors.InvalidStateError("export", s.state.String())
	}
	s.state = StateExporting
	s.lastErr = nil
	return ExportRequest{
		Template: s.template,
		Values:   s.values.Clone(),
	}, nil
}

// FinishExport completes the export started by BeginExport. On success the
// session returns to Open with no values; on failure it returns to Filled
// with values and preview kept so the user can retry.
func (s *Session) FinishExport(err error) error {
	if s.state != StateExporting {
		return apperrors.InvalidStateError("finish an export", s.state.String())
	}
	if err != nil {
		s.lastErr = err
		s.state = StateFilled
		return nil
	}
	s.values = make(models.FillValues, len(s.markers))
	s.preview = ""
	s.state = StateOpen
	return nil
}

// LastError returns the error of the most recent failed export
func (s *Session) LastError() error {
	return s.lastErr
}
