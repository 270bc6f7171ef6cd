package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/service"
)

// FillForm collects one value per marker of a template
type FillForm struct {
	markers   []service.MarkerInfo
	inputs    []textinput.Model
	focused   int
	submitted bool
	width     int
}

// NewFillForm builds an input per marker, seeded from values
func NewFillForm(markers []service.MarkerInfo, values models.FillValues) *FillForm {
	inputs := make([]textinput.Model, len(markers))
	for i, info := range markers {
		input := textinput.New()
		input.Placeholder = info.Label
		input.CharLimit = 500
		input.Width = 60
		input.SetValue(values.Get(info.Marker))
		inputs[i] = input
	}

	f := &FillForm{
		markers: markers,
		inputs:  inputs,
	}
	if len(inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

// Update handles form updates
func (f *FillForm) Update(msg tea.Msg) tea.Cmd {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "tab", "down":
			f.nextField()
			return nil
		case "shift+tab", "up":
			f.prevField()
			return nil
		case "ctrl+s":
			f.submitted = true
			return nil
		case "enter":
			// Enter on the last field submits, elsewhere it advances
			if f.focused >= len(f.inputs)-1 {
				f.submitted = true
			} else {
				f.nextField()
			}
			return nil
		}
	}

	if len(f.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focused], cmd = f.inputs[f.focused].Update(msg)
	return cmd
}

// Resize adapts input widths to the terminal
func (f *FillForm) Resize(width, height int) {
	f.width = width
	inputWidth := width - 10
	if inputWidth > 80 {
		inputWidth = 80
	}
	if inputWidth < 20 {
		inputWidth = 20
	}
	for i := range f.inputs {
		f.inputs[i].Width = inputWidth
	}
}

func (f *FillForm) nextField() {
	if len(f.inputs) == 0 {
		return
	}
	f.inputs[f.focused].Blur()
	f.focused = (f.focused + 1) % len(f.inputs)
	f.inputs[f.focused].Focus()
}

func (f *FillForm) prevField() {
	if len(f.inputs) == 0 {
		return
	}
	f.inputs[f.focused].Blur()
	f.focused--
	if f.focused < 0 {
		f.focused = len(f.inputs) - 1
	}
	f.inputs[f.focused].Focus()
}

// Focused returns the marker whose input has focus
func (f *FillForm) Focused() (service.MarkerInfo, bool) {
	if len(f.markers) == 0 {
		return service.MarkerInfo{}, false
	}
	return f.markers[f.focused], true
}

// Values returns every marker with its current input
func (f *FillForm) Values() models.FillValues {
	values := make(models.FillValues, len(f.markers))
	for i, info := range f.markers {
		values[info.Marker] = f.inputs[i].Value()
	}
	return values
}

// Missing returns the markers left blank
func (f *FillForm) Missing() []models.Marker {
	var missing []models.Marker
	for i, info := range f.markers {
		if strings.TrimSpace(f.inputs[i].Value()) == "" {
			missing = append(missing, info.Marker)
		}
	}
	return missing
}

// IsSubmitted returns whether the user asked for a preview
func (f *FillForm) IsSubmitted() bool {
	return f.submitted
}

// Reset clears the submit flag and keeps the values
func (f *FillForm) Reset() {
	f.submitted = false
}

// View renders the labelled inputs
func (f *FillForm) View() string {
	if len(f.inputs) == 0 {
		return StyleFormHelp.Render("This template has no markers. Press ctrl+s to preview it as is.")
	}

	var b strings.Builder
	for i, info := range f.markers {
		label := info.Label
		if !info.Known {
			label += StyleTextDim.Render(" (custom)")
		}
		b.WriteString(StyleFormLabel.Render(label))
		b.WriteString(" ")
		b.WriteString(StyleTextDim.Render(string(info.Marker)))
		b.WriteString("\n")
		b.WriteString(f.inputs[i].View())
		if i != f.focused && strings.TrimSpace(f.inputs[i].Value()) == "" {
			b.WriteString(" ")
			b.WriteString(StyleFormMissing.Render("empty"))
		}
		b.WriteString("\n\n")
	}

	filled := len(f.markers) - len(f.Missing())
	b.WriteString(StyleTextDim.Render(fmt.Sprintf("%d of %d filled", filled, len(f.markers))))
	return b.String()
}

// SelectForm handles selection from a list of options
type SelectForm struct {
	options   []SelectOption
	selected  int
	submitted bool
}

// SelectOption represents an option in the select form
type SelectOption struct {
	Label       string
	Description string
	Value       interface{}
}

// NewSelectForm creates a new select form
func NewSelectForm(options []SelectOption) *SelectForm {
	return &SelectForm{options: options}
}

// NewCategoryForm offers every category plus "all"
func NewCategoryForm(current models.Category) *SelectForm {
	options := []SelectOption{{Label: "All categories", Value: models.Category("")}}
	for _, c := range models.Categories() {
		options = append(options, SelectOption{Label: c.Label(), Description: string(c), Value: c})
	}

	f := NewSelectForm(options)
	for i, opt := range options {
		if opt.Value == current {
			f.selected = i
		}
	}
	return f
}

// Update handles select form updates
func (f *SelectForm) Update(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || len(f.options) == 0 {
		return nil
	}
	switch keyMsg.String() {
	case "up", "k":
		if f.selected > 0 {
			f.selected--
		} else {
			f.selected = len(f.options) - 1
		}
	case "down", "j":
		if f.selected < len(f.options)-1 {
			f.selected++
		} else {
			f.selected = 0
		}
	case "enter":
		f.submitted = true
	}
	return nil
}

// GetSelected returns the selected option
func (f *SelectForm) GetSelected() *SelectOption {
	if f.selected >= 0 && f.selected < len(f.options) {
		return &f.options[f.selected]
	}
	return nil
}

// IsSubmitted returns whether an option has been selected
func (f *SelectForm) IsSubmitted() bool {
	return f.submitted
}

// Reset resets the select form
func (f *SelectForm) Reset() {
	f.selected = 0
	f.submitted = false
}

// View renders the options
func (f *SelectForm) View() string {
	var lines []string
	for i, opt := range f.options {
		lines = append(lines, CreateOption(opt.Label, opt.Description, i == f.selected)...)
	}
	return strings.Join(lines, "\n")
}
