package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/clipboard"
	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/preview"
	"github.com/dpshade/pocket-docs/internal/renderer"
	"github.com/dpshade/pocket-docs/internal/service"
	"github.com/dpshade/pocket-docs/internal/storage"
)

// exportTimeout bounds one PDF export started from the TUI
const exportTimeout = 2 * time.Minute

// createGlamourRenderer creates a glamour renderer with improved contrast handling
func createGlamourRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		return glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wordWrap),
		)
	}

	profile := termenv.ColorProfile()

	var styleOption glamour.TermRendererOption
	switch {
	case profile != termenv.TrueColor && profile != termenv.ANSI256:
		// Limited colour terminals
		styleOption = glamour.WithAutoStyle()
	case lipgloss.HasDarkBackground():
		styleOption = glamour.WithStandardStyle("dark")
	default:
		styleOption = glamour.WithStandardStyle("light")
	}

	return glamour.NewTermRenderer(
		styleOption,
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(wordWrap),
	)
}

// templateItem adapts a template to the list component
type templateItem struct {
	*models.Template
}

func (i templateItem) Title() string       { return i.Name() }
func (i templateItem) Description() string { return i.Summary() }

// Commands for async operations
type templatesLoadedMsg struct {
	templates []*models.Template
	err       error
}

type templateLoadedMsg struct {
	template *models.Template
	err      error
}

type exportDoneMsg struct {
	result *export.Result
	err    error
}

type historyLoadedMsg struct {
	records []storage.ExportRecord
	err     error
}

func loadTemplatesCmd(svc *service.Service, category models.Category) tea.Cmd {
	return func() tea.Msg {
		templates, err := svc.ListTemplates(context.Background(), category)
		return templatesLoadedMsg{templates: templates, err: err}
	}
}

func loadTemplateCmd(svc *service.Service, id string) tea.Cmd {
	return func() tea.Msg {
		tmpl, err := svc.GetTemplate(context.Background(), id)
		return templateLoadedMsg{template: tmpl, err: err}
	}
}

// exportCmd runs the export of a frozen request off the event loop
func exportCmd(svc *service.Service, req preview.ExportRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		result, err := svc.Export(ctx, req.Template, req.Values)
		return exportDoneMsg{result: result, err: err}
	}
}

func loadHistoryCmd(svc *service.Service) tea.Cmd {
	return func() tea.Msg {
		records, err := svc.History(context.Background(), storage.DefaultHistoryLimit)
		return historyLoadedMsg{records: records, err: err}
	}
}

// ViewMode represents the current view in the TUI
type ViewMode int

const (
	ViewLibrary ViewMode = iota
	ViewCategory
	ViewFill
	ViewPreview
	ViewFields
	ViewHistory
)

// Model represents the TUI application state
type Model struct {
	service      *service.Service
	errorHandler *apperrors.TUIErrorHandler
	viewMode     ViewMode

	// UI components
	templateList list.Model
	viewport     viewport.Model
	help         help.Model
	keys         KeyMap

	// Data
	templates []*models.Template
	category  models.Category
	loading   bool

	// Fill-in state; the session owns the values
	session      *preview.Session
	markers      []service.MarkerInfo
	fillForm     *FillForm
	categoryForm *SelectForm

	glamourRenderer *glamour.TermRenderer

	width  int
	height int

	// Status messages
	statusMsg     string
	statusType    string
	statusColor   string
	statusTimeout int

	showExpandedHelp bool
}

// KeyMap defines all key bindings
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Enter      key.Binding
	Back       key.Binding
	Quit       key.Binding
	ExpandHelp key.Binding
	Category   key.Binding
	Fields     key.Binding
	History    key.Binding
	Refresh    key.Binding
	Preview    key.Binding
	Edit       key.Binding
	Export     key.Binding
	Copy       key.Binding
	CopyJSON   key.Binding
}

// ShortHelp returns keybindings to show in the mini help view
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ExpandHelp, k.Quit}
}

// FullHelp returns keybindings to show in the full help view
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter, k.Back},
		{k.Category, k.Fields, k.History, k.Refresh},
		{k.Preview, k.Edit, k.Export, k.Copy, k.CopyJSON},
		{k.ExpandHelp, k.Quit},
	}
}

var keys = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "move down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	ExpandHelp: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Category: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "category"),
	),
	Fields: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "fields"),
	),
	History: key.NewBinding(
		key.WithKeys("h"),
		key.WithHelp("h", "history"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Preview: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "preview"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit values"),
	),
	Export: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "export PDF"),
	),
	Copy: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "copy HTML"),
	),
	CopyJSON: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy as JSON"),
	),
}

// NewModel creates a new TUI model. The logger must not write to the
// terminal the TUI draws on.
func NewModel(svc *service.Service, logger *zap.Logger) (*Model, error) {
	initializeColors()

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(ColorPrimary).BorderForeground(ColorPrimary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(ColorSecondary).BorderForeground(ColorPrimary)

	l := list.New(nil, delegate, 80, 20)
	l.Title = ""
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	keyMap := list.DefaultKeyMap()
	keyMap.Filter = key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	)
	l.KeyMap = keyMap

	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()

	glamourRenderer, err := createGlamourRenderer(60)
	if err != nil {
		return nil, fmt.Errorf("failed to create glamour renderer: %w", err)
	}

	return &Model{
		service:         svc,
		errorHandler:    apperrors.NewTUIErrorHandler(false, logger),
		viewMode:        ViewLibrary,
		templateList:    l,
		viewport:        vp,
		help:            help.New(),
		keys:            keys,
		loading:         true,
		session:         preview.NewSession(),
		glamourRenderer: glamourRenderer,
	}, nil
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return loadTemplatesCmd(m.service, m.category)
}

// tickMsg is sent to clear the status message
type tickMsg time.Time

// clearStatusCmd returns a command that clears the status message after a delay
func clearStatusCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) setStatus(text, kind string, seconds int) tea.Cmd {
	m.statusMsg = text
	m.statusType = kind
	m.statusColor = ""
	m.statusTimeout = seconds
	return clearStatusCmd()
}

// setError logs err and shows it on the status line
func (m *Model) setError(prefix string, err error) tea.Cmd {
	m.errorHandler.HandleError(err)
	icon, colour := m.errorHandler.GetErrorStyle(err)
	cmd := m.setStatus(fmt.Sprintf("%s %s: %s", icon, prefix, m.errorHandler.FormatError(err)), "error", 6)
	m.statusColor = colour
	return cmd
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.statusTimeout > 0 {
			m.statusTimeout--
			if m.statusTimeout == 0 {
				m.statusMsg = ""
			} else {
				return m, clearStatusCmd()
			}
		}
		return m, nil

	case templatesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			return m, m.setError("Could not load templates", msg.err)
		}
		m.templates = msg.templates
		items := make([]list.Item, len(m.templates))
		for i, t := range m.templates {
			items[i] = templateItem{t}
		}
		return m, m.templateList.SetItems(items)

	case templateLoadedMsg:
		if msg.err != nil {
			return m, m.setError("Could not open template", msg.err)
		}
		if err := m.openTemplate(msg.template); err != nil {
			return m, m.setError("Could not open template", err)
		}
		return m, nil

	case exportDoneMsg:
		return m.finishExport(msg)

	case historyLoadedMsg:
		if msg.err != nil {
			return m, m.setError("Could not load history", msg.err)
		}
		m.viewport.SetContent(formatHistory(msg.records))
		m.viewport.GotoTop()
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.session.Close()
			return m, tea.Quit
		}
		// Input is ignored while the export runs
		if m.session.State() == preview.StateExporting {
			return m, nil
		}
		if msg.String() == "?" && m.viewMode != ViewFill && !m.filtering() {
			m.showExpandedHelp = !m.showExpandedHelp
			return m, nil
		}

		switch m.viewMode {
		case ViewLibrary:
			return m.updateLibrary(msg)
		case ViewCategory:
			return m.updateCategory(msg)
		case ViewFill:
			return m.updateFill(msg)
		case ViewPreview:
			return m.updatePreview(msg)
		case ViewFields, ViewHistory:
			if key.Matches(msg, m.keys.Back) || msg.String() == "q" {
				m.viewMode = ViewLibrary
				return m, nil
			}
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	if m.viewMode == ViewLibrary {
		var cmd tea.Cmd
		m.templateList, cmd = m.templateList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) filtering() bool {
	return m.viewMode == ViewLibrary && m.templateList.FilterState() == list.Filtering
}

func (m Model) updateLibrary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering() {
		var cmd tea.Cmd
		m.templateList, cmd = m.templateList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Enter):
		if item, ok := m.templateList.SelectedItem().(templateItem); ok {
			return m, loadTemplateCmd(m.service, item.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Category):
		m.categoryForm = NewCategoryForm(m.category)
		m.viewMode = ViewCategory
		return m, nil
	case key.Matches(msg, m.keys.Fields):
		m.viewMode = ViewFields
		m.renderFields()
		return m, nil
	case key.Matches(msg, m.keys.History):
		m.viewMode = ViewHistory
		m.viewport.SetContent(StyleLoading.Render("Loading history..."))
		return m, loadHistoryCmd(m.service)
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, loadTemplatesCmd(m.service, m.category)
	}

	var cmd tea.Cmd
	m.templateList, cmd = m.templateList.Update(msg)
	return m, cmd
}

func (m Model) updateCategory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) {
		m.viewMode = ViewLibrary
		return m, nil
	}

	m.categoryForm.Update(msg)
	if !m.categoryForm.IsSubmitted() {
		return m, nil
	}

	if opt := m.categoryForm.GetSelected(); opt != nil {
		m.category = opt.Value.(models.Category)
	}
	m.viewMode = ViewLibrary
	m.loading = true
	m.templateList.ResetFilter()
	return m, loadTemplatesCmd(m.service, m.category)
}

func (m Model) updateFill(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) {
		m.session.Close()
		m.fillForm = nil
		m.viewMode = ViewLibrary
		return m, nil
	}

	cmd := m.fillForm.Update(msg)
	if !m.fillForm.IsSubmitted() {
		return m, cmd
	}
	m.fillForm.Reset()

	if err := m.session.SetAll(m.fillForm.Values()); err != nil {
		return m, m.setError("Invalid value", err)
	}
	if _, err := m.session.Generate(); err != nil {
		return m, m.setError("Preview failed", err)
	}

	m.renderPreview()
	m.viewMode = ViewPreview
	return m, nil
}

func (m Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Edit):
		m.fillForm = NewFillForm(m.markers, m.session.Values())
		m.fillForm.Resize(m.width, m.height)
		m.viewMode = ViewFill
		return m, nil

	case key.Matches(msg, m.keys.Export):
		req, err := m.session.BeginExport()
		if err != nil {
			return m, m.setError("Cannot export", err)
		}
		m.statusMsg = "⏳ Exporting " + req.Template.Name() + "..."
		m.statusType = "info"
		m.statusColor = ""
		m.statusTimeout = 0
		return m, exportCmd(m.service, req)

	case key.Matches(msg, m.keys.Copy):
		filled := renderer.NewRenderer(m.session.Template()).RenderExport(m.session.Values())
		return m, m.copy(filled)

	case key.Matches(msg, m.keys.CopyJSON):
		doc, err := renderer.NewRenderer(m.session.Template()).RenderJSON(m.session.Values())
		if err != nil {
			return m, m.setError("Copy failed", err)
		}
		return m, m.copy(doc)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) copy(text string) tea.Cmd {
	status, err := clipboard.CopyWithFallback(text)
	if err != nil {
		return m.setError("Copy failed", err)
	}
	return m.setStatus(status, "success", 3)
}

// finishExport hands the export outcome back to the session. Success
// clears the values and returns to the form; failure keeps the preview so
// the export can be retried.
func (m Model) finishExport(msg exportDoneMsg) (tea.Model, tea.Cmd) {
	if err := m.session.FinishExport(msg.err); err != nil {
		return m, m.setError("Export", err)
	}

	if msg.err != nil {
		return m, m.setError("Export failed", msg.err)
	}

	m.fillForm = NewFillForm(m.markers, m.session.Values())
	m.fillForm.Resize(m.width, m.height)
	m.viewMode = ViewFill
	return m, m.setStatus("✓ Exported "+msg.result.FileName, "success", 5)
}

func (m *Model) openTemplate(tmpl *models.Template) error {
	if err := m.session.Open(tmpl); err != nil {
		return err
	}
	m.markers = m.service.Markers(tmpl)
	m.fillForm = NewFillForm(m.markers, m.session.Values())
	m.fillForm.Resize(m.width, m.height)
	m.viewMode = ViewFill
	return nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	// title, metadata, help and status lines plus margins
	const minReservedHeight = 8
	availableHeight := height - minReservedHeight
	if availableHeight < 5 {
		availableHeight = 5
	}

	m.templateList.SetSize(width, availableHeight)

	viewportWidth := width - 12
	if viewportWidth < 40 {
		viewportWidth = 40
	}
	m.viewport.Width = viewportWidth
	m.viewport.Height = availableHeight - 2

	if r, err := createGlamourRenderer(viewportWidth); err == nil {
		m.glamourRenderer = r
	}
	if m.fillForm != nil {
		m.fillForm.Resize(width, height)
	}

	switch m.viewMode {
	case ViewPreview:
		m.renderPreview()
	case ViewFields:
		m.renderFields()
	}
}

// renderPreview fills the viewport from the session's current values
func (m *Model) renderPreview() {
	tmpl := m.session.Template()
	if tmpl == nil {
		return
	}

	values := m.session.Values()
	r := renderer.NewRenderer(tmpl)
	body := r.RenderTerminal(values, StyleFilledValue)

	var sections []string
	if m.session.Empty() {
		sections = append(sections, StyleInfo.Render("This template has no markers. It is exported as is."))
	} else if missing := r.Missing(values); len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, marker := range missing {
			labels[i] = m.service.Catalog().Label(marker)
		}
		sections = append(sections, StyleFormMissing.Render("Empty: "+strings.Join(labels, ", ")))
	}
	sections = append(sections, lipgloss.NewStyle().Width(m.viewport.Width).Render(body))

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	m.viewport.GotoTop()
}

func (m *Model) renderFields() {
	md := m.service.Catalog().Markdown()
	formatted, err := m.glamourRenderer.Render(md)
	if err != nil {
		formatted = md
	}
	m.viewport.SetContent(formatted)
	m.viewport.GotoTop()
}

func formatHistory(records []storage.ExportRecord) string {
	if len(records) == 0 {
		return StyleTextDim.Render("No exports yet.")
	}

	var b strings.Builder
	for _, rec := range records {
		b.WriteString(StyleFormLabel.Render(rec.FileName))
		b.WriteString("\n")
		b.WriteString(CreateMetadata(fmt.Sprintf("%s • %s • %d markers • %s",
			rec.Title, rec.Category.Label(), rec.Markers, rec.CreatedAt.Local().Format("2006-01-02 15:04"))))
		b.WriteString("\n")
		if rec.Path != "" {
			b.WriteString(CreateMetadata(rec.Path))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// View renders the current view
func (m Model) View() string {
	var mainView string

	switch m.viewMode {
	case ViewLibrary:
		mainView = m.renderLibraryView()
	case ViewCategory:
		mainView = m.renderCategoryView()
	case ViewFill:
		mainView = m.renderFillView()
	case ViewPreview:
		mainView = m.renderPreviewView()
	case ViewFields:
		mainView = m.renderViewportPage("Fields", "Markers known to the field catalog", "↑/↓ scroll • esc back")
	case ViewHistory:
		mainView = m.renderViewportPage("Export History", "Most recent first", "↑/↓ scroll • esc back")
	default:
		mainView = "Unknown view mode"
	}

	if m.statusMsg != "" {
		status := CreateStatus(m.statusMsg, m.statusType)
		if m.statusColor != "" {
			status = lipgloss.NewStyle().Foreground(lipgloss.Color(m.statusColor)).Bold(true).Padding(0, 1).Render(m.statusMsg)
		}
		return AddMainPadding(lipgloss.JoinVertical(lipgloss.Left, mainView, status))
	}

	return AddMainPadding(mainView)
}

func (m Model) renderLibraryView() string {
	elements := []string{CreateMainHeader("Pocket Docs")}
	if m.category != "" {
		elements = append(elements, CreateCategoryIndicator(m.category.Label(), len(m.templates)))
	}

	if m.loading {
		elements = append(elements, StyleLoading.Render("⏳ Loading templates..."))
	} else if len(m.templates) == 0 {
		elements = append(elements, StyleTextDim.Render("No templates found."))
	} else {
		elements = append(elements, m.templateList.View())
	}

	if m.showExpandedHelp {
		elements = append(elements, m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		essential := []string{"enter fill • / filter • t category • q quit"}
		additional := []string{"f fields • h history • r refresh"}
		elements = append(elements, CreateContextualHelp(essential, additional, false, m.width))
	}

	return lipgloss.JoinVertical(lipgloss.Left, elements...)
}

func (m Model) renderCategoryView() string {
	body := "No categories"
	if m.categoryForm != nil {
		body = m.categoryForm.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		CreateSubPageHeader("Choose a category"),
		"",
		AddFormPadding(body),
		CreateContextualHelp([]string{"↑/↓ move • enter select • esc back"}, nil, false, m.width),
	)
}

func (m Model) renderFillView() string {
	tmpl := m.session.Template()
	if tmpl == nil || m.fillForm == nil {
		return "No template selected"
	}

	metadata := fmt.Sprintf("%s • %d markers", tmpl.Category.Label(), len(m.markers))
	help := CreateContextualHelp(
		[]string{"tab next • shift+tab previous • ctrl+s preview"},
		nil, false, m.width)

	return lipgloss.JoinVertical(lipgloss.Left,
		CreateSubPageHeader(tmpl.Name()),
		CreateMetadata(metadata),
		"",
		AddFormPadding(m.fillForm.View()),
		"",
		help,
	)
}

func (m Model) renderPreviewView() string {
	tmpl := m.session.Template()
	if tmpl == nil {
		return "No template selected"
	}

	metadata := fmt.Sprintf("%s • %d markers • %s", tmpl.Category.Label(), len(m.markers), m.session.State())
	if err := m.session.LastError(); err != nil {
		metadata += " • last export failed"
	}

	essential := []string{"x export • e edit values"}
	additional := []string{"c copy HTML • y copy JSON • esc back"}
	if m.session.State() == preview.StateExporting {
		essential = []string{"exporting..."}
		additional = nil
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		CreateSubPageHeader(tmpl.Name()),
		CreateMetadata(metadata),
		m.renderViewport(),
		CreateContextualHelp(essential, additional, m.showExpandedHelp, m.width),
	)
}

func (m Model) renderViewportPage(title, metadata, helpText string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		CreateSubPageHeader(title),
		CreateMetadata(metadata),
		m.renderViewport(),
		CreateContextualHelp([]string{helpText}, nil, false, m.width),
	)
}

func (m Model) renderViewport() string {
	top, bottom := CreateScrollIndicators(!m.viewport.AtTop(), !m.viewport.AtBottom(), m.viewport.Width)
	return StyleContentContainer.Render(lipgloss.JoinVertical(lipgloss.Left, top, m.viewport.View(), bottom))
}
