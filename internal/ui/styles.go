package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Design System Colors - Adaptive based on terminal background
var (
	ColorPrimary   lipgloss.Color
	ColorSecondary lipgloss.Color
	ColorAccent    lipgloss.Color

	ColorSuccess lipgloss.Color
	ColorWarning lipgloss.Color
	ColorError   lipgloss.Color
	ColorInfo    lipgloss.Color

	ColorText       lipgloss.Color
	ColorTextMuted  lipgloss.Color
	ColorTextDim    lipgloss.Color
	ColorBorder     lipgloss.Color
	ColorBackground lipgloss.Color
	ColorSurface    lipgloss.Color
)

// initializeColors sets up adaptive colors based on terminal background.
// GLAMOUR_STYLE=light|dark overrides detection so the chrome matches the
// markdown renderer.
func initializeColors() {
	switch os.Getenv("GLAMOUR_STYLE") {
	case "light":
		setLightThemeColors()
	case "dark":
		setDarkThemeColors()
	default:
		if lipgloss.HasDarkBackground() {
			setDarkThemeColors()
		} else {
			setLightThemeColors()
		}
	}
	buildStyles()
}

func setDarkThemeColors() {
	ColorPrimary = lipgloss.Color("39")
	ColorSecondary = lipgloss.Color("33")
	ColorAccent = lipgloss.Color("214")

	ColorSuccess = lipgloss.Color("10")
	ColorWarning = lipgloss.Color("11")
	ColorError = lipgloss.Color("9")
	ColorInfo = lipgloss.Color("12")

	ColorText = lipgloss.Color("252")
	ColorTextMuted = lipgloss.Color("244")
	ColorTextDim = lipgloss.Color("240")
	ColorBorder = lipgloss.Color("238")
	ColorBackground = lipgloss.Color("235")
	ColorSurface = lipgloss.Color("236")
}

func setLightThemeColors() {
	ColorPrimary = lipgloss.Color("25")
	ColorSecondary = lipgloss.Color("24")
	ColorAccent = lipgloss.Color("130")

	ColorSuccess = lipgloss.Color("22")
	ColorWarning = lipgloss.Color("136")
	ColorError = lipgloss.Color("160")
	ColorInfo = lipgloss.Color("24")

	ColorText = lipgloss.Color("232")
	ColorTextMuted = lipgloss.Color("240")
	ColorTextDim = lipgloss.Color("244")
	ColorBorder = lipgloss.Color("248")
	ColorBackground = lipgloss.Color("255")
	ColorSurface = lipgloss.Color("254")
}

// Component Styles, rebuilt by initializeColors
var (
	StyleTitle     lipgloss.Style
	StyleText      lipgloss.Style
	StyleTextMuted lipgloss.Style
	StyleTextDim   lipgloss.Style

	StyleFocused    lipgloss.Style
	StyleUnselected lipgloss.Style

	StyleSuccess lipgloss.Style
	StyleWarning lipgloss.Style
	StyleError   lipgloss.Style
	StyleInfo    lipgloss.Style

	// Preview body box
	StyleContentContainer lipgloss.Style

	StyleFormLabel   lipgloss.Style
	StyleFormHelp    lipgloss.Style
	StyleFormMissing lipgloss.Style

	StyleLoading  lipgloss.Style
	StyleMetadata lipgloss.Style

	// Filled values inside the preview
	StyleFilledValue lipgloss.Style

	StyleCategoryIndicator lipgloss.Style

	StyleScrollIndicator       lipgloss.Style
	StyleScrollIndicatorActive lipgloss.Style
)

func buildStyles() {
	StyleTitle = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1)

	StyleText = lipgloss.NewStyle().Foreground(ColorText)
	StyleTextMuted = lipgloss.NewStyle().Foreground(ColorTextMuted)
	StyleTextDim = lipgloss.NewStyle().Foreground(ColorTextDim)

	StyleFocused = lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		Background(ColorSecondary).
		Bold(true).
		Padding(0, 1)

	StyleUnselected = lipgloss.NewStyle().
		Foreground(ColorTextMuted).
		Padding(0, 1)

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true).Padding(0, 1)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true).Padding(0, 1)
	StyleError = lipgloss.NewStyle().Foreground(ColorError).Bold(true).Padding(0, 1)
	StyleInfo = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true).Padding(0, 1)

	StyleContentContainer = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(1, 2).
		MarginTop(1).
		MarginBottom(1)

	StyleFormLabel = lipgloss.NewStyle().
		Foreground(ColorText).
		Bold(true)

	StyleFormHelp = lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Italic(true).
		Padding(0, 3)

	StyleFormMissing = lipgloss.NewStyle().
		Foreground(ColorWarning).
		Italic(true)

	StyleLoading = lipgloss.NewStyle().
		Foreground(ColorInfo).
		Italic(true).
		Padding(0, 1)

	StyleMetadata = lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Padding(0, 1)

	StyleFilledValue = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true)

	StyleCategoryIndicator = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Background(ColorSurface).
		Bold(true).
		Padding(0, 1)

	StyleScrollIndicator = lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Align(lipgloss.Center)

	StyleScrollIndicatorActive = lipgloss.NewStyle().
		Foreground(ColorSecondary).
		Bold(true).
		Align(lipgloss.Center)
}

func init() {
	setDarkThemeColors()
	buildStyles()
}

// CreateMainHeader renders the title of a top-level view
func CreateMainHeader(titleText string) string {
	return StyleTitle.Render(titleText)
}

// CreateSubPageHeader renders the title of a view reached from the library
func CreateSubPageHeader(titleText string) string {
	return StyleTitle.Render("← " + titleText)
}

func CreateMetadata(text string) string {
	return StyleMetadata.Render(text)
}

// CreateContextualHelp renders the essential key hints on one row and,
// when expanded, the additional rows below it
func CreateContextualHelp(essential []string, additional []string, showExpanded bool, width int) string {
	firstRow := essential
	if len(additional) > 0 && !showExpanded {
		firstRow = append(append([]string{}, essential...), "? for more")
	}

	lines := []string{truncate(strings.Join(firstRow, " • "), width)}
	if showExpanded {
		for _, row := range additional {
			lines = append(lines, truncate(row, width))
		}
	}

	return StyleTextDim.Render(strings.Join(lines, "\n"))
}

func truncate(text string, width int) string {
	runes := []rune(text)
	if width > 7 && len(runes) > width-4 {
		return string(runes[:width-7]) + "..."
	}
	return text
}

// CreateStatus renders a status line in the colour of its kind
func CreateStatus(text string, statusType string) string {
	switch statusType {
	case "success":
		return StyleSuccess.Render(text)
	case "warning":
		return StyleWarning.Render(text)
	case "error":
		return StyleError.Render(text)
	case "info":
		return StyleInfo.Render(text)
	default:
		return StyleText.Render(text)
	}
}

// CreateOption renders a selectable row with an optional description
func CreateOption(label, description string, isSelected bool) []string {
	style, prefix := StyleUnselected, "  "
	if isSelected {
		style, prefix = StyleFocused, "▶ "
	}

	lines := []string{style.Render(prefix + label)}
	if description != "" {
		lines = append(lines, StyleFormHelp.Render(description))
	}
	return append(lines, "")
}

// CreateCategoryIndicator shows the active category filter and its count
func CreateCategoryIndicator(label string, count int) string {
	text := lipgloss.JoinHorizontal(
		lipgloss.Left,
		"Category: ",
		label,
		lipgloss.NewStyle().Foreground(ColorTextMuted).Render(" ("),
		lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true).Render(fmt.Sprintf("%d", count)),
		lipgloss.NewStyle().Foreground(ColorTextMuted).Render(" templates)"),
	)
	return StyleCategoryIndicator.Render(text)
}

// CenterModal places content in the middle of the screen
func CenterModal(content string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

// AddMainPadding indents top-level content
func AddMainPadding(content string) string {
	return lipgloss.NewStyle().PaddingLeft(2).Render(content)
}

// AddFormPadding indents form content
func AddFormPadding(content string) string {
	return lipgloss.NewStyle().PaddingLeft(3).Render(content)
}

// CreateScrollIndicators returns the rules drawn above and below a viewport
func CreateScrollIndicators(canScrollUp, canScrollDown bool, width int) (string, string) {
	indicator := func(active bool) string {
		if active {
			return StyleScrollIndicatorActive.Width(width).Render("...")
		}
		return StyleScrollIndicator.Width(width).Render("─────────")
	}
	return indicator(canScrollUp), indicator(canScrollDown)
}
