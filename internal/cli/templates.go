package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dpshade/pocket-docs/internal/commands"
	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
	"github.com/dpshade/pocket-docs/internal/ui"
)

func (a *App) templatesCommand() *cobra.Command {
	var category, format string

	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"list", "ls"},
		Short:   "List document templates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"format": format}
			if category != "" {
				params["category"] = category
			}
			result, err := a.run(cmd, "list", params)
			if err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), result.Data.([]*models.Template), format)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list one category ("+categoryList()+")")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or ids")
	return cmd
}

func (a *App) searchCommand() *cobra.Command {
	var category, format string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search templates by title and category",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"query": strings.Join(args, " ")}
			if category != "" {
				params["category"] = category
			}
			result, err := a.run(cmd, "search", params)
			if err != nil {
				return err
			}
			templates := result.Data.([]*models.Template)
			if len(templates) == 0 && format == "table" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Message)
				return nil
			}
			return printTemplates(cmd.OutOrStdout(), templates, format)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only match one category")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or ids")
	return cmd
}

func (a *App) showCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template with its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "get", map[string]interface{}{"id": args[0]})
			if err != nil {
				return err
			}
			tmpl := result.Data.(*models.Template)
			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, tmpl)
			}

			fmt.Fprintf(out, "%s\n", tmpl.Name())
			fmt.Fprintf(out, "ID:       %s\n", tmpl.ID)
			fmt.Fprintf(out, "Category: %s\n", tmpl.Category.Label())
			fmt.Fprintf(out, "Markers:  %d\n", placeholder.Count(tmpl.Body))
			if !tmpl.UpdatedAt.IsZero() {
				fmt.Fprintf(out, "Updated:  %s\n", tmpl.UpdatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "\n%s\n", tmpl.Body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	return cmd
}

func (a *App) markersCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "markers <id>",
		Short: "List the markers of a template with their field labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "markers", map[string]interface{}{"id": args[0]})
			if err != nil {
				return err
			}
			data := result.Data.(commands.TemplateMarkers)
			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, data)
			}

			if len(data.Markers) == 0 {
				fmt.Fprintf(out, "'%s' has no markers\n", data.Title)
				return nil
			}
			t := newTable("Marker", "Label", "Group")
			for _, m := range data.Markers {
				label := m.Label
				if !m.Known {
					label += " (custom)"
				}
				t.Row(string(m.Marker), label, m.Group)
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table or json")
	return cmd
}

func (a *App) fieldsCommand() *cobra.Command {
	var markdown bool
	var format string

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the fields that can be used as markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "fields", nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, result.Data)
			}

			doc := a.service.Catalog().Markdown()
			if markdown {
				fmt.Fprint(out, doc)
				return nil
			}
			rendered, err := renderMarkdown(doc)
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the raw Markdown instead of rendering it")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Set to json for machine-readable output")
	return cmd
}

func (a *App) saveCommand() *cobra.Command {
	var file, title, category, id string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update a template on the CRM",
		Long: `Create or update a template from an HTML file. The placeholder list is
recomputed from the body before the template is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(file)
			if err != nil {
				return apperrors.StorageError("read template body", err).WithContext("file", file)
			}
			cat, err := models.ParseCategory(category)
			if err != nil {
				return apperrors.ValidationError(err.Error())
			}

			saved, err := a.service.SaveTemplate(cmd.Context(), &models.Template{
				ID:       id,
				Title:    title,
				Category: cat,
				Body:     string(body),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved '%s' (%s) with %d markers\n", saved.Title, saved.ID, len(saved.Placeholders))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "HTML file with the template body")
	cmd.Flags().StringVar(&title, "title", "", "Template title")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Template category ("+categoryList()+")")
	cmd.Flags().StringVar(&id, "id", "", "ID of the template to update")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func printTemplates(w io.Writer, templates []*models.Template, format string) error {
	switch format {
	case "json":
		return writeJSON(w, templates)
	case "ids":
		for _, t := range templates {
			fmt.Fprintln(w, t.ID)
		}
		return nil
	}

	if len(templates) == 0 {
		fmt.Fprintln(w, "No templates found")
		return nil
	}
	t := newTable("ID", "Title", "Category", "Markers")
	for _, tmpl := range templates {
		t.Row(tmpl.ID, tmpl.Name(), tmpl.Category.Label(), fmt.Sprint(placeholder.Count(tmpl.Body)))
	}
	fmt.Fprintln(w, t.String())
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(ui.StyleTextDim).
		Headers(headers...)
}

func renderMarkdown(doc string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithEnvironmentConfig(), glamour.WithWordWrap(100))
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(doc)
}

func categoryList() string {
	names := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
