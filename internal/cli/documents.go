package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/commands"
	apperrors "github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/renderer"
	"github.com/dpshade/pocket-docs/internal/service"
	"github.com/dpshade/pocket-docs/internal/storage"
	"github.com/dpshade/pocket-docs/internal/ui"
	"github.com/dpshade/pocket-docs/internal/validation"
)

// fillFlags are shared by every command that fills a template
type fillFlags struct {
	vars    []string
	company string
	branch  string
	person  string
	from    string
	to      string
}

func (f *fillFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Marker value as '{{tag}}=value' or 'tag=value' (repeatable)")
	cmd.Flags().StringVar(&f.company, "prefill-company", "", "Prefill company markers from this CRM company ID")
	cmd.Flags().StringVar(&f.branch, "prefill-branch", "", "Prefill branch markers from this CRM branch ID")
	cmd.Flags().StringVar(&f.person, "prefill-person", "", "Prefill person markers from this CRM person ID")
	cmd.Flags().StringVar(&f.from, "from", "", "Start of the date range markers (YYYY-MM-DD or DD.MM.YYYY)")
	cmd.Flags().StringVar(&f.to, "to", "", "End of the date range markers (YYYY-MM-DD or DD.MM.YYYY)")
}

func (f *fillFlags) prefillRequest() (service.PrefillRequest, bool, error) {
	req := service.PrefillRequest{CompanyID: f.company, BranchID: f.branch, PersonID: f.person}
	var err error
	if req.From, err = parseDate(f.from); err != nil {
		return req, false, err
	}
	if req.To, err = parseDate(f.to); err != nil {
		return req, false, err
	}
	set := req.CompanyID != "" || req.BranchID != "" || req.PersonID != "" || !req.From.IsZero() || !req.To.IsZero()
	return req, set, nil
}

var dateLayouts = []string{"2006-01-02", export.DateFormat}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.ValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD or DD.MM.YYYY", s))
}

// values merges prefilled CRM values with --var values, the latter winning
func (a *App) values(cmd *cobra.Command, id string, f *fillFlags) (models.FillValues, error) {
	vars, err := parseVars(f.vars)
	if err != nil {
		return nil, err
	}

	values := models.FillValues{}
	req, prefill, err := f.prefillRequest()
	if err != nil {
		return nil, err
	}
	if prefill {
		tmpl, err := a.service.GetTemplate(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		if values, err = a.service.Prefill(cmd.Context(), tmpl, req); err != nil {
			return nil, err
		}
		a.logger.Debug("prefilled values", zap.String("template_id", id), zap.Int("count", len(values)))
	}

	for k, v := range vars {
		values[models.Marker(k)] = v
	}
	return values, nil
}

func valueParams(id string, values models.FillValues) map[string]interface{} {
	raw := make(map[string]interface{}, len(values))
	for k, v := range values {
		raw[string(k)] = v
	}
	return map[string]interface{}{"template_id": id, "values": raw}
}

func (a *App) previewCommand() *cobra.Command {
	var fill fillFlags
	var format string

	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Fill a template and print the preview",
		Example: `  pocket-docs preview <id> --var '{{kisi_tam_adi}}=Ayşe Yılmaz'
  pocket-docs preview <id> --prefill-person <person-id> --format html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.values(cmd, args[0], &fill)
			if err != nil {
				return err
			}
			result, err := a.run(cmd, "preview", valueParams(args[0], values))
			if err != nil {
				return err
			}
			res := result.Data.(commands.PreviewResult)
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				return writeJSON(out, res)
			case "html":
				fmt.Fprintln(out, res.HTML)
			default:
				tmpl, err := a.service.GetTemplate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderer.NewRenderer(tmpl).RenderTerminal(values, ui.StyleFilledValue))
			}

			if len(res.Markers) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "This template has no markers. It is exported as is.")
			} else if len(res.Missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Empty: %s\n", a.labels(res.Missing))
			}
			return nil
		},
	}

	fill.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, html or json")
	return cmd
}

func (a *App) exportCommand() *cobra.Command {
	var fill fillFlags
	var out, format string
	var interactive bool

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Fill a template and export it as a PDF",
		Long: `Fill a template and export it as a PDF named after the template and
today's date. Markers without a value are left empty in the document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.values(cmd, args[0], &fill)
			if err != nil {
				return err
			}
			if interactive {
				if values, err = a.ask(cmd, args[0], values); err != nil {
					return err
				}
			}

			params := valueParams(args[0], values)
			if out != "" {
				params["out"] = out
			}
			result, err := a.run(cmd, "export", params)
			if err != nil {
				return err
			}
			res := result.Data.(*export.Result)
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %s (%d bytes)\n", res.Path, res.Bytes)
			return nil
		},
	}

	fill.register(cmd)
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for every marker")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file or directory (default: the export directory)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	return cmd
}

// ask prompts for every marker of the template, offering current values
// as defaults
func (a *App) ask(cmd *cobra.Command, id string, values models.FillValues) (models.FillValues, error) {
	result, err := a.run(cmd, "markers", map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	data := result.Data.(commands.TemplateMarkers)
	if len(data.Markers) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "This template has no markers. It is exported as is.")
		return values, nil
	}

	filled := values.Clone()
	if filled == nil {
		filled = models.FillValues{}
	}
	for _, m := range data.Markers {
		answer, err := a.prompter.Input(cmd.Context(), Question{
			Message: m.Label + ":",
			Help:    string(m.Marker),
			Default: filled.Get(m.Marker),
		})
		if err != nil {
			return nil, err
		}
		filled[m.Marker] = answer
	}
	return filled, nil
}

func (a *App) copyCommand() *cobra.Command {
	var fill fillFlags

	cmd := &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy the filled template HTML to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.values(cmd, args[0], &fill)
			if err != nil {
				return err
			}
			strs := make(map[string]string, len(values))
			for k, v := range values {
				strs[string(k)] = v
			}
			if values, err = validation.ValidateFillValues(strs); err != nil {
				return err
			}

			tmpl, err := a.service.GetTemplate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			html := renderer.NewRenderer(tmpl).RenderExport(values)

			msg, err := a.copyText(html)
			if err != nil {
				a.logger.Warn("clipboard copy failed", zap.Error(err))
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
				fmt.Fprintln(cmd.OutOrStdout(), html)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}

	fill.register(cmd)
	return cmd
}

func (a *App) historyCommand() *cobra.Command {
	var limit int
	var format, templateID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"limit": limit}
			if templateID != "" {
				params["template_id"] = templateID
			}
			result, err := a.run(cmd, "history", params)
			if err != nil {
				return err
			}
			records := result.Data.([]storage.ExportRecord)
			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, records)
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No exports yet")
				return nil
			}
			t := newTable("Date", "File", "Template", "Size")
			for _, r := range records {
				t.Row(r.CreatedAt.Local().Format("2006-01-02 15:04"), r.FileName, r.Title, fmt.Sprintf("%d B", r.Bytes))
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultHistoryLimit, "Number of exports to show")
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Only show exports of this template")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table or json")
	return cmd
}

func (a *App) labels(markers []models.Marker) string {
	labels := make([]string, len(markers))
	for i, m := range markers {
		labels[i] = a.service.Catalog().Label(m)
	}
	return strings.Join(labels, ", ")
}
