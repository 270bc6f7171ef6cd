package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dpshade/pocket-docs/internal/export"
	"github.com/dpshade/pocket-docs/internal/models"
	"github.com/dpshade/pocket-docs/internal/placeholder"
)

// PrefillRequest names the CRM records to pull suggested values from. Zero
// fields are skipped.
type PrefillRequest struct {
	CompanyID string
	BranchID  string
	PersonID  string
	From      time.Time
	To        time.Time
}

// Prefill fetches the referenced records and maps them onto catalog
// markers. When tmpl is non-nil only markers present in its body are
// returned. The values are suggestions and are never persisted.
func (s *Service) Prefill(ctx context.Context, tmpl *models.Template, req PrefillRequest) (models.FillValues, error) {
	var (
		company *models.Company
		branch  *models.Branch
		person  *models.Person
	)

	g, gctx := errgroup.WithContext(ctx)
	if req.CompanyID != "" {
		g.Go(func() (err error) {
			company, err = s.api.GetCompany(gctx, req.CompanyID)
			return err
		})
	}
	if req.BranchID != "" {
		g.Go(func() (err error) {
			branch, err = s.api.GetBranch(gctx, req.BranchID)
			return err
		})
	}
	if req.PersonID != "" {
		g.Go(func() (err error) {
			person, err = s.api.GetPerson(gctx, req.PersonID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	values := models.FillValues{
		placeholder.DateToday: s.now().Local().Format(export.DateFormat),
	}
	if company != nil {
		values[placeholder.CompanyName] = company.Title
		values[placeholder.CompanyAddress] = company.Address
		values[placeholder.CompanyTaxNo] = company.TaxNumber
	}
	if branch != nil {
		values[placeholder.BranchName] = branch.Name
		values[placeholder.BranchAddress] = branch.Address
	}
	if person != nil {
		values[placeholder.PersonFullName] = person.FullName
		values[placeholder.PersonNationID] = person.NationalID
		values[placeholder.PersonPhone] = person.Phone
	}
	if !req.From.IsZero() {
		values[placeholder.DateRangeStart] = req.From.Local().Format(export.DateFormat)
	}
	if !req.To.IsZero() {
		values[placeholder.DateRangeEnd] = req.To.Local().Format(export.DateFormat)
	}

	if tmpl == nil {
		return values, nil
	}

	present := make(map[models.Marker]bool)
	for _, m := range placeholder.Extract(tmpl.Body) {
		present[m] = true
	}
	for m := range values {
		if !present[m] {
			delete(values, m)
		}
	}
	return values, nil
}
