package placeholder

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dpshade/pocket-docs/internal/models"
)

// Catalog is an immutable registry of known markers and their labels
type Catalog struct {
	fields []models.Field
	index  map[models.Marker]int
}

// Group is a named slice of catalog fields
type Group struct {
	Name   string         `json:"name"`
	Fields []models.Field `json:"fields"`
}

var defaultFields = []models.Field{
	// Company
	{Tag: "{{sirket_adi}}", Label: "Şirket Adı", Group: "Şirket"},
	{Tag: "{{sirket_adresi}}", Label: "Şirket Adresi", Group: "Şirket"},
	{Tag: "{{sirket_vergi_no}}", Label: "Şirket Vergi No", Group: "Şirket"},

	// Branch
	{Tag: "{{sube_adi}}", Label: "Şube Adı", Group: "Şube"},
	{Tag: "{{sube_adresi}}", Label: "Şube Adresi", Group: "Şube"},

	// Person
	{Tag: "{{kisi_tam_adi}}", Label: "Kişi Adı Soyadı", Group: "Kişi"},
	{Tag: "{{kisi_tc_no}}", Label: "Kişi TC Kimlik No", Group: "Kişi"},
	{Tag: "{{kisi_telefon}}", Label: "Kişi Telefon", Group: "Kişi"},

	// Dates
	{Tag: "{{tarih_bugun}}", Label: "Bugünün Tarihi", Group: "Genel"},
	{Tag: "{{tarih_araligi_baslangic}}", Label: "Tarih Aralığı (Başlangıç)", Group: "Genel"},
	{Tag: "{{tarih_araligi_bitis}}", Label: "Tarih Aralığı (Bitiş)", Group: "Genel"},
}

// Well-known markers used by prefill
const (
	CompanyName    models.Marker = "{{sirket_adi}}"
	CompanyAddress models.Marker = "{{sirket_adresi}}"
	CompanyTaxNo   models.Marker = "{{sirket_vergi_no}}"
	BranchName     models.Marker = "{{sube_adi}}"
	BranchAddress  models.Marker = "{{sube_adresi}}"
	PersonFullName models.Marker = "{{kisi_tam_adi}}"
	PersonNationID models.Marker = "{{kisi_tc_no}}"
	PersonPhone    models.Marker = "{{kisi_telefon}}"
	DateToday      models.Marker = "{{tarih_bugun}}"
	DateRangeStart models.Marker = "{{tarih_araligi_baslangic}}"
	DateRangeEnd   models.Marker = "{{tarih_araligi_bitis}}"
)

// NewCatalog builds a catalog from fields. Later entries for the same tag
// replace the label and group of earlier ones but keep their position.
func NewCatalog(fields []models.Field) (*Catalog, error) {
	c := &Catalog{index: make(map[models.Marker]int, len(fields))}
	for _, f := range fields {
		if !f.Tag.Valid() {
			return nil, fmt.Errorf("invalid catalog tag %q", f.Tag)
		}
		if i, ok := c.index[f.Tag]; ok {
			c.fields[i] = f
			continue
		}
		c.index[f.Tag] = len(c.fields)
		c.fields = append(c.fields, f)
	}
	return c, nil
}

// DefaultCatalog returns the built-in CRM field catalog
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultFields)
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Fields []models.Field `yaml:"fields"`
}

// LoadCatalog returns the default catalog extended with entries from a YAML
// file of the form:
//
//	fields:
//	  - tag: "{{proje_adi}}"
//	    label: Proje Adı
//	    group: Proje
//
// An empty path returns the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	fields := make([]models.Field, 0, len(defaultFields)+len(file.Fields))
	fields = append(fields, defaultFields...)
	fields = append(fields, file.Fields...)
	return NewCatalog(fields)
}

// Lookup returns the catalog entry for m
func (c *Catalog) Lookup(m models.Marker) (models.Field, bool) {
	i, ok := c.index[m]
	if !ok {
		return models.Field{}, false
	}
	return c.fields[i], true
}

// Label returns the configured label for m, or the marker without its
// delimiters when it is not in the catalog.
func (c *Catalog) Label(m models.Marker) string {
	if f, ok := c.Lookup(m); ok {
		return f.Label
	}
	return m.Name()
}

// Fields returns a copy of all entries in catalog order
func (c *Catalog) Fields() []models.Field {
	out := make([]models.Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Grouped returns the entries grouped by Group, groups in first-seen order
func (c *Catalog) Grouped() []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, f := range c.fields {
		i, ok := pos[f.Group]
		if !ok {
			i = len(groups)
			pos[f.Group] = i
			groups = append(groups, Group{Name: f.Group})
		}
		groups[i].Fields = append(groups[i].Fields, f)
	}
	return groups
}

// Markdown renders the catalog as one table per group, for glamour
func (c *Catalog) Markdown() string {
	var b strings.Builder
	b.WriteString("# Fields\n")
	for _, g := range c.Grouped() {
		fmt.Fprintf(&b, "\n## %s\n\n| Marker | Label |\n|---|---|\n", g.Name)
		for _, f := range g.Fields {
			fmt.Fprintf(&b, "| `%s` | %s |\n", f.Tag, strings.ReplaceAll(f.Label, "|", "\\|"))
		}
	}
	return b.String()
}
