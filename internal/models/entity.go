package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EntityKind tags the CRM entity an EntityRef points at
type EntityKind string

const (
	KindCompany EntityKind = "company"
	KindBrand   EntityKind = "brand"
	KindBranch  EntityKind = "branch"
	KindPerson  EntityKind = "person"
)

// EntityRef is a reference to a related CRM entity. The API sends these
// either as a bare id string or as an embedded object; both decode here.
type EntityRef struct {
	Kind     EntityKind `json:"kind"`
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Embedded bool       `json:"embedded,omitempty"`
}

// IsZero reports whether the reference is unset
func (r EntityRef) IsZero() bool {
	return r.ID == ""
}

// decodeRef decodes a string-or-object payload into a reference of kind.
func decodeRef(kind EntityKind, data []byte) (EntityRef, error) {
	data = bytes.TrimSpace(data)
	ref := EntityRef{Kind: kind}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ref, nil
	}

	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &ref.ID); err != nil {
			return ref, fmt.Errorf("%s reference: %w", kind, err)
		}
		return ref, nil
	case '{':
		var obj struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Name     string `json:"name"`
			FullName string `json:"full_name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return ref, fmt.Errorf("%s reference: %w", kind, err)
		}
		if obj.ID == "" {
			return ref, fmt.Errorf("%s reference: embedded object has no id", kind)
		}
		ref.ID = obj.ID
		ref.Embedded = true
		switch {
		case obj.Title != "":
			ref.Name = obj.Title
		case obj.FullName != "":
			ref.Name = obj.FullName
		default:
			ref.Name = obj.Name
		}
		return ref, nil
	}
	return ref, fmt.Errorf("%s reference: unexpected JSON %s", kind, string(data))
}

// Company is the subset of the CRM company record used for prefill
type Company struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	TaxNumber   string `json:"tax_number"`
	Address     string `json:"address"`
	Email       string `json:"email"`
	IBAN        string `json:"iban"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// Brand is the subset of the CRM brand record used for prefill
type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaxNumber string    `json:"tax_number"`
	Company   EntityRef `json:"company"`
}

// UnmarshalJSON decodes the company reference into a typed EntityRef
func (b *Brand) UnmarshalJSON(data []byte) error {
	type alias Brand
	aux := struct {
		*alias
		Company json.RawMessage `json:"company"`
	}{alias: (*alias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ref, err := decodeRef(KindCompany, aux.Company)
	if err != nil {
		return err
	}
	b.Company = ref
	return nil
}

// Branch is the subset of the CRM branch record used for prefill
type Branch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	SGKNumber   string    `json:"sgk_number"`
	Brand       EntityRef `json:"brand"`
	CompanyName string    `json:"company_name,omitempty"`
}

// UnmarshalJSON decodes the brand reference into a typed EntityRef
func (b *Branch) UnmarshalJSON(data []byte) error {
	type alias Branch
	aux := struct {
		*alias
		Brand json.RawMessage `json:"brand"`
	}{alias: (*alias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ref, err := decodeRef(KindBrand, aux.Brand)
	if err != nil {
		return err
	}
	b.Brand = ref
	return nil
}

// Person is the subset of the CRM person record used for prefill
type Person struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	NationalID string    `json:"national_id"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Address    string    `json:"address"`
	Branch     EntityRef `json:"branch"`
	BranchName string    `json:"branch_name,omitempty"`
}

// UnmarshalJSON decodes the branch reference into a typed EntityRef
func (p *Person) UnmarshalJSON(data []byte) error {
	type alias Person
	aux := struct {
		*alias
		Branch json.RawMessage `json:"branch"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ref, err := decodeRef(KindBranch, aux.Branch)
	if err != nil {
		return err
	}
	p.Branch = ref
	return nil
}
