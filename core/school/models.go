package school

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive" // recycle bin
)

const defaultCountry = "USA"

// transitions lists the allowed status changes.
var transitions = map[string][]string{
	StatusActive:   {StatusInactive},
	StatusInactive: {StatusActive},
}

// CanTransition reports whether a school may go from one status to another.
func CanTransition(from, to string) bool {
	return core.Contains(transitions[from], to)
}

type (
	Address struct {
		Street  string `json:"street" validate:"required,notblank"`
		City    string `json:"city" validate:"required,notblank"`
		State   string `json:"state" validate:"required,notblank"`
		ZipCode string `json:"zipCode" validate:"required,notblank"`
		Country string `json:"country"`
	}

	ContactInfo struct {
		Phone   string `json:"phone" validate:"required,phone"`
		Email   string `json:"email" validate:"required,email"`
		Website string `json:"website,omitempty" validate:"omitempty,url"`
	}

	Metadata struct {
		EstablishedDate    *time.Time `json:"establishedDate,omitempty"`
		RegistrationNumber string     `json:"registrationNumber,omitempty"`
		Accreditation      string     `json:"accreditation,omitempty"`
	}

	School struct {
		ID             string      `json:"id"`
		Name           string      `json:"name"`
		Address        Address     `json:"address"`
		ContactInfo    ContactInfo `json:"contactInfo"`
		Status         string      `json:"status"`
		Administrators []string    `json:"administrators"`
		Metadata       Metadata    `json:"metadata"`
		CreatedAt      time.Time   `json:"createdAt"` // UTC
		UpdatedAt      time.Time   `json:"updatedAt"` // UTC
	}

	// Dependents counts what still references a school.
	Dependents struct {
		Classrooms     int
		Students       int
		Administrators int
	}
)

func (s School) IsActive() bool {
	return s.Status == StatusActive
}

// HasAdministrator reports whether userID is listed as one of the school's administrators.
func (s School) HasAdministrator(userID string) bool {
	return core.Contains(s.Administrators, userID)
}

func (s School) FullAddress() string {
	a := s.Address
	return a.Street + ", " + a.City + ", " + a.State + " " + a.ZipCode + ", " + a.Country
}

func (d Dependents) IsZero() bool {
	return d.Classrooms == 0 && d.Students == 0 && d.Administrators == 0
}

func (a *Address) clean() {
	a.Street = core.CleanString(a.Street)
	a.City = core.CleanString(a.City)
	a.State = core.CleanString(a.State)
	a.ZipCode = core.CleanString(a.ZipCode)
	a.Country = core.CleanString(a.Country)
	if a.Country == "" {
		a.Country = defaultCountry
	}
}

func (c *ContactInfo) clean() {
	c.Phone = core.CleanString(c.Phone)
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.Website = core.CleanString(c.Website)
}

func (m *Metadata) clean() {
	m.RegistrationNumber = core.CleanString(m.RegistrationNumber)
	m.Accreditation = core.CleanString(m.Accreditation)
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	Name        string      `json:"name" validate:"required,min=3,max=200"`
	Address     Address     `json:"address"`
	ContactInfo ContactInfo `json:"contactInfo"`
	Metadata    Metadata    `json:"metadata"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Address.clean()
	ns.ContactInfo.clean()
	ns.Metadata.clean()
	return validate.Struct(ns)
}

type (
	UpdateAddress struct {
		Street  string `json:"street"`
		City    string `json:"city"`
		State   string `json:"state"`
		ZipCode string `json:"zipCode"`
		Country string `json:"country"`
	}

	UpdateContactInfo struct {
		Phone   string `json:"phone" validate:"omitempty,phone"`
		Email   string `json:"email" validate:"omitempty,email"`
		Website string `json:"website" validate:"omitempty,url"`
	}

	// UpdateSchool defines what information may be provided to modify an existing School.
	// Nested blocks are merged field by field into the current values.
	UpdateSchool struct {
		Name        string             `json:"name" validate:"omitempty,min=3,max=200"`
		Address     *UpdateAddress     `json:"address"`
		ContactInfo *UpdateContactInfo `json:"contactInfo"`
		Status      string             `json:"status" validate:"omitempty,oneof=active inactive"`
		Metadata    *Metadata          `json:"metadata"`
	}
)

func (us *UpdateSchool) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Status = core.CleanString(us.Status, true /* lower */)
	if us.ContactInfo != nil {
		us.ContactInfo.Email = core.CleanString(us.ContactInfo.Email, true /* lower */)
		us.ContactInfo.Phone = core.CleanString(us.ContactInfo.Phone)
		us.ContactInfo.Website = core.CleanString(us.ContactInfo.Website)
	}
	if us.Metadata != nil {
		us.Metadata.clean()
	}
	return validate.Struct(us)
}

// apply merges the update into s.
func (us UpdateSchool) apply(s *School) {
	if us.Name != "" {
		s.Name = us.Name
	}
	if a := us.Address; a != nil {
		mergeString(&s.Address.Street, a.Street)
		mergeString(&s.Address.City, a.City)
		mergeString(&s.Address.State, a.State)
		mergeString(&s.Address.ZipCode, a.ZipCode)
		mergeString(&s.Address.Country, a.Country)
	}
	if c := us.ContactInfo; c != nil {
		mergeString(&s.ContactInfo.Phone, c.Phone)
		mergeString(&s.ContactInfo.Email, c.Email)
		mergeString(&s.ContactInfo.Website, c.Website)
	}
	if m := us.Metadata; m != nil {
		if m.EstablishedDate != nil {
			s.Metadata.EstablishedDate = m.EstablishedDate
		}
		mergeString(&s.Metadata.RegistrationNumber, m.RegistrationNumber)
		mergeString(&s.Metadata.Accreditation, m.Accreditation)
	}
}

func mergeString(dst *string, val string) {
	if val = strings.TrimSpace(val); val != "" {
		*dst = val
	}
}

type AssignAdministrator struct {
	AdminID string `json:"adminId" validate:"required,uuid"`
}

func (aa *AssignAdministrator) Validate(validate *validator.Validate) error {
	aa.AdminID = core.CleanString(aa.AdminID)
	return validate.Struct(aa)
}

type QueryFilter struct {
	Status string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
