package student

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Statuses
const (
	StatusActive      = "active"
	StatusWithdrawn   = "withdrawn" // recycle bin
	StatusTransferred = "transferred"
	StatusGraduated   = "graduated"
)

var AllStatuses = []string{StatusActive, StatusWithdrawn, StatusTransferred, StatusGraduated}

// transitions lists the allowed status changes. A transferred student is live at their
// new school, so they may be transferred again, withdrawn or graduated.
var transitions = map[string][]string{
	StatusActive:      {StatusWithdrawn, StatusTransferred, StatusGraduated},
	StatusTransferred: {StatusActive, StatusWithdrawn, StatusTransferred, StatusGraduated},
	StatusGraduated:   {StatusActive, StatusWithdrawn},
	StatusWithdrawn:   {StatusActive},
}

// CanTransition reports whether a student may go from one status to another.
func CanTransition(from, to string) bool {
	return core.Contains(transitions[from], to)
}

// HoldsSeat reports whether a student with status counts in their classroom's enrollment.
func HoldsSeat(status string) bool {
	return status != StatusWithdrawn
}

type (
	GuardianAddress struct {
		Street  string `json:"street,omitempty"`
		City    string `json:"city,omitempty"`
		State   string `json:"state,omitempty"`
		ZipCode string `json:"zipCode,omitempty"`
	}

	GuardianInfo struct {
		GuardianName string          `json:"guardianName" validate:"required,notblank"`
		Relationship string          `json:"relationship" validate:"required,notblank"`
		Phone        string          `json:"phone" validate:"required,phone"`
		Email        string          `json:"email" validate:"required,email"`
		Address      GuardianAddress `json:"address"`
	}

	TransferRecord struct {
		FromSchool    string    `json:"fromSchool"`
		ToSchool      string    `json:"toSchool"`
		FromClassroom string    `json:"fromClassroom"`
		ToClassroom   string    `json:"toClassroom"`
		TransferDate  time.Time `json:"transferDate"`
		Reason        string    `json:"reason,omitempty"`
	}

	Student struct {
		ID              string           `json:"id"`
		FirstName       string           `json:"firstName"`
		LastName        string           `json:"lastName"`
		DateOfBirth     time.Time        `json:"dateOfBirth"`
		StudentID       string           `json:"studentId"`
		SchoolID        string           `json:"schoolId"`
		ClassroomID     string           `json:"classroomId"`
		GuardianInfo    GuardianInfo     `json:"guardianInfo"`
		EnrollmentDate  time.Time        `json:"enrollmentDate"`
		Status          string           `json:"status"`
		TransferHistory []TransferRecord `json:"transferHistory"`
		CreatedAt       time.Time        `json:"createdAt"` // UTC
		UpdatedAt       time.Time        `json:"updatedAt"` // UTC
	}
)

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Age returns the student's age in whole years at t.
func (s Student) Age(t time.Time) int {
	dob := s.DateOfBirth
	age := t.Year() - dob.Year()
	if t.Month() < dob.Month() || (t.Month() == dob.Month() && t.Day() < dob.Day()) {
		age--
	}
	return age
}

func (s Student) MarshalJSON() ([]byte, error) {
	type student Student
	return json.Marshal(struct {
		student
		FullName string `json:"fullName"`
		Age      int    `json:"age"`
	}{
		student:  student(s),
		FullName: s.FullName(),
		Age:      s.Age(core.NowFunc()),
	})
}

func (g *GuardianInfo) clean() {
	g.GuardianName = core.CleanString(g.GuardianName)
	g.Relationship = core.CleanString(g.Relationship)
	g.Phone = core.CleanString(g.Phone)
	g.Email = core.CleanString(g.Email, true /* lower */)
	g.Address.Street = core.CleanString(g.Address.Street)
	g.Address.City = core.CleanString(g.Address.City)
	g.Address.State = core.CleanString(g.Address.State)
	g.Address.ZipCode = core.CleanString(g.Address.ZipCode)
}

// NewStudent contains information needed to enroll a student.
type NewStudent struct {
	SchoolID     string       `json:"schoolId" validate:"omitempty,uuid"`
	ClassroomID  string       `json:"classroomId" validate:"required,uuid"`
	FirstName    string       `json:"firstName" validate:"required,notblank,max=100"`
	LastName     string       `json:"lastName" validate:"required,notblank,max=100"`
	DateOfBirth  time.Time    `json:"dateOfBirth" validate:"required"`
	StudentID    string       `json:"studentId" validate:"required,studentid,max=50"`
	GuardianInfo GuardianInfo `json:"guardianInfo"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.SchoolID = core.CleanString(ns.SchoolID)
	ns.ClassroomID = core.CleanString(ns.ClassroomID)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.GuardianInfo.clean()
	return validate.Struct(ns)
}

type (
	UpdateGuardianInfo struct {
		GuardianName string           `json:"guardianName"`
		Relationship string           `json:"relationship"`
		Phone        string           `json:"phone" validate:"omitempty,phone"`
		Email        string           `json:"email" validate:"omitempty,email"`
		Address      *GuardianAddress `json:"address"`
	}

	// UpdateStudent defines what information may be provided to modify an existing Student.
	// Guardian info is merged field by field.
	UpdateStudent struct {
		SchoolID     string              `json:"schoolId" validate:"omitempty,uuid"`
		FirstName    string              `json:"firstName" validate:"omitempty,max=100"`
		LastName     string              `json:"lastName" validate:"omitempty,max=100"`
		DateOfBirth  *time.Time          `json:"dateOfBirth"`
		GuardianInfo *UpdateGuardianInfo `json:"guardianInfo"`
		Status       string              `json:"status" validate:"omitempty,oneof=active withdrawn transferred graduated"`
	}
)

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.SchoolID = core.CleanString(us.SchoolID)
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	us.Status = core.CleanString(us.Status, true /* lower */)
	if g := us.GuardianInfo; g != nil {
		g.GuardianName = core.CleanString(g.GuardianName)
		g.Relationship = core.CleanString(g.Relationship)
		g.Phone = core.CleanString(g.Phone)
		g.Email = core.CleanString(g.Email, true /* lower */)
	}
	return validate.Struct(us)
}

func (us UpdateStudent) apply(s *Student) {
	if us.FirstName != "" {
		s.FirstName = us.FirstName
	}
	if us.LastName != "" {
		s.LastName = us.LastName
	}
	if us.DateOfBirth != nil {
		s.DateOfBirth = *us.DateOfBirth
	}
	if g := us.GuardianInfo; g != nil {
		mergeString(&s.GuardianInfo.GuardianName, g.GuardianName)
		mergeString(&s.GuardianInfo.Relationship, g.Relationship)
		mergeString(&s.GuardianInfo.Phone, g.Phone)
		mergeString(&s.GuardianInfo.Email, g.Email)
		if a := g.Address; a != nil {
			mergeString(&s.GuardianInfo.Address.Street, a.Street)
			mergeString(&s.GuardianInfo.Address.City, a.City)
			mergeString(&s.GuardianInfo.Address.State, a.State)
			mergeString(&s.GuardianInfo.Address.ZipCode, a.ZipCode)
		}
	}
}

func mergeString(dst *string, val string) {
	if val = core.CleanString(val); val != "" {
		*dst = val
	}
}

// Transfer contains information needed to move a student to another school or classroom.
// Its fields are checked by the lifecycle itself, which reports a single combined error.
type Transfer struct {
	SchoolID          string `json:"schoolId" validate:"omitempty,uuid"`
	TargetSchoolID    string `json:"targetSchoolId" validate:"omitempty,uuid"`
	TargetClassroomID string `json:"targetClassroomId" validate:"omitempty,uuid"`
	Reason            string `json:"reason" validate:"omitempty,max=500"`
}

func (t *Transfer) Validate(validate *validator.Validate) error {
	t.SchoolID = core.CleanString(t.SchoolID)
	t.TargetSchoolID = core.CleanString(t.TargetSchoolID)
	t.TargetClassroomID = core.CleanString(t.TargetClassroomID)
	t.Reason = core.CleanString(t.Reason)
	return validate.Struct(t)
}

type QueryFilter struct {
	Status      string `query:"status"`
	ClassroomID string `query:"classroomId"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.ClassroomID = core.CleanString(qf.ClassroomID)
}
