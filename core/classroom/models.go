package classroom

import (
	"encoding/json"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive" // recycle bin
)

// Capacity bounds
const (
	MinCapacity = 1
	MaxCapacity = 100
)

var transitions = map[string][]string{
	StatusActive:   {StatusInactive},
	StatusInactive: {StatusActive},
}

// CanTransition reports whether a classroom may go from one status to another.
func CanTransition(from, to string) bool {
	return core.Contains(transitions[from], to)
}

var (
	ErrCapacityExceeded   = core.NewCapacityError("Classroom is at full capacity")
	ErrNegativeEnrollment = core.NewInvalidStateError("Current enrollment cannot be negative")
)

type Classroom struct {
	ID                string    `json:"id"`
	SchoolID          string    `json:"schoolId"`
	Name              string    `json:"name"`
	RoomNumber        string    `json:"roomNumber"`
	GradeLevel        string    `json:"gradeLevel"`
	Capacity          int       `json:"capacity"`
	CurrentEnrollment int       `json:"currentEnrollment"`
	Resources         []string  `json:"resources"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"` // UTC
	UpdatedAt         time.Time `json:"updatedAt"` // UTC
}

func (c Classroom) IsActive() bool {
	return c.Status == StatusActive
}

// Capacity ledger. These are the only mutators of CurrentEnrollment;
// the result is persisted with Repository.SaveEnrollment inside the caller's transaction.

// HasSpace reports whether n more students fit in the classroom.
func (c Classroom) HasSpace(n int) bool {
	return c.CurrentEnrollment+n <= c.Capacity
}

// Increment adds n students, failing with ErrCapacityExceeded rather than overfilling.
func (c *Classroom) Increment(n int) error {
	if !c.HasSpace(n) {
		return ErrCapacityExceeded
	}
	c.CurrentEnrollment += n
	return nil
}

// Decrement removes n students, failing with ErrNegativeEnrollment rather than going below zero.
func (c *Classroom) Decrement(n int) error {
	if c.CurrentEnrollment-n < 0 {
		return ErrNegativeEnrollment
	}
	c.CurrentEnrollment -= n
	return nil
}

func (c Classroom) AvailableSeats() int {
	if seats := c.Capacity - c.CurrentEnrollment; seats > 0 {
		return seats
	}
	return 0
}

func (c Classroom) IsFull() bool {
	return c.CurrentEnrollment >= c.Capacity
}

// UtilizationPercentage returns the rounded occupancy percentage.
func (c Classroom) UtilizationPercentage() int {
	if c.Capacity == 0 {
		return 0
	}
	return int(math.Round(float64(c.CurrentEnrollment) / float64(c.Capacity) * 100))
}

func (c Classroom) MarshalJSON() ([]byte, error) {
	type classroom Classroom
	return json.Marshal(struct {
		classroom
		AvailableSeats        int  `json:"availableSeats"`
		IsFull                bool `json:"isFull"`
		UtilizationPercentage int  `json:"utilizationPercentage"`
	}{
		classroom:             classroom(c),
		AvailableSeats:        c.AvailableSeats(),
		IsFull:                c.IsFull(),
		UtilizationPercentage: c.UtilizationPercentage(),
	})
}

func cleanResources(resources []string) []string {
	cleaned := make([]string, 0, len(resources))
	for _, r := range resources {
		if r = core.CleanString(r); r != "" && !core.Contains(cleaned, r) {
			cleaned = append(cleaned, r)
		}
	}
	return cleaned
}

// NewClassroom contains information needed to create a new Classroom.
type NewClassroom struct {
	SchoolID   string   `json:"schoolId" validate:"omitempty,uuid"`
	Name       string   `json:"name" validate:"required,max=100"`
	RoomNumber string   `json:"roomNumber" validate:"required,max=50"`
	GradeLevel string   `json:"gradeLevel" validate:"required,max=50"`
	Capacity   int      `json:"capacity" validate:"required,min=1,max=100"`
	Resources  []string `json:"resources"`
}

func (nc *NewClassroom) Validate(validate *validator.Validate) error {
	nc.SchoolID = core.CleanString(nc.SchoolID)
	nc.Name = core.CleanString(nc.Name)
	nc.RoomNumber = core.CleanString(nc.RoomNumber)
	nc.GradeLevel = core.CleanString(nc.GradeLevel)
	nc.Resources = cleanResources(nc.Resources)
	return validate.Struct(nc)
}

// UpdateClassroom defines what information may be provided to modify an existing Classroom.
// The enrollment count is not part of it: only the ledger changes it.
type UpdateClassroom struct {
	SchoolID  string   `json:"schoolId" validate:"omitempty,uuid"`
	Name      string   `json:"name" validate:"omitempty,max=100"`
	Capacity  *int     `json:"capacity" validate:"omitempty,min=1,max=100"`
	Resources []string `json:"resources"`
	Status    string   `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (uc *UpdateClassroom) Validate(validate *validator.Validate) error {
	uc.SchoolID = core.CleanString(uc.SchoolID)
	uc.Name = core.CleanString(uc.Name)
	uc.Status = core.CleanString(uc.Status, true /* lower */)
	if uc.Resources != nil {
		uc.Resources = cleanResources(uc.Resources)
	}
	return validate.Struct(uc)
}

type QueryFilter struct {
	Status     string `query:"status"`
	GradeLevel string `query:"gradeLevel"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.GradeLevel = core.CleanString(qf.GradeLevel)
}
