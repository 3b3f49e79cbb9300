package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
)

// Statuses
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

var (
	AllStatuses = []string{StatusActive, StatusInactive, StatusSuspended}

	bcryptCost = 10
)

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   []byte    `json:"-"`
	Role           string    `json:"role"`
	AssignedSchool *string   `json:"assignedSchool"`
	Status         string    `json:"status"`
	Key            string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"` // UTC
	UpdatedAt      time.Time `json:"updatedAt"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// RotateKey replaces the user's key, which invalidates every token issued so far.
func (u *User) RotateKey() {
	u.Key = NewKey()
}

func (u User) IsActive() bool {
	return u.Status == StatusActive
}

func (u User) AssignedSchoolID() string {
	if u.AssignedSchool == nil {
		return ""
	}
	return *u.AssignedSchool
}

// Caller is the identity the user acts with.
func (u User) Caller() access.Caller {
	return access.Caller{UserID: u.ID, Role: u.Role, AssignedSchool: u.AssignedSchoolID()}
}

// NewKey returns a random 32 chars user key.
func NewKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username       string `json:"username" validate:"required,min=3,max=50,alphanum_"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required"`
	Role           string `json:"role" validate:"required"`
	AssignedSchool string `json:"assignedSchool" validate:"omitempty,uuid"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role)
	nu.AssignedSchool = core.CleanString(nu.AssignedSchool)
	return validate.Struct(nu)
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	return validate.Struct(c)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}
