package user

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
)

var (
	// errors
	ErrNotFound               = core.NewNotFoundError("User not found")
	ErrEmailExists            = core.NewConflictError("Email already registered")
	ErrUsernameExists         = core.NewConflictError("Username already taken")
	ErrInvalidRole            = core.NewRequiredError("Invalid role")
	ErrSchoolRequired         = core.NewRequiredError("School Admin must be assigned to a school")
	ErrAssignedSchoolNotFound = core.NewNotFoundError("Assigned school not found")
	ErrAssignedSchoolInactive = core.NewInvalidStateError("Assigned school is not active")
	ErrInvalidCredentials     = core.NewAuthenticationError("Invalid email or password")
	ErrAccountInactive        = core.NewAuthorizationError("Account is inactive or suspended")
)

const schoolStatusActive = "active"

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when taken.
		CheckUniqueness(ctx context.Context, username, email string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		// QueryUserIDsBySchool returns the ids of the users assigned to schoolID.
		QueryUserIDsBySchool(ctx context.Context, schoolID string) ([]string, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	// SchoolStatusGetter reports the status of a school.
	// It returns an error of kind core.KindNotFound when the school does not exist.
	SchoolStatusGetter interface {
		GetSchoolStatus(ctx context.Context, id string) (string, error)
	}

	Service struct {
		repo    Repository
		schools SchoolStatusGetter
	}
)

func NewService(repo Repository, schools SchoolStatusGetter) *Service {
	return &Service{repo: repo, schools: schools}
}

// Create registers a new user. School admins must be assigned to an existing, active school.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if !access.IsValidRole(nu.Role) {
		return User{}, ErrInvalidRole
	}

	var assigned *string
	if access.RequiresSchoolAssignment(nu.Role) {
		if nu.AssignedSchool == "" {
			return User{}, ErrSchoolRequired
		}
		status, err := svc.schools.GetSchoolStatus(ctx, nu.AssignedSchool)
		if err != nil {
			if core.KindOf(err) == core.KindNotFound {
				return User{}, ErrAssignedSchoolNotFound
			}
			return User{}, errors.Wrap(err, "getting assigned school")
		}
		if status != schoolStatusActive {
			return User{}, ErrAssignedSchoolInactive
		}
		schoolID := nu.AssignedSchool
		assigned = &schoolID
	}

	if err := svc.repo.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := core.NowFunc()
	usr := User{
		ID:             core.NewID(),
		Username:       nu.Username,
		Email:          nu.Email,
		Role:           nu.Role,
		AssignedSchool: assigned,
		Status:         StatusActive,
		Key:            NewKey(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Authenticate returns the active user matching creds.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive() {
		return User{}, ErrAccountInactive
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if !core.IsID(id) {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

// SetStatus activates, deactivates or suspends a user.
func (svc *Service) SetStatus(ctx context.Context, id string, us UpdateStatus) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Status = us.Status
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword sets a new password and rotates the user's key.
func (svc *Service) ResetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := ValidatePassword(pwd, usr); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.RotateKey()
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}
