package school

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("School not found")
	ErrNameExists          = core.NewConflictError("School with this name already exists")
	ErrSuperadminRequired  = core.NewAuthorizationError("Access denied. Superadmin role required")
	ErrAlreadyDeleted      = core.NewInvalidStateError("School is already in recycle bin")
	ErrNotDeleted          = core.NewInvalidStateError("School not in recycle bin")
	ErrNotDeletedPermanent = core.NewInvalidStateError("School must be in recycle bin before permanent deletion")
	ErrInvalidTransition   = core.NewInvalidStateError("Invalid school status transition")
	ErrAdminNotFound       = core.NewNotFoundError("Administrator not found")
	ErrAdminRoleRequired   = core.NewRequiredError("User must have school_admin role")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, s School) (School, error)
		GetSchoolByID(ctx context.Context, id string) (School, error)
		// NameExists does a case-insensitive match on School.Name, ignoring excludeID.
		NameExists(ctx context.Context, name, excludeID string) (bool, error)
		// QuerySchools returns a page of schools, newest first, along with the total count.
		QuerySchools(ctx context.Context, filter QueryFilter, page core.Page) ([]School, int, error)
		UpdateSchool(ctx context.Context, s School) (School, error)
		DeleteSchool(ctx context.Context, id string) error
		// CountDependents counts the classrooms and students referencing a school.
		CountDependents(ctx context.Context, id string) (Dependents, error)
	}

	Service struct {
		repo     Repository
		users    user.Repository
		tx       core.Transactor
		cache    core.Cache
		cacheTTL time.Duration
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	users user.Repository,
	tx core.Transactor,
	cache core.Cache,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		tx:       tx,
		cache:    cache,
		cacheTTL: conf.Cache.TTL,
		logger:   logger,
	}
}

func CacheKey(id string) string {
	return "school:" + id
}

// GenerationKey holds the cache generation of a school. Every write moves it,
// and a cached school is only served under the generation it was filled with.
func GenerationKey(id string) string {
	return "school:" + id + ":gen"
}

type cachedSchool struct {
	Gen    string `json:"gen"`
	School School `json:"school"`
}

func requireSuperadmin(caller access.Caller) error {
	if caller.Role == "" {
		return access.ErrAuthRequired
	}
	if !access.IsSuperadmin(caller.Role) {
		return ErrSuperadminRequired
	}
	return nil
}

func (svc *Service) cacheSet(ctx context.Context, gen string, s School) {
	if err := svc.cache.Set(ctx, CacheKey(s.ID), cachedSchool{Gen: gen, School: s}, svc.cacheTTL); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching school %s: %v", s.ID, err), err)
	}
}

// newGeneration starts a cache generation for a school.
// The generation outlives the entries filled under it.
func (svc *Service) newGeneration(ctx context.Context, id string) (string, error) {
	gen := core.NewID()
	if err := svc.cache.Set(ctx, GenerationKey(id), gen, 2*svc.cacheTTL); err != nil {
		return "", err
	}
	return gen, nil
}

// generation returns the current cache generation of a school, starting one when there is none.
func (svc *Service) generation(ctx context.Context, id string) (string, error) {
	var gen string
	found, err := svc.cache.Get(ctx, GenerationKey(id), &gen)
	if err != nil {
		return "", err
	}
	if found && gen != "" {
		return gen, nil
	}
	return svc.newGeneration(ctx, id)
}

// invalidate moves the school to a new cache generation, so a fill racing the write is never served.
func (svc *Service) invalidate(ctx context.Context, id string) {
	if _, err := svc.newGeneration(ctx, id); err != nil {
		svc.logger.Error(fmt.Sprintf("invalidating school %s: %v", id, err), err)
	}
	if err := svc.cache.Delete(ctx, CacheKey(id)); err != nil {
		svc.logger.Error(fmt.Sprintf("invalidating school %s: %v", id, err), err)
	}
}

func (svc *Service) checkName(ctx context.Context, name, excludeID string) error {
	exists, err := svc.repo.NameExists(ctx, name, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking school name")
	}
	if exists {
		return ErrNameExists
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, caller access.Caller, ns NewSchool) (School, error) {
	if err := requireSuperadmin(caller); err != nil {
		return School{}, err
	}
	if err := svc.checkName(ctx, ns.Name, ""); err != nil {
		return School{}, err
	}

	now := core.NowFunc()
	s, err := svc.repo.CreateSchool(ctx, School{
		ID:             core.NewID(),
		Name:           ns.Name,
		Address:        ns.Address,
		ContactInfo:    ns.ContactInfo,
		Status:         StatusActive,
		Administrators: []string{},
		Metadata:       ns.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return School{}, errors.Wrap(err, "creating school")
	}
	if gen, err := svc.newGeneration(ctx, s.ID); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching school %s: %v", s.ID, err), err)
	} else {
		svc.cacheSet(ctx, gen, s)
	}
	return s, nil
}

// Query returns a page of schools, newest first.
func (svc *Service) Query(ctx context.Context, caller access.Caller, filter QueryFilter, page core.Page) ([]School, core.Pagination, error) {
	if err := requireSuperadmin(caller); err != nil {
		return nil, core.Pagination{}, err
	}
	page.Clean()
	schools, total, err := svc.repo.QuerySchools(ctx, filter, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying schools")
	}
	return schools, core.NewPagination(page, total), nil
}

// QueryDeleted returns the recycle bin: a page of inactive schools.
func (svc *Service) QueryDeleted(ctx context.Context, caller access.Caller, page core.Page) ([]School, core.Pagination, error) {
	return svc.Query(ctx, caller, QueryFilter{Status: StatusInactive}, page)
}

// get reads a school through the cache.
// The generation is read before the database, so a write landing in between leaves the fill unused.
func (svc *Service) get(ctx context.Context, id string) (School, error) {
	if !core.IsID(id) {
		return School{}, ErrNotFound
	}

	gen, err := svc.generation(ctx, id)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading school %s cache generation: %v", id, err), err)
		return svc.repo.GetSchoolByID(ctx, id)
	}

	var cached cachedSchool
	found, err := svc.cache.Get(ctx, CacheKey(id), &cached)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cached school %s: %v", id, err), err)
	}
	if found && cached.Gen == gen {
		return cached.School, nil
	}

	s, err := svc.repo.GetSchoolByID(ctx, id)
	if err != nil {
		return School{}, err
	}
	svc.cacheSet(ctx, gen, s)
	return s, nil
}

// Get returns a school to a superadmin or to the school's own administrator.
func (svc *Service) Get(ctx context.Context, caller access.Caller, id string) (School, error) {
	schoolID, err := access.Resolve(access.Request{Caller: caller, PathSchoolID: id})
	if err != nil {
		return School{}, err
	}
	return svc.get(ctx, schoolID)
}

// GetSchoolStatus returns the status of a school.
func (svc *Service) GetSchoolStatus(ctx context.Context, id string) (string, error) {
	s, err := svc.get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.Status, nil
}

func (svc *Service) Update(ctx context.Context, caller access.Caller, id string, us UpdateSchool) (School, error) {
	if err := requireSuperadmin(caller); err != nil {
		return School{}, err
	}

	s, err := svc.repo.GetSchoolByID(ctx, id)
	if err != nil {
		return School{}, err
	}
	if us.Name != "" && us.Name != s.Name {
		if err = svc.checkName(ctx, us.Name, s.ID); err != nil {
			return School{}, err
		}
	}
	if us.Status != "" && us.Status != s.Status {
		if !CanTransition(s.Status, us.Status) {
			return School{}, ErrInvalidTransition
		}
		s.Status = us.Status
	}
	us.apply(&s)
	s.UpdatedAt = core.NowFunc()

	s, err = svc.repo.UpdateSchool(ctx, s)
	if err != nil {
		return School{}, errors.Wrap(err, "updating school")
	}
	svc.invalidate(ctx, s.ID)
	return s, nil
}

func (svc *Service) setStatus(ctx context.Context, s School, status string) (School, error) {
	s.Status = status
	s.UpdatedAt = core.NowFunc()
	s, err := svc.repo.UpdateSchool(ctx, s)
	if err != nil {
		return School{}, errors.Wrap(err, "updating school status")
	}
	svc.invalidate(ctx, s.ID)
	return s, nil
}

// Delete soft-deletes a school: it is moved to the recycle bin.
func (svc *Service) Delete(ctx context.Context, caller access.Caller, id string) (School, error) {
	if err := requireSuperadmin(caller); err != nil {
		return School{}, err
	}
	s, err := svc.repo.GetSchoolByID(ctx, id)
	if err != nil {
		return School{}, err
	}
	if !CanTransition(s.Status, StatusInactive) {
		return School{}, ErrAlreadyDeleted
	}
	return svc.setStatus(ctx, s, StatusInactive)
}

// Restore takes a school out of the recycle bin.
// Superadmins and the school's own administrators may restore it.
func (svc *Service) Restore(ctx context.Context, caller access.Caller, id string) (School, error) {
	if caller.Role == "" {
		return School{}, access.ErrAuthRequired
	}
	s, err := svc.repo.GetSchoolByID(ctx, id)
	if err != nil {
		return School{}, err
	}
	if !access.IsSuperadmin(caller.Role) {
		if !access.IsSchoolAdmin(caller.Role) {
			return School{}, access.ErrAccessDenied
		}
		if !s.HasAdministrator(caller.UserID) && caller.AssignedSchool != s.ID {
			return School{}, access.ErrForeignSchool
		}
	}
	if !CanTransition(s.Status, StatusActive) {
		return School{}, ErrNotDeleted
	}
	return svc.setStatus(ctx, s, StatusActive)
}

func (svc *Service) dependents(ctx context.Context, s School) (Dependents, error) {
	deps, err := svc.repo.CountDependents(ctx, s.ID)
	if err != nil {
		return Dependents{}, errors.Wrap(err, "counting school dependents")
	}
	userIDs, err := svc.users.QueryUserIDsBySchool(ctx, s.ID)
	if err != nil {
		return Dependents{}, errors.Wrap(err, "querying assigned users")
	}
	admins := make(map[string]struct{}, len(s.Administrators)+len(userIDs))
	for _, id := range append(userIDs, s.Administrators...) {
		admins[id] = struct{}{}
	}
	deps.Administrators = len(admins)
	return deps, nil
}

// PermanentlyDelete removes a school from storage.
// The school must be in the recycle bin and nothing may reference it anymore.
func (svc *Service) PermanentlyDelete(ctx context.Context, caller access.Caller, id string) error {
	if err := requireSuperadmin(caller); err != nil {
		return err
	}

	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err := svc.repo.GetSchoolByID(ctx, id)
		if err != nil {
			return err
		}
		if s.IsActive() {
			return ErrNotDeletedPermanent
		}
		deps, err := svc.dependents(ctx, s)
		if err != nil {
			return err
		}
		if !deps.IsZero() {
			return core.NewInvalidStateError(fmt.Sprintf(
				"Cannot permanently delete school with existing dependencies (classrooms: %d, students: %d, administrators: %d)",
				deps.Classrooms, deps.Students, deps.Administrators,
			))
		}
		return errors.Wrap(svc.repo.DeleteSchool(ctx, s.ID), "deleting school")
	})
	if err != nil {
		return err
	}
	svc.invalidate(ctx, id)
	return nil
}

// AssignAdministrator assigns a school admin to a school.
func (svc *Service) AssignAdministrator(ctx context.Context, caller access.Caller, id string, aa AssignAdministrator) (School, error) {
	if err := requireSuperadmin(caller); err != nil {
		return School{}, err
	}

	var s School
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		admin, err := svc.users.GetUserByID(ctx, aa.AdminID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return ErrAdminNotFound
			}
			return errors.Wrap(err, "finding administrator")
		}
		if !access.IsSchoolAdmin(admin.Role) {
			return ErrAdminRoleRequired
		}

		s, err = svc.repo.GetSchoolByID(ctx, id)
		if err != nil {
			return err
		}

		now := core.NowFunc()
		schoolID := s.ID
		admin.AssignedSchool = &schoolID
		admin.UpdatedAt = now
		if _, err = svc.users.UpdateUser(ctx, admin); err != nil {
			return errors.Wrap(err, "assigning school to administrator")
		}

		if !s.HasAdministrator(admin.ID) {
			s.Administrators = append(s.Administrators, admin.ID)
			s.UpdatedAt = now
			if s, err = svc.repo.UpdateSchool(ctx, s); err != nil {
				return errors.Wrap(err, "adding administrator")
			}
		}
		return nil
	})
	if err != nil {
		return School{}, err
	}
	svc.invalidate(ctx, s.ID)
	return s, nil
}
