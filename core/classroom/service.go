package classroom

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/school"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("Classroom not found or access denied")
	ErrRoomNumberExists    = core.NewConflictError("Room number already exists in this school")
	ErrSchoolUnavailable   = core.NewNotFoundError("School not found or inactive")
	ErrCapacityBelowCount  = core.NewCapacityError("Capacity cannot be lower than current enrollment")
	ErrAlreadyDeleted      = core.NewInvalidStateError("Classroom is already in recycle bin")
	ErrNotDeleted          = core.NewInvalidStateError("Classroom not in recycle bin")
	ErrNotDeletedPermanent = core.NewInvalidStateError("Classroom must be in recycle bin before permanent deletion")
	ErrInvalidTransition   = core.NewInvalidStateError("Invalid classroom status transition")
)

type (
	Repository interface {
		CreateClassroom(ctx context.Context, c Classroom) (Classroom, error)
		// GetClassroom returns the classroom with id belonging to schoolID.
		GetClassroom(ctx context.Context, schoolID, id string) (Classroom, error)
		// GetClassroomForUpdate is GetClassroom that also locks the record until the
		// surrounding transaction ends.
		GetClassroomForUpdate(ctx context.Context, schoolID, id string) (Classroom, error)
		// FindClassroomForUpdate locks and returns a classroom regardless of its school.
		FindClassroomForUpdate(ctx context.Context, id string) (Classroom, error)
		RoomNumberExists(ctx context.Context, schoolID, roomNumber, excludeID string) (bool, error)
		// QueryClassrooms returns a page of a school's classrooms sorted by room number,
		// along with the total count.
		QueryClassrooms(ctx context.Context, schoolID string, filter QueryFilter, page core.Page) ([]Classroom, int, error)
		// UpdateClassroom saves every field but CurrentEnrollment.
		UpdateClassroom(ctx context.Context, c Classroom) (Classroom, error)
		// SaveEnrollment saves CurrentEnrollment only.
		SaveEnrollment(ctx context.Context, c Classroom) error
		DeleteClassroom(ctx context.Context, id string) error
		CountStudents(ctx context.Context, id string) (int, error)
	}

	Service struct {
		repo    Repository
		schools school.Repository
		tx      core.Transactor
	}
)

func NewService(repo Repository, schools school.Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, schools: schools, tx: tx}
}

func (svc *Service) Create(ctx context.Context, req access.Request, nc NewClassroom) (Classroom, error) {
	if nc.SchoolID != "" {
		req.SchoolID = nc.SchoolID
	}
	schoolID, err := access.Resolve(req)
	if err != nil {
		return Classroom{}, err
	}

	s, err := svc.schools.GetSchoolByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			return Classroom{}, ErrSchoolUnavailable
		}
		return Classroom{}, errors.Wrap(err, "finding school")
	}
	if !s.IsActive() {
		return Classroom{}, ErrSchoolUnavailable
	}

	exists, err := svc.repo.RoomNumberExists(ctx, schoolID, nc.RoomNumber, "")
	if err != nil {
		return Classroom{}, errors.Wrap(err, "checking room number")
	}
	if exists {
		return Classroom{}, ErrRoomNumberExists
	}

	now := core.NowFunc()
	c, err := svc.repo.CreateClassroom(ctx, Classroom{
		ID:         core.NewID(),
		SchoolID:   schoolID,
		Name:       nc.Name,
		RoomNumber: nc.RoomNumber,
		GradeLevel: nc.GradeLevel,
		Capacity:   nc.Capacity,
		Resources:  nc.Resources,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return c, errors.Wrap(err, "creating classroom")
}

// Query returns a page of the resolved school's classrooms, sorted by room number.
func (svc *Service) Query(ctx context.Context, req access.Request, filter QueryFilter, page core.Page) ([]Classroom, core.Pagination, error) {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	page.Clean()
	classrooms, total, err := svc.repo.QueryClassrooms(ctx, schoolID, filter, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying classrooms")
	}
	return classrooms, core.NewPagination(page, total), nil
}

// QueryDeleted returns the resolved school's recycle bin.
func (svc *Service) QueryDeleted(ctx context.Context, req access.Request, page core.Page) ([]Classroom, core.Pagination, error) {
	return svc.Query(ctx, req, QueryFilter{Status: StatusInactive}, page)
}

func (svc *Service) Get(ctx context.Context, req access.Request, id string) (Classroom, error) {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return Classroom{}, err
	}
	return svc.repo.GetClassroom(ctx, schoolID, id)
}

func (svc *Service) Update(ctx context.Context, req access.Request, id string, uc UpdateClassroom) (Classroom, error) {
	if uc.SchoolID != "" {
		req.SchoolID = uc.SchoolID
	}
	schoolID, err := access.Resolve(req)
	if err != nil {
		return Classroom{}, err
	}

	var c Classroom
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err = svc.repo.GetClassroomForUpdate(ctx, schoolID, id)
		if err != nil {
			return err
		}

		if uc.Name != "" {
			c.Name = uc.Name
		}
		if uc.Capacity != nil {
			if *uc.Capacity < c.CurrentEnrollment {
				return ErrCapacityBelowCount
			}
			c.Capacity = *uc.Capacity
		}
		if uc.Resources != nil {
			c.Resources = uc.Resources
		}
		if uc.Status != "" && uc.Status != c.Status {
			if !CanTransition(c.Status, uc.Status) {
				return ErrInvalidTransition
			}
			c.Status = uc.Status
		}
		c.UpdatedAt = core.NowFunc()

		c, err = svc.repo.UpdateClassroom(ctx, c)
		return errors.Wrap(err, "updating classroom")
	})
	if err != nil {
		return Classroom{}, err
	}
	return c, nil
}

func (svc *Service) setStatus(ctx context.Context, req access.Request, id, status string, errInvalid error) (Classroom, error) {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return Classroom{}, err
	}

	var c Classroom
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err = svc.repo.GetClassroomForUpdate(ctx, schoolID, id)
		if err != nil {
			return err
		}
		if !CanTransition(c.Status, status) {
			return errInvalid
		}
		c.Status = status
		c.UpdatedAt = core.NowFunc()
		c, err = svc.repo.UpdateClassroom(ctx, c)
		return errors.Wrap(err, "updating classroom status")
	})
	if err != nil {
		return Classroom{}, err
	}
	return c, nil
}

// Delete soft-deletes a classroom: it is moved to the recycle bin.
func (svc *Service) Delete(ctx context.Context, req access.Request, id string) (Classroom, error) {
	return svc.setStatus(ctx, req, id, StatusInactive, ErrAlreadyDeleted)
}

// Restore takes a classroom out of the recycle bin.
func (svc *Service) Restore(ctx context.Context, req access.Request, id string) (Classroom, error) {
	return svc.setStatus(ctx, req, id, StatusActive, ErrNotDeleted)
}

// PermanentlyDelete removes a classroom from storage.
// It must be in the recycle bin and no student may reference it anymore.
func (svc *Service) PermanentlyDelete(ctx context.Context, req access.Request, id string) error {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return err
	}

	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := svc.repo.GetClassroomForUpdate(ctx, schoolID, id)
		if err != nil {
			return err
		}
		if c.IsActive() {
			return ErrNotDeletedPermanent
		}
		count, err := svc.repo.CountStudents(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "counting classroom students")
		}
		if count > 0 {
			return core.NewInvalidStateError(fmt.Sprintf(
				"Cannot permanently delete classroom with existing dependencies (students: %d)", count,
			))
		}
		return errors.Wrap(svc.repo.DeleteClassroom(ctx, c.ID), "deleting classroom")
	})
}
