package student

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
)

var (
	// errors
	ErrNotFound                = core.NewNotFoundError("Student not found or access denied")
	ErrWithdrawnNotFound       = core.NewNotFoundError("Withdrawn student not found or access denied")
	ErrIdentifierRequired      = core.NewRequiredError("Student ID is required")
	ErrStudentIDExists         = core.NewConflictError("Student ID already exists")
	ErrClassroomNotInSchool    = core.NewNotFoundError("Classroom not found or does not belong to this school")
	ErrAlreadyWithdrawn        = core.NewInvalidStateError("Student is already withdrawn")
	ErrNotWithdrawn            = core.NewInvalidStateError("Student is not in recycle bin")
	ErrSchoolUnavailable       = core.NewNotFoundError("School not found or inactive")
	ErrClassroomUnavailable    = core.NewNotFoundError("Classroom not found or inactive")
	ErrTransferFieldsRequired  = core.NewRequiredError("Student ID, target school ID, and target classroom ID are required")
	ErrTransferForeignSchool   = core.NewAuthorizationError("Access denied. You can only transfer students to schools assigned to you.")
	ErrCannotTransfer          = core.NewInvalidStateError("Withdrawn or graduated students cannot be transferred")
	ErrTargetSchoolUnavailable = core.NewNotFoundError("Target school not found or inactive")
	ErrTargetClassroomNotFound = core.NewNotFoundError("Target classroom not found or does not belong to target school")
	ErrSameClassroom           = core.NewInvalidStateError("Student is already in the target classroom")
	ErrTargetClassroomFull     = core.NewCapacityError("Target classroom is at full capacity")
	ErrInvalidTransition       = core.NewInvalidStateError("Invalid student status transition")
	ErrWithdrawnStatusChange   = core.NewInvalidStateError("Use withdraw or restore to move a student in or out of the recycle bin")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		// GetStudent returns the student of schoolID whose ID or StudentID is identifier.
		GetStudent(ctx context.Context, schoolID, identifier string) (Student, error)
		// GetStudentForUpdate is GetStudent that also locks the record until the
		// surrounding transaction ends.
		GetStudentForUpdate(ctx context.Context, schoolID, identifier string) (Student, error)
		StudentIDExists(ctx context.Context, studentID string) (bool, error)
		// QueryStudents returns a page of a school's roster: students who are not withdrawn,
		// sorted by last then first name, along with the total count.
		QueryStudents(ctx context.Context, schoolID string, filter QueryFilter, page core.Page) ([]Student, int, error)
		// QueryWithdrawnStudents returns a page of a school's withdrawn students,
		// most recently updated first, along with the total count.
		QueryWithdrawnStudents(ctx context.Context, schoolID string, page core.Page) ([]Student, int, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
	}

	Service struct {
		repo       Repository
		classrooms classroom.Repository
		schools    school.Repository
		tx         core.Transactor
		mailer     core.EmailService
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	classrooms classroom.Repository,
	schools school.Repository,
	tx core.Transactor,
	mailer core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		classrooms: classrooms,
		schools:    schools,
		tx:         tx,
		mailer:     mailer,
		logger:     logger,
	}
}

// Enroll creates a student in a classroom of the resolved school and takes a seat for them.
func (svc *Service) Enroll(ctx context.Context, req access.Request, ns NewStudent) (Student, error) {
	if ns.SchoolID != "" {
		req.SchoolID = ns.SchoolID
	}
	schoolID, err := access.Resolve(req)
	if err != nil {
		return Student{}, err
	}

	var (
		s Student
		c classroom.Classroom
	)
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err = svc.classrooms.GetClassroomForUpdate(ctx, schoolID, ns.ClassroomID)
		if err != nil {
			if errors.Is(err, classroom.ErrNotFound) {
				return ErrClassroomNotInSchool
			}
			return errors.Wrap(err, "finding classroom")
		}
		if !c.HasSpace(1) {
			return classroom.ErrCapacityExceeded
		}

		exists, err := svc.repo.StudentIDExists(ctx, ns.StudentID)
		if err != nil {
			return errors.Wrap(err, "checking student id")
		}
		if exists {
			return ErrStudentIDExists
		}

		now := core.NowFunc()
		s, err = svc.repo.CreateStudent(ctx, Student{
			ID:              core.NewID(),
			FirstName:       ns.FirstName,
			LastName:        ns.LastName,
			DateOfBirth:     ns.DateOfBirth,
			StudentID:       ns.StudentID,
			SchoolID:        schoolID,
			ClassroomID:     c.ID,
			GuardianInfo:    ns.GuardianInfo,
			EnrollmentDate:  now,
			Status:          StatusActive,
			TransferHistory: []TransferRecord{},
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return errors.Wrap(err, "creating student")
		}

		if err = c.Increment(1); err != nil {
			return err
		}
		return errors.Wrap(svc.classrooms.SaveEnrollment(ctx, c), "saving enrollment")
	})
	if err != nil {
		return Student{}, err
	}

	svc.notify(s, tmplEnrollment, c.Name, "")
	return s, nil
}

// Withdraw moves a student to the recycle bin and frees their seat.
func (svc *Service) Withdraw(ctx context.Context, req access.Request, identifier string) (Student, error) {
	schoolID, err := svc.resolve(req, identifier)
	if err != nil {
		return Student{}, err
	}

	var s Student
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err = svc.repo.GetStudentForUpdate(ctx, schoolID, identifier)
		if err != nil {
			return err
		}
		if !CanTransition(s.Status, StatusWithdrawn) {
			return ErrAlreadyWithdrawn
		}

		if err = svc.releaseSeat(ctx, s.ClassroomID); err != nil {
			return err
		}

		s.Status = StatusWithdrawn
		s.UpdatedAt = core.NowFunc()
		s, err = svc.repo.UpdateStudent(ctx, s)
		return errors.Wrap(err, "withdrawing student")
	})
	if err != nil {
		return Student{}, err
	}

	svc.notify(s, tmplWithdrawal, "", "")
	return s, nil
}

// Restore takes a student out of the recycle bin, back into their classroom.
// The school and the classroom must both be active and the classroom must have space.
func (svc *Service) Restore(ctx context.Context, req access.Request, identifier string) (Student, error) {
	schoolID, err := svc.resolve(req, identifier)
	if err != nil {
		return Student{}, err
	}

	var (
		s Student
		c classroom.Classroom
	)
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err = svc.repo.GetStudentForUpdate(ctx, schoolID, identifier)
		if err != nil {
			return err
		}
		if s.Status != StatusWithdrawn {
			return ErrNotWithdrawn
		}

		sch, err := svc.schools.GetSchoolByID(ctx, s.SchoolID)
		if err != nil {
			if errors.Is(err, school.ErrNotFound) {
				return ErrSchoolUnavailable
			}
			return errors.Wrap(err, "finding school")
		}
		if !sch.IsActive() {
			return ErrSchoolUnavailable
		}

		c, err = svc.classrooms.GetClassroomForUpdate(ctx, s.SchoolID, s.ClassroomID)
		if err != nil {
			if errors.Is(err, classroom.ErrNotFound) {
				return ErrClassroomUnavailable
			}
			return errors.Wrap(err, "finding classroom")
		}
		if !c.IsActive() {
			return ErrClassroomUnavailable
		}
		if err = c.Increment(1); err != nil {
			return err
		}
		if err = svc.classrooms.SaveEnrollment(ctx, c); err != nil {
			return errors.Wrap(err, "saving enrollment")
		}

		s.Status = StatusActive
		s.UpdatedAt = core.NowFunc()
		s, err = svc.repo.UpdateStudent(ctx, s)
		return errors.Wrap(err, "restoring student")
	})
	if err != nil {
		return Student{}, err
	}

	svc.notify(s, tmplRestoration, c.Name, "")
	return s, nil
}

// Transfer moves a student to a classroom of another (or the same) school,
// recording the move in their transfer history.
func (svc *Service) Transfer(ctx context.Context, req access.Request, identifier string, t Transfer) (Student, error) {
	if t.SchoolID != "" {
		req.SchoolID = t.SchoolID
	}
	schoolID, err := access.Resolve(req)
	if err != nil {
		return Student{}, err
	}
	if identifier == "" || t.TargetSchoolID == "" || t.TargetClassroomID == "" {
		return Student{}, ErrTransferFieldsRequired
	}

	var (
		s      Student
		target classroom.Classroom
	)
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		targetSchool, err := svc.schools.GetSchoolByID(ctx, t.TargetSchoolID)
		if err != nil && !errors.Is(err, school.ErrNotFound) {
			return errors.Wrap(err, "finding target school")
		}
		found := err == nil

		if access.IsSchoolAdmin(req.Caller.Role) {
			allowed := found && targetSchool.IsActive() &&
				(targetSchool.HasAdministrator(req.Caller.UserID) || targetSchool.ID == req.Caller.AssignedSchool)
			if !allowed {
				return ErrTransferForeignSchool
			}
		}

		s, err = svc.repo.GetStudentForUpdate(ctx, schoolID, identifier)
		if err != nil {
			return err
		}
		if !CanTransition(s.Status, StatusTransferred) {
			return ErrCannotTransfer
		}

		if !found || !targetSchool.IsActive() {
			return ErrTargetSchoolUnavailable
		}

		target, err = svc.classrooms.GetClassroomForUpdate(ctx, targetSchool.ID, t.TargetClassroomID)
		if err != nil {
			if errors.Is(err, classroom.ErrNotFound) {
				return ErrTargetClassroomNotFound
			}
			return errors.Wrap(err, "finding target classroom")
		}
		if target.ID == s.ClassroomID {
			return ErrSameClassroom
		}
		if !target.HasSpace(1) {
			return ErrTargetClassroomFull
		}

		if err = svc.releaseSeat(ctx, s.ClassroomID); err != nil {
			return err
		}
		if err = target.Increment(1); err != nil {
			return err
		}
		if err = svc.classrooms.SaveEnrollment(ctx, target); err != nil {
			return errors.Wrap(err, "saving target enrollment")
		}

		now := core.NowFunc()
		s.TransferHistory = append(s.TransferHistory, TransferRecord{
			FromSchool:    s.SchoolID,
			ToSchool:      targetSchool.ID,
			FromClassroom: s.ClassroomID,
			ToClassroom:   target.ID,
			TransferDate:  now,
			Reason:        t.Reason,
		})
		s.SchoolID = targetSchool.ID
		s.ClassroomID = target.ID
		s.Status = StatusTransferred
		s.UpdatedAt = now
		s, err = svc.repo.UpdateStudent(ctx, s)
		return errors.Wrap(err, "transferring student")
	})
	if err != nil {
		return Student{}, err
	}

	svc.notify(s, tmplTransfer, target.Name, t.Reason)
	return s, nil
}

// releaseSeat gives back the seat held in a classroom. A missing classroom is ignored.
func (svc *Service) releaseSeat(ctx context.Context, classroomID string) error {
	c, err := svc.classrooms.FindClassroomForUpdate(ctx, classroomID)
	if err != nil {
		if errors.Is(err, classroom.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "finding current classroom")
	}
	if err = c.Decrement(1); err != nil {
		return err
	}
	return errors.Wrap(svc.classrooms.SaveEnrollment(ctx, c), "saving enrollment")
}

// Update merges new details into a student. Status changes follow the lifecycle,
// but moving in or out of the recycle bin is left to Withdraw and Restore.
func (svc *Service) Update(ctx context.Context, req access.Request, identifier string, us UpdateStudent) (Student, error) {
	if us.SchoolID != "" {
		req.SchoolID = us.SchoolID
	}
	schoolID, err := svc.resolve(req, identifier)
	if err != nil {
		return Student{}, err
	}

	var s Student
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err = svc.repo.GetStudentForUpdate(ctx, schoolID, identifier)
		if err != nil {
			return err
		}

		if us.Status != "" && us.Status != s.Status {
			if s.Status == StatusWithdrawn || us.Status == StatusWithdrawn {
				return ErrWithdrawnStatusChange
			}
			if !CanTransition(s.Status, us.Status) {
				return ErrInvalidTransition
			}
			s.Status = us.Status
		}
		us.apply(&s)
		s.UpdatedAt = core.NowFunc()

		s, err = svc.repo.UpdateStudent(ctx, s)
		return errors.Wrap(err, "updating student")
	})
	if err != nil {
		return Student{}, err
	}
	return s, nil
}

// Get returns a student of the resolved school who is not in the recycle bin.
func (svc *Service) Get(ctx context.Context, req access.Request, identifier string) (Student, error) {
	schoolID, err := svc.resolve(req, identifier)
	if err != nil {
		return Student{}, err
	}
	s, err := svc.repo.GetStudent(ctx, schoolID, identifier)
	if err != nil {
		return Student{}, err
	}
	if s.Status == StatusWithdrawn {
		return Student{}, ErrNotFound
	}
	return s, nil
}

// GetWithdrawn returns a student of the resolved school from the recycle bin.
func (svc *Service) GetWithdrawn(ctx context.Context, req access.Request, identifier string) (Student, error) {
	schoolID, err := svc.resolve(req, identifier)
	if err != nil {
		return Student{}, err
	}
	s, err := svc.repo.GetStudent(ctx, schoolID, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Student{}, ErrWithdrawnNotFound
		}
		return Student{}, err
	}
	if s.Status != StatusWithdrawn {
		return Student{}, ErrWithdrawnNotFound
	}
	return s, nil
}

// Query returns a page of the resolved school's roster.
// Filtering on StatusWithdrawn is ignored: use QueryWithdrawn.
func (svc *Service) Query(ctx context.Context, req access.Request, filter QueryFilter, page core.Page) ([]Student, core.Pagination, error) {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	if filter.Status == StatusWithdrawn {
		filter.Status = ""
	}
	page.Clean()
	students, total, err := svc.repo.QueryStudents(ctx, schoolID, filter, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying students")
	}
	return students, core.NewPagination(page, total), nil
}

// QueryWithdrawn returns a page of the resolved school's recycle bin.
func (svc *Service) QueryWithdrawn(ctx context.Context, req access.Request, page core.Page) ([]Student, core.Pagination, error) {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	page.Clean()
	students, total, err := svc.repo.QueryWithdrawnStudents(ctx, schoolID, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying withdrawn students")
	}
	return students, core.NewPagination(page, total), nil
}

func (svc *Service) resolve(req access.Request, identifier string) (string, error) {
	schoolID, err := access.Resolve(req)
	if err != nil {
		return "", err
	}
	if identifier == "" {
		return "", ErrIdentifierRequired
	}
	return schoolID, nil
}
