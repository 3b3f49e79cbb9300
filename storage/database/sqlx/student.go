package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

const studentsTable = "students"

var studentColumns = []string{
	"id", "first_name", "last_name", "date_of_birth", "student_id", "school_id", "classroom_id",
	"guardian_info", "enrollment_date", "status", "transfer_history", "created_at", "updated_at",
}

type (
	studentRow struct {
		ID              string         `db:"id"`
		FirstName       string         `db:"first_name"`
		LastName        string         `db:"last_name"`
		DateOfBirth     time.Time      `db:"date_of_birth"`
		StudentID       string         `db:"student_id"`
		SchoolID        string         `db:"school_id"`
		ClassroomID     string         `db:"classroom_id"`
		GuardianInfo    types.JSONText `db:"guardian_info"`
		EnrollmentDate  time.Time      `db:"enrollment_date"`
		Status          string         `db:"status"`
		TransferHistory types.JSONText `db:"transfer_history"`
		CreatedAt       time.Time      `db:"created_at"`
		UpdatedAt       time.Time      `db:"updated_at"`
	}

	studentRepository struct {
		*Store
	}
)

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(store *Store) student.Repository {
	return &studentRepository{Store: store}
}

func newStudentRow(s student.Student) (studentRow, error) {
	row := studentRow{
		ID:             s.ID,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		DateOfBirth:    s.DateOfBirth,
		StudentID:      s.StudentID,
		SchoolID:       s.SchoolID,
		ClassroomID:    s.ClassroomID,
		EnrollmentDate: s.EnrollmentDate,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.TransferHistory == nil {
		s.TransferHistory = []student.TransferRecord{}
	}
	var err error
	if row.GuardianInfo, err = jsonText(s.GuardianInfo); err != nil {
		return row, errors.Wrap(err, "encoding guardian info")
	}
	if row.TransferHistory, err = jsonText(s.TransferHistory); err != nil {
		return row, errors.Wrap(err, "encoding transfer history")
	}
	return row, nil
}

func (r studentRow) student() (student.Student, error) {
	s := student.Student{
		ID:              r.ID,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		DateOfBirth:     r.DateOfBirth.UTC(),
		StudentID:       r.StudentID,
		SchoolID:        r.SchoolID,
		ClassroomID:     r.ClassroomID,
		EnrollmentDate:  r.EnrollmentDate.UTC(),
		Status:          r.Status,
		TransferHistory: []student.TransferRecord{},
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if err := r.GuardianInfo.Unmarshal(&s.GuardianInfo); err != nil {
		return s, errors.Wrap(err, "decoding guardian info")
	}
	if err := r.TransferHistory.Unmarshal(&s.TransferHistory); err != nil {
		return s, errors.Wrap(err, "decoding transfer history")
	}
	return s, nil
}

func studentWriteErr(err error, msg string) error {
	if constraint, ok := constraintErr(err, uniqueViolation); ok && constraint == "students_student_id_key" {
		return student.ErrStudentIDExists
	}
	return errors.Wrap(err, msg)
}

// identifies matches a student by internal or business id.
func identifies(identifier string) sq.Sqlizer {
	if core.IsID(identifier) {
		return sq.Or{sq.Eq{"id": identifier}, sq.Eq{"student_id": identifier}}
	}
	return sq.Eq{"student_id": identifier}
}

func (repo *studentRepository) getBy(ctx context.Context, schoolID, identifier string, forUpdate bool) (student.Student, error) {
	if !core.IsID(schoolID) {
		return student.Student{}, student.ErrNotFound
	}
	q := psql.Select(studentColumns...).From(studentsTable).
		Where(sq.Eq{"school_id": schoolID}).
		Where(identifies(identifier)).
		Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	var row studentRow
	if err := repo.get(ctx, &row, q); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "selecting student")
	}
	return row.student()
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	row, err := newStudentRow(s)
	if err != nil {
		return student.Student{}, err
	}
	q := psql.Insert(studentsTable).Columns(studentColumns...).Values(
		row.ID, row.FirstName, row.LastName, row.DateOfBirth, row.StudentID, row.SchoolID, row.ClassroomID,
		row.GuardianInfo, row.EnrollmentDate, row.Status, row.TransferHistory, row.CreatedAt, row.UpdatedAt,
	)
	if _, err = repo.exec(ctx, q); err != nil {
		return student.Student{}, studentWriteErr(err, "inserting student")
	}
	return row.student()
}

func (repo *studentRepository) GetStudent(ctx context.Context, schoolID, identifier string) (student.Student, error) {
	return repo.getBy(ctx, schoolID, identifier, false)
}

func (repo *studentRepository) GetStudentForUpdate(ctx context.Context, schoolID, identifier string) (student.Student, error) {
	return repo.getBy(ctx, schoolID, identifier, true)
}

func (repo *studentRepository) StudentIDExists(ctx context.Context, studentID string) (bool, error) {
	exists, err := repo.exists(ctx, psql.Select("1").From(studentsTable).Where(sq.Eq{"student_id": studentID}))
	return exists, errors.Wrap(err, "checking student id")
}

func (repo *studentRepository) query(ctx context.Context, where sq.Sqlizer, page core.Page, orderBy ...string) ([]student.Student, int, error) {
	total, err := repo.count(ctx, psql.Select("COUNT(*)").From(studentsTable).Where(where))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting students")
	}
	if page.Offset() >= total {
		return nil, total, nil
	}

	var rows []studentRow
	q := psql.Select(studentColumns...).From(studentsTable).Where(where).
		OrderBy(orderBy...).
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset()))
	if err = repo.selectAll(ctx, &rows, q); err != nil {
		return nil, 0, errors.Wrap(err, "selecting students")
	}

	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		s, err := r.student()
		if err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, schoolID string, filter student.QueryFilter, page core.Page) ([]student.Student, int, error) {
	if !core.IsID(schoolID) {
		return []student.Student{}, 0, nil
	}
	where := sq.And{
		sq.Eq{"school_id": schoolID},
		sq.NotEq{"status": student.StatusWithdrawn},
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.ClassroomID != "" {
		if !core.IsID(filter.ClassroomID) {
			return []student.Student{}, 0, nil
		}
		where = append(where, sq.Eq{"classroom_id": filter.ClassroomID})
	}
	return repo.query(ctx, where, page, "last_name", "first_name", "id")
}

func (repo *studentRepository) QueryWithdrawnStudents(ctx context.Context, schoolID string, page core.Page) ([]student.Student, int, error) {
	if !core.IsID(schoolID) {
		return []student.Student{}, 0, nil
	}
	where := sq.Eq{"school_id": schoolID, "status": student.StatusWithdrawn}
	return repo.query(ctx, where, page, "updated_at DESC", "id")
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	if !core.IsID(s.ID) {
		return student.Student{}, student.ErrNotFound
	}
	row, err := newStudentRow(s)
	if err != nil {
		return student.Student{}, err
	}
	q := psql.Update(studentsTable).SetMap(map[string]interface{}{
		"first_name":       row.FirstName,
		"last_name":        row.LastName,
		"date_of_birth":    row.DateOfBirth,
		"school_id":        row.SchoolID,
		"classroom_id":     row.ClassroomID,
		"guardian_info":    row.GuardianInfo,
		"status":           row.Status,
		"transfer_history": row.TransferHistory,
		"updated_at":       row.UpdatedAt,
	}).Where(sq.Eq{"id": row.ID})
	if err = repo.execOne(ctx, q, student.ErrNotFound); err != nil {
		if errors.Is(err, student.ErrNotFound) {
			return student.Student{}, err
		}
		return student.Student{}, studentWriteErr(err, "updating student")
	}
	return row.student()
}
