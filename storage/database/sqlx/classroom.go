package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
)

const classroomsTable = "classrooms"

var classroomColumns = []string{
	"id", "school_id", "name", "room_number", "grade_level", "capacity", "current_enrollment",
	"resources", "status", "created_at", "updated_at",
}

type (
	classroomRow struct {
		ID                string         `db:"id"`
		SchoolID          string         `db:"school_id"`
		Name              string         `db:"name"`
		RoomNumber        string         `db:"room_number"`
		GradeLevel        string         `db:"grade_level"`
		Capacity          int            `db:"capacity"`
		CurrentEnrollment int            `db:"current_enrollment"`
		Resources         pq.StringArray `db:"resources"`
		Status            string         `db:"status"`
		CreatedAt         time.Time      `db:"created_at"`
		UpdatedAt         time.Time      `db:"updated_at"`
	}

	classroomRepository struct {
		*Store
	}
)

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(store *Store) classroom.Repository {
	return &classroomRepository{Store: store}
}

func (r classroomRow) classroom() classroom.Classroom {
	c := classroom.Classroom{
		ID:                r.ID,
		SchoolID:          r.SchoolID,
		Name:              r.Name,
		RoomNumber:        r.RoomNumber,
		GradeLevel:        r.GradeLevel,
		Capacity:          r.Capacity,
		CurrentEnrollment: r.CurrentEnrollment,
		Resources:         []string(r.Resources),
		Status:            r.Status,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if c.Resources == nil {
		c.Resources = []string{}
	}
	return c
}

func resources(c classroom.Classroom) pq.StringArray {
	if c.Resources == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(c.Resources)
}

func classroomWriteErr(err error, msg string) error {
	constraint, ok := constraintErr(err, uniqueViolation, checkViolation)
	switch {
	case !ok:
		return errors.Wrap(err, msg)
	case constraint == "classrooms_room_number_key":
		return classroom.ErrRoomNumberExists
	case constraint == "classrooms_current_enrollment_check":
		return classroom.ErrNegativeEnrollment
	default:
		return classroom.ErrCapacityExceeded
	}
}

func (repo *classroomRepository) getBy(ctx context.Context, where sq.Eq, forUpdate bool) (classroom.Classroom, error) {
	q := psql.Select(classroomColumns...).From(classroomsTable).Where(where)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	var row classroomRow
	if err := repo.get(ctx, &row, q); err != nil {
		return classroom.Classroom{}, trapNoRowsErr(err, classroom.ErrNotFound, "selecting classroom")
	}
	return row.classroom(), nil
}

func (repo *classroomRepository) CreateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	q := psql.Insert(classroomsTable).Columns(classroomColumns...).Values(
		c.ID, c.SchoolID, c.Name, c.RoomNumber, c.GradeLevel, c.Capacity, c.CurrentEnrollment,
		resources(c), c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if _, err := repo.exec(ctx, q); err != nil {
		return classroom.Classroom{}, classroomWriteErr(err, "inserting classroom")
	}
	c.Resources = []string(resources(c))
	return c, nil
}

func (repo *classroomRepository) GetClassroom(ctx context.Context, schoolID, id string) (classroom.Classroom, error) {
	if !core.IsID(schoolID) || !core.IsID(id) {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return repo.getBy(ctx, sq.Eq{"id": id, "school_id": schoolID}, false)
}

func (repo *classroomRepository) GetClassroomForUpdate(ctx context.Context, schoolID, id string) (classroom.Classroom, error) {
	if !core.IsID(schoolID) || !core.IsID(id) {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return repo.getBy(ctx, sq.Eq{"id": id, "school_id": schoolID}, true)
}

func (repo *classroomRepository) FindClassroomForUpdate(ctx context.Context, id string) (classroom.Classroom, error) {
	if !core.IsID(id) {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return repo.getBy(ctx, sq.Eq{"id": id}, true)
}

func (repo *classroomRepository) RoomNumberExists(ctx context.Context, schoolID, roomNumber, excludeID string) (bool, error) {
	if !core.IsID(schoolID) {
		return false, nil
	}
	q := psql.Select("1").From(classroomsTable).Where(sq.Eq{"school_id": schoolID, "room_number": roomNumber})
	if excludeID != "" {
		q = q.Where(sq.NotEq{"id": excludeID})
	}
	exists, err := repo.exists(ctx, q)
	return exists, errors.Wrap(err, "checking room number")
}

func (repo *classroomRepository) QueryClassrooms(ctx context.Context, schoolID string, filter classroom.QueryFilter, page core.Page) ([]classroom.Classroom, int, error) {
	if !core.IsID(schoolID) {
		return []classroom.Classroom{}, 0, nil
	}
	where := sq.Eq{"school_id": schoolID}
	if filter.Status != "" {
		where["status"] = filter.Status
	}
	if filter.GradeLevel != "" {
		where["grade_level"] = filter.GradeLevel
	}

	total, err := repo.count(ctx, psql.Select("COUNT(*)").From(classroomsTable).Where(where))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting classrooms")
	}
	if page.Offset() >= total {
		return nil, total, nil
	}

	var rows []classroomRow
	q := psql.Select(classroomColumns...).From(classroomsTable).Where(where).
		OrderBy("room_number").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset()))
	if err = repo.selectAll(ctx, &rows, q); err != nil {
		return nil, 0, errors.Wrap(err, "selecting classrooms")
	}

	classrooms := make([]classroom.Classroom, 0, len(rows))
	for _, r := range rows {
		classrooms = append(classrooms, r.classroom())
	}
	return classrooms, total, nil
}

func (repo *classroomRepository) UpdateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	if !core.IsID(c.ID) {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	q := psql.Update(classroomsTable).SetMap(map[string]interface{}{
		"name":        c.Name,
		"room_number": c.RoomNumber,
		"grade_level": c.GradeLevel,
		"capacity":    c.Capacity,
		"resources":   resources(c),
		"status":      c.Status,
		"updated_at":  c.UpdatedAt,
	}).Where(sq.Eq{"id": c.ID}).Suffix("RETURNING " + joinColumns(classroomColumns))

	var row classroomRow
	if err := repo.get(ctx, &row, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classroom.Classroom{}, classroom.ErrNotFound
		}
		if constraint, ok := constraintErr(err, checkViolation); ok && constraint == "classrooms_enrollment_capacity" {
			return classroom.Classroom{}, classroom.ErrCapacityBelowCount
		}
		return classroom.Classroom{}, classroomWriteErr(err, "updating classroom")
	}
	return row.classroom(), nil
}

func (repo *classroomRepository) SaveEnrollment(ctx context.Context, c classroom.Classroom) error {
	if !core.IsID(c.ID) {
		return classroom.ErrNotFound
	}
	q := psql.Update(classroomsTable).
		Set("current_enrollment", c.CurrentEnrollment).
		Set("updated_at", core.NowFunc()).
		Where(sq.Eq{"id": c.ID})
	if err := repo.execOne(ctx, q, classroom.ErrNotFound); err != nil {
		if errors.Is(err, classroom.ErrNotFound) {
			return err
		}
		return classroomWriteErr(err, "saving enrollment")
	}
	return nil
}

func (repo *classroomRepository) DeleteClassroom(ctx context.Context, id string) error {
	if !core.IsID(id) {
		return classroom.ErrNotFound
	}
	return repo.execOne(ctx, psql.Delete(classroomsTable).Where(sq.Eq{"id": id}), classroom.ErrNotFound)
}

func (repo *classroomRepository) CountStudents(ctx context.Context, id string) (int, error) {
	if !core.IsID(id) {
		return 0, nil
	}
	n, err := repo.count(ctx, psql.Select("COUNT(*)").From(studentsTable).Where(sq.Eq{"classroom_id": id}))
	return n, errors.Wrap(err, "counting classroom students")
}
