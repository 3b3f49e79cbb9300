package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
)

type classroomRepository struct {
	db *DB
}

func NewClassroomRepository(db *DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func storedClassroom(c classroom.Classroom) classroom.Classroom {
	c.Resources = cloneStrings(c.Resources)
	return c
}

func (repo *classroomRepository) roomNumberExists(schoolID, roomNumber, excludeID string) bool {
	for _, c := range repo.db.tables.classrooms {
		if c.ID != excludeID && c.SchoolID == schoolID && c.RoomNumber == roomNumber {
			return true
		}
	}
	return false
}

func (repo *classroomRepository) get(schoolID, id string) (classroom.Classroom, error) {
	c, ok := repo.db.tables.classrooms[id]
	if !ok || (schoolID != "" && c.SchoolID != schoolID) {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return storedClassroom(c), nil
}

func (repo *classroomRepository) CreateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.tables.schools[c.SchoolID]; !ok {
		return classroom.Classroom{}, classroom.ErrSchoolUnavailable
	}
	if repo.roomNumberExists(c.SchoolID, c.RoomNumber, "") {
		return classroom.Classroom{}, classroom.ErrRoomNumberExists
	}
	repo.db.tables.classrooms[c.ID] = storedClassroom(c)
	return storedClassroom(c), nil
}

func (repo *classroomRepository) GetClassroom(ctx context.Context, schoolID, id string) (classroom.Classroom, error) {
	defer repo.db.rlock(ctx)()
	return repo.get(schoolID, id)
}

// GetClassroomForUpdate needs no row lock: transactions are serialized.
func (repo *classroomRepository) GetClassroomForUpdate(ctx context.Context, schoolID, id string) (classroom.Classroom, error) {
	return repo.GetClassroom(ctx, schoolID, id)
}

func (repo *classroomRepository) FindClassroomForUpdate(ctx context.Context, id string) (classroom.Classroom, error) {
	defer repo.db.rlock(ctx)()
	return repo.get("", id)
}

func (repo *classroomRepository) RoomNumberExists(ctx context.Context, schoolID, roomNumber, excludeID string) (bool, error) {
	defer repo.db.rlock(ctx)()
	return repo.roomNumberExists(schoolID, roomNumber, excludeID), nil
}

func (repo *classroomRepository) QueryClassrooms(ctx context.Context, schoolID string, filter classroom.QueryFilter, page core.Page) ([]classroom.Classroom, int, error) {
	defer repo.db.rlock(ctx)()

	classrooms := make([]classroom.Classroom, 0)
	for _, c := range repo.db.tables.classrooms {
		if c.SchoolID != schoolID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.GradeLevel != "" && c.GradeLevel != filter.GradeLevel {
			continue
		}
		classrooms = append(classrooms, c)
	}
	sort.Slice(classrooms, func(i, j int) bool {
		return classrooms[i].RoomNumber < classrooms[j].RoomNumber
	})

	start, end := paginate(len(classrooms), page)
	res := make([]classroom.Classroom, 0, end-start)
	for _, c := range classrooms[start:end] {
		res = append(res, storedClassroom(c))
	}
	return res, len(classrooms), nil
}

func (repo *classroomRepository) UpdateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	defer repo.db.lock(ctx)()

	orig, ok := repo.db.tables.classrooms[c.ID]
	if !ok {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	if repo.roomNumberExists(c.SchoolID, c.RoomNumber, c.ID) {
		return classroom.Classroom{}, classroom.ErrRoomNumberExists
	}
	if c.Capacity < orig.CurrentEnrollment {
		return classroom.Classroom{}, classroom.ErrCapacityBelowCount
	}
	c.CurrentEnrollment = orig.CurrentEnrollment
	repo.db.tables.classrooms[c.ID] = storedClassroom(c)
	return storedClassroom(c), nil
}

func (repo *classroomRepository) SaveEnrollment(ctx context.Context, c classroom.Classroom) error {
	defer repo.db.lock(ctx)()

	orig, ok := repo.db.tables.classrooms[c.ID]
	if !ok {
		return classroom.ErrNotFound
	}
	switch {
	case c.CurrentEnrollment < 0:
		return classroom.ErrNegativeEnrollment
	case c.CurrentEnrollment > orig.Capacity:
		return classroom.ErrCapacityExceeded
	}
	orig.CurrentEnrollment = c.CurrentEnrollment
	orig.UpdatedAt = core.NowFunc()
	repo.db.tables.classrooms[c.ID] = orig
	return nil
}

func (repo *classroomRepository) DeleteClassroom(ctx context.Context, id string) error {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.tables.classrooms[id]; !ok {
		return classroom.ErrNotFound
	}
	delete(repo.db.tables.classrooms, id)
	return nil
}

func (repo *classroomRepository) CountStudents(ctx context.Context, id string) (int, error) {
	defer repo.db.rlock(ctx)()

	count := 0
	for _, s := range repo.db.tables.students {
		if s.ClassroomID == id {
			count++
		}
	}
	return count, nil
}
