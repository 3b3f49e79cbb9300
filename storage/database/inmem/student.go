package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type studentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func storedStudent(s student.Student) student.Student {
	history := make([]student.TransferRecord, len(s.TransferHistory))
	copy(history, s.TransferHistory)
	s.TransferHistory = history
	return s
}

func (repo *studentRepository) studentIDExists(studentID, excludeID string) bool {
	for _, s := range repo.db.tables.students {
		if s.ID != excludeID && s.StudentID == studentID {
			return true
		}
	}
	return false
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	defer repo.db.lock(ctx)()

	if repo.studentIDExists(s.StudentID, "") {
		return student.Student{}, student.ErrStudentIDExists
	}
	if c, ok := repo.db.tables.classrooms[s.ClassroomID]; !ok || c.SchoolID != s.SchoolID {
		return student.Student{}, student.ErrClassroomNotInSchool
	}
	repo.db.tables.students[s.ID] = storedStudent(s)
	return storedStudent(s), nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, schoolID, identifier string) (student.Student, error) {
	defer repo.db.rlock(ctx)()

	if s, ok := repo.db.tables.students[identifier]; ok && s.SchoolID == schoolID {
		return storedStudent(s), nil
	}
	for _, s := range repo.db.tables.students {
		if s.SchoolID == schoolID && s.StudentID == identifier {
			return storedStudent(s), nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

// GetStudentForUpdate needs no row lock: transactions are serialized.
func (repo *studentRepository) GetStudentForUpdate(ctx context.Context, schoolID, identifier string) (student.Student, error) {
	return repo.GetStudent(ctx, schoolID, identifier)
}

func (repo *studentRepository) StudentIDExists(ctx context.Context, studentID string) (bool, error) {
	defer repo.db.rlock(ctx)()
	return repo.studentIDExists(studentID, ""), nil
}

func (repo *studentRepository) query(match func(student.Student) bool, less func(a, b student.Student) bool, page core.Page) ([]student.Student, int) {
	students := make([]student.Student, 0)
	for _, s := range repo.db.tables.students {
		if match(s) {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return less(students[i], students[j]) })

	start, end := paginate(len(students), page)
	res := make([]student.Student, 0, end-start)
	for _, s := range students[start:end] {
		res = append(res, storedStudent(s))
	}
	return res, len(students)
}

func (repo *studentRepository) QueryStudents(ctx context.Context, schoolID string, filter student.QueryFilter, page core.Page) ([]student.Student, int, error) {
	defer repo.db.rlock(ctx)()

	match := func(s student.Student) bool {
		if s.SchoolID != schoolID || s.Status == student.StatusWithdrawn {
			return false
		}
		if filter.Status != "" && s.Status != filter.Status {
			return false
		}
		return filter.ClassroomID == "" || s.ClassroomID == filter.ClassroomID
	}
	byName := func(a, b student.Student) bool {
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	}
	students, total := repo.query(match, byName, page)
	return students, total, nil
}

func (repo *studentRepository) QueryWithdrawnStudents(ctx context.Context, schoolID string, page core.Page) ([]student.Student, int, error) {
	defer repo.db.rlock(ctx)()

	match := func(s student.Student) bool {
		return s.SchoolID == schoolID && s.Status == student.StatusWithdrawn
	}
	newestFirst := func(a, b student.Student) bool {
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.ID < b.ID
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	students, total := repo.query(match, newestFirst, page)
	return students, total, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.tables.students[s.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	if repo.studentIDExists(s.StudentID, s.ID) {
		return student.Student{}, student.ErrStudentIDExists
	}
	repo.db.tables.students[s.ID] = storedStudent(s)
	return storedStudent(s), nil
}
