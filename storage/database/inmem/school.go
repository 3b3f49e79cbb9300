package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

type schoolRepository struct {
	db *DB
}

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func storedSchool(s school.School) school.School {
	s.Administrators = cloneStrings(s.Administrators)
	s.Metadata.EstablishedDate = cloneTime(s.Metadata.EstablishedDate)
	return s
}

func (repo *schoolRepository) nameExists(name, excludeID string) bool {
	for _, s := range repo.db.tables.schools {
		if s.ID != excludeID && strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	defer repo.db.lock(ctx)()

	if repo.nameExists(s.Name, "") {
		return school.School{}, school.ErrNameExists
	}
	repo.db.tables.schools[s.ID] = storedSchool(s)
	return storedSchool(s), nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	defer repo.db.rlock(ctx)()

	if s, ok := repo.db.tables.schools[id]; ok {
		return storedSchool(s), nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	defer repo.db.rlock(ctx)()
	return repo.nameExists(name, excludeID), nil
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, filter school.QueryFilter, page core.Page) ([]school.School, int, error) {
	defer repo.db.rlock(ctx)()

	schools := make([]school.School, 0)
	for _, s := range repo.db.tables.schools {
		if filter.Status == "" || s.Status == filter.Status {
			schools = append(schools, s)
		}
	}
	sort.Slice(schools, func(i, j int) bool {
		if schools[i].CreatedAt.Equal(schools[j].CreatedAt) {
			return schools[i].ID < schools[j].ID
		}
		return schools[i].CreatedAt.After(schools[j].CreatedAt)
	})

	start, end := paginate(len(schools), page)
	res := make([]school.School, 0, end-start)
	for _, s := range schools[start:end] {
		res = append(res, storedSchool(s))
	}
	return res, len(schools), nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.tables.schools[s.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	if repo.nameExists(s.Name, s.ID) {
		return school.School{}, school.ErrNameExists
	}
	repo.db.tables.schools[s.ID] = storedSchool(s)
	return storedSchool(s), nil
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.tables.schools[id]; !ok {
		return school.ErrNotFound
	}
	delete(repo.db.tables.schools, id)
	return nil
}

func (repo *schoolRepository) CountDependents(ctx context.Context, id string) (school.Dependents, error) {
	defer repo.db.rlock(ctx)()

	var deps school.Dependents
	for _, c := range repo.db.tables.classrooms {
		if c.SchoolID == id {
			deps.Classrooms++
		}
	}
	for _, s := range repo.db.tables.students {
		if s.SchoolID == id {
			deps.Students++
		}
	}
	return deps, nil
}
