package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

const schoolsTable = "schools"

var schoolColumns = []string{
	"id", "name", "address", "contact_info", "status", "administrators", "metadata", "created_at", "updated_at",
}

type (
	schoolRow struct {
		ID             string         `db:"id"`
		Name           string         `db:"name"`
		Address        types.JSONText `db:"address"`
		ContactInfo    types.JSONText `db:"contact_info"`
		Status         string         `db:"status"`
		Administrators pq.StringArray `db:"administrators"`
		Metadata       types.JSONText `db:"metadata"`
		CreatedAt      time.Time      `db:"created_at"`
		UpdatedAt      time.Time      `db:"updated_at"`
	}

	schoolRepository struct {
		*Store
	}
)

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(store *Store) school.Repository {
	return &schoolRepository{Store: store}
}

func jsonText(v interface{}) (types.JSONText, error) {
	b, err := json.Marshal(v)
	return types.JSONText(b), err
}

func newSchoolRow(s school.School) (schoolRow, error) {
	row := schoolRow{
		ID:             s.ID,
		Name:           s.Name,
		Status:         s.Status,
		Administrators: pq.StringArray(s.Administrators),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if row.Administrators == nil {
		row.Administrators = pq.StringArray{}
	}
	var err error
	if row.Address, err = jsonText(s.Address); err != nil {
		return row, errors.Wrap(err, "encoding address")
	}
	if row.ContactInfo, err = jsonText(s.ContactInfo); err != nil {
		return row, errors.Wrap(err, "encoding contact info")
	}
	if row.Metadata, err = jsonText(s.Metadata); err != nil {
		return row, errors.Wrap(err, "encoding metadata")
	}
	return row, nil
}

func (r schoolRow) school() (school.School, error) {
	s := school.School{
		ID:             r.ID,
		Name:           r.Name,
		Status:         r.Status,
		Administrators: []string(r.Administrators),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if s.Administrators == nil {
		s.Administrators = []string{}
	}
	if err := r.Address.Unmarshal(&s.Address); err != nil {
		return s, errors.Wrap(err, "decoding address")
	}
	if err := r.ContactInfo.Unmarshal(&s.ContactInfo); err != nil {
		return s, errors.Wrap(err, "decoding contact info")
	}
	if err := r.Metadata.Unmarshal(&s.Metadata); err != nil {
		return s, errors.Wrap(err, "decoding metadata")
	}
	return s, nil
}

func schoolWriteErr(err error, msg string) error {
	if _, ok := constraintErr(err, uniqueViolation); ok {
		return school.ErrNameExists
	}
	return errors.Wrap(err, msg)
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	row, err := newSchoolRow(s)
	if err != nil {
		return school.School{}, err
	}
	q := psql.Insert(schoolsTable).Columns(schoolColumns...).Values(
		row.ID, row.Name, row.Address, row.ContactInfo, row.Status, row.Administrators, row.Metadata, row.CreatedAt, row.UpdatedAt,
	)
	if _, err = repo.exec(ctx, q); err != nil {
		return school.School{}, schoolWriteErr(err, "inserting school")
	}
	return row.school()
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	if !core.IsID(id) {
		return school.School{}, school.ErrNotFound
	}
	var row schoolRow
	if err := repo.get(ctx, &row, psql.Select(schoolColumns...).From(schoolsTable).Where(sq.Eq{"id": id})); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "selecting school")
	}
	return row.school()
}

func (repo *schoolRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	q := psql.Select("1").From(schoolsTable).Where("LOWER(name) = LOWER(?)", name)
	if excludeID != "" {
		q = q.Where(sq.NotEq{"id": excludeID})
	}
	exists, err := repo.exists(ctx, q)
	return exists, errors.Wrap(err, "checking school name")
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, filter school.QueryFilter, page core.Page) ([]school.School, int, error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}

	total, err := repo.count(ctx, psql.Select("COUNT(*)").From(schoolsTable).Where(where))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting schools")
	}
	if page.Offset() >= total {
		return nil, total, nil
	}

	var rows []schoolRow
	q := psql.Select(schoolColumns...).From(schoolsTable).Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset()))
	if err = repo.selectAll(ctx, &rows, q); err != nil {
		return nil, 0, errors.Wrap(err, "selecting schools")
	}

	schools := make([]school.School, 0, len(rows))
	for _, r := range rows {
		s, err := r.school()
		if err != nil {
			return nil, 0, err
		}
		schools = append(schools, s)
	}
	return schools, total, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	if !core.IsID(s.ID) {
		return school.School{}, school.ErrNotFound
	}
	row, err := newSchoolRow(s)
	if err != nil {
		return school.School{}, err
	}
	q := psql.Update(schoolsTable).SetMap(map[string]interface{}{
		"name":           row.Name,
		"address":        row.Address,
		"contact_info":   row.ContactInfo,
		"status":         row.Status,
		"administrators": row.Administrators,
		"metadata":       row.Metadata,
		"updated_at":     row.UpdatedAt,
	}).Where(sq.Eq{"id": row.ID})
	if err = repo.execOne(ctx, q, school.ErrNotFound); err != nil {
		return school.School{}, schoolWriteErr(err, "updating school")
	}
	return row.school()
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	if !core.IsID(id) {
		return school.ErrNotFound
	}
	return repo.execOne(ctx, psql.Delete(schoolsTable).Where(sq.Eq{"id": id}), school.ErrNotFound)
}

func (repo *schoolRepository) CountDependents(ctx context.Context, id string) (school.Dependents, error) {
	var deps school.Dependents
	if !core.IsID(id) {
		return deps, nil
	}
	var err error
	deps.Classrooms, err = repo.count(ctx, psql.Select("COUNT(*)").From(classroomsTable).Where(sq.Eq{"school_id": id}))
	if err != nil {
		return deps, errors.Wrap(err, "counting school classrooms")
	}
	deps.Students, err = repo.count(ctx, psql.Select("COUNT(*)").From(studentsTable).Where(sq.Eq{"school_id": id}))
	if err != nil {
		return deps, errors.Wrap(err, "counting school students")
	}
	return deps, nil
}
