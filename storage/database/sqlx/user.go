package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const usersTable = "users"

var userColumns = []string{
	"id", "username", "email", "password_hash", "role", "assigned_school", "status", "user_key", "created_at", "updated_at",
}

type (
	userRow struct {
		ID             string         `db:"id"`
		Username       string         `db:"username"`
		Email          string         `db:"email"`
		PasswordHash   []byte         `db:"password_hash"`
		Role           string         `db:"role"`
		AssignedSchool sql.NullString `db:"assigned_school"`
		Status         string         `db:"status"`
		Key            string         `db:"user_key"`
		CreatedAt      time.Time      `db:"created_at"`
		UpdatedAt      time.Time      `db:"updated_at"`
	}

	userRepository struct {
		*Store
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(store *Store) user.Repository {
	return &userRepository{Store: store}
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Status:       r.Status,
		Key:          r.Key,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.AssignedSchool.Valid {
		id := r.AssignedSchool.String
		usr.AssignedSchool = &id
	}
	return usr
}

func assignedSchool(usr user.User) sql.NullString {
	return sql.NullString{String: usr.AssignedSchoolID(), Valid: usr.AssignedSchool != nil}
}

func (repo *userRepository) getBy(ctx context.Context, where sq.Sqlizer) (user.User, error) {
	var row userRow
	if err := repo.get(ctx, &row, psql.Select(userColumns...).From(usersTable).Where(where).Limit(1)); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string) error {
	var rows []userRow
	q := psql.Select(userColumns...).From(usersTable).Where(sq.Or{sq.Eq{"username": username}, sq.Eq{"email": email}})
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if r.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := psql.Insert(usersTable).Columns(userColumns...).Values(
		usr.ID, usr.Username, usr.Email, usr.PasswordHash, usr.Role, assignedSchool(usr),
		usr.Status, usr.Key, usr.CreatedAt, usr.UpdatedAt,
	)
	if _, err := repo.exec(ctx, q); err != nil {
		if constraint, ok := constraintErr(err, uniqueViolation); ok {
			if constraint == "users_email_key" {
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !core.IsID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getBy(ctx, sq.Eq{"id": id})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getBy(ctx, sq.Eq{"email": email})
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	return repo.getBy(ctx, sq.Or{sq.Eq{"username": uname}, sq.Eq{"email": uname}})
}

func (repo *userRepository) QueryUserIDsBySchool(ctx context.Context, schoolID string) ([]string, error) {
	ids := make([]string, 0)
	if !core.IsID(schoolID) {
		return ids, nil
	}
	err := repo.selectAll(ctx, &ids, psql.Select("id").From(usersTable).Where(sq.Eq{"assigned_school": schoolID}))
	return ids, errors.Wrap(err, "selecting school users")
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !core.IsID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	q := psql.Update(usersTable).SetMap(map[string]interface{}{
		"username":        usr.Username,
		"email":           usr.Email,
		"password_hash":   usr.PasswordHash,
		"role":            usr.Role,
		"assigned_school": assignedSchool(usr),
		"status":          usr.Status,
		"user_key":        usr.Key,
		"updated_at":      usr.UpdatedAt,
	}).Where(sq.Eq{"id": usr.ID})
	if err := repo.execOne(ctx, q, user.ErrNotFound); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}
