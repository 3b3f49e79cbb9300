package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func storedUser(usr user.User) user.User {
	if usr.AssignedSchool != nil {
		id := *usr.AssignedSchool
		usr.AssignedSchool = &id
	}
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return usr
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string) error {
	defer repo.db.rlock(ctx)()

	for _, usr := range repo.db.tables.users {
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.lock(ctx)()

	if usr.AssignedSchool != nil {
		if _, ok := repo.db.tables.schools[*usr.AssignedSchool]; !ok {
			return user.User{}, user.ErrAssignedSchoolNotFound
		}
	}
	repo.db.tables.users[usr.ID] = storedUser(usr)
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	defer repo.db.rlock(ctx)()

	if usr, ok := repo.db.tables.users[id]; ok {
		return storedUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	defer repo.db.rlock(ctx)()

	for _, usr := range repo.db.tables.users {
		if usr.Email == email {
			return storedUser(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	defer repo.db.rlock(ctx)()

	for _, usr := range repo.db.tables.users {
		if usr.Username == uname || usr.Email == uname {
			return storedUser(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUserIDsBySchool(ctx context.Context, schoolID string) ([]string, error) {
	defer repo.db.rlock(ctx)()

	ids := make([]string, 0)
	for _, usr := range repo.db.tables.users {
		if usr.AssignedSchoolID() == schoolID {
			ids = append(ids, usr.ID)
		}
	}
	return ids, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.tables.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.tables.users[usr.ID] = storedUser(usr)
	return usr, nil
}
