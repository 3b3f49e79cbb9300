package inmemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func TestDB_WithinTx(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	c := testutil.CreateClassroom(t, repos.Classrooms, s.ID, "101", 30, classroom.StatusActive)

	errBoom := errors.New("boom")
	err := repos.DB.WithinTx(ctx, func(ctx context.Context) error {
		c.CurrentEnrollment = 5
		require.NoError(t, repos.Classrooms.SaveEnrollment(ctx, c))

		// nested calls join the outer transaction
		return repos.DB.WithinTx(ctx, func(ctx context.Context) error {
			return repos.Schools.DeleteSchool(ctx, s.ID)
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 5, testutil.GetClassroom(t, repos.Classrooms, c.ID).CurrentEnrollment)
	_, err = repos.Schools.GetSchoolByID(ctx, s.ID)
	assert.Equal(t, school.ErrNotFound, err)

	s = testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusActive)
	err = repos.DB.WithinTx(ctx, func(ctx context.Context) error {
		c.CurrentEnrollment = 9
		if err := repos.Classrooms.SaveEnrollment(ctx, c); err != nil {
			return err
		}
		if err := repos.Schools.DeleteSchool(ctx, s.ID); err != nil {
			return err
		}
		return errBoom
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 5, testutil.GetClassroom(t, repos.Classrooms, c.ID).CurrentEnrollment)
	_, err = repos.Schools.GetSchoolByID(ctx, s.ID)
	assert.NoError(t, err)
}

func TestDB_Flush(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, s.ID)

	repos.DB.Flush()

	_, err := repos.Schools.GetSchoolByID(ctx, s.ID)
	assert.Equal(t, school.ErrNotFound, err)
	_, err = repos.Users.GetUserByUsernameOrEmail(ctx, "skinner")
	assert.Equal(t, user.ErrNotFound, err)
}

func TestSchoolRepository_QuerySchools(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()

	nowFunc := core.NowFunc
	t.Cleanup(func() { core.NowFunc = nowFunc })
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"First", "Second", "Third", "Fourth", "Fifth"}
	for i, name := range names {
		created := start.Add(time.Duration(i) * time.Hour)
		core.NowFunc = func() time.Time { return created }
		status := school.StatusActive
		if i%2 == 1 {
			status = school.StatusInactive
		}
		testutil.CreateSchool(t, repos.Schools, name+" Elementary", status)
	}

	schoolNames := func(schools []school.School) []string {
		out := make([]string, 0, len(schools))
		for _, s := range schools {
			out = append(out, s.Name)
		}
		return out
	}

	tests := []struct {
		name      string
		filter    school.QueryFilter
		page      core.Page
		want      []string
		wantTotal int
	}{
		{
			name:      "newest first",
			page:      core.Page{Page: 1, Limit: 2},
			want:      []string{"Fifth Elementary", "Fourth Elementary"},
			wantTotal: 5,
		},
		{
			name:      "last page",
			page:      core.Page{Page: 3, Limit: 2},
			want:      []string{"First Elementary"},
			wantTotal: 5,
		},
		{
			name:      "past the end",
			page:      core.Page{Page: 4, Limit: 2},
			want:      []string{},
			wantTotal: 5,
		},
		{
			name:      "huge page",
			page:      core.Page{Page: 922337203685477580, Limit: 20},
			want:      []string{},
			wantTotal: 5,
		},
		{
			name:      "uncleaned page",
			page:      core.Page{Page: -1, Limit: 2},
			want:      []string{"Fifth Elementary", "Fourth Elementary"},
			wantTotal: 5,
		},
		{
			name:      "inactive",
			filter:    school.QueryFilter{Status: school.StatusInactive},
			page:      core.Page{Page: 1, Limit: 20},
			want:      []string{"Fourth Elementary", "Second Elementary"},
			wantTotal: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repos.Schools.QuerySchools(ctx, tt.filter, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, schoolNames(got))
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestSchoolRepository_Constraints(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	other := testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusActive)

	exists, err := repos.Schools.NameExists(ctx, "springfield ELEMENTARY", "")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repos.Schools.NameExists(ctx, "springfield elementary", s.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	other.Name = "SPRINGFIELD Elementary"
	_, err = repos.Schools.UpdateSchool(ctx, other)
	assert.Equal(t, school.ErrNameExists, err)

	got, err := repos.Schools.GetSchoolByID(ctx, s.ID)
	require.NoError(t, err)
	got.Administrators = append(got.Administrators, "mutated")
	got, err = repos.Schools.GetSchoolByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Administrators, "stored copies are isolated")
}

func TestClassroomRepository_Enrollment(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	c := testutil.CreateClassroom(t, repos.Classrooms, s.ID, "101", 2, classroom.StatusActive)

	_, err := repos.Classrooms.CreateClassroom(ctx, classroom.Classroom{ID: core.NewID(), SchoolID: core.NewID(), RoomNumber: "101"})
	assert.Equal(t, classroom.ErrSchoolUnavailable, err)
	_, err = repos.Classrooms.CreateClassroom(ctx, classroom.Classroom{ID: core.NewID(), SchoolID: s.ID, RoomNumber: "101"})
	assert.Equal(t, classroom.ErrRoomNumberExists, err)

	c.CurrentEnrollment = 3
	assert.Equal(t, classroom.ErrCapacityExceeded, repos.Classrooms.SaveEnrollment(ctx, c))
	c.CurrentEnrollment = -1
	assert.Equal(t, classroom.ErrNegativeEnrollment, repos.Classrooms.SaveEnrollment(ctx, c))
	c.CurrentEnrollment = 2
	require.NoError(t, repos.Classrooms.SaveEnrollment(ctx, c))

	// UpdateClassroom leaves the enrollment alone
	c.CurrentEnrollment = 0
	c.Name = "Music"
	got, err := repos.Classrooms.UpdateClassroom(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentEnrollment)

	c.Capacity = 1
	_, err = repos.Classrooms.UpdateClassroom(ctx, c)
	assert.Equal(t, classroom.ErrCapacityBelowCount, err)

	_, err = repos.Classrooms.GetClassroom(ctx, core.NewID(), c.ID)
	assert.Equal(t, classroom.ErrNotFound, err)
}

func TestStudentRepository_Query(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	c := testutil.CreateClassroom(t, repos.Classrooms, s.ID, "101", 30, classroom.StatusActive)
	for _, sid := range []string{"STU-C", "STU-A", "STU-B"} {
		testutil.CreateStudent(t, repos, c, sid, student.StatusActive)
	}
	testutil.CreateStudent(t, repos, c, "STU-0", student.StatusWithdrawn)

	roster, total, err := repos.Students.QueryStudents(ctx, s.ID, student.QueryFilter{}, core.Page{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	var ids []string
	for _, st := range roster {
		ids = append(ids, st.StudentID)
	}
	assert.Equal(t, []string{"STU-A", "STU-B", "STU-C"}, ids)

	withdrawn, total, err := repos.Students.QueryWithdrawnStudents(ctx, s.ID, core.Page{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "STU-0", withdrawn[0].StudentID)

	got, err := repos.Students.GetStudent(ctx, s.ID, "STU-B")
	require.NoError(t, err)
	byID, err := repos.Students.GetStudent(ctx, s.ID, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.StudentID, byID.StudentID)

	_, err = repos.Students.GetStudent(ctx, core.NewID(), got.ID)
	assert.Equal(t, student.ErrNotFound, err)

	got.StudentID = "STU-A"
	_, err = repos.Students.UpdateStudent(ctx, got)
	assert.Equal(t, student.ErrStudentIDExists, err)
}

func TestUserRepository_CheckUniqueness(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	testutil.CreateUser(t, repos.Users, "skinner", access.RoleSuperadmin, "")

	assert.Equal(t, user.ErrUsernameExists, repos.Users.CheckUniqueness(ctx, "skinner", "new@shule.test"))
	assert.Equal(t, user.ErrEmailExists, repos.Users.CheckUniqueness(ctx, "new", "skinner@shule.test"))
	assert.NoError(t, repos.Users.CheckUniqueness(ctx, "new", "new@shule.test"))

	_, err := repos.Users.CreateUser(ctx, user.User{ID: core.NewID(), AssignedSchool: func() *string { id := core.NewID(); return &id }()})
	assert.Equal(t, user.ErrAssignedSchoolNotFound, err)
}
