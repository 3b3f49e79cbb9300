package student_test

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
	emailsvc "github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/tests"
)

var errStorage = errors.New("storage unavailable")

// failingStudents fails every student update.
type failingStudents struct {
	student.Repository
}

func (failingStudents) UpdateStudent(context.Context, student.Student) (student.Student, error) {
	return student.Student{}, errStorage
}

// failingClassrooms fails every enrollment save.
type failingClassrooms struct {
	classroom.Repository
}

func (failingClassrooms) SaveEnrollment(context.Context, classroom.Classroom) error {
	return errStorage
}

type fixture struct {
	repos       testutil.Repos
	logger      core.Logger
	mailer      *emailsvc.ConsoleServiceMock
	svc         *student.Service
	springfield school.School
	shelbyville school.School
	room        classroom.Classroom
}

func newFixture(t *testing.T, capacity int) fixture {
	t.Helper()
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	repos := testutil.NewRepos()
	mailer := emailsvc.NewConsoleServiceMock(conf, testutil.EmailTemplates(t, conf), logger)

	f := fixture{
		repos:       repos,
		logger:      logger,
		mailer:      mailer,
		svc:         student.NewService(repos.Students, repos.Classrooms, repos.Schools, repos.DB, mailer, logger),
		springfield: testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive),
		shelbyville: testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusActive),
	}
	f.room = testutil.CreateClassroom(t, repos.Classrooms, f.springfield.ID, "101", capacity, classroom.StatusActive)
	return f
}

func (f fixture) adminRequest(schoolID string) access.Request {
	return access.Request{Caller: access.Caller{UserID: core.NewID(), Role: access.RoleSchoolAdmin, AssignedSchool: schoolID}}
}

func (f fixture) enrollment(sid string) student.NewStudent {
	return student.NewStudent{
		ClassroomID: f.room.ID,
		FirstName:   "Bart",
		LastName:    "Simpson",
		DateOfBirth: time.Date(2012, time.April, 1, 0, 0, 0, 0, time.UTC),
		StudentID:   sid,
		GuardianInfo: student.GuardianInfo{
			GuardianName: "Marge Simpson",
			Relationship: "Mother",
			Phone:        "+1 217 555 0142",
			Email:        "marge@simpsons.test",
		},
	}
}

func (f fixture) seats(t *testing.T, c classroom.Classroom) int {
	t.Helper()
	return testutil.GetClassroom(t, f.repos.Classrooms, c.ID).CurrentEnrollment
}

func subjects(msgs []core.EmailMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Subject)
	}
	return out
}

func TestService_Enroll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	req := f.adminRequest(f.springfield.ID)

	foreignRoom := testutil.CreateClassroom(t, f.repos.Classrooms, f.shelbyville.ID, "201", 30, classroom.StatusActive)
	ns := f.enrollment("STU-009")
	ns.ClassroomID = foreignRoom.ID
	_, err := f.svc.Enroll(ctx, req, ns)
	assert.Equal(t, student.ErrClassroomNotInSchool, err)

	s, err := f.svc.Enroll(ctx, req, f.enrollment("STU-001"))
	require.NoError(t, err)
	assert.Equal(t, student.StatusActive, s.Status)
	assert.Equal(t, f.springfield.ID, s.SchoolID)
	assert.Equal(t, []student.TransferRecord{}, s.TransferHistory)
	assert.Equal(t, 1, f.seats(t, f.room))

	_, err = f.svc.Enroll(ctx, req, f.enrollment("STU-002"))
	assert.Equal(t, classroom.ErrCapacityExceeded, err)

	bigger := testutil.CreateClassroom(t, f.repos.Classrooms, f.springfield.ID, "102", 30, classroom.StatusActive)
	ns = f.enrollment("STU-001")
	ns.ClassroomID = bigger.ID
	_, err = f.svc.Enroll(ctx, req, ns)
	assert.Equal(t, student.ErrStudentIDExists, err)
	assert.Equal(t, 0, f.seats(t, bigger))

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Enrollment confirmation", sent[0].Subject)
	assert.Equal(t, "marge@simpsons.test", sent[0].To[0].Address)
}

func TestService_EnrollRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	svc := student.NewService(f.repos.Students, failingClassrooms{f.repos.Classrooms}, f.repos.Schools, f.repos.DB, f.mailer, f.logger)

	_, err := svc.Enroll(ctx, f.adminRequest(f.springfield.ID), f.enrollment("STU-001"))
	assert.ErrorIs(t, err, errStorage)

	exists, err := f.repos.Students.StudentIDExists(ctx, "STU-001")
	require.NoError(t, err)
	assert.False(t, exists, "student creation rolled back")
	assert.Equal(t, 0, f.seats(t, f.room))
	assert.Empty(t, f.mailer.Sent())
}

func TestService_WithdrawRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	req := f.adminRequest(f.springfield.ID)
	s := testutil.CreateStudent(t, f.repos, f.room, "STU-001", student.StatusActive)

	_, err := f.svc.Withdraw(ctx, req, "")
	assert.Equal(t, student.ErrIdentifierRequired, err)
	_, err = f.svc.Restore(ctx, req, s.ID)
	assert.Equal(t, student.ErrNotWithdrawn, err)
	_, err = f.svc.GetWithdrawn(ctx, req, s.StudentID)
	assert.Equal(t, student.ErrWithdrawnNotFound, err)

	got, err := f.svc.Withdraw(ctx, req, s.StudentID)
	require.NoError(t, err)
	assert.Equal(t, student.StatusWithdrawn, got.Status)
	assert.Equal(t, 0, f.seats(t, f.room))

	_, err = f.svc.Withdraw(ctx, req, s.ID)
	assert.Equal(t, student.ErrAlreadyWithdrawn, err)
	_, err = f.svc.Get(ctx, req, s.ID)
	assert.Equal(t, student.ErrNotFound, err)
	got, err = f.svc.GetWithdrawn(ctx, req, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	roster, pagination, err := f.svc.Query(ctx, req, student.QueryFilter{Status: student.StatusWithdrawn}, core.Page{})
	require.NoError(t, err)
	assert.Empty(t, roster)
	assert.Equal(t, 0, pagination.Total)
	withdrawn, _, err := f.svc.QueryWithdrawn(ctx, req, core.Page{})
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)

	t.Run("classroom full", func(t *testing.T) {
		other := testutil.CreateStudent(t, f.repos, f.room, "STU-002", student.StatusActive)
		_, err := f.svc.Restore(ctx, req, s.ID)
		assert.Equal(t, classroom.ErrCapacityExceeded, err)
		_, err = f.svc.Withdraw(ctx, req, other.ID)
		require.NoError(t, err)
	})

	t.Run("school inactive", func(t *testing.T) {
		sch := f.springfield
		sch.Status = school.StatusInactive
		_, err := f.repos.Schools.UpdateSchool(ctx, sch)
		require.NoError(t, err)
		_, err = f.svc.Restore(ctx, req, s.ID)
		assert.Equal(t, student.ErrSchoolUnavailable, err)

		sch.Status = school.StatusActive
		_, err = f.repos.Schools.UpdateSchool(ctx, sch)
		require.NoError(t, err)
	})

	got, err = f.svc.Restore(ctx, req, s.ID)
	require.NoError(t, err)
	assert.Equal(t, student.StatusActive, got.Status)
	assert.Equal(t, 1, f.seats(t, f.room))

	assert.Equal(t, []string{
		"Withdrawal notice",
		"Withdrawal notice",
		"Re-admission notice",
	}, subjects(f.mailer.Sent()))
}

func TestService_WithdrawRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	s := testutil.CreateStudent(t, f.repos, f.room, "STU-001", student.StatusActive)
	svc := student.NewService(failingStudents{f.repos.Students}, f.repos.Classrooms, f.repos.Schools, f.repos.DB, f.mailer, f.logger)

	_, err := svc.Withdraw(ctx, f.adminRequest(f.springfield.ID), s.ID)
	assert.ErrorIs(t, err, errStorage)
	assert.Equal(t, 1, f.seats(t, f.room), "seat release rolled back")
	assert.Empty(t, f.mailer.Sent())
}

func TestService_Transfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	req := f.adminRequest(f.springfield.ID)
	superadmin := access.Request{Caller: access.Caller{UserID: core.NewID(), Role: access.RoleSuperadmin}}
	s := testutil.CreateStudent(t, f.repos, f.room, "STU-001", student.StatusActive)
	graduate := testutil.CreateStudent(t, f.repos, f.room, "STU-002", student.StatusGraduated)
	target := testutil.CreateClassroom(t, f.repos.Classrooms, f.shelbyville.ID, "201", 1, classroom.StatusActive)
	closed := testutil.CreateSchool(t, f.repos.Schools, "Closed Elementary", school.StatusInactive)

	superTo := func(schoolID string) access.Request {
		r := superadmin
		r.PathSchoolID = schoolID
		return r
	}

	tests := []struct {
		name       string
		req        access.Request
		identifier string
		transfer   student.Transfer
		wantErr    error
	}{
		{
			name:       "missing fields",
			req:        req,
			identifier: s.ID,
			transfer:   student.Transfer{TargetSchoolID: f.shelbyville.ID},
			wantErr:    student.ErrTransferFieldsRequired,
		},
		{
			name:       "school admin to foreign school",
			req:        req,
			identifier: s.ID,
			transfer:   student.Transfer{TargetSchoolID: f.shelbyville.ID, TargetClassroomID: target.ID},
			wantErr:    student.ErrTransferForeignSchool,
		},
		{
			name:       "graduated",
			req:        superTo(f.springfield.ID),
			identifier: graduate.ID,
			transfer:   student.Transfer{TargetSchoolID: f.shelbyville.ID, TargetClassroomID: target.ID},
			wantErr:    student.ErrCannotTransfer,
		},
		{
			name:       "inactive target school",
			req:        superTo(f.springfield.ID),
			identifier: s.ID,
			transfer:   student.Transfer{TargetSchoolID: closed.ID, TargetClassroomID: target.ID},
			wantErr:    student.ErrTargetSchoolUnavailable,
		},
		{
			name:       "classroom of another school",
			req:        superTo(f.springfield.ID),
			identifier: s.ID,
			transfer:   student.Transfer{TargetSchoolID: f.shelbyville.ID, TargetClassroomID: f.room.ID},
			wantErr:    student.ErrTargetClassroomNotFound,
		},
		{
			name:       "same classroom",
			req:        req,
			identifier: s.ID,
			transfer:   student.Transfer{TargetSchoolID: f.springfield.ID, TargetClassroomID: f.room.ID},
			wantErr:    student.ErrSameClassroom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transfer(ctx, tt.req, tt.identifier, tt.transfer)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	got, err := f.svc.Transfer(ctx, superTo(f.springfield.ID), s.StudentID, student.Transfer{
		TargetSchoolID:    f.shelbyville.ID,
		TargetClassroomID: target.ID,
		Reason:            "Family moved",
	})
	require.NoError(t, err)
	assert.Equal(t, student.StatusTransferred, got.Status)
	assert.Equal(t, f.shelbyville.ID, got.SchoolID)
	assert.Equal(t, target.ID, got.ClassroomID)
	require.Len(t, got.TransferHistory, 1)
	assert.Equal(t, student.TransferRecord{
		FromSchool:    f.springfield.ID,
		ToSchool:      f.shelbyville.ID,
		FromClassroom: f.room.ID,
		ToClassroom:   target.ID,
		TransferDate:  got.TransferHistory[0].TransferDate,
		Reason:        "Family moved",
	}, got.TransferHistory[0])
	assert.Equal(t, 1, f.seats(t, f.room), "graduate still holds a seat")
	assert.Equal(t, 1, f.seats(t, target))

	other := testutil.CreateStudent(t, f.repos, f.room, "STU-003", student.StatusActive)
	_, err = f.svc.Transfer(ctx, superTo(f.springfield.ID), other.ID, student.Transfer{TargetSchoolID: f.shelbyville.ID, TargetClassroomID: target.ID})
	assert.Equal(t, student.ErrTargetClassroomFull, err)
	assert.Equal(t, 2, f.seats(t, f.room))

	_, err = f.svc.Get(ctx, req, s.ID)
	assert.Equal(t, student.ErrNotFound, err, "no longer in the source school")

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Transfer notice", sent[0].Subject)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	req := f.adminRequest(f.springfield.ID)
	s := testutil.CreateStudent(t, f.repos, f.room, "STU-001", student.StatusActive)
	gone := testutil.CreateStudent(t, f.repos, f.room, "STU-002", student.StatusWithdrawn)

	_, err := f.svc.Update(ctx, req, s.ID, student.UpdateStudent{Status: student.StatusWithdrawn})
	assert.Equal(t, student.ErrWithdrawnStatusChange, err)
	_, err = f.svc.Update(ctx, req, gone.ID, student.UpdateStudent{Status: student.StatusActive})
	assert.Equal(t, student.ErrWithdrawnStatusChange, err)

	got, err := f.svc.Update(ctx, req, s.StudentID, student.UpdateStudent{Status: student.StatusGraduated})
	require.NoError(t, err)
	assert.Equal(t, student.StatusGraduated, got.Status)

	_, err = f.svc.Update(ctx, req, s.ID, student.UpdateStudent{Status: student.StatusTransferred})
	assert.Equal(t, student.ErrInvalidTransition, err)

	got, err = f.svc.Update(ctx, req, s.ID, student.UpdateStudent{
		FirstName:    "Bartholomew",
		GuardianInfo: &student.UpdateGuardianInfo{Phone: "+1 217 555 0143"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bartholomew", got.FirstName)
	assert.Equal(t, "+1 217 555 0143", got.GuardianInfo.Phone)
	assert.Equal(t, "Guardian STU-001", got.GuardianInfo.GuardianName)
	assert.Equal(t, 1, f.seats(t, f.room))
}
