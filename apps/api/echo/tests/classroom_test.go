package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/tests"
)

func TestClassroomAPI_Create(t *testing.T) {
	app := setup(t)
	root := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")
	springfield := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	shelbyville := testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusActive)
	binned := testutil.CreateSchool(t, repos.Schools, "Binned Elementary", school.StatusInactive)
	admin := testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, springfield.ID)
	testutil.CreateClassroom(t, repos.Classrooms, springfield.ID, "101", 30, classroom.StatusActive)
	rootToken, adminToken := getToken(t, root), getToken(t, admin)

	body := func(schoolID, room string, capacity int) []byte {
		return marchallObj(t, classroom.NewClassroom{
			SchoolID:   schoolID,
			Name:       "Mrs. Krabappel's class",
			RoomNumber: room,
			GradeLevel: "4",
			Capacity:   capacity,
			Resources:  []string{"projector", " projector ", "", "whiteboard"},
		})
	}

	tests := []httpTest{
		{
			name:     "superadmin without school",
			path:     "/api/v1/classrooms",
			token:    rootToken,
			body:     body("", "102", 30),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errBody(t, "School ID is required"),
		},
		{
			name:     "capacity out of bounds",
			path:     "/api/v1/classrooms",
			token:    adminToken,
			body:     body("", "102", 101),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errValidationBody(t, "capacity must be 100 or less"),
		},
		{
			name:     "admin of another school",
			path:     fmt.Sprintf("/api/v1/schools/%s/classrooms", shelbyville.ID),
			token:    adminToken,
			body:     body("", "102", 30),
			wantCode: http.StatusForbidden,
			wantData: errBody(t, "Access denied. You can only manage your assigned school."),
		},
		{
			name:     "inactive school",
			path:     "/api/v1/classrooms?schoolId=" + binned.ID,
			token:    rootToken,
			body:     body("", "102", 30),
			wantCode: http.StatusNotFound,
			wantData: errBody(t, "School not found or inactive"),
		},
		{
			name:     "room number taken",
			path:     "/api/v1/classrooms",
			token:    adminToken,
			body:     body("", "101", 30),
			wantCode: http.StatusConflict,
			wantData: errBody(t, "Room number already exists in this school"),
		},
		{
			name:     "same room number in another school",
			path:     "/api/v1/classrooms",
			token:    rootToken,
			body:     body(shelbyville.ID, "101", 30),
			wantCode: http.StatusCreated,
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
	}
	runTests(t, app, tests)

	t.Run("school admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/v1/classrooms", adminToken, body("", "102", 25))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c map[string]interface{}
		decodeData(t, rec, "classroom", &c)
		assert.Equal(t, springfield.ID, c["schoolId"])
		assert.Equal(t, []interface{}{"projector", "whiteboard"}, c["resources"])
		assert.EqualValues(t, 0, c["currentEnrollment"])
		assert.EqualValues(t, 25, c["availableSeats"])
		assert.Equal(t, false, c["isFull"])
		assert.EqualValues(t, 0, c["utilizationPercentage"])
	})
}

func TestClassroomAPI_Query(t *testing.T) {
	app := setup(t)
	springfield := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	shelbyville := testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusActive)
	admin := testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, springfield.ID)
	root := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")

	testutil.CreateClassroom(t, repos.Classrooms, springfield.ID, "203", 30, classroom.StatusActive)
	testutil.CreateClassroom(t, repos.Classrooms, springfield.ID, "101", 30, classroom.StatusActive)
	testutil.CreateClassroom(t, repos.Classrooms, springfield.ID, "102", 30, classroom.StatusInactive)
	testutil.CreateClassroom(t, repos.Classrooms, shelbyville.ID, "001", 30, classroom.StatusActive)

	list := func(t *testing.T, path, token string) []classroom.Classroom {
		req, rec := newAuthRequest(http.MethodGet, path, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var classrooms []classroom.Classroom
		decodeData(t, rec, "classrooms", &classrooms)
		return classrooms
	}
	rooms := func(classrooms []classroom.Classroom) []string {
		res := make([]string, 0, len(classrooms))
		for _, c := range classrooms {
			res = append(res, c.RoomNumber)
		}
		return res
	}

	t.Run("own school, sorted by room number", func(t *testing.T) {
		assert.Equal(t, []string{"101", "102", "203"}, rooms(list(t, "/api/v1/classrooms", getToken(t, admin))))
	})
	t.Run("active only", func(t *testing.T) {
		assert.Equal(t, []string{"101", "203"}, rooms(list(t, "/api/v1/classrooms?status=active", getToken(t, admin))))
	})
	t.Run("recycle bin", func(t *testing.T) {
		assert.Equal(t, []string{"102"}, rooms(list(t, "/api/v1/classrooms/deleted", getToken(t, admin))))
	})
	t.Run("superadmin by path", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/schools/%s/classrooms", shelbyville.ID)
		assert.Equal(t, []string{"001"}, rooms(list(t, path, getToken(t, root))))
	})
	t.Run("superadmin by query id", func(t *testing.T) {
		assert.Equal(t, []string{"001"}, rooms(list(t, "/api/v1/classrooms?id="+shelbyville.ID, getToken(t, root))))
	})
	t.Run("admin cannot list another school", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/v1/classrooms?schoolId="+shelbyville.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestClassroomAPI_Retrieve(t *testing.T) {
	app := setup(t)
	springfield := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	shelbyville := testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusActive)
	admin := testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, springfield.ID)
	own := testutil.CreateClassroom(t, repos.Classrooms, springfield.ID, "101", 30, classroom.StatusActive)
	foreign := testutil.CreateClassroom(t, repos.Classrooms, shelbyville.ID, "101", 30, classroom.StatusActive)
	token := getToken(t, admin)

	runTests(t, app, []httpTest{
		{
			name:  "own classroom",
			path:  "/api/v1/classrooms/" + own.ID,
			token: token,
		},
		{
			name:     "classroom of another school",
			path:     "/api/v1/classrooms/" + foreign.ID,
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: errBody(t, "Classroom not found or access denied"),
		},
	})
}

func TestClassroomAPI_Update(t *testing.T) {
	app := setup(t)
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	admin := testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, s.ID)
	c := testutil.CreateClassroom(t, repos.Classrooms, s.ID, "101", 3, classroom.StatusActive)
	testutil.CreateStudent(t, repos, c, "STU-001", student.StatusActive)
	testutil.CreateStudent(t, repos, c, "STU-002", student.StatusActive)
	path := "/api/v1/classrooms/" + c.ID

	tests := []httpTest{
		{
			name:     "capacity below enrollment",
			body:     []byte(`{"capacity": 1}`),
			wantCode: http.StatusBadRequest,
			wantData: errBody(t, "Capacity cannot be lower than current enrollment"),
		},
		{
			name:     "enrollment is not updatable",
			body:     []byte(`{"currentEnrollment": 0, "name": "Room 101b"}`),
			wantCode: http.StatusOK,
		},
		{
			name: "capacity down to enrollment",
			body: []byte(`{"capacity": 2}`),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
		tests[i].path = path
		tests[i].token = getToken(t, admin)
	}
	runTests(t, app, tests)

	got := testutil.GetClassroom(t, repos.Classrooms, c.ID)
	assert.Equal(t, "Room 101b", got.Name)
	assert.Equal(t, 2, got.Capacity)
	assert.Equal(t, 2, got.CurrentEnrollment)
	assert.True(t, got.IsFull())
}

func TestClassroomAPI_Lifecycle(t *testing.T) {
	app := setup(t)
	s := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	admin := testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, s.ID)
	empty := testutil.CreateClassroom(t, repos.Classrooms, s.ID, "101", 30, classroom.StatusActive)
	busy := testutil.CreateClassroom(t, repos.Classrooms, s.ID, "102", 30, classroom.StatusInactive)
	testutil.CreateStudent(t, repos, busy, "STU-001", student.StatusWithdrawn)
	token := getToken(t, admin)

	tests := []httpTest{
		{
			name:     "permanent delete of an active classroom",
			method:   http.MethodDelete,
			path:     "/api/v1/classrooms/" + empty.ID + "/permanent",
			wantCode: http.StatusBadRequest,
			wantData: errBody(t, "Classroom must be in recycle bin before permanent deletion"),
		},
		{
			name:   "soft delete",
			method: http.MethodDelete,
			path:   "/api/v1/classrooms/" + empty.ID,
		},
		{
			name:     "soft delete twice",
			method:   http.MethodDelete,
			path:     "/api/v1/classrooms/" + empty.ID,
			wantCode: http.StatusBadRequest,
			wantData: errBody(t, "Classroom is already in recycle bin"),
		},
		{
			name:   "restore",
			method: http.MethodPost,
			path:   "/api/v1/classrooms/" + empty.ID + "/restore",
		},
		{
			name:     "restore twice",
			method:   http.MethodPost,
			path:     "/api/v1/classrooms/" + empty.ID + "/restore",
			wantCode: http.StatusBadRequest,
			wantData: errBody(t, "Classroom not in recycle bin"),
		},
		{
			name:     "permanent delete with students",
			method:   http.MethodDelete,
			path:     "/api/v1/classrooms/" + busy.ID + "/permanent",
			wantCode: http.StatusBadRequest,
			wantData: errBody(t, "Cannot permanently delete classroom with existing dependencies (students: 1)"),
		},
		{
			name:   "soft delete before permanent delete",
			method: http.MethodDelete,
			path:   "/api/v1/classrooms/" + empty.ID,
		},
		{
			name:     "permanent delete",
			method:   http.MethodDelete,
			path:     "/api/v1/classrooms/" + empty.ID + "/permanent",
			wantData: okBody(t, nil, "Classroom permanently deleted"),
		},
		{
			name:     "gone",
			path:     "/api/v1/classrooms/" + empty.ID,
			wantCode: http.StatusNotFound,
		},
	}
	for i := range tests {
		tests[i].token = token
	}
	runTests(t, app, tests)
}
