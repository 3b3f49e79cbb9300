package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func TestHome(t *testing.T) {
	app := setup(t)

	for _, path := range []string{"/", "/api/v1"} {
		t.Run(path, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: okBody(t, nil, "Welcome to Shule API!")}, rec)
		})
	}
}

func TestUserAPI_Login(t *testing.T) {
	app := setup(t)
	active := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")
	testutil.CreateUser(t, repos.Users, "banned", access.RoleSuperadmin, "", user.StatusSuspended)

	tests := []httpTest{
		{
			name:     "empty body",
			body:     []byte("{}"),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errValidationBody(t, "email is required", "password is required"),
		},
		{
			name:     "malformed email",
			body:     marchallObj(t, user.Credentials{Email: "root", Password: "x"}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errValidationBody(t, "email must be a valid email address"),
		},
		{
			name:     "unknown email",
			body:     marchallObj(t, user.Credentials{Email: "ghost@shule.test", Password: testutil.DefaultPassword}),
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, user.ErrInvalidCredentials.Error()),
		},
		{
			name:     "wrong password",
			body:     marchallObj(t, user.Credentials{Email: active.Email, Password: "wrong-password"}),
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, user.ErrInvalidCredentials.Error()),
		},
		{
			name:     "suspended user",
			body:     marchallObj(t, user.Credentials{Email: "banned@shule.test", Password: testutil.DefaultPassword}),
			wantCode: http.StatusForbidden,
			wantData: errBody(t, user.ErrAccountInactive.Error()),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/v1/auth/login"
	}
	runTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		body := marchallObj(t, user.Credentials{Email: "  ROOT@shule.test ", Password: testutil.DefaultPassword})
		req, rec := newRequest(http.MethodPost, "/api/v1/auth/login", body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var (
			usr       map[string]interface{}
			longToken string
		)
		decodeData(t, rec, "user", &usr)
		decodeData(t, rec, "longToken", &longToken)
		assert.Equal(t, active.ID, usr["id"])
		assert.Equal(t, access.RoleSuperadmin, usr["role"])
		assert.NotContains(t, usr, "password")
		assert.NotContains(t, usr, "key")

		claims, err := tokens.VerifyLongToken(longToken)
		require.NoError(t, err)
		assert.Equal(t, active.ID, claims.UserID)
		assert.Equal(t, active.Key, claims.UserKey)
	})
}

func TestUserAPI_Token(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")
	longToken := getLongToken(t, usr)

	tests := []httpTest{
		{
			name:     "no token",
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, "Authentication required. Please provide a token in the request headers."),
		},
		{
			name:     "garbage token",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, "Invalid or expired token"),
		},
		{
			name:     "short token",
			token:    getToken(t, usr),
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, "Invalid or expired token"),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/v1/auth/token"
	}
	runTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/v1/auth/token", longToken)
		req.Header.Set("User-Agent", "shule-tests/1.0")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var shortToken string
		decodeData(t, rec, "shortToken", &shortToken)
		claims, err := tokens.VerifyShortToken(shortToken)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, claims.UserID)
		assert.Equal(t, "shule-tests/1.0", claims.DeviceID)
		assert.Equal(t, claims.ID, claims.SessionID)
		assert.NotEmpty(t, claims.SessionID)
	})

	t.Run("rotated key", func(t *testing.T) {
		svc := user.NewService(repos.Users, nil)
		_, err := svc.ResetPassword(context.Background(), usr, "An0ther-Secret!")
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/api/v1/auth/token", longToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: errBody(t, "Invalid or expired token")}, rec)
	})
}

func TestUserAPI_Profile(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")
	inactive := testutil.CreateUser(t, repos.Users, "sleepy", access.RoleSuperadmin, "", user.StatusInactive)
	token := getToken(t, usr)

	t.Run("bearer token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/v1/auth/profile", token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: okBody(t, echo.Map{"user": usr})}, rec)
	})

	t.Run("token header", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/v1/auth/profile")
		req.Header.Set("token", token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: okBody(t, echo.Map{"user": usr})}, rec)
	})

	tests := []httpTest{
		{
			name:     "no token",
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, "Authentication required. Please provide a token in the request headers."),
		},
		{
			name:     "long token",
			token:    getLongToken(t, usr),
			wantCode: http.StatusUnauthorized,
			wantData: errBody(t, "Invalid or expired token"),
		},
		{
			name:     "inactive user",
			token:    getToken(t, inactive),
			wantCode: http.StatusForbidden,
			wantData: errBody(t, "User account is inactive or suspended"),
		},
	}
	for i := range tests {
		tests[i].path = "/api/v1/auth/profile"
	}
	runTests(t, app, tests)
}

func TestUserAPI_Register(t *testing.T) {
	app := setup(t)
	root := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")
	active := testutil.CreateSchool(t, repos.Schools, "Springfield Elementary", school.StatusActive)
	closed := testutil.CreateSchool(t, repos.Schools, "Shelbyville Elementary", school.StatusInactive)
	admin := testutil.CreateUser(t, repos.Users, "skinner", access.RoleSchoolAdmin, active.ID)
	rootToken := getToken(t, root)

	newUser := func(uname, role, schoolID string) []byte {
		return marchallObj(t, user.NewUser{
			Username:       uname,
			Email:          uname + "@shule.test",
			Password:       "Sup3r-Secret!",
			Role:           role,
			AssignedSchool: schoolID,
		})
	}

	tests := []httpTest{
		{
			name:     "anonymous",
			body:     newUser("chalmers", access.RoleSchoolAdmin, active.ID),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "school admin",
			token:    getToken(t, admin),
			body:     newUser("chalmers", access.RoleSchoolAdmin, active.ID),
			wantCode: http.StatusForbidden,
			wantData: errBody(t, "Access denied. Superadmin role required"),
		},
		{
			name:     "weak password",
			token:    rootToken,
			body:     marchallObj(t, user.NewUser{Username: "chalmers", Email: "chalmers@shule.test", Password: "12345678", Role: access.RoleSuperadmin}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errValidationBody(t, "password cannot be entirely numeric"),
		},
		{
			name:     "invalid role",
			token:    rootToken,
			body:     newUser("chalmers", "teacher", ""),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errBody(t, "Invalid role"),
		},
		{
			name:     "school admin without school",
			token:    rootToken,
			body:     newUser("chalmers", access.RoleSchoolAdmin, ""),
			wantCode: http.StatusUnprocessableEntity,
			wantData: errBody(t, "School Admin must be assigned to a school"),
		},
		{
			name:     "unknown school",
			token:    rootToken,
			body:     newUser("chalmers", access.RoleSchoolAdmin, "7d2f5c3e-8f40-4a5b-9b0e-3f1a2b3c4d5e"),
			wantCode: http.StatusNotFound,
			wantData: errBody(t, "Assigned school not found"),
		},
		{
			name:     "inactive school",
			token:    rootToken,
			body:     newUser("chalmers", access.RoleSchoolAdmin, closed.ID),
			wantCode: http.StatusBadRequest,
			wantData: errBody(t, "Assigned school is not active"),
		},
		{
			name:     "username taken",
			token:    rootToken,
			body:     marchallObj(t, user.NewUser{Username: "skinner", Email: "other@shule.test", Password: "Sup3r-Secret!", Role: access.RoleSuperadmin}),
			wantCode: http.StatusConflict,
			wantData: errBody(t, "Username already taken"),
		},
		{
			name:     "email taken",
			token:    rootToken,
			body:     marchallObj(t, user.NewUser{Username: "other", Email: "SKINNER@shule.test", Password: "Sup3r-Secret!", Role: access.RoleSuperadmin}),
			wantCode: http.StatusConflict,
			wantData: errBody(t, "Email already registered"),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/v1/auth/register"
	}
	runTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/v1/auth/register", rootToken, newUser("Chalmers", access.RoleSchoolAdmin, active.ID))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var created user.User
		decodeData(t, rec, "user", &created)
		assert.Equal(t, "chalmers", created.Username)
		assert.Equal(t, user.StatusActive, created.Status)
		assert.Equal(t, active.ID, created.AssignedSchoolID())

		stored, err := repos.Users.GetUserByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.NoError(t, stored.CheckPassword("Sup3r-Secret!"))
	})
}

func TestUserAPI_SetStatus(t *testing.T) {
	app := setup(t)
	root := testutil.CreateUser(t, repos.Users, "root", access.RoleSuperadmin, "")
	target := testutil.CreateUser(t, repos.Users, "krabappel", access.RoleSuperadmin, "")
	path := fmt.Sprintf("/api/v1/users/%s/status", target.ID)

	tests := []httpTest{
		{
			name:     "invalid status",
			token:    getToken(t, root),
			body:     []byte(`{"status": "retired"}`),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "unknown user",
			path:     "/api/v1/users/nobody/status",
			token:    getToken(t, root),
			body:     []byte(`{"status": "suspended"}`),
			wantCode: http.StatusNotFound,
			wantData: errBody(t, "User not found"),
		},
		{
			name:  "suspend",
			token: getToken(t, root),
			body:  []byte(`{"status": " Suspended "}`),
		},
		{
			name:     "suspended user can no longer authenticate",
			token:    getToken(t, target),
			body:     []byte(`{"status": "active"}`),
			wantCode: http.StatusForbidden,
			wantData: errBody(t, "User account is inactive or suspended"),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
		if tests[i].path == "" {
			tests[i].path = path
		}
	}
	runTests(t, app, tests)

	usr, err := repos.Users.GetUserByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusSuspended, usr.Status)
}
