package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/storage/cache"
	"github.com/trezcool/shule/tests"
)

var (
	conf   *core.Config
	repos  testutil.Repos
	mailer *emailsvc.ConsoleServiceMock
	tokens *echoapi.TokenManager
)

func setup(t *testing.T) *echoapi.Server {
	conf = testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	repos = testutil.NewRepos()

	// set up services
	mailer = emailsvc.NewConsoleServiceMock(conf, testutil.EmailTemplates(t, conf), logger)
	schoolSvc := school.NewService(repos.Schools, repos.Users, repos.DB, cache.NewNoopCache(), conf, logger)

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        user.NewService(repos.Users, schoolSvc),
		SchoolSvc:      schoolSvc,
		ClassroomSvc:   classroom.NewService(repos.Classrooms, repos.Schools, repos.DB),
		StudentSvc:     student.NewService(repos.Students, repos.Classrooms, repos.Schools, repos.DB, mailer, logger),
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })

	tokens = echoapi.NewTokenManager(conf)
	return srv
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getLongToken(t *testing.T, usr user.User) string {
	token, err := tokens.GenLongToken(usr)
	if err != nil {
		t.Fatalf("getLongToken(): %v", err)
	}
	return token
}

// getToken returns a short token for usr.
func getToken(t *testing.T, usr user.User) string {
	claims, err := tokens.VerifyLongToken(getLongToken(t, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	token, err := tokens.GenShortToken(claims, "go-test")
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

// okBody is the envelope of a successful response.
func okBody(t *testing.T, data echo.Map, msg ...string) []byte {
	res := echoapi.Response{OK: true, Data: data, Errors: []string{}}
	if data == nil {
		res.Data = echo.Map{}
	}
	if len(msg) > 0 {
		res.Message = msg[0]
	}
	return marchallObj(t, res)
}

// errBody is the envelope of a failed response.
func errBody(t *testing.T, errs ...string) []byte {
	return marchallObj(t, echoapi.Response{OK: false, Data: echo.Map{}, Errors: errs, Message: errs[0]})
}

func errValidationBody(t *testing.T, errs ...string) []byte {
	return marchallObj(t, echoapi.Response{OK: false, Data: echo.Map{}, Errors: errs, Message: "Validation failed"})
}

type envelope struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
	Message string          `json:"message"`
}

// decodeData unmarshals the `key` entry of the response data into dest.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, key string, dest interface{}) {
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decodeData(): %v", err)
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decodeData(): %v", err)
	}
	if err := json.Unmarshal(data[key], dest); err != nil {
		t.Fatalf("decodeData(%s): %v", key, err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app http.Handler, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
