package testutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	logsvc "github.com/trezcool/shule/services/logger"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

// DefaultPassword is the password of users created without one.
const DefaultPassword = "Sup3r-Secret!"

// Repos groups the repositories of one in-memory database.
type Repos struct {
	DB         *inmemdb.DB
	Users      user.Repository
	Schools    school.Repository
	Classrooms classroom.Repository
	Students   student.Repository
}

func NewRepos() Repos {
	db := inmemdb.Open()
	return Repos{
		DB:         db,
		Users:      inmemdb.NewUserRepository(db),
		Schools:    inmemdb.NewSchoolRepository(db),
		Classrooms: inmemdb.NewClassroomRepository(db),
		Students:   inmemdb.NewStudentRepository(db),
	}
}

// NewConfig returns the config used by tests.
func NewConfig() *core.Config {
	conf := new(core.Config)
	conf.AppName = "Shule"
	conf.Env = "TEST"
	conf.TestMode = true
	conf.DefaultFromEmail = mail.Address{Name: "Shule", Address: "noreply@shule.test"}
	conf.FrontendBaseURL = "http://shule.test"
	conf.Server.CORSOrigins = []string{"*"}
	conf.Auth.LongTokenSecret = "test-long-secret"
	conf.Auth.ShortTokenSecret = "test-short-secret"
	conf.Auth.LongTokenTTL = 24 * time.Hour
	conf.Auth.ShortTokenTTL = time.Hour
	conf.Auth.RateLimitMax = 1000
	conf.Auth.RateLimitWindow = time.Minute
	conf.Database.Engine = core.EngineMemory
	conf.Cache.Prefix = "test:"
	conf.Cache.TTL = time.Minute
	return conf
}

// NewLogger returns a logger that discards everything.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewValidator returns a validator with every custom validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func EmailTemplates(t *testing.T, conf *core.Config) *core.EmailTemplates {
	tmpls, err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
	if err != nil {
		t.Fatalf("EmailTemplates() failed: %v", err)
	}
	return tmpls
}

func CreateUser(t *testing.T, repo user.Repository, uname, role, assignedSchool string, status ...string) user.User {
	now := core.NowFunc()
	usr := user.User{
		ID:        core.NewID(),
		Username:  uname,
		Email:     uname + "@shule.test",
		Role:      role,
		Status:    user.StatusActive,
		Key:       user.NewKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if assignedSchool != "" {
		usr.AssignedSchool = &assignedSchool
	}
	if len(status) > 0 {
		usr.Status = status[0]
	}
	if err := usr.SetPassword(DefaultPassword); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSchool(t *testing.T, repo school.Repository, name string, status string, admins ...string) school.School {
	now := core.NowFunc()
	if admins == nil {
		admins = []string{}
	}
	s, err := repo.CreateSchool(context.Background(), school.School{
		ID:   core.NewID(),
		Name: name,
		Address: school.Address{
			Street:  "1 Main St",
			City:    "Springfield",
			State:   "IL",
			ZipCode: "62701",
			Country: "USA",
		},
		ContactInfo: school.ContactInfo{
			Phone: "+1 217 555 0100",
			Email: "office@shule.test",
		},
		Status:         status,
		Administrators: admins,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return s
}

func CreateClassroom(t *testing.T, repo classroom.Repository, schoolID, roomNumber string, capacity int, status string) classroom.Classroom {
	now := core.NowFunc()
	c, err := repo.CreateClassroom(context.Background(), classroom.Classroom{
		ID:         core.NewID(),
		SchoolID:   schoolID,
		Name:       "Room " + roomNumber,
		RoomNumber: roomNumber,
		GradeLevel: "5",
		Capacity:   capacity,
		Resources:  []string{},
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateClassroom() failed: %v", err)
	}
	return c
}

// CreateStudent stores a student in classroom c and, unless withdrawn, takes a seat for them.
func CreateStudent(t *testing.T, repos Repos, c classroom.Classroom, studentID, status string) student.Student {
	ctx := context.Background()
	now := core.NowFunc()
	s, err := repos.Students.CreateStudent(ctx, student.Student{
		ID:          core.NewID(),
		FirstName:   "Kid",
		LastName:    studentID,
		DateOfBirth: time.Date(2012, time.March, 14, 0, 0, 0, 0, time.UTC),
		StudentID:   studentID,
		SchoolID:    c.SchoolID,
		ClassroomID: c.ID,
		GuardianInfo: student.GuardianInfo{
			GuardianName: "Guardian " + studentID,
			Relationship: "Parent",
			Phone:        "+1 217 555 0199",
			Email:        fmt.Sprintf("guardian.%s@shule.test", studentID),
		},
		EnrollmentDate:  now,
		Status:          status,
		TransferHistory: []student.TransferRecord{},
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}

	if student.HoldsSeat(status) {
		c, err = repos.Classrooms.FindClassroomForUpdate(ctx, c.ID)
		if err != nil {
			t.Fatalf("CreateStudent() failed: %v", err)
		}
		if err = c.Increment(1); err != nil {
			t.Fatalf("CreateStudent() failed: %v", err)
		}
		if err = repos.Classrooms.SaveEnrollment(ctx, c); err != nil {
			t.Fatalf("CreateStudent() failed: %v", err)
		}
	}
	return s
}

// GetClassroom reloads a classroom.
func GetClassroom(t *testing.T, repo classroom.Repository, id string) classroom.Classroom {
	c, err := repo.FindClassroomForUpdate(context.Background(), id)
	if err != nil {
		t.Fatalf("GetClassroom() failed: %v", err)
	}
	return c
}
