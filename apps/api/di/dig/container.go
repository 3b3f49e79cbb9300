package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/cache"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is what the configured database engine provides.
	Storage struct {
		dig.Out
		Tx         core.Transactor
		Users      user.Repository
		Schools    school.Repository
		Classrooms classroom.Repository
		Students   student.Repository
		Closer     io.Closer `name:"db"`
	}

	// CacheResult holds the school cache and the redis client behind it (nil when redis is not configured).
	CacheResult struct {
		dig.Out
		Cache core.Cache
		Redis *redis.Client
	}

	ServerParams struct {
		dig.In
		Conf         *core.Config
		Logger       core.Logger
		Validate     *validator.Validate
		Translator   ut.Translator
		UserSvc      *user.Service
		SchoolSvc    *school.Service
		ClassroomSvc *classroom.Service
		StudentSvc   *student.Service
		Redis        *redis.Client
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == core.EngineMemory {
		loggerParam.Logger.Warn("using the in-memory database: data will not survive a restart")
		db := inmemdb.Open()
		return Storage{
			Tx:         db,
			Users:      inmemdb.NewUserRepository(db),
			Schools:    inmemdb.NewSchoolRepository(db),
			Classrooms: inmemdb.NewClassroomRepository(db),
			Students:   inmemdb.NewStudentRepository(db),
			Closer:     nopCloser{},
		}
	}

	setUp := func() (io.Closer, *sqlxrepos.Store, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, sqlxrepos.NewStore(db), nil
	}

	db, store, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		Tx:         store,
		Users:      sqlxrepos.NewUserRepository(store),
		Schools:    sqlxrepos.NewSchoolRepository(store),
		Classrooms: sqlxrepos.NewClassroomRepository(store),
		Students:   sqlxrepos.NewStudentRepository(store),
		Closer:     db,
	}
}

func newCache(conf *core.Config, logger core.Logger) CacheResult {
	if conf.Cache.RedisAddr == "" {
		return CacheResult{Cache: cache.NewNoopCache()}
	}
	client, err := cache.NewRedisClient(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up cache: %v", err), err)
	}
	return CacheResult{Cache: cache.NewRedisCache(client, conf), Redis: client}
}

func newEmailTemplates(conf *core.Config) (*core.EmailTemplates, error) {
	return core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
}

func newEmailService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, tmpls, logger)
	}
	return emailsvc.NewSendgridService(conf, tmpls, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newSchoolStatusGetter(svc *school.Service) user.SchoolStatusGetter {
	return svc
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:         p.Conf,
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		UserSvc:      p.UserSvc,
		SchoolSvc:    p.SchoolSvc,
		ClassroomSvc: p.ClassroomSvc,
		StudentSvc:   p.StudentSvc,
		Redis:        p.Redis,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newCache))
	must(c.Provide(newEmailTemplates))
	must(c.Provide(newEmailService))
	must(c.Provide(func() *validator.Validate { return validator.New() }))
	must(c.Provide(newTranslator))
	must(c.Provide(school.NewService))
	must(c.Provide(newSchoolStatusGetter))
	must(c.Provide(user.NewService))
	must(c.Provide(classroom.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
