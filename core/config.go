package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
)

type Config struct {
	AppName          string
	Build            string
	Env              string
	Debug            bool
	TestMode         bool
	DefaultFromEmail mail.Address
	RollbarToken     string
	SendgridAPIKey   string
	FrontendBaseURL  string

	Server struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		CORSOrigins     []string
	}

	Auth struct {
		LongTokenSecret  string
		ShortTokenSecret string
		LongTokenTTL     time.Duration
		ShortTokenTTL    time.Duration
		RateLimitMax     int // requests per window on /auth
		RateLimitWindow  time.Duration
	}

	Database struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Cache struct {
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		Prefix        string
		TTL           time.Duration
	}
}

// DatabaseAddress returns the database "host:port".
func (c Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
}

// NewConfig loads the config of the current ENV (DEV by default) from the environment,
// reading `config/.env.<env>` first when it exists.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("appName", "Shule")
	v.SetDefault("build", "develop")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "Shule")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridAPIKey", "")

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_corsOrigins", "*")

	v.SetDefault("auth_longTokenSecret", "y7$f-ke3q)e4n1+h9!f^u0@c2a#lz_long")
	v.SetDefault("auth_shortTokenSecret", "p2&x-rb8w(n5m0=d7*o1!s6k#vq_short")
	v.SetDefault("auth_longTokenTTL", 3*365*24*time.Hour)
	v.SetDefault("auth_shortTokenTTL", 365*24*time.Hour)
	v.SetDefault("auth_rateLimitMax", 20)
	v.SetDefault("auth_rateLimitWindow", 15*time.Minute)

	v.SetDefault("database_engine", EnginePostgres)
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", 5432)
	v.SetDefault("database_name", "shule")
	v.SetDefault("database_user", "shule")
	v.SetDefault("database_password", "shule")
	v.SetDefault("database_adminUser", "postgres")
	v.SetDefault("database_adminPassword", "postgres")
	v.SetDefault("database_disableTLS", true)

	v.SetDefault("cache_redisAddr", "")
	v.SetDefault("cache_redisPassword", "")
	v.SetDefault("cache_redisDB", 0)
	v.SetDefault("cache_prefix", "shule:")
	v.SetDefault("cache_ttl", 10*time.Minute)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	conf.Env = env
	conf.AppName = v.GetString("appName")
	conf.Build = v.GetString("build")
	conf.Debug = v.GetBool("debug")
	conf.TestMode = v.GetBool("testMode")
	conf.DefaultFromEmail = mail.Address{Name: v.GetString("defaultFromName"), Address: v.GetString("defaultFromEmail")}
	conf.RollbarToken = v.GetString("rollbarToken")
	conf.SendgridAPIKey = v.GetString("sendgridAPIKey")
	conf.FrontendBaseURL = v.GetString("frontendBaseURL")

	conf.Server.Host = v.GetString("server_host")
	conf.Server.Address = v.GetString("server_address")
	conf.Server.DebugHost = v.GetString("server_debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server_shutdownTimeout")
	conf.Server.CORSOrigins = splitList(v.GetString("server_corsOrigins"))

	conf.Auth.LongTokenSecret = v.GetString("auth_longTokenSecret")
	conf.Auth.ShortTokenSecret = v.GetString("auth_shortTokenSecret")
	conf.Auth.LongTokenTTL = v.GetDuration("auth_longTokenTTL")
	conf.Auth.ShortTokenTTL = v.GetDuration("auth_shortTokenTTL")
	conf.Auth.RateLimitMax = v.GetInt("auth_rateLimitMax")
	conf.Auth.RateLimitWindow = v.GetDuration("auth_rateLimitWindow")

	conf.Database.Engine = v.GetString("database_engine")
	conf.Database.Host = v.GetString("database_host")
	conf.Database.Port = v.GetInt("database_port")
	conf.Database.Name = v.GetString("database_name")
	conf.Database.User = v.GetString("database_user")
	conf.Database.Password = v.GetString("database_password")
	conf.Database.AdminUser = v.GetString("database_adminUser")
	conf.Database.AdminPassword = v.GetString("database_adminPassword")
	conf.Database.DisableTLS = v.GetBool("database_disableTLS")

	conf.Cache.RedisAddr = v.GetString("cache_redisAddr")
	conf.Cache.RedisPassword = v.GetString("cache_redisPassword")
	conf.Cache.RedisDB = v.GetInt("cache_redisDB")
	conf.Cache.Prefix = v.GetString("cache_prefix")
	conf.Cache.TTL = v.GetDuration("cache_ttl")

	return conf
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
