package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/Flarenzy/smart-ipam/internal/logging"
	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port         string
	DBDriver     string
	DSN          string
	SQLitePath   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	AuthEnabled bool
	Issuer      string
	Audience    string
	JWKSURL     string
	// WriteRole, when set, is required on every state-changing request.
	WriteRole string

	Log       logging.Config
	Discovery DiscoveryConfig

	// Schedule is a five-field cron expression. Empty disables scheduled scans.
	Schedule        string
	ScheduleMethod  string
	SchedulePersist bool
}

type DiscoveryConfig struct {
	Concurrency   int
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	MaxTargets    int
	Privileged    bool
	SNMPCommunity string
	SNMPPort      uint16
	DNSServer     string
	OUIFile       string
}

func DefaultConfig() Config {
	return Config{
		Port:         "4040",
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 2 * time.Minute,
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Discovery: DiscoveryConfig{
			Concurrency:   256,
			Timeout:       time.Second,
			Retries:       1,
			RetryDelay:    100 * time.Millisecond,
			MaxTargets:    1 << 16,
			SNMPCommunity: "public",
			SNMPPort:      161,
		},
		ScheduleMethod:  string(domain.MethodPing),
		SchedulePersist: true,
	}
}

// LoadConfig reads the environment, after loading .env from the working
// directory when one exists. Malformed values are reported together.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	p := envParser{}

	p.str("PORT", &cfg.Port)
	p.str("DB_DRIVER", &cfg.DBDriver)
	p.str("DB_CONN", &cfg.DSN)
	p.str("SQLITE_PATH", &cfg.SQLitePath)
	p.duration("HTTP_READ_TIMEOUT", &cfg.ReadTimeout)
	p.duration("HTTP_WRITE_TIMEOUT", &cfg.WriteTimeout)

	p.boolean("AUTH_ENABLED", &cfg.AuthEnabled)
	p.str("AUTH_ISSUER", &cfg.Issuer)
	p.str("AUTH_AUDIENCE", &cfg.Audience)
	p.str("AUTH_JWKS_URL", &cfg.JWKSURL)
	p.str("AUTH_WRITE_ROLE", &cfg.WriteRole)

	p.str("LOG_LEVEL", &cfg.Log.Level)
	p.str("LOG_FORMAT", &cfg.Log.Format)
	p.str("LOG_FILE", &cfg.Log.File)
	p.integer("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	p.integer("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
	p.integer("LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays)
	p.boolean("LOG_COMPRESS", &cfg.Log.Compress)

	d := &cfg.Discovery
	p.integer("DISCOVERY_CONCURRENCY", &d.Concurrency)
	p.duration("DISCOVERY_TIMEOUT", &d.Timeout)
	p.integer("DISCOVERY_RETRIES", &d.Retries)
	p.duration("DISCOVERY_RETRY_DELAY", &d.RetryDelay)
	p.integer("DISCOVERY_MAX_TARGETS", &d.MaxTargets)
	p.boolean("DISCOVERY_PRIVILEGED", &d.Privileged)
	p.str("SNMP_COMMUNITY", &d.SNMPCommunity)
	p.port("SNMP_PORT", &d.SNMPPort)
	p.str("DNS_SERVER", &d.DNSServer)
	p.str("OUI_FILE", &d.OUIFile)

	p.str("DISCOVERY_SCHEDULE", &cfg.Schedule)
	p.str("DISCOVERY_SCHEDULE_METHOD", &cfg.ScheduleMethod)
	p.boolean("DISCOVERY_SCHEDULE_PERSIST", &cfg.SchedulePersist)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Driver resolves the storage driver: explicit DB_DRIVER first, then
// postgres when a DSN is set, sqlite when a path is set, memory otherwise.
func (c Config) Driver() string {
	switch {
	case c.DBDriver != "":
		return strings.ToLower(c.DBDriver)
	case c.DSN != "":
		return DriverPostgres
	case c.SQLitePath != "":
		return DriverSQLite
	}
	return DriverMemory
}

func (c Config) Validate() error {
	var errs []error
	switch c.Driver() {
	case DriverMemory:
	case DriverPostgres:
		if c.DSN == "" {
			errs = append(errs, errors.New("DB_DRIVER=postgres requires DB_CONN"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("DB_DRIVER=sqlite requires SQLITE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.AuthEnabled && c.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ENABLED requires AUTH_ISSUER"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, ok := domain.ParseDiscoveryMethod(c.ScheduleMethod); !ok {
		errs = append(errs, fmt.Errorf("unknown DISCOVERY_SCHEDULE_METHOD %q", c.ScheduleMethod))
	}
	if c.Schedule != "" {
		if _, err := parseSchedule(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("DISCOVERY_SCHEDULE: %w", err))
		}
	}
	return errors.Join(errs...)
}

type envParser struct {
	errs []error
}

func (p *envParser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *envParser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *envParser) integer(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *envParser) port(key string, dst *uint16) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = uint16(n)
}

func (p *envParser) boolean(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = b
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = d
}
