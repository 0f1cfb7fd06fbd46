package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strings"
    "time"
)

// Store drivers accepted in STORE_DRIVER.
const (
    StoreMySQL = "mysql"
    StoreMongo = "mongo"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Load is called once in main and the result is
// passed to the components that need it; nothing below cmd/ reads the
// environment on its own.
type Config struct {
    Env  string // application environment (e.g. "dev", "prod")
    Port string // HTTP port to listen on

    StoreDriver string // "mysql" or "mongo"
    DBUser      string // MySQL username
    DBPass      string // MySQL password (optional)
    DBHost      string // MySQL host address
    DBPort      string // MySQL port number
    DBName      string // MySQL database name
    MongoURI    string // MongoDB connection string
    MongoDB     string // MongoDB database name

    JWTSecret     string        // secret used to sign bearer tokens
    AccessTTL     time.Duration // bearer token lifetime
    ResetTokenTTL time.Duration // password reset token lifetime
    BcryptCost    int           // bcrypt cost for password hashing

    CORSOrigins       []string      // allowed browser origins
    MaxUploadBytes    int64         // upper bound for a single multipart request body
    MaxFilesPerUpload int           // upper bound for files in one upload batch
    UploadLeaseTTL    time.Duration // how long a per-user upload lease lives before it self-expires

    MetricsEnabled bool // serve Prometheus metrics on /metrics
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:         must("APP_ENV"),
        Port:        must("APP_PORT"),
        StoreDriver: strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
        JWTSecret:   must("JWT_SECRET"),

        AccessTTL:     time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
        ResetTokenTTL: time.Duration(envInt("RESET_TOKEN_TTL_MIN", 60)) * time.Minute,
        BcryptCost:    envInt("BCRYPT_COST", 10),

        CORSOrigins:       splitList(envStr("CORS_ORIGINS", "http://localhost:3000")),
        MaxUploadBytes:    int64(envInt("MAX_UPLOAD_MB", 50)) << 20,
        MaxFilesPerUpload: envInt("MAX_FILES_PER_UPLOAD", 20),
        UploadLeaseTTL:    envDur("UPLOAD_LEASE_TTL", 10*time.Second),
        MetricsEnabled:    envBool("METRICS_ENABLED", true),
    }
    switch cfg.StoreDriver {
    case StoreMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case StoreMongo:
        cfg.MongoURI = must("MONGO_URI")
        cfg.MongoDB = must("MONGO_DB")
    default:
        log.Fatalf("invalid STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreMySQL, StoreMongo)
    }
    if cfg.MaxFilesPerUpload < 1 {
        cfg.MaxFilesPerUpload = 1
    }
    return cfg
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
    switch strings.ToLower(c.Env) {
    case "dev", "development", "local":
        return true
    }
    return false
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
