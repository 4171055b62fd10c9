package config

import (
    "flag"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/alim08/fin_quotes/pkg/validation"
)

// Known namespace URIs of the price-report section of the session file.
const (
    Namespace052 = "urn:bvmf.052.01.xsd"
    Namespace217 = "urn:bvmf.217.01.xsd"
)

const (
    defaultArchiveURL = "https://www.b3.com.br/pesquisapregao/download?filelist=SPRE%s.zip"
    defaultPrefix     = "BVBG186"
    defaultBatchSize  = 1000
)

type Config struct {
    DatabaseURL string
    MergePolicy string   `validate:"required,policy"`
    BatchSize   int      `validate:"min=1"`
    Namespaces  []string `validate:"min=1,dive,namespace"`
    StagingDir  string
    RedisURL    string
    SessionDate string   `validate:"yymmdd"`
    FilePrefix  string   `validate:"prefix"`
    FileName    string
    ArchiveURL  string   `validate:"required"`
    MetricsPort int      `validate:"min=0,max=65535"`
    ReportLimit int      `validate:"min=1"`
    Ticker      string
    Check       bool
}

// Load reads environment variables and application flags (via a local FlagSet),
// strips out any -test.* flags, and validates the result.
func Load() (*Config, error) {
    return load(os.Args[1:], time.Now())
}

func load(args []string, now time.Time) (*Config, error) {
    // 1. Build a fresh FlagSet so we don't collide with `go test` flags
    fs := flag.NewFlagSet("config", flag.ContinueOnError)

    // 2. Define only the flags this package cares about
    cfg := &Config{}
    fs.StringVar(&cfg.DatabaseURL, "db", os.Getenv("DATABASE_URL"), "Database connection URL")
    fs.StringVar(&cfg.MergePolicy, "policy", getEnvOrDefault("MERGE_POLICY", "append"), "Duplicate handling: append or upsert")
    fs.IntVar(&cfg.BatchSize, "batch", getIntEnvOrDefault("BATCH_SIZE", defaultBatchSize), "Records per committed chunk")
    fs.StringVar(&cfg.StagingDir, "staging-dir", getEnvOrDefault("STAGING_DIR", "./dados_b3"), "Directory holding staged documents")
    fs.StringVar(&cfg.RedisURL, "redis", os.Getenv("REDIS_URL"), "Redis URL; when set documents are staged in Redis")
    fs.StringVar(&cfg.SessionDate, "date", getEnvOrDefault("SESSION_DATE", now.Format("060102")), "Trading session date (YYMMDD)")
    fs.StringVar(&cfg.FileName, "file", "", "Explicit staged document name")
    fs.IntVar(&cfg.MetricsPort, "metrics-port", getIntEnvOrDefault("METRICS_PORT", 0), "Metrics server port (0 disables)")
    fs.IntVar(&cfg.ReportLimit, "limit", 10, "Rows per report section")
    fs.StringVar(&cfg.Ticker, "ticker", "", "Report the latest rows of one ticker")
    fs.BoolVar(&cfg.Check, "check", false, "Only verify prerequisites")

    // 3. Filter out any -test.* args before parsing
    var appArgs []string
    for _, arg := range args {
        if strings.HasPrefix(arg, "-test.") {
            continue
        }
        appArgs = append(appArgs, arg)
    }
    if err := fs.Parse(appArgs); err != nil {
        return nil, err
    }

    // 4. Values without flags
    cfg.MergePolicy = strings.ToLower(strings.TrimSpace(cfg.MergePolicy))
    cfg.Ticker = strings.ToUpper(strings.TrimSpace(cfg.Ticker))
    cfg.FilePrefix = getEnvOrDefault("FILE_PREFIX", defaultPrefix)
    cfg.ArchiveURL = getEnvOrDefault("ARCHIVE_URL", defaultArchiveURL)
    cfg.Namespaces = []string{Namespace052, Namespace217}
    if env := os.Getenv("NAMESPACES"); env != "" {
        cfg.Namespaces = splitAndTrim(env, ",")
    }

    // 5. Validate
    if errs := validation.ValidateStruct(cfg); len(errs) > 0 {
        return nil, fmt.Errorf("invalid config: %w", errs)
    }
    if strings.Count(cfg.ArchiveURL, "%s") != 1 {
        return nil, fmt.Errorf("invalid config: ARCHIVE_URL must contain exactly one %%s")
    }

    return cfg, nil
}

// RequireDatabase fails when no connection URL was supplied.
func (c *Config) RequireDatabase() error {
    if c.DatabaseURL == "" {
        return fmt.Errorf("missing required config: DATABASE_URL or -db")
    }
    return nil
}

// DocumentName is the staged name of the session document, e.g. BVBG186_250923.xml.
func (c *Config) DocumentName() string {
    if c.FileName != "" {
        return c.FileName
    }
    return fmt.Sprintf("%s_%s.xml", c.FilePrefix, c.SessionDate)
}

// ArchiveURLFor returns the download URL of the configured session.
func (c *Config) ArchiveURLFor() string {
    return fmt.Sprintf(c.ArchiveURL, c.SessionDate)
}

// splitAndTrim splits s on sep, trims spaces, and drops empty entries.
func splitAndTrim(s, sep string) []string {
    parts := []string{}
    for _, p := range strings.Split(s, sep) {
        if t := strings.TrimSpace(p); t != "" {
            parts = append(parts, t)
        }
    }
    return parts
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
    if value := os.Getenv(key); value != "" {
        return value
    }
    return defaultValue
}

// getIntEnvOrDefault returns environment variable as int or default
func getIntEnvOrDefault(key string, defaultValue int) int {
    if value := os.Getenv(key); value != "" {
        if parsed, err := strconv.Atoi(value); err == nil {
            return parsed
        }
    }
    return defaultValue
}
