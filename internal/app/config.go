package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/atelier-backend/internal/platform/envutil"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	Port        string
	MetricsAddr string

	JWTSecretKey string
	JWTIssuer    string
	CORSOrigins  []string

	WebhookSecret      string
	CreditPackagesFile string
	SignedURLTTL       time.Duration
	ShutdownTimeout    time.Duration
	AutoMigrate        bool
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		ServiceName:        envutil.String("SERVICE_NAME", "atelier-backend"),
		Environment:        envutil.String("APP_ENV", "development"),
		Version:            envutil.String("APP_VERSION", "dev"),
		Port:               envutil.String("PORT", "8080"),
		MetricsAddr:        envutil.String("METRICS_ADDR", ":9090"),
		JWTSecretKey:       envutil.String("JWT_SECRET_KEY", ""),
		JWTIssuer:          envutil.String("JWT_ISSUER", ""),
		CORSOrigins:        splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		WebhookSecret:      envutil.String("PAYGW_WEBHOOK_SECRET", ""),
		CreditPackagesFile: envutil.String("CREDIT_PACKAGES_FILE", ""),
		SignedURLTTL:       envutil.Seconds("SIGNED_URL_TTL_SECONDS", time.Hour),
		ShutdownTimeout:    envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 20*time.Second),
		AutoMigrate:        envutil.Bool("POSTGRES_AUTOMIGRATE", true),
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	if log != nil {
		log.Info("Config loaded",
			"service", cfg.ServiceName,
			"env", cfg.Environment,
			"port", cfg.Port,
			"cors_origins", len(cfg.CORSOrigins),
			"credit_packages_file", cfg.CreditPackagesFile,
			"signed_url_ttl", cfg.SignedURLTTL.String(),
		)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.JWTSecretKey == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if c.WebhookSecret == "" {
		missing = append(missing, "PAYGW_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing env vars: %s", strings.Join(missing, ", "))
	}
	if c.SignedURLTTL <= 0 || c.SignedURLTTL > 7*24*time.Hour {
		return fmt.Errorf("SIGNED_URL_TTL_SECONDS must be between 1s and 7d")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
