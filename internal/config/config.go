package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DeliveryBody   = "body"
	DeliveryCookie = "cookie"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Env    string
	Server struct {
		Addr      string
		ClientURL string
	}
	Database struct {
		Path string
	}
	Auth   Auth
	Mail   Mail
	Avatar Avatar
	AWS    struct {
		Profile string
	}
}

// Auth carries the signing material and lifetimes of session and one-time tokens.
type Auth struct {
	JWTSecret            string
	JWTAlgorithm         string
	TokenTTL             time.Duration
	CookieTTL            time.Duration
	TokenDelivery        string
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
}

type Mail struct {
	From     string
	SMTPAddr string
	Username string
	Password string
	Workers  int
}

type Avatar struct {
	Bucket    string
	Region    string
	Endpoint  string
	KeyPrefix string
	MaxBytes  int64
}

// Production reports whether the process runs with production semantics (secure cookies).
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	_ = godotenv.Load() // optional file, real env wins

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_env", EnvDevelopment)
	v.SetDefault("server_addr", "")
	v.SetDefault("port", "5000")
	v.SetDefault("client_url", "http://localhost:3000")
	v.SetDefault("database_path", "data/careerpath.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_algorithm", "HS256")
	v.SetDefault("jwt_expires_in", "30d")
	v.SetDefault("jwt_cookie_expires_in", 30)
	v.SetDefault("auth_token_delivery", DeliveryBody)
	v.SetDefault("password_reset_ttl", "10m")
	v.SetDefault("email_verification_ttl", "24h")
	v.SetDefault("mail_from", "CareerPath <no-reply@careerpath.local>")
	v.SetDefault("smtp_addr", "")
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("mail_workers", 2)
	v.SetDefault("avatar_bucket", "")
	v.SetDefault("avatar_region", "us-east-1")
	v.SetDefault("avatar_endpoint", "")
	v.SetDefault("avatar_key_prefix", "avatars")
	v.SetDefault("avatar_max_bytes", 2<<20)
	v.SetDefault("aws_profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	cfg.Env = strings.ToLower(strings.TrimSpace(v.GetString("app_env")))

	cfg.Server.Addr = v.GetString("server_addr")
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "0.0.0.0:" + v.GetString("port")
	}
	cfg.Server.ClientURL = strings.TrimRight(v.GetString("client_url"), "/")
	cfg.Database.Path = v.GetString("database_path")

	tokenTTL, err := ParseDuration(v.GetString("jwt_expires_in"))
	if err != nil {
		return Config{}, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	cookieDays := v.GetInt("jwt_cookie_expires_in")
	if cookieDays <= 0 {
		return Config{}, fmt.Errorf("JWT_COOKIE_EXPIRES_IN must be a positive number of days")
	}
	resetTTL, err := ParseDuration(v.GetString("password_reset_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("PASSWORD_RESET_TTL: %w", err)
	}
	verifyTTL, err := ParseDuration(v.GetString("email_verification_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("EMAIL_VERIFICATION_TTL: %w", err)
	}

	cfg.Auth = Auth{
		JWTSecret:            v.GetString("jwt_secret"),
		JWTAlgorithm:         strings.ToUpper(v.GetString("jwt_algorithm")),
		TokenTTL:             tokenTTL,
		CookieTTL:            time.Duration(cookieDays) * 24 * time.Hour,
		TokenDelivery:        strings.ToLower(v.GetString("auth_token_delivery")),
		PasswordResetTTL:     resetTTL,
		EmailVerificationTTL: verifyTTL,
	}
	switch cfg.Auth.TokenDelivery {
	case DeliveryBody, DeliveryCookie:
	default:
		return Config{}, fmt.Errorf("AUTH_TOKEN_DELIVERY must be %q or %q", DeliveryBody, DeliveryCookie)
	}

	cfg.Mail = Mail{
		From:     v.GetString("mail_from"),
		SMTPAddr: v.GetString("smtp_addr"),
		Username: v.GetString("smtp_username"),
		Password: v.GetString("smtp_password"),
		Workers:  v.GetInt("mail_workers"),
	}
	cfg.Avatar = Avatar{
		Bucket:    v.GetString("avatar_bucket"),
		Region:    v.GetString("avatar_region"),
		Endpoint:  v.GetString("avatar_endpoint"),
		KeyPrefix: v.GetString("avatar_key_prefix"),
		MaxBytes:  v.GetInt64("avatar_max_bytes"),
	}
	cfg.AWS.Profile = v.GetString("aws_profile")

	return cfg, nil
}

// ParseDuration accepts Go durations plus the day and week suffixes used by
// JWT_EXPIRES_IN ("30d", "2w", "12h"). Bare digits are seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration %q must be positive", s)
		}
		if n > math.MaxInt64/int64(time.Second) {
			return 0, fmt.Errorf("duration %q is too large", s)
		}
		return time.Duration(n) * time.Second, nil
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	}
	if unit != 0 {
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil || math.IsNaN(n) || n <= 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if n >= math.MaxInt64/float64(unit) {
			return 0, fmt.Errorf("duration %q is too large", s)
		}
		return time.Duration(n * float64(unit)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
