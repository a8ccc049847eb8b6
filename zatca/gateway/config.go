package gateway

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/util"
)

// DefaultTimeout bounds every gateway call.
const DefaultTimeout = 30 * time.Second

// Config carries the gateway credentials and endpoints. It is built once at
// start-up and treated as read-only afterwards.
type Config struct {
	Token             string
	Secret            string
	BaseURL           string
	OnboardingURL     string
	ProductionCSIDURL string
	Timeout           time.Duration
}

// HasCredentials reports whether both CSID token and secret are set.
func (c Config) HasCredentials() bool {
	return c.Token != "" && c.Secret != ""
}

// String never includes the token or secret.
func (c Config) String() string {
	return fmt.Sprintf("gateway.Config{baseURL=%s, hasCredentials=%t}", c.BaseURL, c.HasCredentials())
}

// ConfigForEnvironment fills the endpoints of env, leaving credentials empty.
func ConfigForEnvironment(env zatca.Environment) Config {
	return Config{
		BaseURL:           env.BaseURL(),
		OnboardingURL:     env.OnboardingURL(),
		ProductionCSIDURL: env.ProductionCSIDURL(),
		Timeout:           DefaultTimeout,
	}
}

// ConfigFromEnv reads the configuration from ZATCA_* environment variables.
// ZATCA_ENV selects the default endpoints; explicit URL variables override
// them. Missing credentials are not an error here: calls that need them
// fail with ErrMissingCredentials.
func ConfigFromEnv() (Config, error) {
	env := zatca.DeveloperPortal
	if v, ok := util.LookupEnv("ZATCA_ENV"); ok {
		if err := env.UnmarshalText([]byte(v)); err != nil {
			return Config{}, zatca.ErrMissingURL.Detail("%s", err.Error())
		}
	}

	cfg := ConfigForEnvironment(env)
	cfg.BaseURL = util.EnvOrDefault("ZATCA_BASE_URL", cfg.BaseURL)
	cfg.OnboardingURL = util.EnvOrDefault("ZATCA_ONBOARDING_URL", cfg.OnboardingURL)
	cfg.ProductionCSIDURL = util.EnvOrDefault("ZATCA_PRODUCTION_CSID_URL", cfg.ProductionCSIDURL)
	cfg.Token, _ = util.LookupEnv("ZATCA_CSID_TOKEN")
	cfg.Secret, _ = util.LookupEnv("ZATCA_CSID_SECRET")

	timeout, err := util.EnvDuration("ZATCA_TIMEOUT", DefaultTimeout)
	if err != nil {
		return Config{}, errors.Wrap(err, "gateway config")
	}
	cfg.Timeout = timeout

	logger.WithFields(logrus.Fields{
		"environment":    env.Name(),
		"hasCredentials": cfg.HasCredentials(),
	}).Debug("gateway configuration loaded")

	return cfg, nil
}
