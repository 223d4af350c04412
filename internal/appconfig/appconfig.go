package appconfig

import (
	"bytes"
	"errors"
	"html/template"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// Config holds all configuration details
type Config struct {
	Host     string         `yaml:"host"`
	BasePath string         `yaml:"basePath"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Pulsar   PulsarConfig   `yaml:"pulsar"`
	Identity IdentityConfig `yaml:"identity"`
	Email    EmailConfig    `yaml:"email"`
	Auth     AuthConfig     `yaml:"auth"`
}

// DatabaseConfig defines the database connection details. ReplicaSource is
// optional; when set, read paths prefer it over the primary.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	Source        string `yaml:"source"`
	ReplicaSource string `yaml:"replicaSource"`
}

// RedisConfig defines the session store connection details
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

// PulsarConfig defines the messaging system connection details
type PulsarConfig struct {
	URL           string `yaml:"url"`
	TopicProducer string `yaml:"topicProducer"`
	TopicConsumer string `yaml:"topicConsumer"`
	Subscription  string `yaml:"subscription"`
}

// IdentityConfig points at the external identity-token verification
// service used by whoami when no local session exists.
type IdentityConfig struct {
	URL      string `yaml:"url"`
	ClientId string `yaml:"clientId"`
}

// EmailConfig defines the account-offer email settings
type EmailConfig struct {
	Region       string `yaml:"region"`
	FromAddress  string `yaml:"fromAddress"`
	OfferBaseURL string `yaml:"offerBaseUrl"`
}

// AuthConfig defines session and resolution policy knobs
type AuthConfig struct {
	TokenTTLHours     int    `yaml:"tokenTtlHours"`
	RememberTTLHours  int    `yaml:"rememberTtlHours"`
	MinPasswordLength int    `yaml:"minPasswordLength"`
	DefaultMatchLimit int    `yaml:"defaultMatchLimit"`
	MaxMatchLimit     int    `yaml:"maxMatchLimit"`
	HiddenGroup       string `yaml:"hiddenGroup"`
}

// LoadConfig loads and parses the configuration from a given file path
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		err := errors.New("config file path is required")
		log.Fatal().Err(err).Msg("config file not provided")
		return nil, err
	}

	// Parse the template file
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		log.Fatal().Err(err).Msg("error parsing config file template")
		return nil, err
	}

	// Create a map of environment variables
	envVars := loadEnvVars()

	// Execute the template with environment variables
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, envVars)
	if err != nil {
		log.Fatal().Err(err).Msg("error executing config file template")
		return nil, err
	}

	// Load and unmarshal the YAML
	var config Config
	if err := yaml.Unmarshal(buf.Bytes(), &config); err != nil {
		log.Fatal().Err(err).Msg("failed to unmarshal config YAML")
		return nil, err
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Auth.RememberTTLHours == 0 {
		c.Auth.RememberTTLHours = 24 * 30
	}
	if c.Auth.MinPasswordLength == 0 {
		c.Auth.MinPasswordLength = 8
	}
	if c.Auth.DefaultMatchLimit == 0 {
		c.Auth.DefaultMatchLimit = 100
	}
	if c.Auth.MaxMatchLimit == 0 {
		c.Auth.MaxMatchLimit = 1000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
}

// loadEnvVars loads environment variables into a map
func loadEnvVars() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) == 2 {
			envVars[kv[0]] = kv[1]
		}
	}
	return envVars
}
