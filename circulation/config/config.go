package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/Astemirdum/library-circulation/pkg/logger"
	"github.com/Astemirdum/library-circulation/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"10s"`
}

// Circulation holds the lending policy and allocation retry bounds.
type Circulation struct {
	DefaultDurationDays int     `envconfig:"DEFAULT_DURATION_DAYS" default:"14"`
	GracePeriodDays     int     `envconfig:"GRACE_PERIOD_DAYS" default:"12"`
	FineRatePerDay      float64 `envconfig:"FINE_RATE_PER_DAY" default:"20"`
	AllocRetries        int     `envconfig:"ALLOC_RETRIES" default:"3"`
	AdmissionRetries    int     `envconfig:"ADMISSION_RETRIES" default:"10"`
}

type Config struct {
	Server      HTTPServer  `yaml:"server"`
	Database    postgres.DB `yaml:"db"`
	Kafka       kafka.Config
	Log         logger.Log `yaml:"log"`
	Circulation Circulation
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options are applied last and
// override it.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		config, err := Load(ops...)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return cfg
}

func Load(ops ...Option) (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	for _, op := range ops {
		op(&config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	p := c.Circulation
	switch {
	case p.DefaultDurationDays <= 0:
		return fmt.Errorf("DEFAULT_DURATION_DAYS must be positive, got %d", p.DefaultDurationDays)
	case p.GracePeriodDays < 0:
		return fmt.Errorf("GRACE_PERIOD_DAYS must not be negative, got %d", p.GracePeriodDays)
	case p.FineRatePerDay < 0:
		return fmt.Errorf("FINE_RATE_PER_DAY must not be negative, got %v", p.FineRatePerDay)
	}
	return nil
}

func printConfig(cfg *Config) {
	safe := *cfg
	safe.Database.Password = "***"
	jscfg, _ := json.MarshalIndent(safe, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
