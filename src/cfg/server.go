package cfg

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration for the buffer pool daemon:
// how many frames the pool holds, where the backing data file lives, and
// where the admin HTTP surface listens.
type Config struct {
	Environment Environment `mapstructure:"ENVIRONMENT"`

	NumFrames uint64 `mapstructure:"NUM_FRAMES"`
	DataFile  string `mapstructure:"DATA_FILE"`

	AdminHost string `mapstructure:"ADMIN_HOST"`
	AdminPort int    `mapstructure:"ADMIN_PORT"`
}

func LoadConfig(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.SetEnvPrefix("BUFFERPOOLD")
	viper.AutomaticEnv()

	viper.SetOptions(viper.ExperimentalBindStruct())

	viper.SetDefault("ENVIRONMENT", DefaultEnv)
	viper.SetDefault("NUM_FRAMES", 1024)
	viper.SetDefault("DATA_FILE", "bufferpoold.db")
	viper.SetDefault("ADMIN_HOST", "localhost")
	viper.SetDefault("ADMIN_PORT", 8080)

	err := viper.ReadInConfig()
	if err != nil {
		fmt.Println("config file not found, using env vars")
	}

	var cfg Config

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("viper unmarshaling config: %w", err)
	}

	err = cfg.Environment.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("environment validation: %w", err)
	}

	if cfg.NumFrames == 0 {
		return Config{}, errors.New("num frames must be greater than zero")
	}

	return cfg, nil
}

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}
