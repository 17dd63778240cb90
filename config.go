package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const (
	apiKeyEnv  = "OPENAI_API_KEY"
	baseURLEnv = "OPENAI_BASE_URL"
	modelEnv   = "OPENAI_MODEL"
)

// InvalidConfigError lists the settings that failed validation.
type InvalidConfigError struct {
	Fields []string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Fields)
}

// loadConfig builds the runtime configuration from the command flags and
// the environment. A .env file in the working directory is loaded first
// when present; variables already set in the environment win.
//
// Returns:
//   - Config: the validated configuration.
//   - error: InvalidConfigError when a required setting is missing or a
//     value is out of range.
func loadConfig(cmd *cli.Command) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug(fmt.Sprintf("error loading .env file: %+v", err))
	}

	config := Config{
		APIKey:          os.Getenv(apiKeyEnv),
		BaseURL:         os.Getenv(baseURLEnv),
		Model:           cmd.String("model"),
		DescriptorPath:  cmd.String("descriptor-path"),
		CountriesURL:    cmd.String("countries-url"),
		PollInterval:    cmd.Duration("poll-interval"),
		MaxPolls:        int(cmd.Int("max-polls")),
		RunTimeout:      cmd.Duration("run-timeout"),
		ToolConcurrency: int(cmd.Int("tool-concurrency")),
	}
	// the flag wins over the environment only when given explicitly
	if model := os.Getenv(modelEnv); model != "" && !cmd.IsSet("model") {
		config.Model = model
	}

	return config, validateConfig(config)
}

func validateConfig(config Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(config)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	invalid := InvalidConfigError{}
	for _, err := range validationErrors {
		log.Debug(fmt.Sprintf("config validation error: %+v", err))
		invalid.Fields = append(invalid.Fields, err.Field())
	}
	return invalid
}
