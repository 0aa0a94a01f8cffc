package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/op/go-logging"
	"gopkg.in/yaml.v3"
)

var log = logging.MustGetLogger("config")

// ErrInvalidPath is returned when a command argument names a file of the
// wrong kind or a file that does not exist.
var ErrInvalidPath = errors.New("invalid path")

/*
 * Configuration of the jpegsteg and verify commands. Every field has a
 * default, so an empty or partial file is a valid configuration.
 */
type Config struct {
	// one of debug, info, notice, warning, error, critical
	LogLevel string `yaml:"log_level"`

	// where reveal writes the message when no output file is given
	ExtractOutput string `yaml:"extract_output"`

	// image and message files are recognized by extension
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MessageExtension  string   `yaml:"message_extension"`

	// JPEG quality used by convert
	ConvertQuality int `yaml:"convert_quality"`

	// number of images the verifier processes concurrently
	VerifyWorkers int `yaml:"verify_workers"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel:          "info",
		ExtractOutput:     "extracted_messages.txt",
		AllowedExtensions: []string{".jpg", ".jpeg", ".jpe", ".jfif"},
		MessageExtension:  ".txt",
		ConvertQuality:    90,
		VerifyWorkers:     8,
	}
}

/*
 * Functions for loading and saving configuration in YAML format.
 */
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	conf := Default()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	log.Debugf("loaded configuration from %s", filename)
	return conf, nil
}

func Save(filename string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Validate checks that every field holds a usable value
func (c *Config) Validate() error {
	if _, err := logging.LogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.ExtractOutput == "" {
		return errors.New("extract_output must not be empty")
	}
	if len(c.AllowedExtensions) == 0 {
		return errors.New("allowed_extensions must not be empty")
	}
	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	if !strings.HasPrefix(c.MessageExtension, ".") {
		return fmt.Errorf("message_extension %q must start with a dot", c.MessageExtension)
	}
	if c.ConvertQuality < 1 || c.ConvertQuality > 100 {
		return fmt.Errorf("convert_quality %d out of range 1..100", c.ConvertQuality)
	}
	if c.VerifyWorkers < 1 {
		return fmt.Errorf("verify_workers must be positive, got %d", c.VerifyWorkers)
	}
	return nil
}

// IsImagePath reports whether path has one of the allowed image extensions
func (c *Config) IsImagePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range c.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// CheckImagePath fails unless path names an existing JPEG file
func (c *Config) CheckImagePath(path string) error {
	if !c.IsImagePath(path) {
		return fmt.Errorf("%s is not a jpeg image: %w", path, ErrInvalidPath)
	}
	return checkExists(path)
}

// CheckMessagePath fails unless path names an existing message file
func (c *Config) CheckMessagePath(path string) error {
	if !strings.EqualFold(filepath.Ext(path), c.MessageExtension) {
		return fmt.Errorf("%s is not a %s file: %w", path, c.MessageExtension, ErrInvalidPath)
	}
	return checkExists(path)
}

func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s does not exist: %w", path, ErrInvalidPath)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, ErrInvalidPath)
	}
	return nil
}
