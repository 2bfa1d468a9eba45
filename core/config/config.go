package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	ConfigurationName = "config.yaml"
)

// Color modes.
const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	// configFs is rooted at the configuration directory, nil if the
	// configuration wasn't loaded from one.
	configFs afero.Fs

	Prompt      string `json:"prompt"`
	MaxJobs     int    `json:"max_jobs" validate:"gte=1,lte=65536"`
	ExitMessage string `json:"exit_message" validate:"required"`
	HistoryFile string `json:"history_file"`
	EventLog    string `json:"event_log"`
	Color       string `json:"color" validate:"oneof=always auto never"`
	Trace       bool   `json:"trace"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// HistoryPath returns the path of the readline history file, empty if history
// is disabled.
func (c *Configuration) HistoryPath() string {
	if c.fs() == nil || c.HistoryFile == "" {
		return ""
	}
	if base, ok := c.fs().(*afero.BasePathFs); ok {
		if path, err := base.RealPath(c.HistoryFile); err == nil {
			return path
		}
	}
	return ""
}

// EventLogEnabled reports whether events should be recorded.
func (c *Configuration) EventLogEnabled() bool {
	return c.fs() != nil && c.EventLog != ""
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	if !c.EventLogEnabled() {
		return nil, os.ErrNotExist
	}
	return c.fs().OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadEventLog() (afero.File, error) {
	if !c.EventLogEnabled() {
		return nil, os.ErrNotExist
	}
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

// Default returns the built-in configuration, it isn't backed by a directory.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
