// Package sentinel turns log events into work items: it drops duplicates,
// suppresses events already tracked by an open ticket and files the rest.
package sentinel

import (
	"errors"
	"strings"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

const DefaultProjectName = "Sentinel"

type Config struct {
	ProjectName  string
	MinimumLevel logevent.Level
}

func DefaultConfig() Config {
	return Config{ProjectName: DefaultProjectName, MinimumLevel: logevent.LevelWarning}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectName) == "" {
		return errors.New("sentinel: project name required")
	}
	if !c.MinimumLevel.Valid() {
		return errors.New("sentinel: invalid minimum level")
	}
	return nil
}
