package config

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/goliatone/go-repository-router/router"
)

// Setting names with defaults.
const (
	SettingName        = router.SettingName
	SettingRunInterval = router.SettingRunInterval
	SettingEnvironment = "environment"
)

// DefaultRunInterval is the default runinterval in seconds.
const DefaultRunInterval = 1800

// DefaultEnvironment is the environment used when none is configured.
const DefaultEnvironment = "production"

// Settings is a concurrent key/value store of named settings.
type Settings struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ router.Settings = (*Settings)(nil)

// Defaults returns the built-in setting values.
func Defaults() map[string]string {
	return map[string]string{
		SettingName:        filepath.Base(os.Args[0]),
		SettingRunInterval: strconv.Itoa(DefaultRunInterval),
		SettingEnvironment: DefaultEnvironment,
	}
}

// NewSettings returns settings holding the defaults overridden by values.
func NewSettings(values map[string]string) *Settings {
	s := &Settings{values: Defaults()}
	maps.Copy(s.values, values)
	return s
}

// Value implements router.Settings.
func (s *Settings) Value(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores value under name.
func (s *Settings) Set(name, value string) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

// Values returns a copy of every setting.
func (s *Settings) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}
