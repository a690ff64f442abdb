// Package config loads unitdesign settings.
//
// Values are layered, lowest to highest: built-in defaults, the config file
// (unitdesign.yaml), UNITDESIGN_ environment variables and explicitly set
// command-line flags. Nested keys use "." in files and flags and "__" in
// environment variables: UNITDESIGN_RESOLVER__MAX_ITERATIONS=200.
package config

import (
	"log/slog"
	"time"

	"github.com/leapstack-labs/unitdesign/internal/resolver"
)

// Output modes.
const (
	OutputAuto     = "auto"
	OutputText     = "text"
	OutputMarkdown = "markdown"
	OutputJSON     = "json"
	OutputYAML     = "yaml"
)

// Default configuration values.
const (
	DefaultCatalogDir      = "catalog"
	DefaultFormulasDir     = "formulas"
	DefaultOutput          = OutputAuto
	DefaultLogLevel        = "warn"
	DefaultLogFormat       = "text"
	DefaultAddr            = "127.0.0.1:8080"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config holds all unitdesign settings.
type Config struct {
	CatalogDir  string         `koanf:"catalog_dir"`
	FormulasDir string         `koanf:"formulas_dir"`
	Output      string         `koanf:"output" validate:"oneof=auto text markdown json yaml"`
	LogLevel    string         `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string         `koanf:"log_format" validate:"oneof=text json"`
	Verbose     bool           `koanf:"verbose"`
	Resolver    ResolverConfig `koanf:"resolver"`
	Server      ServerConfig   `koanf:"server"`

	// File is the config file that was read, empty if none.
	File string `koanf:"-"`
}

// ResolverConfig holds convergence options.
type ResolverConfig struct {
	ConvergenceTolerance float64            `koanf:"convergence_tolerance" validate:"gt=0"`
	MaxIterations        int                `koanf:"max_iterations" validate:"min=1"`
	InitialGuessStrategy resolver.Strategy  `koanf:"initial_guess_strategy" validate:"required"`
	InitialGuessConstant float64            `koanf:"initial_guess_constant"`
	Criterion            resolver.Criterion `koanf:"criterion" validate:"required"`
	Relaxation           float64            `koanf:"relaxation" validate:"gt=0,lte=1"`
	Parallel             bool               `koanf:"parallel"`
}

// ServerConfig holds HTTP service options.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	Watch           bool          `koanf:"watch"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// ResolverOptions converts the settings to resolver options.
func (c *Config) ResolverOptions(logger *slog.Logger) resolver.Config {
	return resolver.Config{
		ConvergenceTolerance: c.Resolver.ConvergenceTolerance,
		MaxIterations:        c.Resolver.MaxIterations,
		InitialGuessStrategy: c.Resolver.InitialGuessStrategy,
		InitialGuessConstant: c.Resolver.InitialGuessConstant,
		Criterion:            c.Resolver.Criterion,
		Relaxation:           c.Resolver.Relaxation,
		Parallel:             c.Resolver.Parallel,
		Logger:               logger,
	}
}

// Default returns the built-in settings.
func Default() *Config {
	r := resolver.DefaultConfig()
	return &Config{
		CatalogDir:  DefaultCatalogDir,
		FormulasDir: DefaultFormulasDir,
		Output:      DefaultOutput,
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		Resolver: ResolverConfig{
			ConvergenceTolerance: r.ConvergenceTolerance,
			MaxIterations:        r.MaxIterations,
			InitialGuessStrategy: r.InitialGuessStrategy,
			InitialGuessConstant: r.InitialGuessConstant,
			Criterion:            r.Criterion,
			Relaxation:           r.Relaxation,
			Parallel:             r.Parallel,
		},
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"catalog_dir":                     d.CatalogDir,
		"formulas_dir":                    d.FormulasDir,
		"output":                          d.Output,
		"log_level":                       d.LogLevel,
		"log_format":                      d.LogFormat,
		"verbose":                         false,
		"resolver.convergence_tolerance":  d.Resolver.ConvergenceTolerance,
		"resolver.max_iterations":         d.Resolver.MaxIterations,
		"resolver.initial_guess_strategy": string(d.Resolver.InitialGuessStrategy),
		"resolver.initial_guess_constant": d.Resolver.InitialGuessConstant,
		"resolver.criterion":              string(d.Resolver.Criterion),
		"resolver.relaxation":             d.Resolver.Relaxation,
		"resolver.parallel":               d.Resolver.Parallel,
		"server.addr":                     d.Server.Addr,
		"server.watch":                    d.Server.Watch,
		"server.shutdown_timeout":         d.Server.ShutdownTimeout.String(),
	}
}
