package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "unitdesign.yaml"
	ConfigFileNameAlt = "unitdesign.yml"
)

// EnvPrefix prefixes every environment variable read.
const EnvPrefix = "UNITDESIGN_"

// flagKeys maps flags whose names differ from their config keys.
var flagKeys = map[string]string{
	"tolerance":      "resolver.convergence_tolerance",
	"max-iterations": "resolver.max_iterations",
	"guess-strategy": "resolver.initial_guess_strategy",
	"criterion":      "resolver.criterion",
	"relaxation":     "resolver.relaxation",
	"parallel":       "resolver.parallel",
	"addr":           "server.addr",
	"watch":          "server.watch",
}

// configFlags are the flags that map to config keys of the same name.
var configFlags = map[string]bool{
	"catalog-dir":  true,
	"formulas-dir": true,
	"output":       true,
	"log-level":    true,
	"log-format":   true,
	"verbose":      true,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the layered configuration. cfgFile names an explicit config
// file; when empty, unitdesign.yaml or unitdesign.yml in the working
// directory is used if present. flags may be nil; only flags the user set
// are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment: UNITDESIGN_RESOLVER__MAX_ITERATIONS -> resolver.max_iterations
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			if configFlags[f.Name] {
				return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
			}
			return "", nil
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	// Paths from the config file are relative to the file.
	if path != "" {
		base := filepath.Dir(path)
		if !flagChanged(flags, "catalog-dir") {
			cfg.CatalogDir = resolvePathRelativeTo(cfg.CatalogDir, base)
		}
		if !flagChanged(flags, "formulas-dir") {
			cfg.FormulasDir = resolvePathRelativeTo(cfg.FormulasDir, base)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("invalid configuration: %s: %v fails %q", keyOf(fe.Namespace()), fe.Value(), tagText(fe)))
	}
	return errors.Join(errs...)
}

// keyOf turns a validator namespace such as Config.Resolver.MaxIterations
// into the config key resolver.max_iterations.
func keyOf(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tagText(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// findConfigFile returns the config file to read.
// Priority: explicit path > unitdesign.yaml > unitdesign.yml.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	return flags != nil && flags.Changed(name)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
