package model

import (
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	FormatText      = "text"
	FormatJSON      = "json"
	FormatCycloneDX = "cyclonedx"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultParallelism = 4
	DefaultMaxFileSize = 10 * 1024 * 1024
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx  *cue.Context
	cueRoot cue.Value
	schema  cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}
	cueRoot = compiled

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int          `json:"version" yaml:"version"` // fixed 0 for now
	Scan    Scan         `json:"scan" yaml:"scan"`
	Rules   RulesConfig  `json:"rules" yaml:"rules,omitempty"`
	Leaks   *Leaks       `json:"leaks,omitempty" yaml:"leaks,omitempty"`
	Report  ReportConfig `json:"report" yaml:"report"`
	Service Service      `json:"service" yaml:"service"`
}

// Scan configures file discovery and the scan orchestrator.
type Scan struct {
	Paths           []string `json:"paths,omitempty" yaml:"paths,omitempty"`           // nil/empty => use CWD
	Extensions      []string `json:"extensions,omitempty" yaml:"extensions,omitempty"` // nil/empty => every file
	Exclude         []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`       // gitignore syntax
	GitIgnore       bool     `json:"gitignore" yaml:"gitignore"`                       // honor .gitignore in every root
	Parallelism     int      `json:"parallelism" yaml:"parallelism"`
	MaxFileSize     int64    `json:"max_file_size" yaml:"max_file_size"`
	ContinueOnError bool     `json:"continue_on_error" yaml:"continue_on_error"`
}

type RulesConfig struct {
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Custom   []Rule   `json:"custom,omitempty" yaml:"custom,omitempty"` // appended after the built-in rules
}

// Leaks enables the gitleaks secret detector.
type Leaks struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type ReportConfig struct {
	Format string `json:"format" yaml:"format"`                       // "text" | "json" | "cyclonedx"
	Output string `json:"output,omitempty" yaml:"output,omitempty"`   // path, empty => stdout
	FailOn string `json:"fail_on,omitempty" yaml:"fail_on,omitempty"` // severity threshold for a non-zero exit
}

type Service struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Log     string `json:"log" yaml:"log"` // "stderr"|"stdout"|"discard"|path
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Scan: Scan{
			Paths:           []string{"."},
			Extensions:      []string{".cs"},
			Exclude:         []string{"bin/", "obj/", ".git/"},
			GitIgnore:       true,
			Parallelism:     DefaultParallelism,
			MaxFileSize:     DefaultMaxFileSize,
			ContinueOnError: true,
		},
		Report: ReportConfig{
			Format: FormatText,
		},
		Service: Service{
			Log: LogStderr,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// Every failure wraps ErrConfig.
func LoadConfig(r io.Reader) (Config, error) {
	var zero Config
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return zero, &ConfigError{err: err}
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return out, nil
}

// ConfigError is returned by LoadConfig when the file does not satisfy the
// schema. Details returns the humanized violations.
type ConfigError struct {
	err error
}

func (e *ConfigError) Error() string {
	return e.err.Error()
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfig, e.err}
}

func (e *ConfigError) Details() []CueErrorDetail {
	return humanize(e.err, schema)
}
