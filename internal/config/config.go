// Package config loads the updater's startup configuration.
//
// The configuration is a plain key=value text file read once at startup:
//
//	process=app.exe
//	target_dir=C:\Program Files\App
//	update_dir=D:\Updates
//	backup_dir=D:\Backups
//
// Only lines that start with an identifier followed by "=" are read; the
// value is everything after the first "=", taken verbatim, so Windows paths
// keep their backslashes and dollar signs. Any other line is ignored. All four
// keys are mandatory. Unknown keys are ignored. When a key repeats, the last
// line wins. The parsed record is immutable and passed explicitly to every
// component that needs it.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = "config.txt"

// Recognized keys.
const (
	KeyProcess             = "process"
	KeyTargetDir           = "target_dir"
	KeyUpdateDir           = "update_dir"
	KeyBackupDir           = "backup_dir"
	KeyPollInterval        = "poll_interval"
	KeyProcessPollInterval = "process_poll_interval"
	KeyArchiveExt          = "archive_ext"
)

// Defaults for the optional keys.
const (
	DefaultPollInterval        = 30 * time.Second
	DefaultProcessPollInterval = time.Second
	DefaultArchiveExt          = ".zip"
)

var (
	// ErrMissingKey is returned when a mandatory key is absent or empty.
	ErrMissingKey = errors.New("missing configuration key")
	// ErrInvalidProcessName is returned when process does not carry the executable suffix.
	ErrInvalidProcessName = errors.New("invalid process name")
	// ErrPathNotFound is returned when a configured directory does not exist.
	ErrPathNotFound = errors.New("path does not exist")
	// ErrInvalidValue is returned when an optional key cannot be parsed.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Config is the immutable startup configuration.
type Config struct {
	ProcessName string `key:"process" validate:"required,exesuffix"`
	TargetDir   string `key:"target_dir" validate:"required,direxists"`
	UpdateDir   string `key:"update_dir" validate:"required,direxists"`
	BackupDir   string `key:"backup_dir" validate:"required,direxists"`

	PollInterval        time.Duration `key:"poll_interval" validate:"gt=0"`
	ProcessPollInterval time.Duration `key:"process_poll_interval" validate:"gt=0"`
	ArchiveExt          string        `key:"archive_ext" validate:"required,startswith=."`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file doesn't exist in %s: %w", filepath.Dir(path), err)
		}
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse reads key=value lines from r without validating them.
// Missing optional keys take their defaults.
func Parse(r io.Reader) (*Config, error) {
	values, err := readValues(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Config{
		ProcessName:         strings.TrimSpace(values[KeyProcess]),
		TargetDir:           strings.TrimSpace(values[KeyTargetDir]),
		UpdateDir:           strings.TrimSpace(values[KeyUpdateDir]),
		BackupDir:           strings.TrimSpace(values[KeyBackupDir]),
		PollInterval:        DefaultPollInterval,
		ProcessPollInterval: DefaultProcessPollInterval,
		ArchiveExt:          DefaultArchiveExt,
	}

	if v, ok := values[KeyPollInterval]; ok {
		if cfg.PollInterval, err = parseDuration(KeyPollInterval, v); err != nil {
			return nil, err
		}
	}
	if v, ok := values[KeyProcessPollInterval]; ok {
		if cfg.ProcessPollInterval, err = parseDuration(KeyProcessPollInterval, v); err != nil {
			return nil, err
		}
	}
	if v := strings.TrimSpace(values[KeyArchiveExt]); v != "" {
		cfg.ArchiveExt = v
	}

	return cfg, nil
}

// keyLine matches a key=value line. The key starts the line.
var keyLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)=(.*)$`)

// readValues collects the key=value lines of r in order. Each value is handed
// to godotenv quoted so that it comes back unchanged: no escapes, no variable
// expansion, no inline comments.
func readValues(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := keyLine.FindStringSubmatch(strings.TrimSuffix(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		key, raw := m[1], m[2]

		quoted, ok := quoteValue(raw)
		if !ok {
			values[key] = raw
			continue
		}
		parsed, err := godotenv.Unmarshal(key + "=" + quoted)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", key, err)
		}
		values[key] = parsed[key]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// quoteValue renders v in a form godotenv reads back as v. Single quotes are
// literal except that they cannot hold a quote or end in a backslash; a bare
// value is literal as long as it holds no "$" or "#" and does not open with a
// quote. ok is false when neither form fits.
func quoteValue(v string) (quoted string, ok bool) {
	if !strings.Contains(v, "'") && !strings.HasSuffix(v, `\`) {
		return "'" + v + "'", true
	}
	trimmed := strings.TrimSpace(v)
	if trimmed != "" && !strings.ContainsAny(v, "$#") && trimmed[0] != '\'' && trimmed[0] != '"' {
		return trimmed, true
	}
	return "", false
}

// parseDuration accepts Go duration strings ("30s") or bare milliseconds ("30000").
func parseDuration(key, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
}

// Validate checks every field and reports all failures together.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	var merr *multierror.Error
	for _, fe := range verrs {
		merr = multierror.Append(merr, describe(fe))
	}
	merr.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return merr.ErrorOrNil()
}

func describe(fe validator.FieldError) error {
	value := fmt.Sprint(fe.Value())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s", ErrMissingKey, fe.Field())
	case "exesuffix":
		return fmt.Errorf("%w: the name %s provided for the process is not a valid one", ErrInvalidProcessName, value)
	case "direxists":
		return fmt.Errorf("%w: the path %s does not exist", ErrPathNotFound, value)
	default:
		return fmt.Errorf("%w: %s=%s", ErrInvalidValue, fe.Field(), value)
	}
}

func newValidator() *validator.Validate {
	validate := validator.New()

	// Report fields by their key in the configuration file.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("key")
	})

	_ = validate.RegisterValidation("exesuffix", func(fl validator.FieldLevel) bool {
		return HasExecutableSuffix(fl.Field().String())
	})

	_ = validate.RegisterValidation("direxists", func(fl validator.FieldLevel) bool {
		info, err := os.Stat(fl.Field().String())
		return err == nil && info.IsDir()
	})

	return validate
}

// HasExecutableSuffix reports whether name ends with the platform executable suffix.
func HasExecutableSuffix(name string) bool {
	if name == "" {
		return false
	}
	return strings.HasSuffix(name, ExecutableSuffix) && len(name) > len(ExecutableSuffix)
}
