// Package fsqconfig holds daemon configuration: defaults, a key=value file
// loader, and pflag wiring.
package fsqconfig

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/spf13/pflag"
)

// Built-in defaults, used when neither a config file nor a flag sets a
// value.
const (
	DefaultPort           = 7625
	DefaultSessionThreads = 4
	MaxSessionThreads     = 64
	DefaultQueueThreads   = 4
	DefaultTolerance      = 16
	DefaultVerbose        = "message"
)

// Options holds every daemon tunable exposed via CLI flags or config file.
type Options struct {
	LocalFS   string
	IdentMap  string
	Port      int
	SThreads  int
	QThreads  int
	TolErr    int
	Verbose   string

	// MetricsAddr, when non-empty, starts a prometheus /metrics endpoint.
	MetricsAddr string
}

// NewDefault returns Options populated with the daemon's default values.
func NewDefault() *Options {
	return &Options{
		Port:     DefaultPort,
		SThreads: DefaultSessionThreads,
		QThreads: DefaultQueueThreads,
		TolErr:   DefaultTolerance,
		Verbose:  DefaultVerbose,
	}
}

// AddFlags registers every config key as a pflag, defaulting to o's current
// values so callers can pre-seed from a config file before parsing flags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.LocalFS, "localfs", "l", o.LocalFS, "landing-store mount root")
	fs.StringVarP(&o.IdentMap, "identmap", "i", o.IdentMap, "path to identity map file")
	fs.IntVarP(&o.Port, "port", "p", o.Port, "listen port")
	fs.IntVarP(&o.SThreads, "sthreads", "s", o.SThreads, "max session threads")
	fs.IntVarP(&o.QThreads, "qthreads", "q", o.QThreads, "worker threads")
	fs.IntVarP(&o.TolErr, "tolerr", "t", o.TolErr, "per-item error tolerance before FILE_OMITTED")
	fs.StringVarP(&o.Verbose, "verbose", "v", o.Verbose, "error|warn|message|info|debug")
	fs.StringVar(&o.MetricsAddr, "metrics-addr", o.MetricsAddr, "address to serve /metrics on (disabled if empty)")
}

// Load reads a key=value config file: one option per line, whitespace
// separated key then value, `#` comments and blank lines ignored. Unknown
// keys are warned about and ignored.
func Load(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsqconfig: open %s: %w", path, err)
	}
	defer f.Close()

	o := NewDefault()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			fsqlog.Warnf("fsqconfig: %s:%d: expected 'key value', skipping", path, lineNo)
			continue
		}
		key, value := fields[0], fields[1]
		if err := o.set(key, value); err != nil {
			fsqlog.Warnf("fsqconfig: %s:%d: %v; skipping", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fsqconfig: reading %s: %w", path, err)
	}
	return o, nil
}

func (o *Options) set(key, value string) error {
	switch key {
	case "localfs":
		o.LocalFS = value
	case "identmap":
		o.IdentMap = value
	case "port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad port %q", value)
		}
		o.Port = n
	case "sthreads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad sthreads %q", value)
		}
		o.SThreads = n
	case "qthreads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad qthreads %q", value)
		}
		o.QThreads = n
	case "tolerr":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad tolerr %q", value)
		}
		o.TolErr = n
	case "verbose":
		o.Verbose = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Validate checks the options a daemon needs present before startup.
func (o *Options) Validate() error {
	if o.LocalFS == "" {
		return fmt.Errorf("fsqconfig: localfs is required")
	}
	if o.IdentMap == "" {
		return fmt.Errorf("fsqconfig: identmap is required")
	}
	if o.SThreads < 1 || o.SThreads > MaxSessionThreads {
		return fmt.Errorf("fsqconfig: sthreads must be in [1, %d]", MaxSessionThreads)
	}
	if o.QThreads < 1 {
		return fmt.Errorf("fsqconfig: qthreads must be >= 1")
	}
	return nil
}
