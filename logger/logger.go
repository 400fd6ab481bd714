// Package logger - Process-wide zerolog setup.
package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu          sync.Mutex
	initialized bool
	runID       string
)

// Options configures the global logger.
type Options struct {
	// AppName is attached to every event.
	AppName string
	// Level is one of DEBUG, INFO, WARN, ERROR, FATAL, PANIC or DISABLED.
	Level string
	// JSON writes structured events instead of the console format.
	JSON bool
	// Out defaults to stdout.
	Out io.Writer
}

// Init configures the global zerolog logger and tags it with a fresh run id.
//
// Calling Init again reconfigures the logger but keeps the run id.
//
// Arguments:
//   - opts: The logger options.
//
// Returns:
//   - error: An error if the level is unknown.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "02-01-2006 15:04:05.000",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%-6s", i))
			},
			FieldsExclude: []string{"app", "run_id"},
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			},
		}
	}

	if runID == "" {
		runID = uuid.NewString()
	}

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, "/")
		return parts[len(parts)-1] + ":" + strconv.Itoa(line)
	}

	ctx := zerolog.New(out).With().Timestamp().Caller().Str("run_id", runID)
	if opts.AppName != "" {
		ctx = ctx.Str("app", opts.AppName)
	}
	log.Logger = ctx.Logger()

	if !initialized {
		initialized = true
		log.Debug().Str("level", level.String()).Msg("logger initialized")
	}
	return nil
}

// RunID returns the id attached to every event of this process, empty before Init.
func RunID() string {
	mu.Lock()
	defer mu.Unlock()
	return runID
}

// ParseLevel converts an upper or lower case level name. An empty name selects INFO.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToUpper(name) {
	case "":
		return zerolog.InfoLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "PANIC":
		return zerolog.PanicLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, errors.Errorf("incorrect log level %q", name)
	}
}
