package debug

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session started, camera unavailable)
	LevelLive    = 2 // Live info (state transitions, photos taken)
	LevelVerbose = 3 // Verbose (queued requests, configuration details)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  int
	logger = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.TraceLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	return l
}

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session lifecycle, unavailability)
// 2 = live info (state transitions, captures, input changes)
// 3 = verbose (queued requests, device lists, configuration)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
}

// SetOutput redirects all debug output, e.g. to tee it into the status stream.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

func entry(tag string) *logrus.Entry {
	return logger.WithField("app", "pickcam").WithField("lvl", tag)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo {
		entry("info").Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo {
		entry("info").Info("═══ " + title + " ═══")
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo {
		entry("info").WithField(name, value).Info("value")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive {
		entry("live").Infof(format, args...)
	}
}

// Transition prints a session state change (level 2).
func Transition(from, to fmt.Stringer) {
	if level >= LevelLive {
		entry("live").WithFields(logrus.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Info("session state changed")
	}
}

// Shot prints a completed capture (level 2).
func Shot(id string, bytes int) {
	if level >= LevelLive {
		entry("live").WithFields(logrus.Fields{
			"asset": id,
			"bytes": bytes,
		}).Info("photo taken")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose {
		entry("verbose").Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose {
		entry("verbose").Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose {
		entry("verbose").Debug("━━━ " + name + " ━━━")
	}
}

// Request prints a queued hardware request (level 3).
func Request(queue, kind string, seq uint64) {
	if level >= LevelVerbose {
		entry("verbose").WithFields(logrus.Fields{
			"queue": queue,
			"kind":  kind,
			"seq":   seq,
		}).Debug("request")
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace {
		entry("trace").Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace {
		entry("gpio").WithFields(logrus.Fields{
			"op":    operation,
			"pin":   pin,
			"value": value,
		}).Trace("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(msg string, err error) {
	if level >= LevelInfo && err != nil {
		entry("error").WithError(err).Error(msg)
	}
}
