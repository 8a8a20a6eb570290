// Package logger provides the small leveled/decorative logging
// surface the rest of the module uses. It keeps the shape of a
// hand-rolled ANSI logger (Section, Banner, one function per level)
// but is backed by go.uber.org/zap, the way Lzww0608-AetherFlow wires
// logging throughout its services.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger wraps a zap.SugaredLogger with the handful of decorative
// helpers the demo binary wants (Section, Banner).
type Logger struct {
	*zap.SugaredLogger
}

var std *Logger

func init() {
	std = New(false)
}

// New builds a Logger. development=true uses zap's human-readable,
// colorized development encoder; false uses the JSON production
// encoder.
func New(development bool) *Logger {
	var z *zap.Logger
	var err error
	if development {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		// zap's own constructors only fail on misconfigured sinks;
		// the defaults above never do, but fall back rather than
		// leave the package logger nil.
		z = zap.NewNop()
	}
	return &Logger{SugaredLogger: z.Sugar()}
}

// SetDefault replaces the package-level logger used by the free
// functions below.
func SetDefault(l *Logger) { std = l }

// Default returns the package-level logger.
func Default() *Logger { return std }

func Debug(template string, args ...any) { std.Debugf(template, args...) }
func Info(template string, args ...any)  { std.Infof(template, args...) }
func Warn(template string, args ...any)  { std.Warnf(template, args...) }
func Error(template string, args ...any) { std.Errorf(template, args...) }
func Fatal(template string, args ...any) { std.Fatalf(template, args...) }

// Success is an Info-level log kept under its own name (mirroring a
// dedicated LevelSuccess): a successful startup/shutdown milestone
// rather than routine informational output.
func Success(template string, args ...any) { std.Infof(template, args...) }

// Section prints a section header banner-box.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-61s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the application banner.
func Banner(title, version string) {
	fmt.Printf("\n=== %s (v%s) ===\n\n", title, version)
}
