package shared

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetupLogger("info", true)
}

// SetupLogger replaces the global logger. Output always goes to stderr, stdout
// belongs to the stdio transport and to command output.
func SetupLogger(level string, console bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if console {
		wd, _ := os.Getwd()
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			FormatCaller: func(i interface{}) string {
				path, ok := i.(string)
				if !ok {
					return ""
				}
				relPath, err := filepath.Rel(wd, path)
				if err != nil || wd == "" {
					relPath = path
				}
				return fmt.Sprintf("[%s]", relPath)
			},
			NoColor: false,
		}
	}
	log.Logger = zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
}
