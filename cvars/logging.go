package cvars

import "github.com/sirupsen/logrus"

// DebugLevel selects how much the library logs.
var DebugLevel = Default.Enum(
	"DDA_DEBUG",
	[]string{"WARN", "INFO", "DEBUG", "TRACE"},
	"WARN",
	"Verbosity of library logging.",
)

// ConfigureLogging applies DebugLevel to the standard
// logrus logger.
func ConfigureLogging() {
	level, err := logrus.ParseLevel(DebugLevel.Get())
	if err != nil {
		level = logrus.WarnLevel
	}
	logrus.SetLevel(level)
}
