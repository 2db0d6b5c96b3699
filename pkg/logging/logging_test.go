package logging_test

import (
	"testing"

	"github.com/lenstools/metacal/pkg/logging"
)

func TestGetLogger(t *testing.T) {
	logger := logging.GetLogger("metacal.pipeline")

	// Should not panic and should be usable immediately
	logger.Debug().Str("test", "value").Msg("test message")
}

func TestSetupLogger(t *testing.T) {
	// Point XDG_STATE_HOME at a temp dir so the file writer stays sandboxed
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	for _, verbosity := range []int{0, 1, 2, 3} {
		logging.SetupLogger(verbosity)
		logger := logging.GetLogger("test")
		logger.Info().Int("verbosity", verbosity).Msg("logger configured")
	}
}

func TestLogOperationStart(t *testing.T) {
	logger := logging.GetLogger("test")
	done := logging.LogOperationStart(logger, "jackknife")
	done()
}
