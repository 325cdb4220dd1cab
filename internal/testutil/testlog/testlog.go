package testlog

import (
	"testing"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test start")
}
