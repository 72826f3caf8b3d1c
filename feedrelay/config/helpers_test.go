package config_test

import "github.com/rs/zerolog"

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}
