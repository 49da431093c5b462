// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"io"

	"github.com/rs/zerolog"
)

type logWriter struct {
	logger    zerolog.Logger
	direction string
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Str("direction", w.direction).Bytes("xml", p).Msg("xml")
	return len(p), nil
}

// LogXML returns writers suitable for Config.TeeIn and Config.TeeOut that log
// raw stream XML at debug level.
func LogXML(logger zerolog.Logger) (in, out io.Writer) {
	logger = logger.With().Str("component", "xml").Logger()
	return logWriter{logger: logger, direction: "in"}, logWriter{logger: logger, direction: "out"}
}
