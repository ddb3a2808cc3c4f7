package main

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging routes the standard logger to a rotating file in the data
// directory. With debug set, output is mirrored to stderr.
func setupLogging(path string, debug bool) io.Closer {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	var out io.Writer = rotator
	if debug {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return rotator
}
