package util

import (
	"log"
)

// ErrorLogger is used to report errors that occur asynchronously, such
// as I/O failures of workers. These cannot be returned to the caller
// directly, as they are detected while other workers are still running.
type ErrorLogger interface {
	Log(err error)
}

type defaultErrorLogger struct{}

func (defaultErrorLogger) Log(err error) {
	log.Print(err)
}

// DefaultErrorLogger writes errors using the standard log package.
var DefaultErrorLogger ErrorLogger = defaultErrorLogger{}
