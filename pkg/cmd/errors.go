// Package cmd provides common initialization functions for command-line applications.
package cmd

import "errors"

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")
