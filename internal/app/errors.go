package service

import "errors"

// Sentinel errors for the service lifecycle.
var (
	ErrStart      = errors.New("service start failed")
	ErrNotStarted = errors.New("service not started")
)
