package domain

import "errors"

var (
	ErrNotFound             = errors.New("device: not found")
	ErrDuplicateName        = errors.New("device: duplicate name")
	ErrInvalidDevice        = errors.New("device: invalid")
	ErrInvalidConfiguration = errors.New("device: invalid configuration")
	ErrSwitchFailed         = errors.New("device: hardware switch failed")

	ErrNoSample = errors.New("no power sample received yet")
)
