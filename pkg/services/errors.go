package services

import "errors"

var (
	// ErrNotFound is returned when a task or result does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidStatus is returned for status values outside the task
	// lifecycle enum.
	ErrInvalidStatus = errors.New("invalid task status")
)
