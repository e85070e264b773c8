package payload

import "errors"

var (
	ErrPayloadNotFound = errors.New("payload not found")
	ErrEmptyLocator    = errors.New("locator is empty")
)
