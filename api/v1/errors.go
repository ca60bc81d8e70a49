package v1

import "errors"

var (
	ErrURLRequired = errors.New("url is required")
	ErrContentType = errors.New("Content-Type must be application/json")
)
