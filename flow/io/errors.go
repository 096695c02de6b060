package io

import "errors"

// ErrChunkSize is returned by ReadBytes for a chunk size that is not positive.
var ErrChunkSize = errors.New("chunk size must be positive")
