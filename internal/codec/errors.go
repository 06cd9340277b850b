package codec

import "errors"

var (
	ErrTruncated     = errors.New("codec: truncated frame")
	ErrTrailingData  = errors.New("codec: trailing data")
	ErrStringTooLong = errors.New("codec: string longer than 255 bytes")
	ErrUnsupported   = errors.New("codec: operation not supported by cursor")
)
