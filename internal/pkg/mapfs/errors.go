package mapfs

import "errors"

var (
	errIsDirectory  = errors.New("is a directory")
	errInvalidS3URI = errors.New("invalid s3 uri")
)
