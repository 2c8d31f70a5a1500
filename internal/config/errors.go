package config

import "errors"

var ErrInvalidStorageType = errors.New("storage type must be one of: local, s3")
