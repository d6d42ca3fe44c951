package local

import "errors"

var errClosed = errors.New("local client is closed")
