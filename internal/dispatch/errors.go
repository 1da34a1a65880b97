package dispatch

import "errors"

var errNoTransport = errors.New("no transport configured")
