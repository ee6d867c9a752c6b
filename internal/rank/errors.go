package rank

import "errors"

// ErrMissingCredentials marks a lookup provider that cannot run at all.
// It aborts the whole scan run rather than a single keyword.
var ErrMissingCredentials = errors.New("rank lookup credentials are not configured")
