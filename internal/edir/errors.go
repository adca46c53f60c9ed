package edir

import "errors"

// ErrUserNotFound is returned by ModifyUser when no entry has the given common name.
var ErrUserNotFound = errors.New("user not found")
