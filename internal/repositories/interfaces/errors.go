package interfaces

import "errors"

// ErrDocumentNotFound is wrapped by repositories when a lookup by id matches
// nothing.
var ErrDocumentNotFound = errors.New("document not found")
