package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrEmpresaRequired indicates a missing tenant scope.
	ErrEmpresaRequired = errors.New("empresa id required")
	// ErrActorRequired indicates an operation without an attributable principal.
	ErrActorRequired = errors.New("actor required")
)
