package models

import "fmt"

// ErrorKind enumerates the error taxonomy from the core's error handling design.
// Each kind maps to a distinct propagation policy in the orchestrator: some are
// fatal at startup, some degrade a response, some bubble to the caller untouched.
type ErrorKind string

const (
	ErrKindConfiguration    ErrorKind = "configuration"
	ErrKindValidation       ErrorKind = "validation"
	ErrKindUpstreamTransient ErrorKind = "upstream_transient"
	ErrKindUpstreamAuth     ErrorKind = "upstream_auth"
	ErrKindDataIntegrity    ErrorKind = "data_integrity"
	ErrKindResource         ErrorKind = "resource"
	ErrKindInternal         ErrorKind = "internal"
	ErrKindCanceled         ErrorKind = "canceled"
	ErrKindTimeout          ErrorKind = "timeout"
)

// CoreError is the typed error every component returns instead of an opaque error
// string. Handlers above the core (out of scope for this module) map Kind to a
// transport status; the core itself only ever branches on Kind, never on message
// text.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

func NewConfigError(msg string, cause error) *CoreError {
	return &CoreError{Kind: ErrKindConfiguration, Message: msg, Cause: cause}
}

func NewValidationError(msg string) *CoreError {
	return &CoreError{Kind: ErrKindValidation, Message: msg}
}

func NewUpstreamError(msg string, cause error) *CoreError {
	return &CoreError{Kind: ErrKindUpstreamTransient, Message: msg, Cause: cause}
}

func NewUpstreamAuthError(msg string, cause error) *CoreError {
	return &CoreError{Kind: ErrKindUpstreamAuth, Message: msg, Cause: cause}
}

func NewDataIntegrityError(msg string, cause error) *CoreError {
	return &CoreError{Kind: ErrKindDataIntegrity, Message: msg, Cause: cause}
}

func NewResourceError(msg string) *CoreError {
	return &CoreError{Kind: ErrKindResource, Message: msg}
}

func NewInternalError(msg string, cause error) *CoreError {
	return &CoreError{Kind: ErrKindInternal, Message: msg, Cause: cause}
}

func NewCanceledError(msg string) *CoreError {
	return &CoreError{Kind: ErrKindCanceled, Message: msg}
}

func NewTimeoutError(msg string) *CoreError {
	return &CoreError{Kind: ErrKindTimeout, Message: msg}
}

// IsKind reports whether err is a *CoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CoreError
	if ce2, ok := err.(*CoreError); ok {
		ce = ce2
	} else {
		return false
	}
	return ce.Kind == kind
}

// TaxonomyPathNotFound is a specific validation error raised by the DAG manager
// when resolve_path is asked for a path that does not exist at a given version.
// The orchestrator must not silently insert a node for it.
type TaxonomyPathNotFound struct {
	Path    []string
	Version string
}

func (e *TaxonomyPathNotFound) Error() string {
	return fmt.Sprintf("taxonomy path %v not found at version %q", e.Path, e.Version)
}

func NewTaxonomyPathNotFound(path []string, version string) *CoreError {
	return &CoreError{
		Kind:    ErrKindValidation,
		Message: (&TaxonomyPathNotFound{Path: path, Version: version}).Error(),
	}
}

// BatchPartialError carries the per-item errors of a batch call that partially
// failed. The batch itself never aborts (§4.1); the results are returned
// alongside it, and this type lists the errors of the items that fell back.
type BatchPartialError struct {
	Errors []error
}

func (e *BatchPartialError) Error() string {
	return fmt.Sprintf("%d of a batch failed and used fallback vectors", len(e.Errors))
}
