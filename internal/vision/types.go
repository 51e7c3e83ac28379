package vision

import (
	"errors"
	"fmt"
)

// Backend identifies one of the supported inference backends. The set is
// closed: both are functionally symmetric adapters behind Captioner.
type Backend string

const (
	BackendOllama   Backend = "ollama"
	BackendLMStudio Backend = "lmstudio"
)

// Request carries one image and one prompt to a backend.
type Request struct {
	ImagePath     string
	Prompt        string
	Model         string
	TriggerPhrase string
}

// Result is the structured caption produced for a single image.
type Result struct {
	Caption      string
	QualityScore float64
	QualityFlags []string
	Model        string
	Backend      Backend
}

// FailureKind classifies a backend failure for the caller's retry decision.
type FailureKind string

const (
	// FailureTransient covers timeouts, connection failures and 5xx
	// responses. Worth retrying.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers malformed requests, unsupported models and
	// unreadable images. Retrying cannot help.
	FailurePermanent FailureKind = "permanent"
)

// BackendError is a classified failure from a vision backend call.
type BackendError struct {
	Kind    FailureKind
	Backend Backend
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s failure: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a classified transient backend failure.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == FailureTransient
}

// IsPermanent reports whether err is a classified permanent backend failure.
func IsPermanent(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == FailurePermanent
}

func transientErr(backend Backend, err error) error {
	return &BackendError{Kind: FailureTransient, Backend: backend, Err: err}
}

func permanentErr(backend Backend, err error) error {
	return &BackendError{Kind: FailurePermanent, Backend: backend, Err: err}
}
