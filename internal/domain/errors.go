package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateJob      = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrNoFilesToCaption  = errors.New("no files to caption")
	ErrCaptionSetBusy    = errors.New("caption set already has an active job")
)
