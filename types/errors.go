package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation           = errors.New("data tidak valid")
	ErrDuplicateName        = errors.New("nama sudah digunakan")
	ErrNotFound             = errors.New("data tidak ditemukan")
	ErrForbidden            = errors.New("tidak memiliki akses")
	ErrInvalidTransition    = errors.New("perubahan status tidak diizinkan")
	ErrInvalidSlot          = errors.New("jam pelajaran tidak valid")
	ErrMajorInUse           = errors.New("jurusan masih digunakan oleh kelas")
	ErrNotificationDispatch = errors.New("gagal mengirim notifikasi")
)

// ValidationError carries field-keyed messages for a rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field messages.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
