package core

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateModuleID  = errors.New("duplicate module id")
	ErrModuleDisabled     = errors.New("module is disabled")
	ErrAlreadyInitialized = errors.New("module already initialized")
)

// DuplicateModuleIDError is returned when a module id is registered twice.
// It matches ErrDuplicateModuleID with errors.Is.
type DuplicateModuleIDError struct {
	ID string
}

func (e *DuplicateModuleIDError) Error() string {
	return fmt.Sprintf("module with id %q already registered", e.ID)
}

func (e *DuplicateModuleIDError) Is(target error) bool {
	return target == ErrDuplicateModuleID
}

// ModuleInitError wraps the failure of a single module's Initialize.
type ModuleInitError struct {
	ID  string
	Err error
}

func (e *ModuleInitError) Error() string {
	return fmt.Sprintf("initialize module %s: %v", e.ID, e.Err)
}

func (e *ModuleInitError) Unwrap() error {
	return e.Err
}
