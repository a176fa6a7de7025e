package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by registry transactions.
var (
	ErrEntryExists   = errors.New("registry entry already exists")
	ErrEntryNotFound = errors.New("registry entry not found")
	// ErrRegistryChanged reports that another writer replaced the registry
	// between read and commit; the commit was not written.
	ErrRegistryChanged = errors.New("registry changed by a concurrent writer")
)

// LoadError reports a malformed or unloadable declaration module.
type LoadError struct {
	File string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	switch {
	case e.File == "":
		return fmt.Sprintf("load definitions: %v", e.Err)
	case e.Line > 0:
		return fmt.Sprintf("load %s:%d: %v", e.File, e.Line, e.Err)
	default:
		return fmt.Sprintf("load %s: %v", e.File, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// DuplicateNameError reports distinct objects sharing a case-insensitive
// name within one category. Message is the user-facing text.
type DuplicateNameError struct {
	Category Category
	Name     string
	Files    []string
	Message  string
}

func (e *DuplicateNameError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Multiple %s share the same case-insensitive name %s.", e.Category.PluralName(), e.Name)
}

// ReferenceError reports a reference to an object that is not declared, or
// that belongs to the wrong category.
type ReferenceError struct {
	From   Key
	File   string
	Symbol string
	Reason string
}

func (e *ReferenceError) Error() string {
	var b strings.Builder
	if e.From.Name != "" {
		fmt.Fprintf(&b, "%s %s", e.From.Category.DisplayName(), e.From.Name)
	} else {
		b.WriteString("declaration")
	}
	if e.File != "" {
		fmt.Fprintf(&b, " (%s)", e.File)
	}
	fmt.Fprintf(&b, " references %q: %s", e.Symbol, e.Reason)
	return b.String()
}

// StorageError wraps a registry read or write failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
