package sharecatalog

import (
	"errors"
	"fmt"
)

// Sentinel wrapper vars for errors.Is-style matching, in the idiom of
// internal/bucket's ErrBucketNotFound / ErrBucketAlreadyExists family.
var (
	ErrUnknownShare             = errors.New("unknown share")
	ErrUnknownShareID           = errors.New("unknown share id")
	ErrUnknownShareAccounts     = errors.New("unknown share accounts")
	ErrShareAlreadyExists       = errors.New("share already exists")
	ErrShareAccountsAlreadyExists = errors.New("share accounts already exist")
	ErrWrongShare               = errors.New("wrong share")
	ErrWrongShareObject         = errors.New("wrong share object")
	ErrUnknownDatabase          = errors.New("unknown database")
	ErrUnknownTable             = errors.New("unknown table")
	ErrTxnRetryMaxTimes         = errors.New("txn retry max times exceeded")
)

// UnknownShareError names the missing share by (tenant, name).
type UnknownShareError struct {
	Tenant string
	Name   string
}

func (e *UnknownShareError) Error() string {
	return fmt.Sprintf("unknown share %s.%s", e.Tenant, e.Name)
}
func (e *UnknownShareError) Unwrap() error { return ErrUnknownShare }

// UnknownShareIDError names the missing share by id (reverse lookup miss).
type UnknownShareIDError struct{ ShareID uint64 }

func (e *UnknownShareIDError) Error() string {
	return fmt.Sprintf("unknown share id %d", e.ShareID)
}
func (e *UnknownShareIDError) Unwrap() error { return ErrUnknownShareID }

// UnknownShareAccountsError names the accounts that were not present.
type UnknownShareAccountsError struct {
	Accounts []string
	ShareID  uint64
}

func (e *UnknownShareAccountsError) Error() string {
	return fmt.Sprintf("unknown share accounts %v for share %d", e.Accounts, e.ShareID)
}
func (e *UnknownShareAccountsError) Unwrap() error { return ErrUnknownShareAccounts }

// ShareAlreadyExistsError names the colliding (tenant, name).
type ShareAlreadyExistsError struct {
	Tenant string
	Name   string
}

func (e *ShareAlreadyExistsError) Error() string {
	return fmt.Sprintf("share %s.%s already exists", e.Tenant, e.Name)
}
func (e *ShareAlreadyExistsError) Unwrap() error { return ErrShareAlreadyExists }

// ShareAccountsAlreadyExistsError names the accounts that were already
// present, causing add_share_tenants to have nothing left to do.
type ShareAccountsAlreadyExistsError struct {
	Accounts []string
}

func (e *ShareAccountsAlreadyExistsError) Error() string {
	return fmt.Sprintf("share accounts already exist: %v", e.Accounts)
}
func (e *ShareAccountsAlreadyExistsError) Unwrap() error { return ErrShareAccountsAlreadyExists }

// WrongShareError signals share-state corruption (e.g. database grant
// entry is not a Database variant).
type WrongShareError struct {
	Name   string
	Reason string
}

func (e *WrongShareError) Error() string {
	return fmt.Sprintf("wrong share %s: %s", e.Name, e.Reason)
}
func (e *WrongShareError) Unwrap() error { return ErrWrongShare }

// WrongShareObjectError signals a domain-rule violation: cross-database
// grant, table-before-database grant, or database revoke with lingering
// table entries.
type WrongShareObjectError struct {
	Object ShareGrantObject
	Reason string
}

func (e *WrongShareObjectError) Error() string {
	return fmt.Sprintf("wrong share object %s: %s", e.Object.CanonicalKey(), e.Reason)
}
func (e *WrongShareObjectError) Unwrap() error { return ErrWrongShareObject }

// UnknownDatabaseError is raised by the Object Resolver.
type UnknownDatabaseError struct{ Name string }

func (e *UnknownDatabaseError) Error() string { return fmt.Sprintf("unknown database %q", e.Name) }
func (e *UnknownDatabaseError) Unwrap() error { return ErrUnknownDatabase }

// UnknownTableError is raised by the Object Resolver.
type UnknownTableError struct{ DB, Table string }

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q.%q", e.DB, e.Table)
}
func (e *UnknownTableError) Unwrap() error { return ErrUnknownTable }

// TxnRetryMaxTimesError is surfaced when the retry budget is exhausted.
type TxnRetryMaxTimesError struct {
	Op      string
	Attempts int
}

func (e *TxnRetryMaxTimesError) Error() string {
	return fmt.Sprintf("%s: exceeded %d txn retries", e.Op, e.Attempts)
}
func (e *TxnRetryMaxTimesError) Unwrap() error { return ErrTxnRetryMaxTimes }
