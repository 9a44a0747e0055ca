package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrAmbiguousMatch     = errors.New("ambiguous match")
	ErrUnresolvedIdentity = errors.New("unresolved identity")
	ErrConflictingAlias   = errors.New("conflicting alias")
	ErrMergeIntegrity     = errors.New("merge integrity violation")
	ErrMemberNotFound     = errors.New("member not found")
	ErrInvalidName        = errors.New("invalid name")
	ErrDisplayNameTaken   = errors.New("display name taken by an active member")
)

// AmbiguousMatchError is returned when fuzzy suggestion produced several
// close candidates. It is surfaced to an operator, never auto-resolved.
type AmbiguousMatchError struct {
	RawName    string
	Candidates []Suggestion
}

func (e *AmbiguousMatchError) Error() string {
	names := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		names = append(names, fmt.Sprintf("%s (#%d, %.2f)", c.DisplayName, c.MemberID, c.Confidence))
	}
	return fmt.Sprintf("ambiguous match for %q: %s", e.RawName, strings.Join(names, ", "))
}

// Is implements errors.Is support.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// UnresolvedIdentityError is returned when no alias matches a raw name.
type UnresolvedIdentityError struct {
	RawName string
	Source  Source
}

func (e *UnresolvedIdentityError) Error() string {
	return fmt.Sprintf("no member for %s name %q", e.Source, e.RawName)
}

// Is implements errors.Is support.
func (e *UnresolvedIdentityError) Is(target error) bool {
	return target == ErrUnresolvedIdentity
}

// ConflictingAliasError is returned when an alias is requested for a
// (key, source) pair already owned by another member. The existing alias
// always wins.
type ConflictingAliasError struct {
	Key         string
	Source      Source
	OwnerID     int64
	RequestedID int64
}

func (e *ConflictingAliasError) Error() string {
	return fmt.Sprintf("alias %q (%s) belongs to member %d, not %d", e.Key, e.Source, e.OwnerID, e.RequestedID)
}

// Is implements errors.Is support.
func (e *ConflictingAliasError) Is(target error) bool {
	return target == ErrConflictingAlias
}

// MergeIntegrityError is returned when a merge precondition fails. No
// mutation has happened when it is returned.
type MergeIntegrityError struct {
	KeepID   int64
	AbsorbID int64
	Reason   string
}

func (e *MergeIntegrityError) Error() string {
	return fmt.Sprintf("cannot merge %d into %d: %s", e.AbsorbID, e.KeepID, e.Reason)
}

// Is implements errors.Is support.
func (e *MergeIntegrityError) Is(target error) bool {
	return target == ErrMergeIntegrity
}

// MemberNotFoundError reports a missing member ID.
type MemberNotFoundError struct {
	ID int64
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("member %d not found", e.ID)
}

// Is implements errors.Is support.
func (e *MemberNotFoundError) Is(target error) bool {
	return target == ErrMemberNotFound
}
