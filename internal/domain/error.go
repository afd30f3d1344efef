package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Access and billing
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrAccessDenied        = errors.New("access not granted")
	ErrUserLocked          = errors.New("another operation for this user is in progress")

	// Agents
	ErrAgentNotFound     = errors.New("agent not found")
	ErrAgentLimitReached = errors.New("agent limit reached")
	ErrNameTooLong       = errors.New("agent name too long")
	ErrPromptTooLong     = errors.New("agent system prompt too long")

	// Referrals
	ErrSelfReferral   = errors.New("users cannot invite themselves")
	ErrAlreadyInvited = errors.New("user already in the inviter's invited list")
)
