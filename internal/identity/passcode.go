package identity

import (
	"context"
	"slices"

	"github.com/daybook-app/daybook/internal/fault"
)

// Verification statuses reported by a passcode provider.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// PasscodeProvider delivers one-time passcodes and checks submitted ones.
// Send returns an opaque handle identifying the delivery; Check resolves
// that handle plus the submitted code to a status.
type PasscodeProvider interface {
	Send(ctx context.Context, email string) (handle string, err error)
	Check(ctx context.Context, email, handle, code string) (status string, err error)
}

// SandboxProvider approves a fixed (emails, handle, code) triple without
// calling out. Used in development and end-to-end tests; review builds
// enroll with the listed addresses.
type SandboxProvider struct {
	Emails []string
	Handle string
	Code   string
}

var _ PasscodeProvider = (*SandboxProvider)(nil)

// Allows reports whether the address is in the sandbox list.
func (p *SandboxProvider) Allows(email string) bool {
	return slices.Contains(p.Emails, email)
}

func (p *SandboxProvider) Send(ctx context.Context, email string) (string, error) {
	if !p.Allows(email) {
		return "", fault.Input("address %s is not enrolled in the sandbox", email)
	}
	return p.Handle, nil
}

func (p *SandboxProvider) Check(ctx context.Context, email, handle, code string) (string, error) {
	if !p.Allows(email) {
		return StatusPending, nil
	}
	if handle == p.Handle && code == p.Code {
		return StatusApproved, nil
	}
	return StatusPending, nil
}
