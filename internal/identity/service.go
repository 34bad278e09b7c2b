// Package identity manages accounts, devices, and sessions: anonymous
// enrollment, passcode verification, and the merge workflow that folds an
// anonymous identity into an existing account.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/audit"
	"github.com/daybook-app/daybook/internal/fault"
	"github.com/daybook-app/daybook/internal/ident"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/order"
	"github.com/daybook-app/daybook/internal/quota"
	"github.com/daybook-app/daybook/internal/store"
)

// DeviceIn carries caller-supplied device fields at enrollment.
type DeviceIn struct {
	Platform    string
	Fingerprint string
	Info        string
}

// Session is a minted token with the identity it is bound to.
type Session struct {
	Token    string
	UserID   uuid.UUID
	DeviceID uuid.UUID
}

// Service orchestrates enrollment, verification, and account management.
type Service struct {
	st       *store.Store
	log      *slog.Logger
	rec      *audit.Recorder
	passcode PasscodeProvider
	tokens   TokenIssuer
}

// NewService wires the identity service. rec may be nil when auditing is
// not configured.
func NewService(st *store.Store, logger *slog.Logger, rec *audit.Recorder, passcode PasscodeProvider, tokens TokenIssuer) *Service {
	return &Service{st: st, log: logger, rec: rec, passcode: passcode, tokens: tokens}
}

func (s *Service) record(actorID uuid.UUID, action, detail string) {
	if s.rec != nil {
		s.rec.Record(actorID, action, detail)
	}
}

// Enroll creates an anonymous user bound to the given device and mints a
// session for the pair. A previous device holding the same fingerprint is
// purged first, so re-installs do not pile up rows.
func (s *Service) Enroll(ctx context.Context, in DeviceIn) (*Session, error) {
	if in.Fingerprint == "" {
		return nil, fault.Input("device fingerprint must not be empty")
	}

	var userID, deviceID uuid.UUID
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		if err := s.st.Devices.DeleteByFingerprint(ctx, tx, in.Fingerprint); err != nil {
			return err
		}
		var err error
		userID, err = s.st.Users.Create(ctx, tx)
		if err != nil {
			return err
		}
		deviceID, err = s.st.Devices.Create(ctx, tx, model.Device{
			UserID:      userID,
			Platform:    in.Platform,
			Fingerprint: in.Fingerprint,
			Info:        in.Info,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(userID, deviceID)
	if err != nil {
		return nil, err
	}

	s.record(userID, "identity.enroll", fmt.Sprintf("device=%s", deviceID))
	return &Session{Token: token, UserID: userID, DeviceID: deviceID}, nil
}

// SendPasscode asks the provider to deliver a one-time code to email and
// returns the delivery handle the caller must echo back at verification.
func (s *Service) SendPasscode(ctx context.Context, email string) (string, error) {
	canonical, err := CanonicalEmail(email)
	if err != nil {
		return "", err
	}
	return s.passcode.Send(ctx, canonical)
}

// VerifyPasscode checks the submitted code and, on approval, links the
// caller's session to the account behind email.
//
// First-time claim: the email attaches to the caller's current user row.
// Existing account: the caller's identity is absorbed into it inside one
// transaction. The caller's plans re-home onto the existing user, landing
// after its own plans in each partition; if the existing user already
// holds the device cap, its oldest device is evicted; the session device
// re-points to the existing user and the emptied anonymous user row goes
// away. A session is minted for the resulting identity either way.
func (s *Service) VerifyPasscode(ctx context.Context, email, handle, code string) (*Session, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	canonical, err := CanonicalEmail(email)
	if err != nil {
		return nil, err
	}
	status, err := s.passcode.Check(ctx, canonical, handle, code)
	if err != nil {
		return nil, err
	}
	if status != StatusApproved {
		return nil, fault.Unauthorized("passcode not approved")
	}

	resultID := caller.UserID
	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		existing, err := s.st.Users.GetByEmail(ctx, tx, canonical)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			return s.st.Users.SetEmail(ctx, tx, caller.UserID, canonical)
		case existing.ID == caller.UserID:
			return nil
		default:
			resultID = existing.ID
			return s.merge(ctx, tx, caller, existing.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(resultID, caller.DeviceID)
	if err != nil {
		return nil, err
	}

	s.record(resultID, "identity.verify", fmt.Sprintf("device=%s", caller.DeviceID))
	return &Session{Token: token, UserID: resultID, DeviceID: caller.DeviceID}, nil
}

// merge absorbs the caller's anonymous identity into the existing user.
// Runs inside the caller's transaction; any error unwinds the whole
// thing, so a half-merged account is never visible.
func (s *Service) merge(ctx context.Context, tx store.DBTX, caller ident.Identity, into uuid.UUID) error {
	s.log.Info("merging identity", "from", caller.UserID, "into", into)

	for _, t := range []model.PlanType{model.PlanTypeMain, model.PlanTypeArchived} {
		destCount, err := s.st.Plans.Count(ctx, tx, into, t)
		if err != nil {
			return err
		}
		if err := s.st.Plans.Reassign(ctx, tx, caller.UserID, into, t, order.MergeOffset(destCount)); err != nil {
			return err
		}
	}

	devices, err := s.st.Devices.ListByUser(ctx, tx, into)
	if err != nil {
		return err
	}
	if len(devices) >= quota.MaxDevicesPerUser {
		oldest := devices[len(devices)-1]
		s.log.Info("evicting oldest device", "user", into, "device", oldest.ID)
		if _, err := s.st.Devices.Delete(ctx, tx, oldest.ID); err != nil {
			return err
		}
	}
	if err := s.st.Devices.Reassign(ctx, tx, caller.DeviceID, into); err != nil {
		return err
	}

	return s.st.Users.Delete(ctx, tx, caller.UserID)
}

// RefreshToken re-issues a session token for the caller's current pair.
// The device must still exist and belong to the caller.
func (s *Service) RefreshToken(ctx context.Context) (string, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return "", err
	}
	device, err := s.st.Devices.Get(ctx, s.st.DB(), caller.DeviceID)
	if err != nil {
		return "", err
	}
	if device == nil || device.UserID != caller.UserID {
		return "", fault.Unauthorized("session device is gone")
	}
	return s.tokens.Issue(caller.UserID, caller.DeviceID)
}

// User returns the caller's own profile.
func (s *Service) User(ctx context.Context) (*model.User, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.st.Users.Get(ctx, s.st.DB(), caller.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fault.NotFound("user %s not found", caller.UserID)
	}
	return user, nil
}

// RenameUser sets the caller's display name.
func (s *Service) RenameUser(ctx context.Context, name string) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	if name == "" {
		return fault.Input("name must not be empty")
	}
	n, err := s.st.Users.SetName(ctx, s.st.DB(), caller.UserID, name)
	if err != nil {
		return err
	}
	if n != 1 {
		return fault.NotFound("user %s not found", caller.UserID)
	}
	return nil
}

// Devices lists the caller's devices newest-first.
func (s *Service) Devices(ctx context.Context) ([]model.Device, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.st.Devices.ListByUser(ctx, s.st.DB(), caller.UserID)
}

// Logout deletes one of the caller's devices, ending that session.
func (s *Service) Logout(ctx context.Context, deviceID uuid.UUID) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	device, err := s.st.Devices.Get(ctx, s.st.DB(), deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fault.NotFound("device %s not found", deviceID)
	}
	if device.UserID != caller.UserID {
		return fault.Unauthorized("device belongs to another user")
	}
	if _, err := s.st.Devices.Delete(ctx, s.st.DB(), deviceID); err != nil {
		return err
	}
	s.record(caller.UserID, "identity.logout", fmt.Sprintf("device=%s", deviceID))
	return nil
}

// DeleteAccount removes the caller's account after a fresh passcode
// check against the account's own address. Plans, tasks, devices, and
// memberships cascade away; the address also leaves every other user's
// suggestions.
func (s *Service) DeleteAccount(ctx context.Context, handle, code string) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	user, err := s.st.Users.Get(ctx, s.st.DB(), caller.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fault.NotFound("user %s not found", caller.UserID)
	}
	if user.Email == nil {
		return fault.Input("anonymous accounts have nothing to verify against")
	}

	status, err := s.passcode.Check(ctx, *user.Email, handle, code)
	if err != nil {
		return err
	}
	if status != StatusApproved {
		return fault.Unauthorized("passcode not approved")
	}

	err = s.st.WithTx(ctx, func(tx store.DBTX) error {
		if err := s.st.Suggestions.DeleteByEmail(ctx, tx, *user.Email); err != nil {
			return err
		}
		return s.st.Users.Delete(ctx, tx, caller.UserID)
	})
	if err != nil {
		return err
	}

	s.record(caller.UserID, "identity.delete_account", "")
	return nil
}

// SuggestedEmails lists the caller's suggested contacts.
func (s *Service) SuggestedEmails(ctx context.Context) ([]model.SuggestedEmail, error) {
	caller, err := ident.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.st.Suggestions.List(ctx, s.st.DB(), caller.UserID)
}

// RemoveSuggestedEmail deletes one of the caller's suggestions.
func (s *Service) RemoveSuggestedEmail(ctx context.Context, id uuid.UUID) error {
	caller, err := ident.Require(ctx)
	if err != nil {
		return err
	}
	suggestion, err := s.st.Suggestions.Get(ctx, s.st.DB(), id)
	if err != nil {
		return err
	}
	if suggestion == nil || suggestion.UserID != caller.UserID {
		return fault.NotFound("suggestion %s not found", id)
	}
	_, err = s.st.Suggestions.Delete(ctx, s.st.DB(), id)
	return err
}
