package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	sessionDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/session"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
	"github.com/cooperapp/cooperapp/internal/permission"
)

// RepositoryAPI is the persistence surface the auth service needs. Lookup
// methods return (nil, nil) when no row matches.
type RepositoryAPI interface {
	GetUserBySubject(subjectID string) (*userDatamodel.User, error)
	GetUserByEmail(email string) (*userDatamodel.User, error)
	GetUserByID(id string) (*userDatamodel.User, error)
	CreateUser(user *userDatamodel.User) error
	UpdateUser(user *userDatamodel.User) error

	CreateInternalSession(session *sessionDatamodel.InternalSession) error
	GetInternalSession(id string) (*sessionDatamodel.InternalSession, error)
	TouchInternalSession(id string, at time.Time) error
	DeactivateInternalSession(id string) error

	GetProjectByAccountingCode(code string) (*projectDatamodel.Project, error)
	GetProjectByID(id int64) (*projectDatamodel.Project, error)
	CreateCounterpartSession(session *sessionDatamodel.CounterpartSession) error
	GetCounterpartSessionByDigest(digest string) (*sessionDatamodel.CounterpartSession, error)
	TouchCounterpartSession(id string, at time.Time) error
	// DeactivateCounterpartIfActive flips is_active to false and reports
	// whether this call was the one that flipped it.
	DeactivateCounterpartIfActive(id string) (bool, error)

	HasAssignment(userID string, projectID int64) (bool, error)
}

type Service struct {
	repo    RepositoryAPI
	auditor audit.Recorder
	signer  *TokenSigner
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo RepositoryAPI, auditor audit.Recorder, signer *TokenSigner, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		signer:  signer,
		logger:  logger,
		now:     time.Now,
	}
}

// Login resolves the asserted identity to a local user, refuses accounts
// that are deactivated or still awaiting a role, opens a session row and
// returns the signed cookie value.
func (s *Service) Login(ctx context.Context, identity *Identity, ip, userAgent string) (*AuthedUser, string, error) {
	user, err := s.resolveIdentity(identity)
	if err != nil {
		return nil, "", err
	}

	if !user.IsActive {
		s.logger.Warn("login refused for deactivated account", "user_id", user.ID)
		return nil, "", internal.ErrNotAuthenticated
	}
	if user.Role == nil {
		s.logger.Warn("login refused for account awaiting activation", "user_id", user.ID)
		return nil, "", internal.ErrPendingActivation
	}

	firstLogin := user.LastAccessAt == nil

	now := s.now().UTC()
	session := &sessionDatamodel.InternalSession{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		IsActive:   true,
	}
	if err := s.repo.CreateInternalSession(session); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	token, err := s.signer.Sign(session.ID, now)
	if err != nil {
		return nil, "", fmt.Errorf("sign session token: %w", err)
	}

	user.LastAccessAt = &now
	if err := s.repo.UpdateUser(user); err != nil {
		s.logger.Error("failed to stamp last access", "error", err, "user_id", user.ID)
	}

	authed := toAuthedUser(user, session.ID)

	if _, err := s.auditor.Record(ctx, audit.Entry{
		ActorKind:  audit.ActorInternal,
		ActorID:    user.ID,
		ActorEmail: &user.Email,
		ActorLabel: authed.Name,
		Action:     audit.ActionLogin,
		Detail:     map[string]any{"first_login": firstLogin},
		IPAddress:  ip,
	}); err != nil {
		return nil, "", err
	}

	return authed, token, nil
}

// resolveIdentity finds the local user for an identity-provider subject.
// Accounts provisioned by an admin before first sign-in carry an email
// but no subject, so the email match links them on first contact.
func (s *Service) resolveIdentity(identity *Identity) (*userDatamodel.User, error) {
	email := strings.ToLower(strings.TrimSpace(identity.Email))

	user, err := s.repo.GetUserBySubject(identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup user by subject: %w", err)
	}
	if user == nil {
		user, err = s.repo.GetUserByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
	}

	if user == nil {
		subject := identity.Subject
		user = &userDatamodel.User{
			ID:         uuid.New().String(),
			Email:      email,
			GivenName:  identity.GivenName,
			FamilyName: identity.FamilyName,
			SubjectID:  &subject,
			IsActive:   true,
		}
		if err := s.repo.CreateUser(user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		s.logger.Info("provisioned user from identity provider", "user_id", user.ID)
		return user, nil
	}

	// The subject id is written once. A different subject asserting an
	// email that already belongs to a linked account must not take that
	// account over.
	if user.SubjectID != nil && *user.SubjectID != identity.Subject {
		s.logger.Warn("subject mismatch for linked account", "user_id", user.ID)
		return nil, internal.ErrNotAuthenticated
	}

	// Keep the local record aligned with the provider on every login.
	changed := false
	if user.SubjectID == nil {
		subject := identity.Subject
		user.SubjectID = &subject
		changed = true
	}
	if email != "" && user.Email != email {
		user.Email = email
		changed = true
	}
	if identity.GivenName != "" && user.GivenName != identity.GivenName {
		user.GivenName = identity.GivenName
		changed = true
	}
	if identity.FamilyName != "" && user.FamilyName != identity.FamilyName {
		user.FamilyName = identity.FamilyName
		changed = true
	}
	if changed {
		if err := s.repo.UpdateUser(user); err != nil {
			return nil, fmt.Errorf("update user from identity: %w", err)
		}
	}
	return user, nil
}

// ValidateSession verifies the cookie signature, then checks the session
// row and its user are still live. Revoking either kills the cookie even
// before the token itself expires.
func (s *Service) ValidateSession(ctx context.Context, tokenString string) (*AuthedUser, error) {
	sessionID, err := s.signer.Verify(tokenString)
	if err != nil {
		return nil, internal.ErrNotAuthenticated
	}

	session, err := s.repo.GetInternalSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session == nil || !session.IsActive {
		return nil, internal.ErrNotAuthenticated
	}

	user, err := s.repo.GetUserByID(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup session user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, internal.ErrNotAuthenticated
	}
	// An account can lose its role after the session opened. That is a
	// distinct outcome so the frontend can show the activation screen.
	if user.Role == nil {
		return nil, internal.ErrPendingActivation
	}

	if err := s.repo.TouchInternalSession(sessionID, s.now().UTC()); err != nil {
		s.logger.Error("failed to touch session", "error", err, "session_id", sessionID)
	}

	return toAuthedUser(user, sessionID), nil
}

// Logout closes the session row and records the event. Idempotent.
func (s *Service) Logout(ctx context.Context, user *AuthedUser, ip string) error {
	if err := s.repo.DeactivateInternalSession(user.SessionID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}

	_, err := s.auditor.Record(ctx, audit.Entry{
		ActorKind:  audit.ActorInternal,
		ActorID:    user.ID,
		ActorEmail: &user.Email,
		ActorLabel: user.Name,
		Action:     audit.ActionLogout,
		IPAddress:  ip,
	})
	return err
}

// CounterpartLogin exchanges a project accounting code for a session
// token. A wrong code and a project outside execution/justification get
// the identical generic failure so codes cannot be enumerated, but each
// miss lands in the audit trail with a masked prefix of the attempt.
func (s *Service) CounterpartLogin(ctx context.Context, code, ip, userAgent string) (*Counterpart, string, error) {
	code = strings.TrimSpace(code)

	project, err := s.repo.GetProjectByAccountingCode(code)
	if err != nil {
		return nil, "", fmt.Errorf("lookup project by code: %w", err)
	}
	if project == nil || !projectDatamodel.CounterpartAccessible(project.Status) {
		if _, auditErr := s.auditor.Record(ctx, audit.Entry{
			ActorKind:  audit.ActorCounterpart,
			ActorLabel: "counterpart",
			Action:     audit.ActionLoginFailed,
			Detail:     map[string]any{"code_prefix": maskCode(code)},
			IPAddress:  ip,
		}); auditErr != nil {
			return nil, "", auditErr
		}
		return nil, "", internal.ErrInvalidCredential
	}

	token, digest, err := NewCounterpartToken()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	session := &sessionDatamodel.CounterpartSession{
		ID:             uuid.New().String(),
		ProjectID:      project.ID,
		TokenDigest:    digest,
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		ExpiresAt:      now.Add(CounterpartAbsoluteTTL),
		LastActivityAt: now,
		IsActive:       true,
	}
	if err := s.repo.CreateCounterpartSession(session); err != nil {
		return nil, "", fmt.Errorf("create counterpart session: %w", err)
	}

	if _, err := s.auditor.Record(ctx, audit.Entry{
		ActorKind:  audit.ActorCounterpart,
		ActorID:    session.ID,
		ActorLabel: counterpartLabel(project.AccountingCode),
		Action:     audit.ActionLogin,
		IPAddress:  ip,
		ProjectID:  &project.ID,
	}); err != nil {
		return nil, "", err
	}

	return &Counterpart{SessionID: session.ID, ProjectID: project.ID}, token, nil
}

// ValidateCounterpartSession resolves the opaque token to a live session,
// enforcing the absolute limit before the inactivity one. Whichever
// request observes the expiry closes the session; the conditional update
// guarantees a single session_expired event even under concurrent
// requests.
func (s *Service) ValidateCounterpartSession(ctx context.Context, token string) (*Counterpart, error) {
	session, err := s.repo.GetCounterpartSessionByDigest(DigestToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup counterpart session: %w", err)
	}
	if session == nil || !session.IsActive {
		return nil, internal.ErrNotAuthenticated
	}

	now := s.now().UTC()

	// A session is usable strictly before both deadlines; at the exact
	// boundary instant it is already expired.
	var reason string
	switch {
	case !now.Before(session.ExpiresAt):
		reason = "absolute"
	case !now.Before(session.LastActivityAt.Add(CounterpartInactivityTTL)):
		reason = "inactivity"
	}

	if reason != "" {
		flipped, err := s.repo.DeactivateCounterpartIfActive(session.ID)
		if err != nil {
			return nil, fmt.Errorf("expire counterpart session: %w", err)
		}
		if flipped {
			if _, err := s.auditor.Record(ctx, audit.Entry{
				ActorKind:  audit.ActorCounterpart,
				ActorID:    session.ID,
				ActorLabel: s.counterpartSessionLabel(session.ProjectID),
				Action:     audit.ActionSessionExpired,
				IPAddress:  session.IPAddress,
				ProjectID:  &session.ProjectID,
				Detail:     map[string]any{"reason": reason},
			}); err != nil {
				s.logger.Error("failed to record session expiry", "error", err, "session_id", session.ID)
			}
		}
		return nil, internal.ErrNotAuthenticated
	}

	if err := s.repo.TouchCounterpartSession(session.ID, now); err != nil {
		s.logger.Error("failed to touch counterpart session", "error", err, "session_id", session.ID)
	}

	return &Counterpart{SessionID: session.ID, ProjectID: session.ProjectID}, nil
}

// CounterpartLogout closes the session. Safe to call on an already
// closed session; only the first close is audited.
func (s *Service) CounterpartLogout(ctx context.Context, cp *Counterpart, ip string) error {
	flipped, err := s.repo.DeactivateCounterpartIfActive(cp.SessionID)
	if err != nil {
		return fmt.Errorf("deactivate counterpart session: %w", err)
	}
	if !flipped {
		return nil
	}

	_, err = s.auditor.Record(ctx, audit.Entry{
		ActorKind:  audit.ActorCounterpart,
		ActorID:    cp.SessionID,
		ActorLabel: s.counterpartSessionLabel(cp.ProjectID),
		Action:     audit.ActionLogout,
		IPAddress:  ip,
		ProjectID:  &cp.ProjectID,
	})
	return err
}

// HasProjectAccess reports whether the user may act on the given project.
// Only the country_manager role is limited to its assignments, so the
// assignment lookup happens only for that role.
func (s *Service) HasProjectAccess(user *AuthedUser, projectID int64) (bool, error) {
	if user.Role == nil || *user.Role != permission.RoleCountryManager {
		return permission.InProjectScope(user.Role, false), nil
	}

	hasAssignment, err := s.repo.HasAssignment(user.ID, projectID)
	if err != nil {
		return false, err
	}
	return permission.InProjectScope(user.Role, hasAssignment), nil
}

// counterpartSessionLabel builds the stable audit label for a
// counterpart actor. A failed project lookup falls back to a generic
// label rather than failing the event.
func (s *Service) counterpartSessionLabel(projectID int64) string {
	project, err := s.repo.GetProjectByID(projectID)
	if err != nil || project == nil {
		return "counterpart"
	}
	return counterpartLabel(project.AccountingCode)
}

func counterpartLabel(accountingCode string) string {
	return "Counterpart " + accountingCode
}

// maskCode keeps only a short prefix of a failed login attempt so the
// trail shows what was tried without storing a possibly valid code.
func maskCode(code string) string {
	const keep = 4
	if len(code) <= keep {
		return code
	}
	return code[:keep] + "..."
}

func toAuthedUser(user *userDatamodel.User, sessionID string) *AuthedUser {
	authed := &AuthedUser{
		ID:        user.ID,
		Email:     user.Email,
		Name:      strings.TrimSpace(user.GivenName + " " + user.FamilyName),
		SessionID: sessionID,
	}
	if user.Role != nil {
		role := permission.Role(*user.Role)
		authed.Role = &role
	}
	return authed
}
