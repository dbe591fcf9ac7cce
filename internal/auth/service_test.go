package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	"github.com/cooperapp/cooperapp/internal/auth"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	sessionDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/session"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
	"github.com/cooperapp/cooperapp/internal/permission"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

type mockAuthRepository struct {
	usersByID         map[string]*userDatamodel.User
	internalSessions  map[string]*sessionDatamodel.InternalSession
	counterparts      map[string]*sessionDatamodel.CounterpartSession
	projectsByCode    map[string]*projectDatamodel.Project
	assignments       map[string]map[int64]bool
	createUserErr     error
	createSessionErr  error
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByID:        make(map[string]*userDatamodel.User),
		internalSessions: make(map[string]*sessionDatamodel.InternalSession),
		counterparts:     make(map[string]*sessionDatamodel.CounterpartSession),
		projectsByCode:   make(map[string]*projectDatamodel.Project),
		assignments:      make(map[string]map[int64]bool),
	}
}

func (m *mockAuthRepository) GetUserBySubject(subjectID string) (*userDatamodel.User, error) {
	for _, u := range m.usersByID {
		if u.SubjectID != nil && *u.SubjectID == subjectID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockAuthRepository) GetUserByEmail(email string) (*userDatamodel.User, error) {
	for _, u := range m.usersByID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockAuthRepository) GetUserByID(id string) (*userDatamodel.User, error) {
	return m.usersByID[id], nil
}

func (m *mockAuthRepository) CreateUser(user *userDatamodel.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) UpdateUser(user *userDatamodel.User) error {
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) CreateInternalSession(session *sessionDatamodel.InternalSession) error {
	if m.createSessionErr != nil {
		return m.createSessionErr
	}
	m.internalSessions[session.ID] = session
	return nil
}

func (m *mockAuthRepository) GetInternalSession(id string) (*sessionDatamodel.InternalSession, error) {
	return m.internalSessions[id], nil
}

func (m *mockAuthRepository) TouchInternalSession(id string, at time.Time) error {
	if s, ok := m.internalSessions[id]; ok {
		s.LastSeenAt = at
	}
	return nil
}

func (m *mockAuthRepository) DeactivateInternalSession(id string) error {
	if s, ok := m.internalSessions[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *mockAuthRepository) GetProjectByAccountingCode(code string) (*projectDatamodel.Project, error) {
	return m.projectsByCode[code], nil
}

func (m *mockAuthRepository) GetProjectByID(id int64) (*projectDatamodel.Project, error) {
	for _, p := range m.projectsByCode {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockAuthRepository) CreateCounterpartSession(session *sessionDatamodel.CounterpartSession) error {
	m.counterparts[session.TokenDigest] = session
	return nil
}

func (m *mockAuthRepository) GetCounterpartSessionByDigest(digest string) (*sessionDatamodel.CounterpartSession, error) {
	return m.counterparts[digest], nil
}

func (m *mockAuthRepository) TouchCounterpartSession(id string, at time.Time) error {
	for _, s := range m.counterparts {
		if s.ID == id {
			s.LastActivityAt = at
		}
	}
	return nil
}

func (m *mockAuthRepository) DeactivateCounterpartIfActive(id string) (bool, error) {
	for _, s := range m.counterparts {
		if s.ID == id && s.IsActive {
			s.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAuthRepository) HasAssignment(userID string, projectID int64) (bool, error) {
	return m.assignments[userID][projectID], nil
}

type mockRecorder struct {
	entries   []audit.Entry
	recordErr error
}

func (m *mockRecorder) Record(ctx context.Context, entry audit.Entry) (*audit.Event, error) {
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	m.entries = append(m.entries, entry)
	return &audit.Event{Action: entry.Action}, nil
}

func (m *mockRecorder) byAction(action audit.Action) []audit.Entry {
	var out []audit.Entry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

var _ = Describe("AuthService", func() {
	var (
		repo     *mockAuthRepository
		recorder *mockRecorder
		signer   *auth.TokenSigner
		service  *auth.Service
		ctx      context.Context
	)

	testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	newIdentity := func() *auth.Identity {
		return &auth.Identity{
			Subject:    "entra-subject-1",
			Email:      "ana.garcia@example.org",
			GivenName:  "Ana",
			FamilyName: "Garcia",
		}
	}

	seedUser := func(role string, active bool) *userDatamodel.User {
		subject := "entra-subject-1"
		user := &userDatamodel.User{
			ID:        "user-1",
			Email:     "ana.garcia@example.org",
			SubjectID: &subject,
			Role:      &role,
			IsActive:  active,
		}
		repo.usersByID[user.ID] = user
		return user
	}

	BeforeEach(func() {
		repo = newMockAuthRepository()
		recorder = &mockRecorder{}
		signer = auth.NewTokenSigner("0123456789abcdef0123456789abcdef", 12*time.Hour)
		service = auth.NewService(repo, recorder, signer, testLogger)
		ctx = context.Background()
	})

	Describe("Login", func() {
		It("provisions an unknown identity and refuses it until a role is set", func() {
			_, _, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).To(MatchError(internal.ErrPendingActivation))

			created, _ := repo.GetUserByEmail("ana.garcia@example.org")
			Expect(created).NotTo(BeNil())
			Expect(created.Role).To(BeNil())
			Expect(created.IsActive).To(BeTrue())
			Expect(recorder.entries).To(BeEmpty())
		})

		It("refuses a deactivated account without hinting at activation", func() {
			seedUser(string(permission.RoleCoordinator), false)

			_, _, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
			Expect(recorder.entries).To(BeEmpty())
		})

		It("opens a session and records a login for an active account", func() {
			seedUser(string(permission.RoleCoordinator), true)

			user, token, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Name).To(Equal("Ana Garcia"))
			Expect(*user.Role).To(Equal(permission.RoleCoordinator))
			Expect(token).NotTo(BeEmpty())

			Expect(repo.internalSessions).To(HaveLen(1))
			Expect(recorder.byAction(audit.ActionLogin)).To(HaveLen(1))
			Expect(recorder.byAction(audit.ActionLogin)[0].ActorKind).To(Equal(audit.ActorInternal))
			Expect(recorder.byAction(audit.ActionLogin)[0].IPAddress).To(Equal("10.0.0.1"))
			Expect(recorder.byAction(audit.ActionLogin)[0].Detail).To(HaveKeyWithValue("first_login", true))
		})

		It("flags only the first sign-in in the login event", func() {
			seedUser(string(permission.RoleCoordinator), true)

			_, _, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())
			_, _, err = service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())

			logins := recorder.byAction(audit.ActionLogin)
			Expect(logins).To(HaveLen(2))
			Expect(logins[0].Detail).To(HaveKeyWithValue("first_login", true))
			Expect(logins[1].Detail).To(HaveKeyWithValue("first_login", false))
		})

		It("links a pre-provisioned account by email on first sign-in", func() {
			role := string(permission.RoleCountryManager)
			repo.usersByID["user-2"] = &userDatamodel.User{
				ID:       "user-2",
				Email:    "ana.garcia@example.org",
				Role:     &role,
				IsActive: true,
			}

			user, _, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).To(Equal("user-2"))

			linked := repo.usersByID["user-2"]
			Expect(linked.SubjectID).NotTo(BeNil())
			Expect(*linked.SubjectID).To(Equal("entra-subject-1"))
		})

		It("updates the stored email when the provider asserts a new one", func() {
			seedUser(string(permission.RoleCoordinator), true)

			identity := newIdentity()
			identity.Email = "  Ana.Garcia@NewDomain.org "

			user, _, err := service.Login(ctx, identity, "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("ana.garcia@newdomain.org"))
			Expect(repo.usersByID["user-1"].Email).To(Equal("ana.garcia@newdomain.org"))

			// The login event carries the current address, not the stale one.
			logins := recorder.byAction(audit.ActionLogin)
			Expect(logins).To(HaveLen(1))
			Expect(*logins[0].ActorEmail).To(Equal("ana.garcia@newdomain.org"))
		})

		It("refuses a different subject claiming an already linked email", func() {
			seedUser(string(permission.RoleCoordinator), true)

			identity := newIdentity()
			identity.Subject = "entra-subject-9"

			_, _, err := service.Login(ctx, identity, "10.0.0.1", "go-test")
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))

			// The original link survives the attempt.
			Expect(*repo.usersByID["user-1"].SubjectID).To(Equal("entra-subject-1"))
		})

		It("fails the login when the audit write fails", func() {
			seedUser(string(permission.RoleAdmin), true)
			recorder.recordErr = errors.New("audit store down")

			_, _, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidateSession", func() {
		var token string

		BeforeEach(func() {
			seedUser(string(permission.RoleAdmin), true)
			var err error
			_, token, err = service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())
		})

		It("resolves a live session to its user", func() {
			user, err := service.ValidateSession(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("ana.garcia@example.org"))
			Expect(*user.Role).To(Equal(permission.RoleAdmin))
		})

		It("rejects a revoked session even with a valid token", func() {
			for id := range repo.internalSessions {
				Expect(repo.DeactivateInternalSession(id)).To(Succeed())
			}

			_, err := service.ValidateSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
		})

		It("rejects a session whose user was deactivated afterwards", func() {
			repo.usersByID["user-1"].IsActive = false

			_, err := service.ValidateSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
		})

		It("reports pending activation when the role was removed", func() {
			repo.usersByID["user-1"].Role = nil

			_, err := service.ValidateSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrPendingActivation))
		})

		It("rejects a tampered token", func() {
			_, err := service.ValidateSession(ctx, token+"x")
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
		})
	})

	Describe("Logout", func() {
		It("closes the session and records the event", func() {
			seedUser(string(permission.RoleAdmin), true)
			user, _, err := service.Login(ctx, newIdentity(), "10.0.0.1", "go-test")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Logout(ctx, user, "10.0.0.1")).To(Succeed())

			session := repo.internalSessions[user.SessionID]
			Expect(session.IsActive).To(BeFalse())
			Expect(recorder.byAction(audit.ActionLogout)).To(HaveLen(1))
		})
	})

	Describe("CounterpartLogin", func() {
		BeforeEach(func() {
			repo.projectsByCode["UE-2024-017"] = &projectDatamodel.Project{
				ID:             42,
				AccountingCode: "UE-2024-017",
				Status:         "execution",
			}
		})

		It("opens a scoped session for a valid code", func() {
			cp, token, err := service.CounterpartLogin(ctx, "UE-2024-017", "203.0.113.9", "browser")
			Expect(err).NotTo(HaveOccurred())
			Expect(cp.ProjectID).To(Equal(int64(42)))
			Expect(token).NotTo(BeEmpty())

			stored := repo.counterparts[auth.DigestToken(token)]
			Expect(stored).NotTo(BeNil())
			Expect(stored.TokenDigest).NotTo(Equal(token))

			logins := recorder.byAction(audit.ActionLogin)
			Expect(logins).To(HaveLen(1))
			Expect(logins[0].ActorKind).To(Equal(audit.ActorCounterpart))
			Expect(logins[0].ActorLabel).To(Equal("Counterpart UE-2024-017"))
			Expect(*logins[0].ProjectID).To(Equal(int64(42)))
		})

		It("answers an unknown code with the generic failure and records a masked miss", func() {
			_, _, err := service.CounterpartLogin(ctx, "WRONG-CODE", "203.0.113.9", "browser")
			Expect(err).To(MatchError(internal.ErrInvalidCredential))

			failures := recorder.byAction(audit.ActionLoginFailed)
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].ProjectID).To(BeNil())
			Expect(failures[0].Detail).To(HaveKeyWithValue("code_prefix", "WRON..."))
		})

		It("treats a valid code outside execution or justification as the same failure", func() {
			repo.projectsByCode["UE-2024-017"].Status = "formulation"

			_, _, err := service.CounterpartLogin(ctx, "UE-2024-017", "203.0.113.9", "browser")
			Expect(err).To(MatchError(internal.ErrInvalidCredential))
			Expect(recorder.byAction(audit.ActionLoginFailed)).To(HaveLen(1))
		})
	})

	Describe("ValidateCounterpartSession", func() {
		var token string

		BeforeEach(func() {
			repo.projectsByCode["UE-2024-017"] = &projectDatamodel.Project{
				ID:             42,
				AccountingCode: "UE-2024-017",
				Status:         "execution",
			}
			var err error
			_, token, err = service.CounterpartLogin(ctx, "UE-2024-017", "203.0.113.9", "browser")
			Expect(err).NotTo(HaveOccurred())
		})

		sessionRow := func() *sessionDatamodel.CounterpartSession {
			return repo.counterparts[auth.DigestToken(token)]
		}

		It("resolves a fresh session and advances its activity clock", func() {
			before := sessionRow().LastActivityAt

			cp, err := service.ValidateCounterpartSession(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(cp.ProjectID).To(Equal(int64(42)))
			Expect(sessionRow().LastActivityAt).To(BeTemporally(">=", before))
		})

		It("rejects an unknown token", func() {
			_, err := service.ValidateCounterpartSession(ctx, "no-such-token")
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
		})

		It("closes a session past its absolute limit and records the reason once", func() {
			sessionRow().ExpiresAt = time.Now().UTC().Add(-time.Minute)

			_, err := service.ValidateCounterpartSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
			Expect(sessionRow().IsActive).To(BeFalse())

			expired := recorder.byAction(audit.ActionSessionExpired)
			Expect(expired).To(HaveLen(1))
			Expect(expired[0].Detail).To(HaveKeyWithValue("reason", "absolute"))

			// A replay of the same token must not produce a second event.
			_, err = service.ValidateCounterpartSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))
			Expect(recorder.byAction(audit.ActionSessionExpired)).To(HaveLen(1))
		})

		It("closes an idle session and names inactivity as the reason", func() {
			sessionRow().LastActivityAt = time.Now().UTC().Add(-3 * time.Hour)

			_, err := service.ValidateCounterpartSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))

			expired := recorder.byAction(audit.ActionSessionExpired)
			Expect(expired).To(HaveLen(1))
			Expect(expired[0].Detail).To(HaveKeyWithValue("reason", "inactivity"))
		})

		It("prefers the absolute reason when both limits are exceeded", func() {
			sessionRow().ExpiresAt = time.Now().UTC().Add(-time.Minute)
			sessionRow().LastActivityAt = time.Now().UTC().Add(-3 * time.Hour)

			_, err := service.ValidateCounterpartSession(ctx, token)
			Expect(err).To(MatchError(internal.ErrNotAuthenticated))

			expired := recorder.byAction(audit.ActionSessionExpired)
			Expect(expired[0].Detail).To(HaveKeyWithValue("reason", "absolute"))
		})
	})

	Describe("CounterpartLogout", func() {
		It("records a single logout however often it is called", func() {
			repo.projectsByCode["UE-2024-017"] = &projectDatamodel.Project{ID: 42, AccountingCode: "UE-2024-017", Status: "execution"}
			cp, _, err := service.CounterpartLogin(ctx, "UE-2024-017", "203.0.113.9", "browser")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.CounterpartLogout(ctx, cp, "203.0.113.9")).To(Succeed())
			Expect(service.CounterpartLogout(ctx, cp, "203.0.113.9")).To(Succeed())

			Expect(recorder.byAction(audit.ActionLogout)).To(HaveLen(1))
		})
	})

	Describe("HasProjectAccess", func() {
		It("lets every non-scoped role reach any project", func() {
			for _, role := range []permission.Role{
				permission.RoleAdmin,
				permission.RoleCoordinator,
				permission.RoleSiteTechnician,
			} {
				r := role
				ok, err := service.HasProjectAccess(&auth.AuthedUser{ID: "u", Role: &r}, 99)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue(), string(role))
			}
		})

		It("limits country managers to their assignments", func() {
			role := permission.RoleCountryManager
			user := &auth.AuthedUser{ID: "u", Role: &role}

			ok, err := service.HasProjectAccess(user, 99)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			repo.assignments["u"] = map[int64]bool{99: true}
			ok, err = service.HasProjectAccess(user, 99)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})
})

var _ = Describe("TokenSigner", func() {
	It("round-trips a session ID", func() {
		signer := auth.NewTokenSigner("0123456789abcdef0123456789abcdef", time.Hour)
		token, err := signer.Sign("session-123", time.Now())
		Expect(err).NotTo(HaveOccurred())

		sessionID, err := signer.Verify(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(sessionID).To(Equal("session-123"))
	})

	It("rejects tokens signed with a different secret", func() {
		a := auth.NewTokenSigner("0123456789abcdef0123456789abcdef", time.Hour)
		b := auth.NewTokenSigner("ffffffffffffffffffffffffffffffff", time.Hour)

		token, err := a.Sign("session-123", time.Now())
		Expect(err).NotTo(HaveOccurred())

		_, err = b.Verify(token)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an expired token", func() {
		signer := auth.NewTokenSigner("0123456789abcdef0123456789abcdef", time.Hour)
		token, err := signer.Sign("session-123", time.Now().Add(-2*time.Hour))
		Expect(err).NotTo(HaveOccurred())

		_, err = signer.Verify(token)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Counterpart tokens", func() {
	It("digests deterministically and never stores the raw token", func() {
		token, digest, err := auth.NewCounterpartToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(digest).To(Equal(auth.DigestToken(token)))
		Expect(digest).NotTo(Equal(token))

		_, digest2, err := auth.NewCounterpartToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(digest2).NotTo(Equal(digest))
	})
})
