package auth

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	sessionDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/session"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
)

// expiryRepo is the minimal repository for driving a single counterpart
// session through its deadlines.
type expiryRepo struct {
	session *sessionDatamodel.CounterpartSession
	project *projectDatamodel.Project
}

func (r *expiryRepo) GetUserBySubject(string) (*userDatamodel.User, error) { return nil, nil }
func (r *expiryRepo) GetUserByEmail(string) (*userDatamodel.User, error)  { return nil, nil }
func (r *expiryRepo) GetUserByID(string) (*userDatamodel.User, error)     { return nil, nil }
func (r *expiryRepo) CreateUser(*userDatamodel.User) error                { return nil }
func (r *expiryRepo) UpdateUser(*userDatamodel.User) error                { return nil }

func (r *expiryRepo) CreateInternalSession(*sessionDatamodel.InternalSession) error { return nil }
func (r *expiryRepo) GetInternalSession(string) (*sessionDatamodel.InternalSession, error) {
	return nil, nil
}
func (r *expiryRepo) TouchInternalSession(string, time.Time) error { return nil }
func (r *expiryRepo) DeactivateInternalSession(string) error       { return nil }

func (r *expiryRepo) GetProjectByAccountingCode(string) (*projectDatamodel.Project, error) {
	return nil, nil
}
func (r *expiryRepo) GetProjectByID(int64) (*projectDatamodel.Project, error) {
	return r.project, nil
}
func (r *expiryRepo) CreateCounterpartSession(*sessionDatamodel.CounterpartSession) error {
	return nil
}
func (r *expiryRepo) GetCounterpartSessionByDigest(digest string) (*sessionDatamodel.CounterpartSession, error) {
	if r.session != nil && r.session.TokenDigest == digest {
		return r.session, nil
	}
	return nil, nil
}
func (r *expiryRepo) TouchCounterpartSession(_ string, at time.Time) error {
	r.session.LastActivityAt = at
	return nil
}
func (r *expiryRepo) DeactivateCounterpartIfActive(string) (bool, error) {
	if r.session.IsActive {
		r.session.IsActive = false
		return true, nil
	}
	return false, nil
}
func (r *expiryRepo) HasAssignment(string, int64) (bool, error) { return false, nil }

type expiryRecorder struct {
	entries []audit.Entry
}

func (m *expiryRecorder) Record(_ context.Context, entry audit.Entry) (*audit.Event, error) {
	m.entries = append(m.entries, entry)
	return audit.NewEvent(entry), nil
}

func (m *expiryRecorder) byAction(action audit.Action) []audit.Entry {
	var out []audit.Entry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

var _ = Describe("Counterpart session deadline instants", func() {
	var (
		repo     *expiryRepo
		recorder *expiryRecorder
		service  *Service
		token    string
		created  time.Time
	)

	freezeAt := func(at time.Time) {
		service.now = func() time.Time { return at }
	}

	BeforeEach(func() {
		created = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

		var digest string
		var err error
		token, digest, err = NewCounterpartToken()
		Expect(err).NotTo(HaveOccurred())

		repo = &expiryRepo{
			project: &projectDatamodel.Project{ID: 42, AccountingCode: "UE-2024-017", Status: "execution"},
			session: &sessionDatamodel.CounterpartSession{
				ID:             "cs-1",
				ProjectID:      42,
				TokenDigest:    digest,
				CreatedAt:      created,
				ExpiresAt:      created.Add(CounterpartAbsoluteTTL),
				LastActivityAt: created,
				IsActive:       true,
			},
		}
		recorder = &expiryRecorder{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = NewService(repo, recorder, NewTokenSigner("0123456789abcdef0123456789abcdef", time.Hour), logger)
	})

	It("accepts a session strictly before both deadlines", func() {
		repo.session.LastActivityAt = created.Add(CounterpartAbsoluteTTL - CounterpartInactivityTTL)
		freezeAt(created.Add(CounterpartAbsoluteTTL - time.Second))

		cp, err := service.ValidateCounterpartSession(context.Background(), token)
		Expect(err).NotTo(HaveOccurred())
		Expect(cp.ProjectID).To(Equal(int64(42)))
	})

	It("rejects at exactly the absolute deadline", func() {
		repo.session.LastActivityAt = created.Add(CounterpartAbsoluteTTL - time.Minute)
		freezeAt(created.Add(CounterpartAbsoluteTTL))

		_, err := service.ValidateCounterpartSession(context.Background(), token)
		Expect(err).To(MatchError(internal.ErrNotAuthenticated))
		Expect(repo.session.IsActive).To(BeFalse())

		expired := recorder.byAction(audit.ActionSessionExpired)
		Expect(expired).To(HaveLen(1))
		Expect(expired[0].Detail).To(HaveKeyWithValue("reason", "absolute"))

		// A concurrent arrival at the same instant sees the same outcome
		// without a second event.
		_, err = service.ValidateCounterpartSession(context.Background(), token)
		Expect(err).To(MatchError(internal.ErrNotAuthenticated))
		Expect(recorder.byAction(audit.ActionSessionExpired)).To(HaveLen(1))
	})

	It("rejects at exactly two hours of inactivity", func() {
		last := created.Add(time.Hour)
		repo.session.LastActivityAt = last
		freezeAt(last.Add(CounterpartInactivityTTL))

		_, err := service.ValidateCounterpartSession(context.Background(), token)
		Expect(err).To(MatchError(internal.ErrNotAuthenticated))

		expired := recorder.byAction(audit.ActionSessionExpired)
		Expect(expired).To(HaveLen(1))
		Expect(expired[0].Detail).To(HaveKeyWithValue("reason", "inactivity"))
	})

	It("accepts one instant before the inactivity deadline", func() {
		last := created.Add(time.Hour)
		repo.session.LastActivityAt = last
		freezeAt(last.Add(CounterpartInactivityTTL - time.Second))

		cp, err := service.ValidateCounterpartSession(context.Background(), token)
		Expect(err).NotTo(HaveOccurred())
		Expect(cp.SessionID).To(Equal("cs-1"))
	})
})
