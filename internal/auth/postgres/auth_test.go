package postgres

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	sessionDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/session"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
)

func TestAuthRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AuthRepository Suite")
}

var _ = Describe("AuthRepository", func() {
	var (
		db   *gorm.DB
		repo *AuthRepository
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		Expect(db.AutoMigrate(
			&userDatamodel.User{},
			&userDatamodel.ProjectAssignment{},
			&sessionDatamodel.InternalSession{},
			&sessionDatamodel.CounterpartSession{},
			&projectDatamodel.Project{},
		)).To(Succeed())

		repo = NewAuthRepository(db)
	})

	Describe("user lookups", func() {
		BeforeEach(func() {
			subject := "subject-1"
			Expect(repo.CreateUser(&userDatamodel.User{
				ID:        "user-1",
				Email:     "maria@example.org",
				SubjectID: &subject,
				IsActive:  true,
			})).To(Succeed())
		})

		It("finds by subject and returns nil for a miss", func() {
			user, err := repo.GetUserBySubject("subject-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).To(Equal("user-1"))

			user, err = repo.GetUserBySubject("nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(user).To(BeNil())
		})

		It("matches email case-insensitively", func() {
			user, err := repo.GetUserByEmail("MARIA@example.org")
			Expect(err).NotTo(HaveOccurred())
			Expect(user).NotTo(BeNil())
			Expect(user.ID).To(Equal("user-1"))
		})
	})

	Describe("internal sessions", func() {
		It("touches and deactivates a session", func() {
			session := &sessionDatamodel.InternalSession{
				ID:         "sess-1",
				UserID:     "user-1",
				CreatedAt:  time.Now().UTC(),
				LastSeenAt: time.Now().UTC().Add(-time.Hour),
				IsActive:   true,
			}
			Expect(repo.CreateInternalSession(session)).To(Succeed())

			seen := time.Now().UTC()
			Expect(repo.TouchInternalSession("sess-1", seen)).To(Succeed())
			Expect(repo.DeactivateInternalSession("sess-1")).To(Succeed())

			got, err := repo.GetInternalSession("sess-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsActive).To(BeFalse())
			Expect(got.LastSeenAt).To(BeTemporally("~", seen, time.Second))
		})
	})

	Describe("counterpart sessions", func() {
		var session *sessionDatamodel.CounterpartSession

		BeforeEach(func() {
			now := time.Now().UTC()
			session = &sessionDatamodel.CounterpartSession{
				ID:             "cp-1",
				ProjectID:      7,
				TokenDigest:    "digest-1",
				CreatedAt:      now,
				ExpiresAt:      now.Add(8 * time.Hour),
				LastActivityAt: now,
				IsActive:       true,
			}
			Expect(repo.CreateCounterpartSession(session)).To(Succeed())
		})

		It("resolves by digest", func() {
			got, err := repo.GetCounterpartSessionByDigest("digest-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ProjectID).To(Equal(int64(7)))

			got, err = repo.GetCounterpartSessionByDigest("digest-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("grants the deactivation flip to exactly one caller", func() {
			flipped, err := repo.DeactivateCounterpartIfActive("cp-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(flipped).To(BeTrue())

			flipped, err = repo.DeactivateCounterpartIfActive("cp-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(flipped).To(BeFalse())

			got, err := repo.GetCounterpartSessionByDigest("digest-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsActive).To(BeFalse())
		})
	})

	Describe("project lookup and assignments", func() {
		BeforeEach(func() {
			Expect(db.Create(&projectDatamodel.Project{
				ID:             7,
				Title:          "Water access, northern region",
				AccountingCode: "UE-2024-017",
				Country:        "Honduras",
				Status:         "execution",
			}).Error).NotTo(HaveOccurred())
		})

		It("finds a project by accounting code", func() {
			project, err := repo.GetProjectByAccountingCode("UE-2024-017")
			Expect(err).NotTo(HaveOccurred())
			Expect(project.ID).To(Equal(int64(7)))

			project, err = repo.GetProjectByAccountingCode("UE-0000-000")
			Expect(err).NotTo(HaveOccurred())
			Expect(project).To(BeNil())
		})

		It("reports assignment membership", func() {
			Expect(db.Create(&userDatamodel.ProjectAssignment{
				UserID:    "user-1",
				ProjectID: 7,
			}).Error).NotTo(HaveOccurred())

			ok, err := repo.HasAssignment("user-1", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = repo.HasAssignment("user-1", 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})
