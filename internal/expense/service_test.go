package expense_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	"github.com/cooperapp/cooperapp/internal/auth"
	expenseDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/expense"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	"github.com/cooperapp/cooperapp/internal/expense"
	"github.com/cooperapp/cooperapp/internal/permission"
)

func TestExpense(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Expense Suite")
}

type mockExpenseRepository struct {
	expenses map[int64]*expenseDatamodel.Expense
	projects map[int64]*projectDatamodel.Project
	nextID   int64
}

func newMockExpenseRepository() *mockExpenseRepository {
	return &mockExpenseRepository{
		expenses: make(map[int64]*expenseDatamodel.Expense),
		projects: make(map[int64]*projectDatamodel.Project),
		nextID:   1,
	}
}

func (m *mockExpenseRepository) ListByProject(projectID int64, status string, page, pageSize int) ([]*expenseDatamodel.Expense, int64, error) {
	var rows []*expenseDatamodel.Expense
	for _, e := range m.expenses {
		if e.ProjectID != projectID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		rows = append(rows, e)
	}
	return rows, int64(len(rows)), nil
}

func (m *mockExpenseRepository) GetByID(id int64) (*expenseDatamodel.Expense, error) {
	return m.expenses[id], nil
}

func (m *mockExpenseRepository) GetProject(id int64) (*projectDatamodel.Project, error) {
	return m.projects[id], nil
}

func (m *mockExpenseRepository) Create(row *expenseDatamodel.Expense) error {
	row.ID = m.nextID
	m.nextID++
	m.expenses[row.ID] = row
	return nil
}

func (m *mockExpenseRepository) Update(row *expenseDatamodel.Expense) error {
	m.expenses[row.ID] = row
	return nil
}

type passthroughTx struct {
	repo     expense.RepositoryAPI
	recorder audit.Recorder
}

func (t *passthroughTx) InTx(fn func(repo expense.RepositoryAPI, recorder audit.Recorder) error) error {
	return fn(t.repo, t.recorder)
}

type mockRecorder struct {
	entries []audit.Entry
}

func (m *mockRecorder) Record(ctx context.Context, entry audit.Entry) (*audit.Event, error) {
	m.entries = append(m.entries, entry)
	return &audit.Event{Action: entry.Action}, nil
}

var _ = Describe("ExpenseService", func() {
	var (
		repo     *mockExpenseRepository
		recorder *mockRecorder
		service  *expense.Service
		ctx      context.Context
	)

	testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	actorWith := func(role permission.Role) *auth.AuthedUser {
		return &auth.AuthedUser{ID: "actor-1", Email: "a@example.org", Name: "Actor", Role: &role}
	}

	validCreate := func() *expense.CreateExpenseDTO {
		return &expense.CreateExpenseDTO{
			InvoiceDate: time.Now().Add(-24 * time.Hour),
			Concept:     "Drilling equipment rental",
			Issuer:      "Perforaciones SA",
			AmountEUR:   1250.50,
		}
	}

	BeforeEach(func() {
		repo = newMockExpenseRepository()
		recorder = &mockRecorder{}
		service = expense.NewService(repo, &passthroughTx{repo: repo, recorder: recorder}, testLogger)
		ctx = context.Background()

		repo.projects[7] = &projectDatamodel.Project{ID: 7, Status: projectDatamodel.StatusExecution}
	})

	Describe("Create", func() {
		It("opens expenses as drafts and records the creation", func() {
			exp, err := service.Create(ctx, actorWith(permission.RoleSiteTechnician), 7, validCreate())
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Status).To(Equal(expense.StatusDraft))
			Expect(exp.CreatedByID).To(Equal("actor-1"))

			Expect(recorder.entries).To(HaveLen(1))
			Expect(recorder.entries[0].Action).To(Equal(audit.ActionCreate))
			Expect(*recorder.entries[0].ProjectID).To(Equal(int64(7)))
		})

		It("refuses projects outside execution or justification", func() {
			repo.projects[7].Status = projectDatamodel.StatusFormulation

			_, err := service.Create(ctx, actorWith(permission.RoleAdmin), 7, validCreate())
			Expect(err).To(HaveOccurred())
			Expect(recorder.entries).To(BeEmpty())
		})

		It("fails for an unknown project", func() {
			_, err := service.Create(ctx, actorWith(permission.RoleAdmin), 99, validCreate())
			Expect(err).To(MatchError(internal.ErrProjectNotFound))
		})
	})

	Describe("Update", func() {
		var created *expense.Expense

		BeforeEach(func() {
			var err error
			created, err = service.Create(ctx, actorWith(permission.RoleSiteTechnician), 7, validCreate())
			Expect(err).NotTo(HaveOccurred())
			recorder.entries = nil
		})

		It("edits a draft and records the changed fields", func() {
			amount := 1300.00
			exp, err := service.Update(ctx, actorWith(permission.RoleSiteTechnician), 7, created.ID, &expense.UpdateExpenseDTO{AmountEUR: &amount})
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.AmountEUR).To(Equal(1300.00))

			Expect(recorder.entries).To(HaveLen(1))
			Expect(recorder.entries[0].Action).To(Equal(audit.ActionUpdate))
			Expect(recorder.entries[0].Detail).To(HaveKey("amount_eur"))
		})

		It("refuses edits once under review", func() {
			repo.expenses[created.ID].Status = expense.StatusPendingReview

			concept := "changed"
			_, err := service.Update(ctx, actorWith(permission.RoleAdmin), 7, created.ID, &expense.UpdateExpenseDTO{Concept: &concept})
			Expect(err).To(HaveOccurred())
		})

		It("hides expenses behind the wrong project", func() {
			amount := 10.0
			_, err := service.Update(ctx, actorWith(permission.RoleAdmin), 8, created.ID, &expense.UpdateExpenseDTO{AmountEUR: &amount})
			Expect(err).To(MatchError(internal.ErrExpenseNotFound))
		})
	})

	Describe("Transition", func() {
		var created *expense.Expense

		submit := func(actor *auth.AuthedUser) error {
			_, err := service.Transition(ctx, actor, 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusPendingReview})
			return err
		}

		BeforeEach(func() {
			var err error
			created, err = service.Create(ctx, actorWith(permission.RoleSiteTechnician), 7, validCreate())
			Expect(err).NotTo(HaveOccurred())
			recorder.entries = nil
		})

		It("walks draft through validation to justified", func() {
			Expect(submit(actorWith(permission.RoleSiteTechnician))).To(Succeed())

			exp, err := service.Transition(ctx, actorWith(permission.RoleCoordinator), 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusValidated})
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Status).To(Equal(expense.StatusValidated))
			Expect(exp.ReviewedAt).NotTo(BeNil())

			exp, err = service.Transition(ctx, actorWith(permission.RoleCoordinator), 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusJustified})
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Status).To(Equal(expense.StatusJustified))

			Expect(recorder.entries).To(HaveLen(3))
			for _, entry := range recorder.entries {
				Expect(entry.Action).To(Equal(audit.ActionStatusChange))
			}
		})

		It("keeps country managers away from validation", func() {
			Expect(submit(actorWith(permission.RoleCountryManager))).To(Succeed())

			_, err := service.Transition(ctx, actorWith(permission.RoleCountryManager), 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusValidated})
			Expect(err).To(MatchError(internal.ErrForbidden))
		})

		It("records the observations of a rejection", func() {
			Expect(submit(actorWith(permission.RoleSiteTechnician))).To(Succeed())

			obs := "invoice unreadable"
			exp, err := service.Transition(ctx, actorWith(permission.RoleAdmin), 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusRejected, Observations: &obs})
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Status).To(Equal(expense.StatusRejected))
			Expect(*exp.Observations).To(Equal(obs))

			last := recorder.entries[len(recorder.entries)-1]
			Expect(last.Detail).To(HaveKeyWithValue("observations", obs))
		})

		It("lets a rejected expense be resubmitted", func() {
			repo.expenses[created.ID].Status = expense.StatusRejected

			exp, err := service.Transition(ctx, actorWith(permission.RoleSiteTechnician), 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusPendingReview})
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Status).To(Equal(expense.StatusPendingReview))
		})

		It("rejects illegal jumps", func() {
			_, err := service.Transition(ctx, actorWith(permission.RoleAdmin), 7, created.ID, &expense.TransitionExpenseDTO{Status: expense.StatusJustified})
			Expect(err).To(HaveOccurred())
			Expect(recorder.entries).To(BeEmpty())
		})
	})

	Describe("List", func() {
		It("filters by status", func() {
			_, err := service.Create(ctx, actorWith(permission.RoleAdmin), 7, validCreate())
			Expect(err).NotTo(HaveOccurred())

			expenses, total, err := service.List(ctx, 7, expense.StatusDraft, 1, 25)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(1)))
			Expect(expenses[0].Status).To(Equal(expense.StatusDraft))

			_, total, err = service.List(ctx, 7, expense.StatusValidated, 1, 25)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})
	})
})
