package rest

import (
	"log/slog"
	"net/http"

	"github.com/cooperapp/cooperapp/internal/audit"
	"github.com/cooperapp/cooperapp/internal/auth"
	"github.com/cooperapp/cooperapp/internal/expense"
	"github.com/cooperapp/cooperapp/internal/permission"
	"github.com/cooperapp/cooperapp/internal/project"
	"github.com/cooperapp/cooperapp/internal/transport/middleware"
	"github.com/cooperapp/cooperapp/internal/transport/swagger"
	"github.com/cooperapp/cooperapp/internal/user"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sqlx.DB,
	gate *auth.Gate,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	projectHandler *project.Handler,
	expenseHandler *expense.Handler,
	auditHandler *audit.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// OIDC login flow lives outside the API prefix: the browser is
	// redirected here by the SPA and back here by the provider.
	if authHandler != nil {
		router.Get("/auth/login", authHandler.BeginLogin)
		router.Get("/auth/callback", authHandler.Callback)
	}

	// Counterpart portal routes use their own cookie, separate from the
	// staff session.
	if authHandler != nil {
		router.Route("/contraparte", func(cr chi.Router) {
			cr.Post("/login", authHandler.CounterpartLogin)

			cr.Group(func(pr chi.Router) {
				pr.Use(gate.CounterpartAuth)
				pr.Post("/logout", authHandler.CounterpartLogout)

				if projectHandler != nil {
					pr.Group(func(sr chi.Router) {
						sr.Use(gate.CounterpartProjectScope)
						sr.Get("/{projectID}", projectHandler.CounterpartSummary)
					})
				}
			})
		})
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Protected routes that require an internal session
		r.Group(func(pr chi.Router) {
			pr.Use(gate.InternalAuth)

			if authHandler != nil {
				pr.Post("/auth/logout", authHandler.Logout)
				pr.Get("/users/me", authHandler.Me)
			}

			// User administration
			if userHandler != nil {
				pr.Group(func(ur chi.Router) {
					ur.Use(gate.RequirePermission(permission.UsersManage))
					ur.Get("/users", userHandler.ListUsers)
					ur.Get("/users/{id}", userHandler.GetUser)
					ur.Patch("/users/{id}/role", userHandler.UpdateRole)
					ur.Patch("/users/{id}/active", userHandler.SetActive)
					ur.Post("/users/{id}/projects", userHandler.AssignProject)
					ur.Delete("/users/{id}/projects/{projectID}", userHandler.UnassignProject)
				})
			}

			// Audit log
			if auditHandler != nil {
				pr.Group(func(ar chi.Router) {
					ar.Use(gate.RequirePermission(permission.AuditView))
					ar.Get("/audit", auditHandler.ListEvents)
				})
			}

			// Project routes
			if projectHandler != nil {
				pr.Route("/projects", func(pjr chi.Router) {
					pjr.Group(func(vr chi.Router) {
						vr.Use(gate.RequirePermission(permission.ProjectView))
						vr.Get("/", projectHandler.ListProjects)
					})

					pjr.Group(func(cr chi.Router) {
						cr.Use(gate.RequirePermission(permission.ProjectCreate))
						cr.Post("/", projectHandler.CreateProject)
					})

					pjr.Route("/{projectID}", func(ir chi.Router) {
						ir.Use(gate.RequireProjectAccess)

						ir.Group(func(vr chi.Router) {
							vr.Use(gate.RequirePermission(permission.ProjectView))
							vr.Get("/", projectHandler.GetProject)
						})

						ir.Group(func(er chi.Router) {
							er.Use(gate.RequirePermission(permission.ProjectEdit))
							er.Patch("/", projectHandler.UpdateProject)
							er.Post("/transition", projectHandler.TransitionProject)
						})

						ir.Group(func(dr chi.Router) {
							dr.Use(gate.RequirePermission(permission.ProjectDelete))
							dr.Delete("/", projectHandler.DeleteProject)
						})

						// Expense routes, nested under their project
						if expenseHandler != nil {
							ir.Route("/expenses", func(exr chi.Router) {
								exr.Group(func(vr chi.Router) {
									vr.Use(gate.RequirePermission(permission.ExpenseView))
									vr.Get("/", expenseHandler.ListExpenses)
									vr.Get("/{expenseID}", expenseHandler.GetExpense)
								})

								exr.Group(func(cr chi.Router) {
									cr.Use(gate.RequirePermission(permission.ExpenseCreate))
									cr.Post("/", expenseHandler.CreateExpense)
								})

								exr.Group(func(er chi.Router) {
									er.Use(gate.RequirePermission(permission.ExpenseEdit))
									er.Patch("/{expenseID}", expenseHandler.UpdateExpense)
								})

								// Transition permission depends on the target
								// status, so the service checks it.
								exr.Post("/{expenseID}/transition", expenseHandler.TransitionExpense)
							})
						}
					})
				})
			}
		})
	})
}
