package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/handler"
	"github.com/jdkroon/adslot-backend/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the back-office login endpoint.  Everything else
// the back office does is mounted by RegisterAdmin behind the admin JWT.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	e.POST("/v1/auth/login", a.Login)
}

// RegisterPublic registers the unauthenticated advertiser-facing routes:
// availability browsing, the capacity check, waitlist signup and the claim
// flow.  The rate limiter applies here; claim links are also covered so a
// leaked token cannot be probed at speed.
func RegisterPublic(e *echo.Echo, av *handler.AvailabilityHandler, wl *handler.WaitlistHandler, cl *handler.ClaimHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", limit)

	// Aggregated availability per city, served from cache when warm.
	g.GET("/availability/cities", av.Cities)
	// The admission pre-check the signup form runs before submitting.
	g.POST("/capacity/check", av.CheckCapacity)
	// Waitlist signup; admits immediately when capacity suffices.
	g.POST("/waitlist", wl.Create)

	// Claim links from invite mails.
	g.GET("/claim/:token", cl.Validate)
	g.POST("/claim/:token/confirm", cl.Confirm)
}

// RegisterAdmin registers the back-office routes under /v1/admin.  All of
// them require a valid admin access token.
func RegisterAdmin(e *echo.Echo, jwtSecret string, wl *handler.WaitlistHandler, st *handler.SettlementHandler, sy *handler.SyncHandler) {
	admin := e.Group("/v1/admin")
	admin.Use(middleware.AdminAuth(jwtSecret))

	// Waitlist management.
	admin.POST("/waitlist/:id/cancel", wl.Cancel)
	admin.POST("/waitlist/:id/reset", wl.Reset)
	admin.POST("/waitlist/trigger-check", wl.TriggerCheck)

	// Month-close settlement steps, in order: snapshot, invoices, payouts,
	// lock.  Each step guards its own preconditions.
	admin.POST("/snapshots", st.CreateSnapshot)
	admin.POST("/snapshots/:id/generate-invoices", st.GenerateInvoices)
	admin.POST("/snapshots/:id/generate-payouts", st.GeneratePayouts)
	admin.POST("/snapshots/:id/lock", st.Lock)
	admin.GET("/snapshots/:id/invoices", st.Invoices)
	admin.GET("/snapshots/:id/payouts", st.Payouts)
	admin.GET("/snapshots/:id/allocations", st.Allocations)
	admin.GET("/payouts/carry-over", st.CarryOvers)

	// Capacity-changing facts from the contract and location collaborators.
	admin.POST("/contracts/:id/signed", sy.ContractSigned)
	admin.POST("/contracts/:id/cancelled", sy.ContractCancelled)
	admin.POST("/locations/:id/status", sy.SetLocationStatus)
	admin.POST("/locations/:id/ready-for-ads", sy.SetReadyForAds)
}
