package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/middleware"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/service"
)

// User-facing copy for the claim flow.  The product ships in Dutch; the
// operator-facing detail stays in the logs, keyed by correlation id.
const (
	msgLinkExpired    = "Deze link is verlopen. Je aanvraag staat niet meer op de wachtlijst; neem contact op als je alsnog wilt adverteren."
	msgLinkInvalid    = "Deze link is niet (meer) geldig."
	msgAlreadyClaimed = "Deze aanvraag is al bevestigd."
	msgCapacityLost   = "Helaas is de capaciteit net vergeven. Je staat weer op de wachtlijst en ontvangt een nieuwe uitnodiging zodra er plek is."
	msgClaimRetry     = "Er ging iets mis. Probeer het later opnieuw."
)

// ClaimHandler serves the claim links from invite mails: a validation
// endpoint the claim page calls on load, and the confirmation endpoint
// that consumes the claim.
type ClaimHandler struct {
	Claims *service.ClaimService
}

// NewClaimHandler constructs a ClaimHandler.
func NewClaimHandler(claims *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{Claims: claims}
}

// Validate handles GET /v1/claim/:token.  It resolves the token without
// consuming it so the claim page can render the invite details.
func (h *ClaimHandler) Validate(c echo.Context) error {
	req, err := h.Claims.ValidateToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return claimTokenError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"waitlistId":      req.ID,
		"companyName":     req.CompanyName,
		"packageType":     req.PackageType,
		"regionCodes":     req.TargetRegionCodes,
		"inviteExpiresAt": req.InviteExpiresAt,
	})
}

// Confirm handles POST /v1/claim/:token/confirm.  On success it returns a
// short-lived onboarding grant; losing the capacity race reverts the entry
// to the waitlist and tells the user so.
func (h *ClaimHandler) Confirm(c echo.Context) error {
	res, err := h.Claims.Confirm(c.Request().Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, repository.ErrCapacityLost) {
			return c.JSON(http.StatusConflict, echo.Map{"message": msgCapacityLost, "requeued": true})
		}
		return claimTokenError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"waitlistId":      res.Request.ID,
		"status":          res.Request.Status,
		"onboardingToken": res.Grant.Token,
		"expiresAt":       res.Grant.Exp,
	})
}

// claimTokenError maps token errors to the agreed status codes: 410 for an
// expired link, 404 for anything unknown or no longer open.
func claimTokenError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrTokenExpired):
		return c.JSON(http.StatusGone, echo.Map{"message": msgLinkExpired})
	case errors.Is(err, repository.ErrTokenAlreadyClaimed):
		return c.JSON(http.StatusConflict, echo.Map{"message": msgAlreadyClaimed})
	case errors.Is(err, repository.ErrTokenInvalid), errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"message": msgLinkInvalid})
	default:
		log.Printf("claim: cid=%s token handling failed: %v", middleware.CorrelationID(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": msgClaimRetry})
	}
}
