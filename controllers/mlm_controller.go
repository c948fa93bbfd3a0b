// controllers/mlm_controller.go
package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/middleware"
	"github.com/HSouheill/barrim_mlm/models"
	"github.com/HSouheill/barrim_mlm/security"
	"github.com/HSouheill/barrim_mlm/services"
)

// MLMController exposes placement, distribution and reporting over HTTP.
type MLMController struct {
	placement   *services.PlacementService
	commissions *services.CommissionService
	reporting   *services.ReportingService
	referrals   *services.ReferralService
	log         logrus.FieldLogger
}

func NewMLMController(placement *services.PlacementService, commissions *services.CommissionService, reporting *services.ReportingService, referrals *services.ReferralService, log logrus.FieldLogger) *MLMController {
	return &MLMController{
		placement:   placement,
		commissions: commissions,
		reporting:   reporting,
		referrals:   referrals,
		log:         log,
	}
}

// statusFor maps an error kind to the HTTP status returned for it.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindDuplicateNode, models.KindRootExists, models.KindDuplicateCommission:
		return http.StatusConflict
	case models.KindParentNotFound, models.KindReferrerInactive:
		return http.StatusUnprocessableEntity
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var kindMessages = map[models.ErrorKind]string{
	models.KindNotFound:              "Not found",
	models.KindDuplicateNode:         "Participant is already placed",
	models.KindRootExists:            "The tree already has a root",
	models.KindDuplicateCommission:   "Commission already recorded",
	models.KindParentNotFound:        "Referrer is not placed in the tree",
	models.KindReferrerInactive:      "Referrer is not active",
	models.KindInvalidInput:          "Invalid request",
	models.KindStorageUnavailable:    "Service temporarily unavailable",
	models.KindReferralCodeExhausted: "Could not generate a referral code",
}

// fail writes err as a {kind, detail} outcome. Server-side failures are
// logged and their detail is not exposed.
func (mc *MLMController) fail(c echo.Context, err error) error {
	outcome := models.NewOutcome(err)
	status := statusFor(outcome.Kind)
	message, ok := kindMessages[outcome.Kind]
	if !ok {
		message = "Internal server error"
	}
	if status >= http.StatusInternalServerError {
		mc.log.WithError(err).WithFields(logrus.Fields{
			"path":    c.Path(),
			"kind":    outcome.Kind,
			"headers": security.SanitizeHeaders(c.Request().Header),
		}).Error("request failed")
		if outcome.Kind != models.KindStorageUnavailable {
			outcome.Detail = message
		}
	}
	return c.JSON(status, models.Response{
		Status:  status,
		Message: message,
		Data:    outcome,
	})
}

func badRequest(c echo.Context, message string, err error) error {
	return c.JSON(http.StatusBadRequest, models.Response{
		Status:  http.StatusBadRequest,
		Message: message,
		Data:    models.Outcome{Kind: models.KindInvalidInput, Detail: err.Error()},
	})
}

func ok(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, models.Response{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// PlaceParticipant handles POST /api/mlm/placements.
func (mc *MLMController) PlaceParticipant(c echo.Context) error {
	var req models.PlacementRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "Validation failed", err)
	}

	ctx := c.Request().Context()
	var (
		node models.TreeNode
		err  error
	)
	if strings.TrimSpace(req.ReferrerID) != "" {
		node, err = mc.placement.PlaceParticipant(ctx, req.ParticipantID, req.ReferrerID)
	} else {
		node, err = mc.placement.RegisterWithReferralCode(ctx, req.ParticipantID, req.ReferralCode)
	}
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusCreated, "Participant placed successfully", node)
}

type registerRequest struct {
	ReferralCode string `json:"referralCode" validate:"omitempty,min=4,max=32"`
}

// Register handles POST /api/mlm/register: the caller joins the tree under
// the owner of a referral code.
func (mc *MLMController) Register(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "Validation failed", err)
	}
	node, err := mc.placement.RegisterWithReferralCode(c.Request().Context(), userID, req.ReferralCode)
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusCreated, "Joined the network successfully", node)
}

// DistributeCommission handles POST /api/mlm/commissions/distribute.
func (mc *MLMController) DistributeCommission(c echo.Context) error {
	var req models.DistributionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "Validation failed", err)
	}
	result, err := mc.commissions.DistributeCommission(c.Request().Context(), req.SourceParticipantID, *req.Amount, req.TransactionRef)
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Commission distributed", result)
}

// GetTransactionCommissions handles GET /api/mlm/commissions/transactions/:ref.
func (mc *MLMController) GetTransactionCommissions(c echo.Context) error {
	entries, err := mc.commissions.TransactionCommissions(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Transaction commissions retrieved", entries)
}

// GetStructure handles GET /api/mlm/structure.
func (mc *MLMController) GetStructure(c echo.Context) error {
	structure, err := mc.reporting.GetStructure(c.Request().Context(), middleware.GetUserIDFromToken(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "MLM structure retrieved", structure)
}

// GetDownlines handles GET /api/mlm/downlines?levels=&position=.
func (mc *MLMController) GetDownlines(c echo.Context) error {
	var q models.DownlinesQuery
	if err := c.Bind(&q); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if err := c.Validate(&q); err != nil {
		return badRequest(c, "Validation failed", err)
	}
	var position *models.Position
	if q.Position != "" {
		position = models.PositionPtr(models.Position(q.Position))
	}
	downlines, err := mc.reporting.GetDownlines(c.Request().Context(), middleware.GetUserIDFromToken(c), q.Levels, position)
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Downlines retrieved", downlines)
}

// GetUplines handles GET /api/mlm/uplines.
func (mc *MLMController) GetUplines(c echo.Context) error {
	uplines, err := mc.reporting.GetUplines(c.Request().Context(), middleware.GetUserIDFromToken(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Uplines retrieved", uplines)
}

// GetTeamStatistics handles GET /api/mlm/team.
func (mc *MLMController) GetTeamStatistics(c echo.Context) error {
	stats, err := mc.reporting.GetTeamStatistics(c.Request().Context(), middleware.GetUserIDFromToken(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Team statistics retrieved", stats)
}

// GetDashboard handles GET /api/mlm/dashboard.
func (mc *MLMController) GetDashboard(c echo.Context) error {
	dashboard, err := mc.reporting.GetDashboard(c.Request().Context(), middleware.GetUserIDFromToken(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Dashboard retrieved", dashboard)
}

// ListCommissions handles GET /api/mlm/commissions?page=&limit=&type=.
func (mc *MLMController) ListCommissions(c echo.Context) error {
	var q models.CommissionsQuery
	if err := c.Bind(&q); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if err := c.Validate(&q); err != nil {
		return badRequest(c, "Validation failed", err)
	}
	page, err := mc.reporting.ListCommissions(c.Request().Context(), middleware.GetUserIDFromToken(c), q.Page, q.Limit, q.Type)
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Commissions retrieved", page)
}

// GetLeaderboard handles GET /api/mlm/leaderboard?period=&limit=.
func (mc *MLMController) GetLeaderboard(c echo.Context) error {
	var q models.LeaderboardQuery
	if err := c.Bind(&q); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if err := c.Validate(&q); err != nil {
		return badRequest(c, "Validation failed", err)
	}
	period := models.LeaderboardPeriod(q.Period)
	if period == "" {
		period = models.PeriodAll
	}
	board, err := mc.reporting.Leaderboard(c.Request().Context(), period, q.Limit)
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Leaderboard retrieved", map[string]interface{}{
		"period":  period,
		"entries": board,
	})
}

// GetReferralLink handles GET /api/mlm/referral-link.
func (mc *MLMController) GetReferralLink(c echo.Context) error {
	link, err := mc.referrals.GetReferralLink(c.Request().Context(), middleware.GetUserIDFromToken(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Referral link retrieved", link)
}

// GetReferralQRCode handles GET /api/mlm/referral-qrcode?size=.
func (mc *MLMController) GetReferralQRCode(c echo.Context) error {
	size := 0
	if raw := c.QueryParam("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "Invalid size", err)
		}
		size = n
	}
	link, qrCode, err := mc.referrals.GetReferralQRCode(c.Request().Context(), middleware.GetUserIDFromToken(c), size)
	if err != nil {
		return mc.fail(c, err)
	}
	return ok(c, http.StatusOK, "Referral QR code generated", map[string]interface{}{
		"referralCode": link.ReferralCode,
		"referralLink": link.ReferralLink,
		"qrCode":       qrCode,
		"format":       "png",
		"encoding":     "base64",
	})
}
