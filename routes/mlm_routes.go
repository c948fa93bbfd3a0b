// routes/mlm_routes.go
package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/controllers"
	"github.com/HSouheill/barrim_mlm/middleware"
)

// RegisterMLMRoutes registers the placement, commission and reporting routes.
func RegisterMLMRoutes(e *echo.Echo, mlmController *controllers.MLMController, jwtSecret string, logger logrus.FieldLogger) {
	mlmGroup := e.Group("/api/mlm")
	mlmGroup.Use(middleware.JWTMiddleware(jwtSecret, logger), middleware.RequireJSON())

	// Engine mutations are triggered by back-office and payment systems.
	engine := mlmGroup.Group("", middleware.RequireUserType(middleware.UserTypeAdmin, middleware.UserTypeSystem))
	engine.POST("/placements", mlmController.PlaceParticipant)
	engine.POST("/commissions/distribute", mlmController.DistributeCommission)
	engine.GET("/commissions/transactions/:ref", mlmController.GetTransactionCommissions)

	participant := mlmGroup.Group("", middleware.RequireParticipant())
	participant.POST("/register", mlmController.Register)
	participant.GET("/structure", mlmController.GetStructure)
	participant.GET("/downlines", mlmController.GetDownlines)
	participant.GET("/uplines", mlmController.GetUplines)
	participant.GET("/team", mlmController.GetTeamStatistics)
	participant.GET("/dashboard", mlmController.GetDashboard)
	participant.GET("/commissions", mlmController.ListCommissions)
	participant.GET("/leaderboard", mlmController.GetLeaderboard)
	participant.GET("/referral-link", mlmController.GetReferralLink)
	participant.GET("/referral-qrcode", mlmController.GetReferralQRCode)
}
