package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/controllers"
	"github.com/yeremiapane/restaurant-qr/middlewares"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
	"gorm.io/gorm"
)

// Deps is everything the route table needs.
type Deps struct {
	DB          *gorm.DB
	Hub         *realtime.Hub
	Sessions    *services.SessionService
	Notifier    *services.Notifier
	Metrics     *services.Metrics
	FrontendURL string
	CORSOrigin  string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Apply security middlewares
	r.Use(middlewares.RequestID())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigin))
	r.Use(middlewares.LoggerMiddleware())

	general := middlewares.NewRateLimiter(50, 1)
	r.Use(general.RateLimit())

	// Login dan scan QR dibatasi lebih ketat
	strict := middlewares.NewTokenBucketLimiter(time.Second, 10)

	sessionController := controllers.NewSessionController(d.Sessions)
	tableController := controllers.NewTableController(d.DB, d.Notifier, d.FrontendURL, d.Sessions.TokenSecret())
	customerController := controllers.NewCustomerController(d.DB)
	userController := controllers.NewUserController(d.DB)
	notificationController := controllers.NewNotificationController(d.DB, d.Sessions, d.Notifier)
	wsController := controllers.NewWebSocketController(d.Hub, d.Sessions)

	r.GET("/ping", func(c *gin.Context) {
		db := utils.GetDB()
		if db == nil {
			db = d.DB
		}
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			utils.RespondError(c, http.StatusServiceUnavailable, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// Public routes
	r.POST("/login", strict.Middleware(), userController.Login)

	// Customer (QR) routes, tanpa login
	sessions := r.Group("/sessions")
	{
		sessions.POST("/scan", strict.Middleware(), sessionController.ScanTable)
		sessions.GET("/:id/validate", sessionController.ValidateSession)
		sessions.GET("/:id", sessionController.GetSession)
		sessions.PUT("/:id/customer", sessionController.BindCustomer)
	}

	r.GET("/tables", tableController.GetAllTables)
	r.GET("/tables/:table_id", tableController.GetTableByID)

	customers := r.Group("/customers")
	{
		customers.POST("/loyalty", customerController.RegisterLoyalty)
		customers.GET("/me/:phone", customerController.GetCustomerByPhone)
	}

	r.POST("/notifications", notificationController.CreateNotification)

	// WebSocket
	r.GET("/ws/connect", middlewares.WebSocketAuthMiddleware(), wsController.Connect)

	// Staff routes
	admin := r.Group("/admin")
	admin.Use(middlewares.AuthMiddleware())
	{
		admin.GET("/profile", userController.GetProfile)

		staff := admin.Group("")
		staff.Use(middlewares.RequireRoles(models.RoleStaff))
		{
			staff.PUT("/sessions/:id/end", sessionController.EndSession)
			staff.POST("/sessions/:id/paid", sessionController.MarkPaid)

			staff.POST("/tables", tableController.CreateTable)
			staff.PATCH("/tables/:table_id", tableController.UpdateTable)
			staff.GET("/tables/:table_id/qr", tableController.GetTableQR)

			staff.GET("/customers", customerController.GetAllCustomers)

			staff.GET("/notifications", notificationController.GetAllNotifications)
			staff.POST("/notifications/push", notificationController.PushToCustomers)
		}

		adminOnly := admin.Group("")
		adminOnly.Use(middlewares.RequireRoles())
		{
			adminOnly.POST("/users", userController.Register)
		}
	}

	return r
}
