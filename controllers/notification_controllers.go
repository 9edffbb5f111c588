package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/middlewares"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
	"gorm.io/gorm"
)

type NotificationController struct {
	DB       *gorm.DB
	Sessions *services.SessionService
	Notifier *services.Notifier
}

func NewNotificationController(db *gorm.DB, sessions *services.SessionService, notifier *services.Notifier) *NotificationController {
	return &NotificationController{DB: db, Sessions: sessions, Notifier: notifier}
}

// GetAllNotifications -> inbox staff, terbaru dulu
func (nc *NotificationController) GetAllNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	var notifs []models.Notification
	if err := nc.DB.Order("created_at desc, id desc").Limit(limit).Find(&notifs).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications", notifs)
}

// CreateNotification -> request dari meja (panggil staff, minta bill)
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	var body struct {
		Title   string `json:"title"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	sessionID, err := strconv.ParseUint(c.GetHeader(middlewares.SessionHeader), 10, 64)
	if err != nil || sessionID == 0 {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("active QR session required"))
		return
	}
	session, err := nc.Sessions.GetSession(c.Request.Context(), uint(sessionID))
	if err != nil || session.Status != models.SessionActive {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("active QR session required"))
		return
	}

	sid := session.ID
	notif := models.Notification{
		QRSessionID: &sid,
		Type:        realtime.TypeStaffRequest,
		Message:     body.Message,
	}
	if body.Title != "" {
		notif.Title = &body.Title
	}

	if err := nc.DB.Create(&notif).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	nc.Notifier.NotifyStaff(notif)
	utils.InfoLogger.Printf("Table %s request: %v", session.Table.TableNumber, notif.Message)

	utils.RespondJSON(c, http.StatusCreated, "Notification created", notif)
}

// PushToCustomers -> staff kirim pesan ke satu session atau semua customer
func (nc *NotificationController) PushToCustomers(c *gin.Context) {
	var body struct {
		SessionID *uint  `json:"session_id"`
		Type      string `json:"type"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var (
		sent int
		err  error
	)
	if body.SessionID != nil {
		sent, err = nc.Notifier.NotifyUser(*body.SessionID, body.Type, body.Message)
	} else {
		sent, err = nc.Notifier.NotifyAllCustomers(body.Type, body.Message)
	}
	if errors.Is(err, services.ErrEmptyMessage) {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Notification sent", gin.H{"delivered": sent})
}
