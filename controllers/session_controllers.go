package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
)

type SessionController struct {
	Sessions *services.SessionService
}

func NewSessionController(sessions *services.SessionService) *SessionController {
	return &SessionController{Sessions: sessions}
}

func parseID(c *gin.Context, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", param)
	}
	return uint(id), nil
}

// ScanTable -> customer scan QR di meja, buka atau pakai ulang session
func (sc *SessionController) ScanTable(c *gin.Context) {
	var req struct {
		TableID      uint   `json:"table_id" binding:"required"`
		SessionToken string `json:"session_token" binding:"required"`
		CustomerID   *uint  `json:"customer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, reused, err := sc.Sessions.StartSession(c.Request.Context(), req.TableID, req.SessionToken, req.CustomerID)
	switch {
	case errors.Is(err, services.ErrTableUnavailable), errors.Is(err, services.ErrInvalidToken):
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	case err != nil:
		utils.ErrorLogger.Printf("Scan table %d failed: %v", req.TableID, err)
		utils.RespondError(c, http.StatusInternalServerError, errors.New("failed to create session"))
		return
	}

	msg := "QR session created"
	if reused {
		msg = "Existing QR session found"
	}
	utils.RespondJSON(c, http.StatusOK, msg, session.View())
}

// ValidateSession -> verdict untuk client, field valid/reason di top level
func (sc *SessionController) ValidateSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		// ID yang tidak bisa di-parse tidak akan pernah ada
		c.JSON(http.StatusOK, utils.ValidationResponse{
			Status:      true,
			Reason:      services.ReasonNotFound,
			Message:     "Session does not exist",
			ShouldClear: true,
		})
		return
	}

	v, err := sc.Sessions.ValidateSession(c.Request.Context(), id)
	if err != nil {
		utils.ErrorLogger.Printf("Validate session %d failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, utils.ValidationResponse{
			Status:  false,
			Message: "Failed to validate session",
		})
		return
	}

	resp := utils.ValidationResponse{
		Status:      true,
		Valid:       v.Valid,
		Reason:      v.Reason,
		Message:     v.Message,
		ShouldClear: v.ShouldClear,
	}
	if v.Session != nil {
		resp.Data = v.Session
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession -> detail session berikut nomor meja
func (sc *SessionController) GetSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, err := sc.Sessions.GetSession(c.Request.Context(), id)
	if errors.Is(err, services.ErrSessionNotFound) {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session detail", session.View())
}

// BindCustomer -> hubungkan member loyalty ke session aktif
func (sc *SessionController) BindCustomer(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var req struct {
		CustomerID uint `json:"customer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, err := sc.Sessions.BindCustomer(c.Request.Context(), id, req.CustomerID)
	switch {
	case errors.Is(err, services.ErrCustomerNotFound), errors.Is(err, services.ErrSessionNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
		return
	case errors.Is(err, services.ErrSessionClosed):
		utils.RespondError(c, http.StatusConflict, err)
		return
	case err != nil:
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Customer linked to session", session.View())
}

// EndSession -> staff menutup session, table dapat session_ended
func (sc *SessionController) EndSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, err := sc.Sessions.CloseSession(c.Request.Context(), id)
	if errors.Is(err, services.ErrSessionNotFound) {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("Session %d ended by staff", session.ID)
	utils.RespondJSON(c, http.StatusOK, "Session ended", session.View())
}

// MarkPaid -> pembayaran selesai, table dapat session_paid
func (sc *SessionController) MarkPaid(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var req struct {
		TotalAmount float64 `json:"total_amount"`
	}
	// Body opsional, pembayaran cash tanpa total tetap boleh
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.TotalAmount < 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("total_amount must not be negative"))
		return
	}

	session, err := sc.Sessions.MarkPaid(c.Request.Context(), id, req.TotalAmount)
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
		return
	case errors.Is(err, services.ErrSessionClosed):
		utils.RespondError(c, http.StatusConflict, err)
		return
	case err != nil:
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session marked as paid", session.View())
}
