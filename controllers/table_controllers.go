package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
	"gorm.io/gorm"
)

type TableController struct {
	DB          *gorm.DB
	Notifier    *services.Notifier
	FrontendURL string
	TokenSecret string
}

func NewTableController(db *gorm.DB, notifier *services.Notifier, frontendURL, tokenSecret string) *TableController {
	return &TableController{
		DB:          db,
		Notifier:    notifier,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		TokenSecret: tokenSecret,
	}
}

var validTableStatus = map[string]bool{
	models.TableAvailable: true,
	models.TableOccupied:  true,
	models.TableDirty:     true,
}

// CreateTable -> menambahkan meja baru
func (tc *TableController) CreateTable(c *gin.Context) {
	var req struct {
		TableNumber string `json:"table_number" binding:"required"`
		Status      string `json:"status"` // optional, default "available"
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	table := models.Table{
		TableNumber: req.TableNumber,
		Status:      models.TableAvailable,
		IsActive:    true,
	}
	if req.Status != "" {
		if !validTableStatus[req.Status] {
			utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid status %q", req.Status))
			return
		}
		table.Status = req.Status
	}

	if err := tc.DB.Create(&table).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	tc.Notifier.NotifyTableUpdate(table)
	utils.InfoLogger.Printf("New table created: %s (status=%s)", table.TableNumber, table.Status)
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", table)
}

// GetAllTables -> menampilkan seluruh meja, bisa filter ?status=
func (tc *TableController) GetAllTables(c *gin.Context) {
	var tables []models.Table
	query := tc.DB
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("id").Find(&tables).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}

// GetTableByID -> detail satu meja
func (tc *TableController) GetTableByID(c *gin.Context) {
	id, err := parseID(c, "table_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var table models.Table
	if err := tc.DB.First(&table, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("table not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table detail", table)
}

// UpdateTable -> ubah status dan/atau aktif tidaknya meja
func (tc *TableController) UpdateTable(c *gin.Context) {
	id, err := parseID(c, "table_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Status   *string `json:"status"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var table models.Table
	if err := tc.DB.First(&table, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("table not found"))
		return
	}

	updates := map[string]interface{}{}
	if body.Status != nil {
		if !validTableStatus[*body.Status] {
			utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid status %q", *body.Status))
			return
		}
		updates["status"] = *body.Status
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if len(updates) == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("nothing to update"))
		return
	}

	if err := tc.DB.Model(&table).Updates(updates).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := tc.DB.First(&table, id).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	tc.Notifier.NotifyTableUpdate(table)
	utils.InfoLogger.Printf("Table %d updated: %v", table.ID, updates)
	utils.RespondJSON(c, http.StatusOK, "Table updated", table)
}

// GetTableQR -> URL yang dicetak jadi QR di meja
func (tc *TableController) GetTableQR(c *gin.Context) {
	id, err := parseID(c, "table_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var table models.Table
	if err := tc.DB.First(&table, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("table not found"))
		return
	}

	token, err := utils.SignTableToken(tc.TokenSecret, table.ID)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	q := url.Values{}
	q.Set("table", fmt.Sprint(table.ID))
	q.Set("session", token)

	utils.RespondJSON(c, http.StatusOK, "Table QR", gin.H{
		"table_id":      table.ID,
		"table_number":  table.TableNumber,
		"session_token": token,
		"url":           tc.FrontendURL + "/?" + q.Encode(),
	})
}
