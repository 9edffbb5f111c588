package controllers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/utils"
	"gorm.io/gorm"
)

var (
	ErrPhoneRequired = errors.New("phone number is required")
	ErrInvalidPhone  = errors.New("invalid phone number")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// normalizePhone buang spasi dan tanda strip
func normalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
}

type CustomerController struct {
	DB *gorm.DB
}

func NewCustomerController(db *gorm.DB) *CustomerController {
	return &CustomerController{DB: db}
}

// GetAllCustomers -> daftar member loyalty (staff)
func (cc *CustomerController) GetAllCustomers(c *gin.Context) {
	var customers []models.Customer
	if err := cc.DB.Order("created_at").Find(&customers).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "List of customers", customers)
}

// RegisterLoyalty -> buat member baru atau update nama kalau phone sudah terdaftar
func (cc *CustomerController) RegisterLoyalty(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	phone := normalizePhone(req.Phone)
	if phone == "" {
		utils.RespondError(c, http.StatusBadRequest, ErrPhoneRequired)
		return
	}
	if !phonePattern.MatchString(phone) {
		utils.RespondError(c, http.StatusBadRequest, ErrInvalidPhone)
		return
	}
	name := strings.TrimSpace(req.Name)

	var customer models.Customer
	err := cc.DB.Where("phone = ?", phone).First(&customer).Error
	switch {
	case err == nil:
		if name != "" && name != customer.Name {
			if err := cc.DB.Model(&customer).Update("name", name).Error; err != nil {
				utils.RespondError(c, http.StatusInternalServerError, err)
				return
			}
		}
		utils.RespondJSON(c, http.StatusOK, "Customer updated", gin.H{
			"is_new":   false,
			"customer": customer,
		})
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	customer = models.Customer{Name: name, Phone: phone}
	if err := cc.DB.Create(&customer).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("New loyalty customer registered (ID=%d)", customer.ID)
	utils.RespondJSON(c, http.StatusCreated, "Customer created", gin.H{
		"is_new":   true,
		"customer": customer,
	})
}

// GetCustomerByPhone -> lookup member dari halaman customer
func (cc *CustomerController) GetCustomerByPhone(c *gin.Context) {
	phone := normalizePhone(c.Param("phone"))
	if phone == "" {
		utils.RespondError(c, http.StatusBadRequest, ErrPhoneRequired)
		return
	}

	var customer models.Customer
	if err := cc.DB.Where("phone = ?", phone).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, errors.New("customer not found"))
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Customer detail", customer)
}
