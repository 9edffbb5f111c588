package utils

import (
	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Data:    nil,
	})
}

// ValidationResponse is the body of GET /sessions/:id/validate. The verdict
// fields live at the top level next to the usual envelope fields.
type ValidationResponse struct {
	Status      bool        `json:"status"`
	Valid       bool        `json:"valid"`
	Reason      string      `json:"reason,omitempty"`
	Message     string      `json:"message,omitempty"`
	ShouldClear bool        `json:"shouldClear"`
	Data        interface{} `json:"data,omitempty"`
}
