package apitest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiResponse is the platform's response wrapper; code 0 means success.
type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{Code: 0, Data: data})
}

func respondError(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, apiResponse{Code: code, Message: message})
}
