package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the body of every non-2xx JSON response. Detail carries the
// payment gateway's own code when there is one.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError aborts with a client error that never reached a service.
func RespondError(c *gin.Context, status int, code string, err error) {
	ae := APIError{Code: code, Message: code}
	if err != nil {
		ae.Message = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: ae})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
