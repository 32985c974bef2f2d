package response

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
)

// RespondAPIError writes the envelope for err. Gateway diagnostic codes ride
// along in "detail" so clients can show a specific reason.
func RespondAPIError(c *gin.Context, err error) {
	ae := apierr.FromError(err)
	if ae == nil {
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{
		Error: APIError{
			Message: ae.Message,
			Code:    ae.Code,
			Detail:  apierr.Detail(ae.Err),
		},
	})
}
