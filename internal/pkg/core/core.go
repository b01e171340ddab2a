package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/relay/pkg/errorx"
	"github.com/relaymesh/relay/pkg/logger"
)

// ErrResponse is the envelope written for failed requests.
type ErrResponse struct {
	// Code is the registered business error code.
	Code int `json:"code"`

	// Message is the user-safe error description.
	Message string `json:"message"`

	// Reference is a documentation link, if any.
	Reference string `json:"reference,omitempty"`
}

// WriteResponse writes either the data payload or the error envelope
// derived from the error's registered code.
func WriteResponse(c *gin.Context, err error, data interface{}) {
	if err != nil {
		logger.Warn("[Handler] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		coder := errorx.ParseCoder(err)
		c.JSON(coder.HTTPStatus(), ErrResponse{
			Code:      coder.Code(),
			Message:   coder.String(),
			Reference: coder.Reference(),
		})
		return
	}

	c.JSON(http.StatusOK, data)
}
