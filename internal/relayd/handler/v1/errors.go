package v1

import (
	"net/http"

	"github.com/relaymesh/relay/pkg/errorx"
)

// Relayd handler error codes.
// Code format: 1XXYYZ
//   - 1:  module prefix (relayd handler)
//   - XX: resource group (00=common, 01=task, 02=agent, 03=session)
//   - YY: sequential error number
//   - Z:  reserved (0)

const (
	// Common request errors (100xxx).
	ErrBind       = 100001
	ErrValidation = 100002

	// Task errors (1001xx).
	ErrTaskExecute    = 100101
	ErrTaskNotLive    = 100102
	ErrTaskNotFound   = 100103
	ErrApprovalSubmit = 100104
	ErrMessageSubmit  = 100105
	ErrCancelSubmit   = 100106
	ErrStreamRecv     = 100107

	// Agent errors (1002xx).
	ErrAgentList = 100201

	// Session errors (1003xx).
	ErrSessionNotFound = 100301
	ErrSessionCleanup  = 100302
	ErrSessionRecover  = 100303
)

func init() {
	// Common.
	errorx.MustRegister(newCoder(ErrBind, http.StatusBadRequest, "Request body binding failed"))
	errorx.MustRegister(newCoder(ErrValidation, http.StatusBadRequest, "Request validation failed"))

	// Task.
	errorx.MustRegister(newCoder(ErrTaskExecute, http.StatusInternalServerError, "Task execution failed"))
	errorx.MustRegister(newCoder(ErrTaskNotLive, http.StatusBadRequest, "Task is not running in live mode"))
	errorx.MustRegister(newCoder(ErrTaskNotFound, http.StatusNotFound, "Task not found"))
	errorx.MustRegister(newCoder(ErrApprovalSubmit, http.StatusInternalServerError, "Failed to submit approval"))
	errorx.MustRegister(newCoder(ErrMessageSubmit, http.StatusInternalServerError, "Failed to submit message"))
	errorx.MustRegister(newCoder(ErrCancelSubmit, http.StatusInternalServerError, "Failed to cancel task"))
	errorx.MustRegister(newCoder(ErrStreamRecv, http.StatusInternalServerError, "Stream receive error"))

	// Agent.
	errorx.MustRegister(newCoder(ErrAgentList, http.StatusInternalServerError, "Failed to list agents"))

	// Session.
	errorx.MustRegister(newCoder(ErrSessionNotFound, http.StatusNotFound, "Session not found"))
	errorx.MustRegister(newCoder(ErrSessionCleanup, http.StatusInternalServerError, "Failed to clean up session"))
	errorx.MustRegister(newCoder(ErrSessionRecover, http.StatusNotFound, "Session has no tombstone to recover"))
}

type coder struct {
	code int
	http int
	msg  string
}

func newCoder(code, httpStatus int, msg string) *coder {
	return &coder{code: code, http: httpStatus, msg: msg}
}

func (c *coder) Code() int         { return c.code }
func (c *coder) HTTPStatus() int   { return c.http }
func (c *coder) String() string    { return c.msg }
func (c *coder) Reference() string { return "" }
