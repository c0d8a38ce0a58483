package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type issueCodeRequest struct {
	Subject string `json:"subject" binding:"required"`
}

type verifyCodeRequest struct {
	Subject string `json:"subject" binding:"required"`
	Code    string `json:"code" binding:"required"`
}

func (h *Handler) verificationEnabled(c *gin.Context) bool {
	if h.svc.Verification == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Verification codes are disabled"})
		return false
	}
	return true
}

func (h *Handler) issueVerificationCode(c *gin.Context) {
	if !h.verificationEnabled(c) {
		return
	}

	var req issueCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	issued, err := h.svc.Verification.Issue(c.Request.Context(), req.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

func (h *Handler) verifyCode(c *gin.Context) {
	if !h.verificationEnabled(c) {
		return
	}

	var req verifyCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.Verification.Verify(c.Request.Context(), req.Subject, req.Code); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}
