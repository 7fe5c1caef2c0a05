package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/config"
	"careerpath-api/internal/domain"
	"careerpath-api/internal/service"
)

// sendToken issues a session token for account and delivers it according to
// the configured mode. The body always carries the token.
func (h *Handler) sendToken(c *gin.Context, status int, account *domain.Account) {
	token, err := h.issuer.Issue(account.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.opts.TokenDelivery == config.DeliveryCookie {
		http.SetCookie(c.Writer, h.issuer.SessionCookie(token))
	}
	c.JSON(status, auth.BuildPublicResponse(account, token))
}

func (h *Handler) signup(c *gin.Context) {
	var in service.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	account, err := h.accounts.Signup(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.sendToken(c, http.StatusCreated, account)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	account, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.sendToken(c, http.StatusOK, account)
}

func (h *Handler) logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.issuer.ClearedCookie())
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err)
		return
	}
	// Same answer whether or not the address is registered.
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "if that email is registered, a reset link has been sent",
	})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	account, err := h.accounts.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.sendToken(c, http.StatusOK, account)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	account, err := h.accounts.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   auth.PublicData{User: auth.NewPublicAccount(account)},
	})
}

func (h *Handler) requestEmailVerification(c *gin.Context) {
	account, _ := auth.AccountFromGin(c)
	if err := h.accounts.RequestEmailVerification(c.Request.Context(), account.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "success", "message": "verification email sent"})
}

func (h *Handler) updatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	current, _ := auth.AccountFromGin(c)
	account, err := h.accounts.ChangePassword(c.Request.Context(), current.ID, req.PasswordCurrent, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.sendToken(c, http.StatusOK, account)
}
