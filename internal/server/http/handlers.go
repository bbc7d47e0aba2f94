package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/service"
)

// AdminTokenHeader carries the operator JWT for restore.
const AdminTokenHeader = "X-Admin-Token"

type handlers struct {
	accounts service.AccountService
	guard    *admin.Guard
}

// loginResponse is the body of a successful login.
type loginResponse struct {
	Token       string `json:"token"`
	User        any    `json:"user"`
	IsAdmin     bool   `json:"is_admin"`
	SoftDeleted bool   `json:"soft_deleted"`
}

func (h *handlers) signup(c *gin.Context) {
	var in service.SignupInput
	if !bind(c, &in) {
		return
	}
	respond(c)(h.accounts.Signup(c.Request.Context(), in))
}

func (h *handlers) verifyEmail(c *gin.Context) {
	var in service.VerifyEmailInput
	if !bind(c, &in) {
		return
	}
	respond(c)(h.accounts.VerifyEmail(c.Request.Context(), in))
}

func (h *handlers) login(c *gin.Context) {
	var in service.LoginInput
	if !bind(c, &in) {
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token:       res.Token,
		User:        res.Account,
		IsAdmin:     res.IsAdmin,
		SoftDeleted: res.SoftDeleted,
	})
}

func (h *handlers) logout(c *gin.Context) {
	respond(c)(h.accounts.Logout(c.Request.Context()))
}

func (h *handlers) forgotPassword(c *gin.Context) {
	var in service.ForgotPasswordInput
	if !bind(c, &in) {
		return
	}
	respond(c)(h.accounts.ForgotPassword(c.Request.Context(), in))
}

func (h *handlers) resetPassword(c *gin.Context) {
	var in service.ResetPasswordInput
	if !bind(c, &in) {
		return
	}
	respond(c)(h.accounts.ResetPassword(c.Request.Context(), in))
}

func (h *handlers) softDeleteAccount(c *gin.Context) {
	respond(c)(h.accounts.SoftDeleteAccount(c.Request.Context()))
}

func (h *handlers) restoreAccount(c *gin.Context) {
	if err := h.guard.Authorize(c.GetHeader(AdminTokenHeader)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden."})
		return
	}
	var in service.RestoreInput
	if !bind(c, &in) {
		return
	}
	respond(c)(h.accounts.RestoreAccount(c.Request.Context(), in))
}

// bind decodes a JSON body; an empty body leaves dst zero so validation reports the missing fields.
func bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed JSON body."})
	return false
}

func respond(c *gin.Context) func(string, error) {
	return func(msg string, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

// StatusOf maps an outcome kind to its HTTP status.
func StatusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrValidation, errs.ErrAlreadyExists:
		return http.StatusUnprocessableEntity
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrUnauthorized:
		return http.StatusUnauthorized
	case errs.ErrBadRequest, errs.ErrInvalidTransition:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := StatusOf(err)
	if fields := errs.FieldsOf(err); len(fields) > 0 {
		c.JSON(code, gin.H{"errors": fields})
		return
	}
	msg := errs.MessageOf(err)
	var e *errs.Error
	if code == http.StatusInternalServerError && !errors.As(err, &e) {
		msg = "Internal server error."
	}
	c.JSON(code, gin.H{"error": msg})
}
