package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/domain"
	"careerpath-api/internal/service"
	"careerpath-api/internal/storage"
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type accountResponse struct {
	Status string          `json:"status"`
	Data   accountEnvelope `json:"data"`
}

type accountEnvelope struct {
	User      auth.PublicAccount `json:"user"`
	AvatarURL string             `json:"avatar_url,omitempty"`
}

func (h *Handler) respondAccount(c *gin.Context, status int, account *domain.Account, includeEmail bool) {
	pub := auth.NewPublicAccount(account)
	if !includeEmail {
		pub.Email = ""
	}
	c.JSON(status, accountResponse{
		Status: "success",
		Data: accountEnvelope{
			User:      pub,
			AvatarURL: h.avatarURL(c.Request.Context(), account),
		},
	})
}

func (h *Handler) avatarURL(ctx context.Context, account *domain.Account) string {
	if h.storage == nil || account == nil || account.AvatarKey == "" {
		return ""
	}
	url, err := h.storage.ObjectURL(ctx, account.AvatarKey, h.opts.AvatarURLTTL)
	if err != nil {
		h.logger.WithError(err).WithField("account_id", account.ID).Warn("presign avatar url")
		return ""
	}
	return url
}

// current is only called behind Protect, which guarantees an account.
func current(c *gin.Context) *domain.Account {
	account, _ := auth.AccountFromGin(c)
	return account
}

func (h *Handler) getMe(c *gin.Context) {
	account, err := h.accounts.GetByID(c.Request.Context(), current(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondAccount(c, http.StatusOK, account, true)
}

func (h *Handler) updateMe(c *gin.Context) {
	var in service.ProfileUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	account, err := h.accounts.UpdateProfile(c.Request.Context(), current(c).ID, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondAccount(c, http.StatusOK, account, true)
}

func (h *Handler) deleteMe(c *gin.Context) {
	if err := h.accounts.Deactivate(c.Request.Context(), current(c).ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addSkill(c *gin.Context) {
	var req skillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	account, err := h.accounts.AddSkill(c.Request.Context(), current(c).ID, domain.Skill{Name: req.Name, Level: req.Level})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondAccount(c, http.StatusOK, account, true)
}

func (h *Handler) removeSkill(c *gin.Context) {
	account, err := h.accounts.RemoveSkill(c.Request.Context(), current(c).ID, c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondAccount(c, http.StatusOK, account, true)
}

func (h *Handler) upsertRoadmap(c *gin.Context) {
	var req roadmapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	account, err := h.accounts.UpsertRoadmapProgress(c.Request.Context(), current(c).ID, c.Param("id"), *req.Progress)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondAccount(c, http.StatusOK, account, true)
}

func (h *Handler) recordAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	account, err := h.accounts.RecordAssessment(c.Request.Context(), current(c).ID, req.AssessmentID, *req.Score)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondAccount(c, http.StatusCreated, account, true)
}

func (h *Handler) uploadAvatar(c *gin.Context) {
	if h.storage == nil {
		h.writeError(c, storage.ErrNotConfigured)
		return
	}
	account := current(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.AvatarMaxBytes+(1<<20))
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		badRequest(c, "multipart field \"avatar\" is required")
		return
	}
	if fileHeader.Size > h.opts.AvatarMaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"status": "fail",
			"error":  fmt.Sprintf("avatar must be at most %d bytes", h.opts.AvatarMaxBytes),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.writeError(c, fmt.Errorf("open avatar upload: %w", err))
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		badRequest(c, "could not read avatar")
		return
	}
	contentType := http.DetectContentType(head[:n])
	ext, ok := avatarExtensions[contentType]
	if !ok {
		badRequest(c, "avatar must be a png, jpeg, gif or webp image")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.writeError(c, fmt.Errorf("rewind avatar upload: %w", err))
		return
	}

	key := path.Join(strings.Trim(h.opts.AvatarKeyPrefix, "/"), account.ID, uuid.NewString()+ext)
	ctx := c.Request.Context()
	if err := h.storage.PutObject(ctx, key, file, storage.PutOptions{ContentType: contentType, Size: fileHeader.Size}); err != nil {
		h.writeError(c, err)
		return
	}

	previous, updated, err := h.accounts.SetAvatar(ctx, account.ID, key)
	if err != nil {
		if delErr := h.storage.DeleteObject(ctx, key); delErr != nil {
			h.logger.WithError(delErr).WithField("key", key).Warn("remove orphaned avatar")
		}
		h.writeError(c, err)
		return
	}
	if previous != "" && previous != key {
		if err := h.storage.DeleteObject(ctx, previous); err != nil {
			h.logger.WithError(err).WithField("key", previous).Warn("remove previous avatar")
		}
	}
	h.respondAccount(c, http.StatusOK, updated, true)
}

// getUser serves public profiles. The email is shown only to the owner and
// to admins.
func (h *Handler) getUser(c *gin.Context) {
	account, err := h.accounts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	viewer, ok := auth.AccountFromGin(c)
	includeEmail := ok && (viewer.ID == account.ID || viewer.Role == domain.RoleAdmin)
	h.respondAccount(c, http.StatusOK, account, includeEmail)
}

func (h *Handler) setRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	account, err := h.accounts.SetRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"admin_id":   current(c).ID,
		"account_id": account.ID,
		"role":       account.Role,
	}).Info("role updated by admin")
	h.respondAccount(c, http.StatusOK, account, true)
}
