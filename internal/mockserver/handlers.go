package mockserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"inpass/internal/domain"
)

// Handler holds the mock backend's dependencies.
type Handler struct {
	logger  *zap.Logger
	store   Store
	issuer  *TokenIssuer
	hub     *Hub
	limiter LoginRateLimiter
}

func NewHandler(logger *zap.Logger, store Store, issuer *TokenIssuer, hub *Hub, limiter LoginRateLimiter) *Handler {
	return &Handler{
		logger:  logger,
		store:   store,
		issuer:  issuer,
		hub:     hub,
		limiter: limiter,
	}
}

// Login handles POST /account/login.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Login    string `json:"login" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
		return
	}
	if h.limiter != nil && !h.limiter.Allow(req.Login) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	}

	user, err := h.store.UserByLogin(c.Request.Context(), req.Login)
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Register handles POST /account/register.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Login    string `json:"login" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
		FullName string `json:"fullName" binding:"required"`
		GroupID  string `json:"groupId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login, password (6+ chars) and fullName are required"})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
		return
	}
	user := User{
		ID:           uuid.NewString(),
		Login:        req.Login,
		FullName:     req.FullName,
		GroupID:      req.GroupID,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, ErrLoginTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "login already taken"})
			return
		}
		h.logger.Error("create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
		return
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Profile handles GET /account/profile.
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.store.UserByID(c.Request.Context(), authSubject(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	c.JSON(http.StatusOK, domain.Profile{FullName: user.FullName, GroupID: user.GroupID})
}

// ListAbsences handles GET /absences.
func (h *Handler) ListAbsences(c *gin.Context) {
	params := domain.ListParams{
		Page:    intQuery(c, "page", 1),
		Size:    intQuery(c, "size", 10),
		Sorting: c.Query("sorting"),
		Status:  domain.AbsenceStatus(c.Query("status")),
	}
	stored, err := h.store.ListAbsences(c.Request.Context(), authSubject(c), params)
	if err != nil {
		h.logger.Error("list absences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list absences"})
		return
	}
	absences := make([]domain.AbsenceRequest, 0, len(stored))
	for _, a := range stored {
		absences = append(absences, a.AbsenceRequest)
	}
	c.JSON(http.StatusOK, gin.H{"absences": absences})
}

// GetAbsence handles GET /absences/:id.
func (h *Handler) GetAbsence(c *gin.Context) {
	a, ok := h.ownAbsence(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.AbsenceRequest)
}

// CreateAbsence handles POST /absences (multipart).
func (h *Handler) CreateAbsence(c *gin.Context) {
	draft, ok := h.bindDraft(c, nil)
	if !ok {
		return
	}
	a := StoredAbsence{
		AbsenceRequest: domain.AbsenceRequest{
			ID:                uuid.NewString(),
			UserID:            authSubject(c),
			Type:              draft.Type,
			StartDate:         draft.StartDate,
			EndDate:           draft.EndDate,
			Status:            domain.StatusPending,
			DeclarationToDean: draft.DeclarationToDean,
		},
		CreatedAt: time.Now().UTC(),
	}
	if draft.Attachment != nil {
		a.Documents = []domain.Document{*draft.Attachment}
	}
	if err := h.store.CreateAbsence(c.Request.Context(), a); err != nil {
		h.logger.Error("create absence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create absence"})
		return
	}
	h.hub.Broadcast(notifyGroup(c), "AbsenceCreated")
	c.JSON(http.StatusOK, a.AbsenceRequest)
}

// UpdateAbsence handles PUT /absences/:id. A full replace of the
// mutable fields; status and rejection reason stay as they were.
func (h *Handler) UpdateAbsence(c *gin.Context) {
	existing, ok := h.ownAbsence(c)
	if !ok {
		return
	}
	var kept *domain.Document
	if len(existing.Documents) > 0 {
		kept = &existing.Documents[0]
	}
	draft, ok := h.bindDraft(c, kept)
	if !ok {
		return
	}

	existing.Type = draft.Type
	existing.StartDate = draft.StartDate
	existing.EndDate = draft.EndDate
	existing.DeclarationToDean = draft.DeclarationToDean
	if draft.Attachment != nil {
		existing.Documents = []domain.Document{*draft.Attachment}
	} else {
		existing.Documents = nil
	}

	if err := h.store.UpdateAbsence(c.Request.Context(), existing); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "absence not found"})
			return
		}
		h.logger.Error("update absence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update absence"})
		return
	}
	c.JSON(http.StatusOK, existing.AbsenceRequest)
}

// SetStatus handles POST /absences/:id/status. Dev-only lever: it is
// how demos and tests drive AbsenceApproved/AbsenceRejected pushes.
func (h *Handler) SetStatus(c *gin.Context) {
	existing, ok := h.ownAbsence(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	status := domain.AbsenceStatus(req.Status)
	switch status {
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	existing.Status = status
	existing.RejectionReason = ""
	if status == domain.StatusRejected {
		existing.RejectionReason = req.Reason
	}
	if err := h.store.UpdateAbsence(c.Request.Context(), existing); err != nil {
		h.logger.Error("set status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update status"})
		return
	}

	switch status {
	case domain.StatusApproved:
		h.hub.Broadcast(notifyGroup(c), "AbsenceApproved")
	case domain.StatusRejected:
		h.hub.Broadcast(notifyGroup(c), "AbsenceRejected", existing.RejectionReason)
	}
	c.JSON(http.StatusOK, existing.AbsenceRequest)
}

// ownAbsence loads the path id and enforces per-user ownership.
func (h *Handler) ownAbsence(c *gin.Context) (StoredAbsence, bool) {
	a, err := h.store.AbsenceByID(c.Request.Context(), c.Param("id"))
	if err != nil || a.UserID != authSubject(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "absence not found"})
		return StoredAbsence{}, false
	}
	return a, true
}

// bindDraft reads the multipart form of create/update. keptDoc is the
// already-stored attachment an update may rely on when no new file is
// uploaded.
func (h *Handler) bindDraft(c *gin.Context, keptDoc *domain.Document) (domain.Draft, bool) {
	draft := domain.Draft{
		Type: domain.AbsenceType(c.PostForm("Type")),
	}

	start, err := time.Parse(time.RFC3339, c.PostForm("StartDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "StartDate must be RFC 3339"})
		return domain.Draft{}, false
	}
	draft.StartDate = start

	if raw := c.PostForm("EndDate"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "EndDate must be RFC 3339"})
			return domain.Draft{}, false
		}
		draft.EndDate = &end
	}
	if raw := c.PostForm("DeclarationToDean"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DeclarationToDean must be a boolean"})
			return domain.Draft{}, false
		}
		draft.DeclarationToDean = flag
	}

	if file, err := c.FormFile("Attachment"); err == nil {
		draft.Attachment = &domain.Document{
			ID:       uuid.NewString(),
			Name:     file.Filename,
			MimeType: file.Header.Get("Content-Type"),
		}
	} else {
		draft.Attachment = keptDoc
	}

	if err := draft.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.Draft{}, false
	}
	return draft, true
}

// notifyGroup is the hub group status pushes go to. The production
// backend targets per-student groups; the mock keeps the single
// "student" group the app subscribes to.
func notifyGroup(_ *gin.Context) string {
	return "student"
}

func authSubject(c *gin.Context) string {
	return c.GetString(authSubjectKey)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
