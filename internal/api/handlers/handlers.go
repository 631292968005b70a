package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/vaultsweep/vaultsweep/internal/api/middleware"
	"github.com/vaultsweep/vaultsweep/internal/auth"
	"github.com/vaultsweep/vaultsweep/internal/config"
	"github.com/vaultsweep/vaultsweep/internal/db"
	"github.com/vaultsweep/vaultsweep/internal/kms"
	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
	"github.com/vaultsweep/vaultsweep/internal/queue"
	"github.com/vaultsweep/vaultsweep/internal/retention"
)

type Handlers struct {
	db     *db.DB
	kms    *kms.Encryptor
	queue  *asynq.Client
	engine *retention.Engine
	table  policy.Table
	jwt    config.JWTConfig
}

func NewHandlers(db *db.DB, kms *kms.Encryptor, queue *asynq.Client, engine *retention.Engine, table policy.Table, jwt config.JWTConfig) *Handlers {
	return &Handlers{
		db:     db,
		kms:    kms,
		queue:  queue,
		engine: engine,
		table:  table,
		jwt:    jwt,
	}
}

// ── Error helpers ─────────────────────────────────────────────────────────────

type errResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ReqID   string `json:"request_id,omitempty"`
}

func apiErr(c echo.Context, code int, msg string) error {
	reqID, _ := c.Get(middleware.ContextKeyRequestID).(string)
	return c.JSON(code, errResponse{Code: code, Message: msg, ReqID: reqID})
}

// mustUserID extracts the authenticated user UUID from the Echo context.
// Returns a 500 if middleware failed to populate the value (should never happen
// on a properly guarded route, but avoids a nil-pointer panic if it does).
func mustUserID(c echo.Context) (uuid.UUID, error) {
	v, ok := c.Get(middleware.ContextKeyUserID).(uuid.UUID)
	if !ok {
		return uuid.UUID{}, apiErr(c, http.StatusInternalServerError, "auth context missing")
	}
	return v, nil
}

// ── User Handlers ─────────────────────────────────────────────────────────────

type storageCredsRequest struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"            validate:"required"`
	AccessKeyID     string `json:"access_key_id"     validate:"required"`
	SecretAccessKey string `json:"secret_access_key" validate:"required"`
}

type CreateUserRequest struct {
	Name              string               `json:"name"                validate:"required"`
	Email             string               `json:"email"               validate:"required,email"`
	SweepIntervalSecs int                  `json:"sweep_interval_secs" validate:"required,min=300"`
	StorageCreds      *storageCredsRequest `json:"storage_creds,omitempty"`
}

func (h *Handlers) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Email == "" || req.SweepIntervalSecs < 300 {
		return apiErr(c, http.StatusBadRequest, "missing required fields or sweep_interval_secs below 300")
	}

	var credsEnc string
	if req.StorageCreds != nil {
		if req.StorageCreds.Bucket == "" || req.StorageCreds.AccessKeyID == "" || req.StorageCreds.SecretAccessKey == "" {
			return apiErr(c, http.StatusBadRequest, "incomplete storage credentials")
		}
		enc, err := h.kms.SealCreds(kms.StorageCreds{
			Endpoint:        req.StorageCreds.Endpoint,
			Region:          req.StorageCreds.Region,
			Bucket:          req.StorageCreds.Bucket,
			AccessKeyID:     req.StorageCreds.AccessKeyID,
			SecretAccessKey: req.StorageCreds.SecretAccessKey,
		})
		if err != nil {
			return apiErr(c, http.StatusInternalServerError, "failed to encrypt storage credentials")
		}
		credsEnc = enc
	}

	user := &models.User{
		ID:                uuid.New(),
		Name:              req.Name,
		Email:             req.Email,
		StorageCredsEnc:   credsEnc,
		SweepIntervalSecs: req.SweepIntervalSecs,
		Active:            true,
	}

	if err := h.db.Users.Create(c.Request().Context(), user); err != nil {
		c.Logger().Errorf("create user: %v", err)
		return apiErr(c, http.StatusInternalServerError, "failed to create user")
	}

	return c.JSON(http.StatusCreated, user)
}

func (h *Handlers) GetUser(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	if id != userID {
		return apiErr(c, http.StatusForbidden, "access denied")
	}

	user, err := h.db.Users.GetByID(c.Request().Context(), id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "user not found")
	}

	return c.JSON(http.StatusOK, user)
}

// UpdateStorageCreds replaces the caller's encrypted bucket credentials.
func (h *Handlers) UpdateStorageCreds(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	var req storageCredsRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Bucket == "" || req.AccessKeyID == "" || req.SecretAccessKey == "" {
		return apiErr(c, http.StatusBadRequest, "incomplete storage credentials")
	}

	credsEnc, err := h.kms.SealCreds(kms.StorageCreds{
		Endpoint:        req.Endpoint,
		Region:          req.Region,
		Bucket:          req.Bucket,
		AccessKeyID:     req.AccessKeyID,
		SecretAccessKey: req.SecretAccessKey,
	})
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to encrypt storage credentials")
	}

	if err := h.db.Users.UpdateStorageCreds(c.Request().Context(), userID, credsEnc); err != nil {
		c.Logger().Errorf("update storage creds for %s: %v", userID, err)
		return apiErr(c, http.StatusInternalServerError, "failed to update storage credentials")
	}
	return c.NoContent(http.StatusNoContent)
}

// IssueToken exchanges a valid API key (already verified by middleware) for a
// short-lived dashboard JWT.
func (h *Handlers) IssueToken(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	user, err := h.db.Users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "user not found")
	}

	token, err := auth.IssueJWT(h.jwt.Secret, user, h.jwt.Expiration)
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to issue token")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": time.Now().Add(h.jwt.Expiration).UTC(),
	})
}

// ── API Key Handlers ──────────────────────────────────────────────────────────

type CreateAPIKeyRequest struct {
	Label string `json:"label" validate:"required"`
}

func (h *Handlers) CreateAPIKey(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	var req CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Label == "" {
		return apiErr(c, http.StatusBadRequest, "label is required")
	}

	plaintext, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to generate api key")
	}

	key := &models.APIKey{
		ID:      uuid.New(),
		UserID:  userID,
		Prefix:  prefix,
		KeyHash: hash,
		Label:   req.Label,
	}

	if err := h.db.APIKeys.Create(c.Request().Context(), key); err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to save api key")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":         key.ID,
		"label":      key.Label,
		"prefix":     key.Prefix,
		"created_at": key.CreatedAt,
		"api_key":    plaintext, // Shown only once – store securely
	})
}

func (h *Handlers) ListAPIKeys(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	keys, err := h.db.APIKeys.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to list api keys")
	}

	return c.JSON(http.StatusOK, keys)
}

func (h *Handlers) RevokeAPIKey(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	keyID, err := uuid.Parse(c.Param("key_id"))
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid key_id")
	}

	// Verify the key belongs to this user (single-row lookup).
	if _, err := h.db.APIKeys.GetByUserAndID(c.Request().Context(), userID, keyID); err != nil {
		return apiErr(c, http.StatusNotFound, "api key not found")
	}

	if err := h.db.APIKeys.Revoke(c.Request().Context(), keyID); err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to revoke api key")
	}

	return c.NoContent(http.StatusNoContent)
}

// ── Prune Handlers ────────────────────────────────────────────────────────────

// TriggerPrune enqueues an immediate prune run for one of the caller's
// categories. The optional body carries a partial policy override for this
// run only.
func (h *Handlers) TriggerPrune(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	category := models.Category(c.Param("category"))
	if _, err := h.table.For(category); err != nil {
		return apiErr(c, http.StatusBadRequest, "unknown category")
	}

	var override *policy.Override
	if c.Request().ContentLength > 0 {
		override = &policy.Override{}
		if err := c.Bind(override); err != nil {
			return apiErr(c, http.StatusBadRequest, "invalid override body")
		}
	}

	task, err := queue.NewPruneRunTask(queue.PruneRunPayload{
		UserID:   userID,
		Category: category,
		Override: override,
	})
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to create prune task")
	}

	info, err := h.queue.EnqueueContext(c.Request().Context(), task)
	if err != nil {
		c.Logger().Errorf("enqueue prune for user %s: %v", userID, err)
		return apiErr(c, http.StatusInternalServerError, "failed to enqueue prune task")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"task_id": info.ID,
		"status":  info.State.String(),
	})
}

// Stats reports current vault shape without deleting anything. Omitting the
// category query parameter aggregates across every category.
func (h *Handlers) Stats(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	category := models.Category(c.QueryParam("category"))
	stats, err := h.engine.Stats(c.Request().Context(), userID, category)
	if err != nil {
		if errors.Is(err, policy.ErrUnknownCategory) {
			return apiErr(c, http.StatusBadRequest, "unknown category")
		}
		c.Logger().Errorf("stats for user %s: %v", userID, err)
		return apiErr(c, http.StatusInternalServerError, "failed to compute stats")
	}

	return c.JSON(http.StatusOK, stats)
}

// SnapshotInventory partitions one category's items by golden-snapshot class.
func (h *Handlers) SnapshotInventory(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	category := models.Category(c.Param("category"))
	inv, err := h.engine.SnapshotInventory(c.Request().Context(), userID, category)
	if err != nil {
		if errors.Is(err, policy.ErrUnknownCategory) {
			return apiErr(c, http.StatusBadRequest, "unknown category")
		}
		c.Logger().Errorf("snapshot inventory for user %s: %v", userID, err)
		return apiErr(c, http.StatusInternalServerError, "failed to build inventory")
	}

	return c.JSON(http.StatusOK, inv)
}

// ── Prune Run Handlers ────────────────────────────────────────────────────────

func (h *Handlers) ListRuns(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	runs, err := h.db.PruneRuns.ListByUser(c.Request().Context(), userID, limit)
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to list prune runs")
	}

	return c.JSON(http.StatusOK, runs)
}

func (h *Handlers) GetRun(c echo.Context) error {
	userID, err := mustUserID(c)
	if err != nil {
		return err
	}

	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid run_id")
	}

	run, err := h.db.PruneRuns.GetByID(c.Request().Context(), runID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "run not found")
	}
	if run.UserID != userID {
		return apiErr(c, http.StatusForbidden, "access denied")
	}

	return c.JSON(http.StatusOK, run)
}

// Policies returns the effective retention policy table so callers can see
// what a sweep will enforce.
func (h *Handlers) Policies(c echo.Context) error {
	type policyResponse struct {
		MaxAgeDays               int   `json:"max_age_days"`
		MinKeepCount             int   `json:"min_keep_count"`
		ProtectPeriodicSnapshots bool  `json:"protect_periodic_snapshots"`
		MaxTotalSizeBytes        int64 `json:"max_total_size_bytes"`
	}
	out := make(map[models.Category]policyResponse, len(h.table))
	for cat, r := range h.table {
		out[cat] = policyResponse{
			MaxAgeDays:               r.MaxAgeDays,
			MinKeepCount:             r.MinKeepCount,
			ProtectPeriodicSnapshots: r.ProtectPeriodicSnapshots,
			MaxTotalSizeBytes:        r.MaxTotalSizeBytes,
		}
	}
	return c.JSON(http.StatusOK, out)
}
