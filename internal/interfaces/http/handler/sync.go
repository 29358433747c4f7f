package handler

import (
	"context"
	"time"

	appoffline "github.com/erp/client/internal/application/offline"
	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncEngine is the part of the sync engine the sync endpoints drive
type SyncEngine interface {
	State() offline.ConnectivityState
	Permissions() offline.OfflinePermissions
	Entities() []string
	Flush(ctx context.Context) (appoffline.FlushReport, error)
	Pending() []*offline.PendingChange
	Discard(ctx context.Context, id uuid.UUID) error
	SetOnline(ctx context.Context, online bool) bool
	CanPerformOffline(action offline.Action) bool
	SubscribeState(listener func(offline.ConnectivityState)) (unsubscribe func())
}

var _ SyncEngine = (*appoffline.Engine)(nil)

// SyncHandler exposes ledger and connectivity operations
type SyncHandler struct {
	BaseHandler
	engine       SyncEngine
	flushTimeout time.Duration
	logger       *zap.Logger
	sse          sseConfig
}

// NewSyncHandler creates a sync handler. A zero flushTimeout leaves flushes bounded by the request only.
func NewSyncHandler(engine SyncEngine, flushTimeout time.Duration, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{
		engine:       engine,
		flushTimeout: flushTimeout,
		logger:       logger,
		sse:          defaultSSEConfig(),
	}
}

// Status returns connectivity, ledger size and permissions
func (h *SyncHandler) Status(c *gin.Context) {
	h.Success(c, dto.StatusResponse{
		ConnectivityState: h.engine.State(),
		Permissions:       h.engine.Permissions(),
		Entities:          h.engine.Entities(),
	})
}

// Flush replays queued changes now
func (h *SyncHandler) Flush(c *gin.Context) {
	ctx := c.Request.Context()
	if h.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.flushTimeout)
		defer cancel()
	}

	report, err := h.engine.Flush(ctx)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Pending lists queued changes in replay order
func (h *SyncHandler) Pending(c *gin.Context) {
	h.Success(c, dto.ToPendingChangeResponses(h.engine.Pending()))
}

// Discard drops a queued change
func (h *SyncHandler) Discard(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid pending change ID")
		return
	}
	if err := h.engine.Discard(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.engine.State())
}

// SetConnectivity applies an online/offline event reported by the UI shell
func (h *SyncHandler) SetConnectivity(c *gin.Context) {
	var req dto.ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Field 'online' is required")
		return
	}
	changed := h.engine.SetOnline(c.Request.Context(), *req.Online)
	h.Success(c, dto.ConnectivityResponse{Changed: changed, State: h.engine.State()})
}

// CanPerform reports whether an action may run now
func (h *SyncHandler) CanPerform(c *gin.Context) {
	action, err := offline.ParseAction(c.Param("action"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	state := h.engine.State()
	h.Success(c, dto.CanPerformResponse{
		Action:  action,
		Online:  state.IsOnline,
		Allowed: h.engine.CanPerformOffline(action),
	})
}

// Stream pushes the connectivity state on every change
func (h *SyncHandler) Stream(c *gin.Context) {
	streamSnapshots(c, h.sse, h.logger, "state", func(fn func(any)) func() {
		return h.engine.SubscribeState(func(s offline.ConnectivityState) { fn(s) })
	})
}
