package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	appoffline "github.com/erp/client/internal/application/offline"
	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/domain/records"
	"github.com/erp/client/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EntityEndpoint exposes one registered entity store without its record type
type EntityEndpoint interface {
	Name() string
	List(ctx context.Context, force bool) (any, error)
	Get(id offline.ID) (any, bool)
	Create(ctx context.Context, body []byte) (any, bool, error)
	Update(ctx context.Context, id offline.ID, body []byte) (any, bool, error)
	Delete(ctx context.Context, id offline.ID) (any, bool, error)
	Subscribe(listener func(any)) (unsubscribe func())
}

type storeEndpoint[T offline.Record[T]] struct {
	store *appoffline.EntityStore[T]
}

// Endpoint adapts an entity store for the HTTP layer
func Endpoint[T offline.Record[T]](store *appoffline.EntityStore[T]) EntityEndpoint {
	return storeEndpoint[T]{store: store}
}

func (e storeEndpoint[T]) Name() string { return e.store.Name() }

func (e storeEndpoint[T]) List(ctx context.Context, force bool) (any, error) {
	entry, err := e.store.Fetch(ctx, force)
	if err == nil {
		return entry, nil
	}
	// Stale data is still served when the server is unreachable
	if offline.IsNetworkFailure(err) && (entry.LastFetch != nil || len(entry.Items) > 0) {
		return entry, nil
	}
	return nil, err
}

func (e storeEndpoint[T]) Get(id offline.ID) (any, bool) {
	return e.store.GetByID(id)
}

func (e storeEndpoint[T]) Create(ctx context.Context, body []byte) (any, bool, error) {
	item, err := decodeRecord[T](body)
	if err != nil {
		return nil, false, err
	}
	res, err := e.store.Add(ctx, item)
	return res, res.Outcome == appoffline.Synced, err
}

func (e storeEndpoint[T]) Update(ctx context.Context, id offline.ID, body []byte) (any, bool, error) {
	item, err := decodeRecord[T](body)
	if err != nil {
		return nil, false, err
	}
	res, err := e.store.Update(ctx, item.WithRecordID(id))
	return res, res.Outcome == appoffline.Synced, err
}

func (e storeEndpoint[T]) Delete(ctx context.Context, id offline.ID) (any, bool, error) {
	res, err := e.store.Remove(ctx, id)
	return res, res.Outcome == appoffline.Synced, err
}

func (e storeEndpoint[T]) Subscribe(listener func(any)) func() {
	return e.store.Subscribe(func(entry offline.CacheEntry[T]) { listener(entry) })
}

func decodeRecord[T any](body []byte) (T, error) {
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return item, fmt.Errorf("%w: malformed record: %w", offline.ErrInvalidInput, err)
	}
	if v, ok := any(item).(records.Validator); ok {
		if err := v.Validate(); err != nil {
			return item, fmt.Errorf("%w: %w", offline.ErrInvalidInput, err)
		}
	}
	return item, nil
}

// EntityHandler serves the cached entities to the UI shell
type EntityHandler struct {
	BaseHandler
	endpoints map[string]EntityEndpoint
	logger    *zap.Logger
	sse       sseConfig
}

// NewEntityHandler creates a handler for the given entity endpoints
func NewEntityHandler(logger *zap.Logger, endpoints ...EntityEndpoint) *EntityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EntityHandler{
		endpoints: make(map[string]EntityEndpoint, len(endpoints)),
		logger:    logger,
		sse:       defaultSSEConfig(),
	}
	for _, ep := range endpoints {
		h.endpoints[ep.Name()] = ep
	}
	return h
}

// Names returns the served entity names in sorted order
func (h *EntityHandler) Names() []string {
	names := make([]string, 0, len(h.endpoints))
	for name := range h.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *EntityHandler) endpoint(c *gin.Context) (EntityEndpoint, bool) {
	name := c.Param("entity")
	ep, ok := h.endpoints[name]
	if !ok {
		h.HandleError(c, fmt.Errorf("%w: %s", offline.ErrUnknownEntity, name))
	}
	return ep, ok
}

// List returns the cached records, fetching them when stale or when ?force=true
func (h *EntityHandler) List(c *gin.Context) {
	ep, ok := h.endpoint(c)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.Query("force"))
	entry, err := ep.List(c.Request.Context(), force)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Get returns one cached record
func (h *EntityHandler) Get(c *gin.Context) {
	ep, ok := h.endpoint(c)
	if !ok {
		return
	}
	item, found := ep.Get(offline.ID(c.Param("id")))
	if !found {
		h.NotFound(c, "Record not found")
		return
	}
	h.Success(c, item)
}

// Create adds a record optimistically
func (h *EntityHandler) Create(c *gin.Context) {
	ep, ok := h.endpoint(c)
	if !ok {
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	res, synced, err := ep.Create(c.Request.Context(), body)
	h.respondMutation(c, http.StatusCreated, res, synced, err)
}

// Update replaces a record optimistically
func (h *EntityHandler) Update(c *gin.Context) {
	ep, ok := h.endpoint(c)
	if !ok {
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	res, synced, err := ep.Update(c.Request.Context(), offline.ID(c.Param("id")), body)
	h.respondMutation(c, http.StatusOK, res, synced, err)
}

// Delete removes a record optimistically
func (h *EntityHandler) Delete(c *gin.Context) {
	ep, ok := h.endpoint(c)
	if !ok {
		return
	}
	res, synced, err := ep.Delete(c.Request.Context(), offline.ID(c.Param("id")))
	h.respondMutation(c, http.StatusOK, res, synced, err)
}

// Stream pushes the cache entry of one entity on every change
func (h *EntityHandler) Stream(c *gin.Context) {
	ep, ok := h.endpoint(c)
	if !ok {
		return
	}
	streamSnapshots(c, h.sse, h.logger.With(zap.String("entity", ep.Name())), "entry", ep.Subscribe)
}

func (h *EntityHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "Request body exceeds maximum allowed size")
		return nil, false
	}
	if err != nil || len(body) == 0 {
		h.BadRequest(c, "Request body is required")
		return nil, false
	}
	return body, true
}

// respondMutation answers synced mutations with okStatus and queued ones with 202
func (h *EntityHandler) respondMutation(c *gin.Context, okStatus int, res any, synced bool, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !synced {
		h.Accepted(c, res)
		return
	}
	c.JSON(okStatus, dto.NewSuccessResponse(res))
}
