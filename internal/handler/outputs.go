package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
	"github.com/akave-ai/apicapture/internal/model"
	"github.com/akave-ai/apicapture/internal/repository"
	"github.com/akave-ai/apicapture/internal/response"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrInvalidOutput wraps every error caused by the caller's type or configuration.
var ErrInvalidOutput = errors.New("invalid output")

// OutputHandler handles /outputs and /outputs/types. It owns the running outputs
// and hands them to the forwarder through Active.
type OutputHandler struct {
	Registry *outputs.Registry
	Repo     repository.OutputStore
	Logger   zerolog.Logger

	validate    *validator.Validate
	instancesMu sync.Mutex
	instances   map[uuid.UUID]InstanceRecord
}

// InstanceRecord holds a persisted output and its running RecordOutput.
type InstanceRecord struct {
	Output model.Output
	Run    outputs.RecordOutput
}

type outputInstanceResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Title         string          `json:"title"`
	Configuration json.RawMessage `json:"configuration"`
	CreatedAt     string          `json:"created_at"`
	State         string          `json:"state"`
}

type createOutputRequest struct {
	Type   string          `json:"type" validate:"required"`
	Title  string          `json:"title" validate:"omitempty,max=200"`
	Config json.RawMessage `json:"config"`
}

func NewOutputHandler(registry *outputs.Registry, repo repository.OutputStore, logger zerolog.Logger) *OutputHandler {
	return &OutputHandler{
		Registry:  registry,
		Repo:      repo,
		Logger:    logger.With().Str("component", "outputs").Logger(),
		validate:  validator.New(),
		instances: make(map[uuid.UUID]InstanceRecord),
	}
}

// ListTypes returns registered output type names (GET /outputs/types).
func (h *OutputHandler) ListTypes(c echo.Context) error {
	types := h.Registry.ListRegistered()
	sort.Strings(types)
	return response.List(c, "types", types, "")
}

// GetAllTypesInfo returns config spec for every registered output type (GET /outputs/info).
func (h *OutputHandler) GetAllTypesInfo(c echo.Context) error {
	all := h.Registry.AllTypesInfo()
	sort.Slice(all, func(i, j int) bool { return all[i].Type < all[j].Type })
	return response.List(c, "types", all, "")
}

// GetTypeInfo returns config spec for one output type (GET /outputs/types/:type).
func (h *OutputHandler) GetTypeInfo(c echo.Context) error {
	typeName := c.Param("type")
	info, ok := h.Registry.GetTypeInfo(typeName)
	if !ok {
		return response.NotFound(c, "unknown output type", "unknown output type: "+typeName)
	}
	return response.OK(c, info, "")
}

// ListOutputs returns all persisted outputs with their runtime state (GET /outputs).
func (h *OutputHandler) ListOutputs(c echo.Context) error {
	list, err := h.Repo.List(c.Request().Context())
	if err != nil {
		return response.InternalError(c, "list outputs failed", err.Error())
	}
	out := make([]outputInstanceResponse, 0, len(list))
	h.instancesMu.Lock()
	for _, o := range list {
		state := model.OutputStateStopped
		if rec, running := h.instances[o.ID]; running && rec.Run != nil {
			state = model.OutputStateRunning
		}
		out = append(out, toResponse(o, state))
	}
	h.instancesMu.Unlock()
	return response.List(c, "outputs", out, "")
}

// CreateOutput validates, starts and persists an output (POST /outputs).
func (h *OutputHandler) CreateOutput(c echo.Context) error {
	var req createOutputRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid JSON body", err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	cfg := make(outputs.Config)
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return response.BadRequest(c, "invalid config", err.Error())
		}
	}

	o, err := h.Add(c.Request().Context(), req.Type, req.Title, cfg)
	if err != nil {
		if errors.Is(err, ErrInvalidOutput) {
			return response.BadRequest(c, "invalid output", err.Error())
		}
		return response.InternalError(c, "create output failed", err.Error())
	}
	return response.Created(c, toResponse(o, model.OutputStateRunning), "output started")
}

// DeleteOutput stops and removes an output (DELETE /outputs/:id).
func (h *OutputHandler) DeleteOutput(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "invalid id", err.Error())
	}
	h.instancesMu.Lock()
	rec, running := h.instances[id]
	delete(h.instances, id)
	h.instancesMu.Unlock()
	if running && rec.Run != nil {
		if err := rec.Run.Stop(); err != nil {
			h.Logger.Warn().Err(err).Str("id", id.String()).Msg("stop output")
		}
	}

	found, err := h.Repo.Delete(c.Request().Context(), id)
	if err != nil {
		return response.InternalError(c, "delete output failed", err.Error())
	}
	if !found && !running {
		return response.NotFound(c, "output not found", id.String())
	}
	return response.OK(c, map[string]any{"id": id.String()}, "output deleted")
}

// Add creates and starts an output, then persists its definition. Nothing is persisted
// when the type is unknown, the config is rejected or the output fails to start.
func (h *OutputHandler) Add(ctx context.Context, typeName, title string, cfg outputs.Config) (model.Output, error) {
	if _, ok := h.Registry.GetTypeInfo(typeName); !ok {
		return model.Output{}, fmt.Errorf("%w: unknown output type %q", ErrInvalidOutput, typeName)
	}
	if err := h.Registry.ValidateConfig(typeName, cfg); err != nil {
		return model.Output{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if cfg == nil {
		cfg = make(outputs.Config)
	}
	if title == "" {
		title = typeName + "-" + uuid.NewString()[:8]
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return model.Output{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	run, err := h.Registry.Create(typeName, cfg)
	if err != nil {
		return model.Output{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := run.Start(); err != nil {
		return model.Output{}, fmt.Errorf("start output: %w", err)
	}

	o := model.Output{
		Type:          typeName,
		Title:         title,
		Configuration: cfgJSON,
		DesiredState:  model.OutputStateRunning,
	}
	if err := h.Repo.Create(ctx, &o); err != nil {
		_ = run.Stop()
		return model.Output{}, fmt.Errorf("persist output: %w", err)
	}

	h.instancesMu.Lock()
	h.instances[o.ID] = InstanceRecord{Output: o, Run: run}
	h.instancesMu.Unlock()
	h.Logger.Info().Str("id", o.ID.String()).Str("type", typeName).Str("title", title).Msg("output started")
	return o, nil
}

// RestoreOutputs starts every persisted output whose desired state is RUNNING.
// Outputs that fail to start are logged and skipped.
func (h *OutputHandler) RestoreOutputs(ctx context.Context) int {
	list, err := h.Repo.List(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list outputs for restore")
		return 0
	}
	restored := 0
	for _, o := range list {
		if o.DesiredState != model.OutputStateRunning {
			continue
		}
		cfg := make(outputs.Config)
		if len(o.Configuration) > 0 {
			if err := json.Unmarshal(o.Configuration, &cfg); err != nil {
				h.Logger.Warn().Err(err).Str("id", o.ID.String()).Msg("restore output: bad configuration")
				continue
			}
		}
		run, err := h.Registry.Create(o.Type, cfg)
		if err == nil {
			err = run.Start()
		}
		if err != nil {
			h.Logger.Warn().Err(err).Str("id", o.ID.String()).Str("type", o.Type).Msg("restore output")
			continue
		}
		h.instancesMu.Lock()
		h.instances[o.ID] = InstanceRecord{Output: o, Run: run}
		h.instancesMu.Unlock()
		restored++
	}
	if restored > 0 {
		h.Logger.Info().Int("count", restored).Msg("outputs restored")
	}
	return restored
}

// Active returns the running outputs, oldest first.
func (h *OutputHandler) Active() []outputs.RecordOutput {
	h.instancesMu.Lock()
	recs := make([]InstanceRecord, 0, len(h.instances))
	for _, rec := range h.instances {
		if rec.Run != nil {
			recs = append(recs, rec)
		}
	}
	h.instancesMu.Unlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].Output.CreatedAt.Before(recs[j].Output.CreatedAt) })
	active := make([]outputs.RecordOutput, len(recs))
	for i, rec := range recs {
		active[i] = rec.Run
	}
	return active
}

// StopAll stops every running output. Buffered outputs flush here.
func (h *OutputHandler) StopAll() {
	h.instancesMu.Lock()
	recs := h.instances
	h.instances = make(map[uuid.UUID]InstanceRecord)
	h.instancesMu.Unlock()
	for id, rec := range recs {
		if rec.Run == nil {
			continue
		}
		if err := rec.Run.Stop(); err != nil {
			h.Logger.Warn().Err(err).Str("id", id.String()).Msg("stop output")
		}
	}
}

func toResponse(o model.Output, state model.OutputState) outputInstanceResponse {
	return outputInstanceResponse{
		ID:            o.ID.String(),
		Type:          o.Type,
		Title:         o.Title,
		Configuration: o.Configuration,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		State:         string(state),
	}
}
