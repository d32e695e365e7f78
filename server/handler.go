// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	hzserver "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/archive"
	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/sim"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/telemetry"
)

// maxStepCount bounds one step request.
const maxStepCount = 10000

// Engine is the control surface the handler drives.
type Engine interface {
	Step() (sim.TickSummary, error)
	Snapshot() *sim.Snapshot
	Spawn(kind components.Kind, pos r2.Vec, opts ...sim.SpawnOption) (uint64, error)
	SetParameter(name string, value float64) error
	Parameters() []config.ParameterValue
	Inspect(id uint64) (*sim.BotView, error)
	Pause()
	Resume()
	Paused() bool
	Running() bool
	Halted() error
	HallOfFame() *telemetry.HallOfFame
	Perf() telemetry.PerfStats
}

// RunStore reads archived runs.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]archive.Run, error)
	GetRun(ctx context.Context, id uint64) (archive.Run, error)
	Ticks(ctx context.Context, runID, from, to uint64) ([]telemetry.TickSummary, error)
}

type Handler struct {
	Engine Engine
	Runs   RunStore // nil disables the archive routes
}

func (h Handler) RegisterRoutes(s *hzserver.Hertz) {
	s.Use(corsMiddleware())

	api := s.Group("/api/sim")
	api.GET("/status", h.status)
	api.POST("/step", h.step)
	api.GET("/snapshot", h.snapshot)
	api.POST("/spawn", h.spawn)
	api.GET("/parameters", h.parameters)
	api.POST("/parameters", h.setParameter)
	api.GET("/bots/:id", h.inspect)
	api.POST("/pause", h.pause)
	api.POST("/resume", h.resume)
	api.GET("/hall-of-fame", h.hallOfFame)
	api.GET("/perf", h.perf)

	runs := s.Group("/api/runs")
	runs.GET("", h.listRuns)
	runs.GET("/:id", h.getRun)
	runs.GET("/:id/ticks", h.runTicks)
}

type statusResponse struct {
	Tick    uint64 `json:"tick"`
	Epoch   uint64 `json:"epoch"`
	Alive   int    `json:"alive"`
	Paused  bool   `json:"paused"`
	Running bool   `json:"running"`
	Halted  string `json:"halted,omitempty"`
}

func (h Handler) status(_ context.Context, ctx *app.RequestContext) {
	snap := h.Engine.Snapshot()
	ctx.JSON(consts.StatusOK, statusResponse{
		Tick:    snap.Tick,
		Epoch:   snap.Epoch,
		Alive:   snap.Counters.Alive,
		Paused:  h.Engine.Paused(),
		Running: h.Engine.Running(),
		Halted:  snap.Halted,
	})
}

type stepRequest struct {
	Count int `json:"count"`
}

type stepResponse struct {
	Steps   int               `json:"steps"`
	Summary sim.TickSummary   `json:"summary"`
	Ticks   []sim.TickSummary `json:"ticks,omitempty"`
}

func (h Handler) step(_ context.Context, ctx *app.RequestContext) {
	var body stepRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if body.Count == 0 {
		body.Count = 1
	}
	if body.Count < 0 || body.Count > maxStepCount {
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", "count must be within [1, "+strconv.Itoa(maxStepCount)+"]")
		return
	}

	resp := stepResponse{}
	for range body.Count {
		sum, err := h.Engine.Step()
		if err != nil {
			writeError(ctx, err)
			return
		}
		resp.Steps++
		resp.Summary = sum
		if body.Count <= 100 {
			resp.Ticks = append(resp.Ticks, sum)
		}
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) snapshot(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.Engine.Snapshot())
}

type spawnRequest struct {
	Kind       string             `json:"kind"`
	X          float64            `json:"x"`
	Y          float64            `json:"y"`
	Energy     *float64           `json:"energy,omitempty"`
	Quantity   *float64           `json:"quantity,omitempty"`
	HalfWidth  float64            `json:"half_width,omitempty"`
	HalfHeight float64            `json:"half_height,omitempty"`
	Genome     map[string]float64 `json:"genome,omitempty"`
	Strategy   string             `json:"strategy,omitempty"`
}

func (h Handler) spawn(_ context.Context, ctx *app.RequestContext) {
	var body spawnRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	kind, ok := components.ParseKind(body.Kind)
	if !ok {
		writeErrorBody(ctx, consts.StatusBadRequest, "configuration_error", "unknown kind "+strconv.Quote(body.Kind))
		return
	}

	var opts []sim.SpawnOption
	if body.Energy != nil {
		opts = append(opts, sim.WithEnergy(*body.Energy))
	}
	if body.Quantity != nil {
		opts = append(opts, sim.WithQuantity(*body.Quantity))
	}
	if body.HalfWidth != 0 || body.HalfHeight != 0 {
		opts = append(opts, sim.WithExtent(components.Extent{HalfWidth: body.HalfWidth, HalfHeight: body.HalfHeight}))
	}
	if len(body.Genome) > 0 {
		g, err := genetics.FromNamed(body.Genome)
		if err != nil {
			writeErrorBody(ctx, consts.StatusBadRequest, "configuration_error", err.Error())
			return
		}
		opts = append(opts, sim.WithGenome(g))
	}
	if body.Strategy != "" {
		opts = append(opts, sim.WithStrategy(body.Strategy))
	}

	id, err := h.Engine.Spawn(kind, r2.Vec{X: body.X, Y: body.Y}, opts...)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusCreated, map[string]uint64{"id": id})
}

func (h Handler) parameters(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{"parameters": h.Engine.Parameters()})
}

type setParameterRequest struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

func (h Handler) setParameter(_ context.Context, ctx *app.RequestContext) {
	var body setParameterRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if body.Name == "" || body.Value == nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", "name and value are required")
		return
	}
	if err := h.Engine.SetParameter(body.Name, *body.Value); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"name": body.Name, "value": *body.Value})
}

func (h Handler) inspect(_ context.Context, ctx *app.RequestContext) {
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	view, err := h.Engine.Inspect(id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, view)
}

func (h Handler) pause(_ context.Context, ctx *app.RequestContext) {
	h.Engine.Pause()
	ctx.JSON(consts.StatusOK, map[string]bool{"paused": true})
}

func (h Handler) resume(_ context.Context, ctx *app.RequestContext) {
	h.Engine.Resume()
	ctx.JSON(consts.StatusOK, map[string]bool{"paused": false})
}

func (h Handler) hallOfFame(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.Engine.HallOfFame())
}

func (h Handler) perf(_ context.Context, ctx *app.RequestContext) {
	stats := h.Engine.Perf()
	ctx.JSON(consts.StatusOK, stats.ToCSV(h.Engine.Snapshot().Tick))
}

func (h Handler) listRuns(c context.Context, ctx *app.RequestContext) {
	if h.Runs == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "archive_disabled", "archive not configured")
		return
	}
	limit := 20
	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	runs, err := h.Runs.ListRuns(c, limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"runs": runs})
}

func (h Handler) getRun(c context.Context, ctx *app.RequestContext) {
	if h.Runs == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "archive_disabled", "archive not configured")
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	run, err := h.Runs.GetRun(c, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, run)
}

func (h Handler) runTicks(c context.Context, ctx *app.RequestContext) {
	if h.Runs == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "archive_disabled", "archive not configured")
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	from, err1 := uintQuery(ctx, "from")
	to, err2 := uintQuery(ctx, "to")
	if err1 != nil || err2 != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", "invalid tick range")
		return
	}
	ticks, err := h.Runs.Ticks(c, id, from, to)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"run_id": id, "ticks": ticks})
}

func idParam(ctx *app.RequestContext) (uint64, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", "invalid id")
		return 0, false
	}
	return id, true
}

func uintQuery(ctx *app.RequestContext, key string) (uint64, error) {
	v := ctx.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func decodeJSON(ctx *app.RequestContext, out any) error {
	body := ctx.Request.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func writeError(ctx *app.RequestContext, err error) {
	switch {
	case simerr.Is(err, simerr.KindConfiguration):
		writeErrorBody(ctx, consts.StatusBadRequest, simerr.KindConfiguration.String(), err.Error())
	case simerr.Is(err, simerr.KindLookup):
		writeErrorBody(ctx, consts.StatusNotFound, simerr.KindLookup.String(), err.Error())
	case simerr.Is(err, simerr.KindCapacity):
		writeErrorBody(ctx, consts.StatusConflict, simerr.KindCapacity.String(), err.Error())
	case simerr.Is(err, simerr.KindInvariant):
		writeErrorBody(ctx, consts.StatusInternalServerError, simerr.KindInvariant.String(), err.Error())
	case errors.Is(err, archive.ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
