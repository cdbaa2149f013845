package restserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/chrissnell/sebal/internal/constants"
	"github.com/chrissnell/sebal/internal/database"
	"github.com/chrissnell/sebal/internal/fields"
	"github.com/chrissnell/sebal/internal/sebal"
	"github.com/chrissnell/sebal/internal/storage"
	"github.com/chrissnell/sebal/internal/timeseries"
	"github.com/chrissnell/sebal/internal/types"
	"github.com/chrissnell/sebal/pkg/responseformat"
)

const defaultRunLimit = 50

// RunDetail is a run with its scene summaries and skips.
type RunDetail struct {
	database.Run
	Results []database.SceneResult `json:"results"`
	Skips   []database.SceneSkip   `json:"skips"`
}

// SceneDetail is a stored scene summary with its decoded rasters.
type SceneDetail struct {
	Result  database.SceneResult `json:"result"`
	Product sebal.Product        `json:"product"`
}

// Status reports the server and storage health.
type Status struct {
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Storage storage.Health `json:"storage"`
}

// GetStatus handles GET /api/status
func (c *Controller) GetStatus(w http.ResponseWriter, req *http.Request) {
	st := Status{
		Version: constants.Version,
		Uptime:  time.Since(c.started).Truncate(time.Second).String(),
		Storage: c.store.Health(req.Context()),
	}
	status := http.StatusOK
	if st.Storage.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	if err := c.formatter.WriteStatus(w, req, status, st, nil); err != nil {
		c.logger.Errorf("error encoding status: %v", err)
	}
}

// ListRuns handles GET /api/runs?limit=N
func (c *Controller) ListRuns(w http.ResponseWriter, req *http.Request) {
	limit := defaultRunLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "error: invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := c.store.ListRuns(req.Context(), limit)
	if err != nil {
		c.logger.Errorf("error listing runs: %v", err)
		http.Error(w, "error fetching runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	c.write(w, req, runs)
}

// GetRun handles GET /api/runs/{id}
func (c *Controller) GetRun(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	ctx := req.Context()

	run, err := c.store.GetRun(ctx, id)
	if err != nil {
		c.fail(w, "run", err)
		return
	}
	detail := RunDetail{Run: run, Results: []database.SceneResult{}, Skips: []database.SceneSkip{}}

	results, err := c.store.ListResults(ctx, id)
	if err != nil {
		c.fail(w, "results", err)
		return
	}
	skips, err := c.store.ListSkips(ctx, id)
	if err != nil {
		c.fail(w, "skips", err)
		return
	}
	detail.Results = append(detail.Results, results...)
	detail.Skips = append(detail.Skips, skips...)
	c.write(w, req, detail)
}

// GetScene handles GET /api/runs/{id}/scenes/{scene}. MessagePack requests
// receive the stored product bytes unchanged.
func (c *Controller) GetScene(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	result, err := c.store.GetResult(req.Context(), vars["id"], vars["scene"])
	if err != nil {
		c.fail(w, "scene", err)
		return
	}

	if c.formatter.WantsMsgPack(req) {
		if err := c.formatter.WriteRaw(w, responseformat.MsgPackContentType, result.Payload); err != nil {
			c.logger.Errorf("error writing scene payload: %v", err)
		}
		return
	}

	product, err := sebal.DecodeProduct(result.Payload)
	if err != nil {
		c.logger.Errorf("error decoding scene %s: %v", result.SceneID, err)
		http.Error(w, "error decoding scene product", http.StatusInternalServerError)
		return
	}
	c.write(w, req, SceneDetail{Result: result, Product: product})
}

// maxFieldBody bounds the GeoJSON accepted by POST /api/runs/{id}/fields.
const maxFieldBody = 32 << 20

// GetFieldSeries handles GET /api/runs/{id}/fields?period=DAYS using the
// configured field source.
func (c *Controller) GetFieldSeries(w http.ResponseWriter, req *http.Request) {
	if c.fields == nil {
		http.Error(w, "no field source configured", http.StatusNotFound)
		return
	}
	fs, err := c.fields(req.Context())
	if err != nil {
		c.logger.Errorf("error loading fields: %v", err)
		http.Error(w, "error loading fields", http.StatusInternalServerError)
		return
	}
	c.fieldSeries(w, req, fs)
}

// PostFieldSeries handles POST /api/runs/{id}/fields?period=DAYS with a
// GeoJSON feature collection of lots as the body.
func (c *Controller) PostFieldSeries(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxFieldBody))
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}
	fs, err := fields.FromGeoJSON(body)
	if err != nil {
		http.Error(w, "error: "+err.Error(), http.StatusBadRequest)
		return
	}
	c.fieldSeries(w, req, fs)
}

func (c *Controller) fieldSeries(w http.ResponseWriter, req *http.Request, fs []fields.Field) {
	period := timeseries.DefaultPeriod
	if v := req.URL.Query().Get("period"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			http.Error(w, "error: invalid period", http.StatusBadRequest)
			return
		}
		period = time.Duration(days) * 24 * time.Hour
	}

	ctx := req.Context()
	products, err := timeseries.Products(ctx, c.store, mux.Vars(req)["id"])
	if err != nil {
		c.fail(w, "run", err)
		return
	}
	series, err := timeseries.Build(ctx, c.engine, products, fs, period)
	switch {
	case errors.Is(err, types.ErrInvalidGeometry):
		http.Error(w, "error: "+err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		c.logger.Errorf("error building field series: %v", err)
		http.Error(w, "error building field series", http.StatusInternalServerError)
		return
	}
	c.write(w, req, series)
}

func (c *Controller) write(w http.ResponseWriter, req *http.Request, data any) {
	if err := c.formatter.WriteResponse(w, req, data, nil); err != nil {
		c.logger.Errorf("error encoding response: %v", err)
	}
}

func (c *Controller) fail(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	c.logger.Errorf("error fetching %s: %v", what, err)
	http.Error(w, "error fetching "+what, http.StatusInternalServerError)
}
