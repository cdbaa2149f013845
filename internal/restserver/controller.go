// Package restserver serves stored ET runs over HTTP. Every endpoint
// answers JSON, or MessagePack with ?format=msgpack.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/sebal/internal/fields"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/storage"
	"github.com/chrissnell/sebal/pkg/config"
	"github.com/chrissnell/sebal/pkg/responseformat"
)

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	store      storage.Store
	started    time.Time
	formatter  *responseformat.Formatter
	engine     raster.Engine
	fields     FieldSource
	logger     *zap.SugaredLogger
}

// FieldSource supplies the field lots served by GET /api/runs/{id}/fields.
type FieldSource func(ctx context.Context) ([]fields.Field, error)

// SetFieldSource enables GET /api/runs/{id}/fields.
func (c *Controller) SetFieldSource(fs FieldSource) {
	c.fields = fs
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, store storage.Store, rc config.RESTServerData, logger *zap.SugaredLogger) *Controller {
	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", config.DefaultRESTPort)
		rc.Port = config.DefaultRESTPort
	}

	c := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		store:      store,
		started:    time.Now().UTC(),
		formatter:  responseformat.NewFormatter(),
		engine:     raster.NewLocal(0),
		logger:     logger,
	}
	c.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	c.Server.Handler = c.Router()
	return c
}

// StartController starts the REST server and stops it when the context is
// cancelled.
func (c *Controller) StartController() error {
	c.logger.Infow("starting REST server", "addr", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", c.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/runs", c.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/scenes/{scene}", c.GetScene).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/fields", c.GetFieldSeries).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/fields", c.PostFieldSeries).Methods(http.MethodPost)
	return router
}
