package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/akolanti/ChatAnalyzer/internal/adapter/utils"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/middleware"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

var (
	server  *http.Server
	_logger *logger_i.Logger
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    context.CancelFunc
}

func CreateServer(listenAddr string) {
	_logger = logger_i.NewLogger("Server")

	r := utils.GetRouter()

	r.Router.Get("/", middleware.GetHandler)
	r.Router.Get("/status/{id}", middleware.GetStatusHandler)

	r.Router.Route("/runs", func(runs chi.Router) {
		runs.Get("/", middleware.GetRunsHandler)
		runs.Post("/", middleware.PostAnalyzeHandler)

		runs.Get("/{id}", middleware.GetRunHandler)
		runs.Get("/{id}/results", middleware.GetResultsHandler)
		runs.Get("/{id}/conversations", middleware.GetConversationsHandler)
		runs.Get("/{id}/locations", middleware.GetLocationsHandler)
		runs.Get("/{id}/searches", middleware.GetSearchesHandler)

		runs.Post("/{id}/resume", middleware.PostResumeHandler)
		runs.Post("/{id}/reanalyze", middleware.PostReanalyzeHandler)
		runs.Post("/{id}/search", middleware.PostSearchHandler)
		runs.Post("/{id}/conversations", middleware.PostConversationsHandler)
		runs.Post("/{id}/locations", middleware.PostLocationsHandler)
	})
	server = &http.Server{
		Addr:         listenAddr,
		Handler:      r.Router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	_logger.Info("Server is listening at", "address", listenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_logger.Error("Server crashed", "error :", err.Error(), "addr", listenAddr)
	}
}

func ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	_logger.Info("Server is shutting down", "signal", state.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		server.SetKeepAlivesEnabled(false)

		if err := server.Shutdown(ctx); err != nil {
			_logger.Error("Could not shutdown gracefully", "error", err)
		}

		//close workers
		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		_logger.Info("Gracefully is shutting down")
	case <-ctx.Done():
		_logger.Info("Force Shut down")
		os.Exit(1)
	}
}
