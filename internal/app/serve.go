package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/handlers"
	"github.com/akolanti/ChatAnalyzer/internal/job"
	"github.com/akolanti/ChatAnalyzer/internal/middleware"
	"github.com/akolanti/ChatAnalyzer/internal/server"
	"github.com/akolanti/ChatAnalyzer/internal/worker"
)

// Serve runs the HTTP job API until SIGINT or SIGTERM. Jobs are processed
// by the worker pool against the app's pipeline.
func (a *App) Serve(ctx context.Context, listenAddr string) {
	if listenAddr == "" {
		listenAddr = a.Settings.ListenAddr
	}

	var (
		requestCount    int64
		workerWaitGroup sync.WaitGroup
	)

	//init buffered job channel
	jobChannel := make(chan jobModel.Job, config.BufferLimit)
	dispatcherChannel := make(chan bool, 1)
	stopWorkerChannel := make(chan bool, 1)

	serviceContext, closeExternalServices := context.WithCancel(ctx)
	defer closeExternalServices()

	service := job.InitJobService(job.ServiceConfig{
		JobChannel:        jobChannel,
		RequestCount:      requestCount,
		DispatcherChannel: dispatcherChannel,
		JobStore:          OpenJobStore(serviceContext, a.Settings),
	})
	a.logger.Info("Starting job service")

	middleware.Configure(a.Settings.AuthToken, a.Settings.NoAuthBypass)
	handlers.InitJobHandler(service, a.Pipeline)

	//init worker pool
	worker.InitServices(service, a.Pipeline)
	worker.InitWorkerPool(stopWorkerChannel, &workerWaitGroup)

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(gracefulShutdown)
	stopExecution := make(chan bool, 1)

	go server.ShutDownHandler(server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices:    closeExternalServices,
	})
	go server.CreateServer(listenAddr)

	<-stopExecution
	a.logger.Info("Server stopped")
}
