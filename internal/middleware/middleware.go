package middleware

import (
	"net/http"
	"strconv"

	"github.com/akolanti/ChatAnalyzer/internal/handlers"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
	id           string
}

var GetHandler = Wrap(handlers.GetHandler)

var GetStatusHandler = Wrap(handlers.GetStatusHandler)

var PostAnalyzeHandler = Wrap(handlers.PostAnalyzeHandler)
var PostResumeHandler = Wrap(handlers.PostResumeHandler)
var PostReanalyzeHandler = Wrap(handlers.PostReanalyzeHandler)
var PostSearchHandler = Wrap(handlers.PostSearchHandler)
var PostConversationsHandler = Wrap(handlers.PostConversationsHandler)
var PostLocationsHandler = Wrap(handlers.PostLocationsHandler)

var GetRunsHandler = Wrap(handlers.GetRunsHandler)
var GetRunHandler = Wrap(handlers.GetRunHandler)
var GetResultsHandler = Wrap(handlers.GetResultsHandler)
var GetConversationsHandler = Wrap(handlers.GetConversationsHandler)
var GetLocationsHandler = Wrap(handlers.GetLocationsHandler)
var GetSearchesHandler = Wrap(handlers.GetSearchesHandler)

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec})

		if re.badRequest.isBadRequest {
			metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(re.badRequest.httpCode)).Inc()
			return
		}
		next(rec, re.req)

		metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc() //metrics
	}
}

// processRequest runs the chain and writes the error response itself, so a
// bad request is answered exactly once.
func processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re.logger.Debug("New request received", "path", re.req.URL.Path)

	for _, step := range []func(requestResponseStruct) requestResponseStruct{injectTrace, authenticate, rateLimiter} {
		re = step(re)
		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			return re
		}
	}
	return re
}
