package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/chunker"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/license"
	"github.com/akolanti/ChatAnalyzer/internal/locations"
	"github.com/akolanti/ChatAnalyzer/internal/quicksearch"
	"github.com/akolanti/ChatAnalyzer/internal/reanalysis"
	"github.com/akolanti/ChatAnalyzer/internal/segmenter"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

/*
Pipeline strings the engines together for every entry point: the CLI calls
its methods directly, the HTTP worker pool goes through ProcessJob and the
MCP server reads through the same methods. Nothing here owns a connection;
app.Build hands in ready components.
*/

// Store is the persistence every operation needs.
type Store interface {
	analysisModel.ResultStore
	analysisModel.RunStore
	analysisModel.ChunkStore
	analysisModel.SearchLog
	findingModel.FindingStore
}

// DocumentLoader turns a path into extracted text.
type DocumentLoader interface {
	Load(path string) (analysisModel.Document, error)
}

type Components struct {
	Loader       DocumentLoader
	Chunker      *chunker.Chunker
	Store        Store
	Orchestrator *analysis.Orchestrator
	Summarizer   *analysis.Summarizer
	Reanalysis   *reanalysis.Engine
	Search       *quicksearch.Engine
	Segmenter    *segmenter.Segmenter
	Locations    *locations.Extractor

	// License may be nil (gate disabled).
	License    *license.Client
	LicenseKey string
	Telemetry  bool
}

type Pipeline struct {
	c      Components
	logger *logger_i.Logger
}

func New(c Components) *Pipeline {
	return &Pipeline{c: c, logger: logger_i.NewLogger("pipeline")}
}

type AnalyzeRequest struct {
	Path      string
	Prompt    string
	Exclude   []int
	Summarize bool
}

// Analyze loads and chunks a document, runs a fresh analysis over every
// chunk and, when asked, stores the hierarchical summary on the run.
func (p *Pipeline) Analyze(ctx context.Context, req AnalyzeRequest) (analysisModel.RunState, analysisModel.RunReport, error) {
	var run analysisModel.RunState
	if err := p.gate(ctx); err != nil {
		return run, analysisModel.RunReport{}, err
	}
	doc, err := p.c.Loader.Load(req.Path)
	if err != nil {
		return run, analysisModel.RunReport{}, fmt.Errorf("loading %s: %w", req.Path, err)
	}
	chunks := p.c.Chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return run, analysisModel.RunReport{}, fmt.Errorf("%s: %w", doc.Name, ErrEmptyDocument)
	}
	chunkSetId := chunker.SetId(doc.Id, chunks)
	if err := p.c.Store.SaveChunks(ctx, chunkSetId, chunks); err != nil {
		return run, analysisModel.RunReport{}, fmt.Errorf("saving chunks: %w", err)
	}
	p.logger.WithTrace(ctx).Info("document chunked", "document", doc.Name, "chunkSetId", chunkSetId, "chunks", len(chunks))

	indices := make([]int, len(chunks))
	for i, ch := range chunks {
		indices[i] = ch.Index
	}
	run = p.c.Orchestrator.NewRun(analysisModel.RunKindOriginal, doc, req.Prompt, indices, req.Exclude)
	run.ChunkSetId = chunkSetId
	run, report, err := p.c.Orchestrator.Execute(ctx, run, chunks)
	if err != nil {
		return run, report, err
	}
	p.afterRun(ctx, &run, report, req.Summarize)
	return run, report, nil
}

// Resume continues a run over the chunk set it was started on.
func (p *Pipeline) Resume(ctx context.Context, runId string, summarize bool) (analysisModel.RunState, analysisModel.RunReport, error) {
	if err := p.gate(ctx); err != nil {
		return analysisModel.RunState{}, analysisModel.RunReport{}, err
	}
	run, err := p.Run(ctx, runId)
	if err != nil {
		return run, analysisModel.RunReport{}, err
	}
	chunks, err := p.c.Store.ListChunks(ctx, run.ChunkSetKey())
	if err != nil {
		return run, analysisModel.RunReport{}, fmt.Errorf("loading chunks: %w", err)
	}
	run, report, err := p.c.Orchestrator.Resume(ctx, runId, chunks)
	if err != nil {
		return run, report, err
	}
	p.afterRun(ctx, &run, report, summarize)
	return run, report, nil
}

func (p *Pipeline) Reanalyze(ctx context.Context, req reanalysis.Request) (analysisModel.RunState, analysisModel.RunReport, error) {
	if err := p.gate(ctx); err != nil {
		return analysisModel.RunState{}, analysisModel.RunReport{}, err
	}
	run, report, err := p.c.Reanalysis.Reanalyze(ctx, req)
	if err != nil {
		return run, report, err
	}
	p.afterRun(ctx, &run, report, false)
	return run, report, nil
}

func (p *Pipeline) Search(ctx context.Context, runId string, question string) (analysisModel.SearchAnswer, error) {
	if err := p.gate(ctx); err != nil {
		return analysisModel.SearchAnswer{}, err
	}
	return p.c.Search.Ask(ctx, runId, question)
}

func (p *Pipeline) SearchHistory(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error) {
	return p.c.Search.History(ctx, runId)
}

// Conversations segments a run and stores the result.
func (p *Pipeline) Conversations(ctx context.Context, runId string, summarize bool) ([]findingModel.Conversation, error) {
	if summarize {
		if err := p.gate(ctx); err != nil {
			return nil, err
		}
	}
	return p.c.Segmenter.SegmentRun(ctx, runId, summarize)
}

// StoredConversations returns what the last segmentation stored, segmenting
// without summaries when nothing is stored yet.
func (p *Pipeline) StoredConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error) {
	stored, err := p.c.Store.ListConversations(ctx, runId)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}
	return p.Conversations(ctx, runId, false)
}

// SavedConversations only reads, it never segments.
func (p *Pipeline) SavedConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error) {
	if _, err := p.Run(ctx, runId); err != nil {
		return nil, err
	}
	return p.c.Store.ListConversations(ctx, runId)
}

func (p *Pipeline) Locations(ctx context.Context, runId string) (locations.Report, error) {
	if err := p.gate(ctx); err != nil {
		return locations.Report{}, err
	}
	return p.c.Locations.ExtractRun(ctx, runId)
}

func (p *Pipeline) StoredLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error) {
	if _, err := p.Run(ctx, runId); err != nil {
		return nil, err
	}
	return p.c.Store.ListLocations(ctx, runId)
}

// Summary returns the stored run summary, producing it first if needed.
func (p *Pipeline) Summary(ctx context.Context, runId string) (string, error) {
	run, err := p.Run(ctx, runId)
	if err != nil {
		return "", err
	}
	if run.Summary != "" {
		return run.Summary, nil
	}
	if err := p.gate(ctx); err != nil {
		return "", err
	}
	return p.c.Summarizer.SummarizeRun(ctx, p.c.Store, p.c.Store, runId)
}

func (p *Pipeline) Run(ctx context.Context, runId string) (analysisModel.RunState, error) {
	run, found, err := p.c.Store.GetRun(ctx, runId)
	if err != nil {
		return run, fmt.Errorf("loading run %s: %w", runId, err)
	}
	if !found {
		return run, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, runId)
	}
	return run, nil
}

func (p *Pipeline) Runs(ctx context.Context) ([]analysisModel.RunState, error) {
	return p.c.Store.ListRuns(ctx)
}

func (p *Pipeline) Results(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error) {
	if _, err := p.Run(ctx, runId); err != nil {
		return nil, err
	}
	return p.c.Store.ListResults(ctx, runId)
}

// afterRun produces the summary and sends the usage ping. Neither can fail
// the run that already finished.
func (p *Pipeline) afterRun(ctx context.Context, run *analysisModel.RunState, report analysisModel.RunReport, summarize bool) {
	log := p.logger.WithTrace(ctx).With("runId", run.Id)
	if summarize && report.Outcome != analysisModel.OutcomeAborted && len(report.Done) > 0 {
		summary, err := p.c.Summarizer.SummarizeRun(ctx, p.c.Store, p.c.Store, run.Id)
		if err != nil {
			log.Warn("summary failed", "error", err)
		} else {
			run.Summary = summary
		}
	}
	if p.c.Telemetry {
		p.c.License.Ping(context.WithoutCancel(ctx), p.c.LicenseKey)
	}
}

func (p *Pipeline) gate(ctx context.Context) error {
	if err := p.c.License.Check(ctx, p.c.LicenseKey); err != nil {
		return fmt.Errorf("%w: %w", ErrLicense, err)
	}
	return nil
}

var (
	ErrEmptyDocument = errors.New("document has no text")
	ErrLicense       = errors.New("license check failed")
)
