package pacing

import (
	"sync"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/pkoukk/tiktoken-go"
)

type TokenEstimator interface {
	EstimateTokens(text string) int
}

// CharEstimator is the chars/4 rule.
type CharEstimator struct{}

func (CharEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / config.CharsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// TiktokenEstimator counts with the model's BPE encoding. The encoding is
// loaded on first use; if it cannot be loaded (offline, unknown model) it
// falls back to CharEstimator for the life of the process.
type TiktokenEstimator struct {
	model string

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback CharEstimator
}

func NewTiktokenEstimator(model string) *TiktokenEstimator {
	return &TiktokenEstimator{model: model}
}

func (e *TiktokenEstimator) load() {
	enc, err := tiktoken.EncodingForModel(e.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err != nil {
		logger_i.NewLogger("pacing").Warn("tiktoken unavailable, using chars/4", "model", e.model, "error", err)
		return
	}
	e.enc = enc
}

func (e *TiktokenEstimator) EstimateTokens(text string) int {
	e.once.Do(e.load)
	if e.enc == nil {
		return e.fallback.EstimateTokens(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}
