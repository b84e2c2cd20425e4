package pacing

import (
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
)

// Profile is the static part of a RateProfile: who is being paced and by
// which limits. The adaptive part lives in the Controller.
type Profile struct {
	Provider string
	Tier     string
	//tokens per minute, 0 means unmetered
	TPM int
	//lower bound for every delay
	Floor time.Duration
	//backoff parameters
	Factor     float64
	MinStep    time.Duration
	Ceiling    time.Duration
	DecayAfter int
}

func (p Profile) Key() string {
	tier := p.Tier
	if tier == "" {
		tier = config.DefaultTier
	}
	return p.Provider + "/" + tier
}

// LLMProfile builds the profile for a language model backend. Unmetered
// backends are paced by the local floor only.
func LLMProfile(provider string, tier string, tpm int, metered bool) Profile {
	p := Profile{
		Provider:   provider,
		Tier:       tier,
		TPM:        tpm,
		Floor:      config.HostedProviderFloor,
		Factor:     config.BackoffFactor,
		MinStep:    config.BackoffMinStep,
		Ceiling:    config.BackoffCeiling,
		DecayAfter: config.DecayAfterSuccesses,
	}
	if !metered {
		p.TPM = 0
		p.Floor = config.LocalProviderFloor
	}
	return p
}

// FixedIntervalProfile paces a service that publishes a minimum interval
// between calls instead of a token budget (geocoders).
func FixedIntervalProfile(provider string, interval time.Duration) Profile {
	return Profile{
		Provider:   provider,
		Tier:       "geocoding",
		Floor:      interval,
		Factor:     config.BackoffFactor,
		MinStep:    interval,
		Ceiling:    config.BackoffCeiling,
		DecayAfter: config.DecayAfterSuccesses,
	}
}

// BaseDelay is tokens / (tpm / 60) scaled by the safety factor, never below
// the floor.
func (p Profile) BaseDelay(tokens int) time.Duration {
	var d time.Duration
	if p.TPM > 0 && tokens > 0 {
		seconds := float64(tokens) / (float64(p.TPM) / 60.0) * config.PacingSafetyFactor
		d = time.Duration(seconds * float64(time.Second))
	}
	if d < p.Floor {
		d = p.Floor
	}
	return d
}

func (p Profile) withDefaults() Profile {
	if p.Factor <= 1 {
		p.Factor = config.BackoffFactor
	}
	if p.Ceiling <= 0 {
		p.Ceiling = config.BackoffCeiling
	}
	if p.DecayAfter <= 0 {
		p.DecayAfter = config.DecayAfterSuccesses
	}
	return p
}
