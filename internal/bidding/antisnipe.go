package bidding

import "time"

// ExtensionPolicy is the engine-wide soft-close rule.
type ExtensionPolicy struct {
	// Extension is added to the end time each time the rule fires.
	Extension time.Duration
	// Threshold is how close to the end a bid must land to trigger it.
	Threshold time.Duration
	// MaxExtensions caps how many times one auction may be extended.
	MaxExtensions int
}

// DefaultExtensionPolicy extends by five minutes for bids in the last five
// minutes, at most three times.
func DefaultExtensionPolicy() ExtensionPolicy {
	return ExtensionPolicy{
		Extension:     5 * time.Minute,
		Threshold:     5 * time.Minute,
		MaxExtensions: 3,
	}
}

// ExtensionConfig is a policy applied to one auction's extension state.
type ExtensionConfig struct {
	ExtensionPolicy
	TimesExtended int
}

// For binds the policy to an auction that has already been extended
// timesExtended times.
func (p ExtensionPolicy) For(timesExtended int) ExtensionConfig {
	return ExtensionConfig{ExtensionPolicy: p, TimesExtended: timesExtended}
}

// Extension is the outcome of CheckExtension.
type Extension struct {
	ShouldExtend  bool
	NewEndTime    time.Time
	TimesExtended int
}

// CheckExtension decides whether a bid accepted at now pushes endTime back.
// It fires when the bid lands within the threshold of endTime and the auction
// still has extensions left. Otherwise the returned Extension echoes endTime
// and the unchanged counter.
func CheckExtension(endTime time.Time, cfg ExtensionConfig, now time.Time) Extension {
	noop := Extension{NewEndTime: endTime, TimesExtended: cfg.TimesExtended}

	if cfg.Extension <= 0 || cfg.TimesExtended >= cfg.MaxExtensions {
		return noop
	}
	remaining := endTime.Sub(now)
	if remaining < 0 || remaining > cfg.Threshold {
		return noop
	}
	return Extension{
		ShouldExtend:  true,
		NewEndTime:    endTime.Add(cfg.Extension),
		TimesExtended: cfg.TimesExtended + 1,
	}
}
