package config

import (
	"fmt"
	"os"
	"strconv"
)

// Engine holds the tunable thresholds of the ingestion engine. The defaults
// are deliberate starting points, not specified constants; every one of them
// can be overridden through the environment.
type Engine struct {
	// EscalateUnparsedRatio is the fraction of unparsed lines above which the
	// orchestrator escalates to the next parser level.
	EscalateUnparsedRatio float64

	// DuplicateWindowDays bounds the date window (± days) for duplicate and
	// link detection against committed transactions.
	DuplicateWindowDays int

	// AutoConfirmThreshold is the link confidence above which a detected link
	// is confirmed without human review.
	AutoConfirmThreshold float64

	// SessionWorkers bounds how many upload sessions are processed
	// concurrently. AI and OCR calls are memory-hungry, so keep this small.
	SessionWorkers int

	// PasswordAttempts is the retry budget for encrypted documents before the
	// session fails.
	PasswordAttempts int

	// ReconcileEpsilon is the tolerance, in currency minor units, below which
	// a calculated-vs-actual change gap is not a discrepancy.
	ReconcileEpsilon int64

	// MaxUploadBytes rejects documents larger than this at submission.
	MaxUploadBytes int64
}

// Default returns the engine configuration with all defaults applied.
func Default() Engine {
	return Engine{
		EscalateUnparsedRatio: 0.20,
		DuplicateWindowDays:   3,
		AutoConfirmThreshold:  0.90,
		SessionWorkers:        5,
		PasswordAttempts:      3,
		ReconcileEpsilon:      1,
		MaxUploadBytes:        25 << 20, // 25 MiB
	}
}

// FromEnv loads the engine configuration, overriding defaults from the
// environment. Unset variables keep their defaults; malformed values are an
// error rather than a silent fallback.
func FromEnv() (Engine, error) {
	cfg := Default()

	if err := envFloat("ESCALATE_UNPARSED_RATIO", &cfg.EscalateUnparsedRatio); err != nil {
		return cfg, err
	}
	if err := envInt("DUPLICATE_WINDOW_DAYS", &cfg.DuplicateWindowDays); err != nil {
		return cfg, err
	}
	if err := envFloat("AUTOCONFIRM_THRESHOLD", &cfg.AutoConfirmThreshold); err != nil {
		return cfg, err
	}
	if err := envInt("SESSION_WORKERS", &cfg.SessionWorkers); err != nil {
		return cfg, err
	}
	if err := envInt("PASSWORD_ATTEMPTS", &cfg.PasswordAttempts); err != nil {
		return cfg, err
	}
	if err := envInt64("RECONCILE_EPSILON_MINOR_UNITS", &cfg.ReconcileEpsilon); err != nil {
		return cfg, err
	}
	if err := envInt64("MAX_UPLOAD_BYTES", &cfg.MaxUploadBytes); err != nil {
		return cfg, err
	}

	if cfg.EscalateUnparsedRatio < 0 || cfg.EscalateUnparsedRatio > 1 {
		return cfg, fmt.Errorf("ESCALATE_UNPARSED_RATIO must be in [0,1], got %v", cfg.EscalateUnparsedRatio)
	}
	if cfg.AutoConfirmThreshold < 0 || cfg.AutoConfirmThreshold > 1 {
		return cfg, fmt.Errorf("AUTOCONFIRM_THRESHOLD must be in [0,1], got %v", cfg.AutoConfirmThreshold)
	}
	if cfg.SessionWorkers < 1 {
		return cfg, fmt.Errorf("SESSION_WORKERS must be at least 1, got %d", cfg.SessionWorkers)
	}
	return cfg, nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parsing %s=%q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}
