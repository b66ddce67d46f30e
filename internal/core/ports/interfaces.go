package ports

import (
	"context"
	"time"

	"github.com/brasaforge/forge/internal/core/domain"
)

// CommandStore abstracts the remote key/sorted-set store (Upstash REST or a
// native Redis connection). Every call is a single round trip; callers must
// treat failures as transient-unknown and must not retry at this level;
// retry policy belongs to the queue engine.
type CommandStore interface {
	// Get returns the value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Del(ctx context.Context, key string) error

	Incr(ctx context.Context, key string) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ZAdd indexes member under key with the given score.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange returns members of key ordered by score, inclusive indices.
	// Use stop=-1 for the full set.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	ZRem(ctx context.Context, key, member string) error

	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns all hash fields of key; nil map when the key is absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// SiteRepository persists site rows and page content trees.
type SiteRepository interface {
	CreateDraftSite(ctx context.Context, site domain.Site) error
	UpdateDraftSite(ctx context.Context, site domain.Site) error
	GetSiteOwner(ctx context.Context, siteID string) (userID string, err error)

	// GetPage loads the content document persisted for site+route.
	GetPage(ctx context.Context, siteID, route string) (*domain.SiteDocument, error)

	// UpsertPage writes the content document keyed by site+route.
	UpsertPage(ctx context.Context, siteID, route string, doc *domain.SiteDocument) error

	// MarkSiteReady flips the site row out of draft once content exists.
	MarkSiteReady(ctx context.Context, siteID, palette, sector string) error
}

// JobTracker owns the user-visible tracking rows that mirror queue jobs.
type JobTracker interface {
	Insert(ctx context.Context, job domain.TrackedJob) error
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, costCredits float64, result *domain.JobResult) error
	MarkFailed(ctx context.Context, jobID string, message string) error

	// Get returns the row only when it belongs to userID.
	Get(ctx context.Context, jobID, userID string) (*domain.TrackedJob, error)
}

// CreditLedger is the external atomic balance-check/debit procedure.
type CreditLedger interface {
	GetBalance(ctx context.Context, userID string) (domain.CreditBalance, error)

	// Debit spends credits atomically. A declined spend surfaces as
	// domain.ErrInsufficientCredits.
	Debit(ctx context.Context, userID string, req domain.DebitRequest) (domain.DebitReceipt, error)
}

// APILogRecorder stores one row per API call for usage auditing. Recording
// is best-effort; implementations log and swallow their own failures.
type APILogRecorder interface {
	Record(ctx context.Context, entry APILogEntry)
}

type APILogEntry struct {
	Route         string
	UserID        string
	StatusCode    int
	Duration      time.Duration
	ProviderID    domain.ProviderID
	Model         string
	TokensIn      int
	TokensOut     int
	CostInCredits float64
	ErrorMessage  string
}
