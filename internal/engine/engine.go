package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"pronet-go/internal/auth"
	"pronet-go/internal/config"
	"pronet-go/internal/models"
	"pronet-go/internal/remote"
	"pronet-go/internal/repository"
	"pronet-go/internal/storage"
)

// ViewNotifier is told whenever a view's contents may have changed, so UI
// clients can re-read the accessors. Implementations must not block.
type ViewNotifier interface {
	ViewChanged(kind models.ViewKind)
}

// ActionRecord describes the outcome of one settled or rolled-back command.
type ActionRecord struct {
	CorrelationID  string    `json:"correlationId"`
	Command        Command   `json:"command"`
	CounterpartyID string    `json:"counterpartyId"`
	Outcome        string    `json:"outcome"` // "settled" or "rolled_back"
	Message        string    `json:"message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ActionAuditor receives a record of every command outcome.
type ActionAuditor interface {
	RecordAction(ctx context.Context, rec ActionRecord)
}

// ViewStatus carries per-view refresh metadata for the UI's
// "failed to load / retry" affordance.
type ViewStatus struct {
	LastError       string    `json:"lastError,omitempty"`
	LastRefreshedAt time.Time `json:"lastRefreshedAt,omitempty"`
	Total           int       `json:"total,omitempty"`
	Page            int       `json:"page,omitempty"`
	TotalPages      int       `json:"totalPages,omitempty"`
}

// Options carries the optional collaborators of the engine.
type Options struct {
	Cache    storage.ProfileCacheRepository
	Auditor  ActionAuditor
	Notifier ViewNotifier
}

// Engine reconciles the relationship repository against the four remote
// fetches, user commands, and asynchronous events. All repository mutations
// run on a single task loop, so a fetch merge and an optimistic transition
// can never interleave mid-mutation.
type Engine struct {
	cfg     config.EngineConfig
	repo    repository.RelationshipRepository
	client  remote.DirectoryClient
	session *auth.Session

	cache    storage.ProfileCacheRepository
	auditor  ActionAuditor
	notifier ViewNotifier

	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once

	// runCtx is the engine's own lifetime, set by Run. Remote calls, settle
	// timers, and cache writes hang off it rather than off whatever
	// short-lived request context scheduled them.
	runCtx context.Context

	// mu guards state read by accessors outside the task loop.
	mu            sync.RWMutex
	status        map[models.ViewKind]*ViewStatus
	actionErrs    map[string]string
	searchQuery   string
	globalQuery   string
	globalResults []remote.RemoteUser
	globalErr     error

	// Loop-owned state, touched only from tasks.
	viewGen  map[models.ViewKind]string
	debounce *time.Timer
}

// New creates an Engine. Run must be called before the engine processes
// anything.
func New(cfg config.EngineConfig, repo repository.RelationshipRepository, client remote.DirectoryClient, session *auth.Session, opts Options) *Engine {
	return &Engine{
		cfg:        cfg,
		repo:       repo,
		client:     client,
		session:    session,
		cache:      opts.Cache,
		auditor:    opts.Auditor,
		notifier:   opts.Notifier,
		tasks:      make(chan func(), 256),
		done:       make(chan struct{}),
		status:     make(map[models.ViewKind]*ViewStatus),
		actionErrs: make(map[string]string),
		viewGen:    make(map[models.ViewKind]string),
		runCtx:     context.Background(),
	}
}

// Run processes tasks until the context is canceled. It must be called
// exactly once.
func (e *Engine) Run(ctx context.Context) error {
	defer e.stop()
	e.runCtx = ctx
	log.Printf("engine: task loop started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("engine: task loop stopping: %v", ctx.Err())
			return ctx.Err()
		case fn := <-e.tasks:
			fn()
		}
	}
}

func (e *Engine) stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// post schedules fn on the task loop. Posts after shutdown are dropped.
func (e *Engine) post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.done:
	}
}

// call runs fn on the task loop and waits for it to finish.
func (e *Engine) call(fn func()) error {
	ran := make(chan struct{})
	e.post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
		return nil
	case <-e.done:
		return ErrEngineStopped
	}
}

// WarmStart pre-populates display profiles from the cache. Only display
// data is restored; relation state always starts empty and is rebuilt from
// fetches, so no cached row ever appears in a view on its own.
func (e *Engine) WarmStart(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	profiles, err := e.cache.LoadAll(ctx)
	if err != nil {
		return err
	}
	for i := range profiles {
		p := &profiles[i]
		e.repo.Upsert(&models.RelationshipRecord{
			CounterpartyID: p.CounterpartyID,
			Profile:        p.Display(),
			State:          models.RelationStateNone,
			CreatedAt:      p.CreatedAt,
		})
	}
	log.Printf("engine: warm start restored %d cached profiles", len(profiles))
	return nil
}

// persistProfiles writes the current display profiles to the cache. Runs
// off the task loop; cache failures are logged and otherwise ignored.
func (e *Engine) persistProfiles() {
	if e.cache == nil {
		return
	}
	ctx := e.runCtx
	recs := e.repo.All()
	rows := make([]models.CachedProfile, 0, len(recs))
	for _, rec := range recs {
		if rec.Profile.Name == "" {
			continue
		}
		rows = append(rows, models.CachedProfile{
			CounterpartyID: rec.CounterpartyID,
			Name:           rec.Profile.Name,
			AvatarURL:      rec.Profile.AvatarURL,
			Headline:       rec.Profile.Headline,
			Company:        rec.Profile.Company,
			Email:          rec.Profile.Email,
		})
	}
	go func() {
		if err := e.cache.SaveBatch(ctx, rows); err != nil {
			log.Printf("engine: profile cache save failed: %v", err)
		}
	}()
}

func (e *Engine) notifyChanged(kinds ...models.ViewKind) {
	if e.notifier == nil {
		return
	}
	for _, k := range kinds {
		e.notifier.ViewChanged(k)
	}
}

func (e *Engine) audit(rec ActionRecord) {
	if e.auditor == nil {
		return
	}
	go e.auditor.RecordAction(e.runCtx, rec)
}
