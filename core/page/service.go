// Package page manages display pages: their persisted documents, the editing sessions
// that mutate their blocks, asset uploads and rendered views.
package page

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
)

const (
	defaultSessionTTL    = 2 * time.Hour
	defaultUploadTimeout = 2 * time.Minute
	assetDeleteTimeout   = 30 * time.Second
)

type Service struct {
	repo     Repository
	assets   AssetStore
	cache    Cache
	log      core.Logger
	validate *validator.Validate
	events   *Emitter

	sessionTTL    time.Duration
	uploadTimeout time.Duration
	now           func() time.Time

	ctx    context.Context // cancelled by Close; parent of background uploads and deletes
	cancel context.CancelFunc
	bg     sync.WaitGroup // background uploads and deletes

	bgMu    sync.Mutex // guards closing; taken while session locks are held
	closing bool       // no background work starts once set

	mu       sync.Mutex
	sessions map[string]*Session // by session id
	byPage   map[string]*Session // by page id
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(svc *Service) { svc.cache = c }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(svc *Service) { svc.sessionTTL = ttl }
}

func WithUploadTimeout(d time.Duration) Option {
	return func(svc *Service) { svc.uploadTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(repo Repository, assets AssetStore, log core.Logger, validate *validator.Validate, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		repo:          repo,
		assets:        assets,
		log:           log,
		validate:      validate,
		events:        NewEmitter(),
		sessionTTL:    defaultSessionTTL,
		uploadTimeout: defaultUploadTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		ctx:           ctx,
		cancel:        cancel,
		sessions:      make(map[string]*Session),
		byPage:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Events returns the emitter of session events.
func (svc *Service) Events() *Emitter { return svc.events }

func (svc *Service) Create(ctx context.Context, np NewPage) (block.Document, error) {
	if err := np.Validate(svc.validate); err != nil {
		return block.Document{}, err
	}
	doc := block.Document{
		ID:        uuid.NewString(),
		Title:     np.Title,
		Slug:      np.Slug,
		Category:  np.Category,
		UpdatedAt: svc.now(),
		Blocks:    []block.BlockDocument{},
	}
	doc, err := svc.repo.CreatePage(ctx, doc)
	if errors.Cause(err) == ErrSlugExists {
		return block.Document{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: err.Error()})
	}
	return doc, err
}

func (svc *Service) GetDocument(ctx context.Context, id string) (block.Document, error) {
	return svc.repo.GetPage(ctx, id)
}

// Get loads a page. Persisted blocks that cannot be loaded are skipped and logged.
func (svc *Service) Get(ctx context.Context, id string) (block.Page, error) {
	doc, err := svc.repo.GetPage(ctx, id)
	if err != nil {
		return block.Page{}, err
	}
	return svc.load(doc)
}

func (svc *Service) load(doc block.Document) (block.Page, error) {
	p, err := block.Deserialize(doc)
	if err != nil {
		if !errors.Is(err, block.ErrSerializationMismatch) {
			return block.Page{}, err
		}
		svc.log.Warn("page loaded with skipped blocks", err)
	}
	return p, nil
}

func (svc *Service) Query(ctx context.Context, ordering ...core.DBOrdering) ([]Summary, error) {
	docs, err := svc.repo.QueryPages(ctx, ordering...)
	if err != nil {
		return nil, err
	}
	sums := make([]Summary, 0, len(docs))
	for _, doc := range docs {
		sums = append(sums, summarize(doc))
	}
	return sums, nil
}

// View renders a page. Blocks that fail to render are left out and logged.
// Views are cached per page version when a cache is configured.
func (svc *Service) View(ctx context.Context, id string) (View, error) {
	doc, err := svc.repo.GetPage(ctx, id)
	if err != nil {
		return View{}, err
	}

	key := viewKey(doc.ID, doc.Version)
	if svc.cache != nil {
		if data, err := svc.cache.Get(ctx, key); err == nil {
			var v View
			if err := json.Unmarshal(data, &v); err == nil {
				return v, nil
			}
		} else if err != ErrCacheMiss {
			svc.log.Warn("view cache read failed", err)
		}
	}

	p, err := svc.load(doc)
	if err != nil {
		return View{}, err
	}
	v := View{Summary: summarize(doc), Blocks: make([]block.Display, 0, len(p.Blocks))}
	v.BlockCount = len(p.Blocks)
	for _, b := range p.Blocks {
		d, err := block.Render(b)
		if err != nil {
			svc.log.Warn("block left out of page view", err, map[string]interface{}{"page": doc.ID})
			continue
		}
		v.Blocks = append(v.Blocks, d)
	}

	if svc.cache != nil {
		if data, err := json.Marshal(v); err == nil {
			if err := svc.cache.Set(ctx, key, data); err != nil {
				svc.log.Warn("view cache write failed", err)
			}
		}
	}
	return v, nil
}

func viewKey(pageID string, version int64) string {
	return fmt.Sprintf("page:%s:v%d", pageID, version)
}

// save validates and writes a page edited by a session.
func (svc *Service) save(ctx context.Context, p block.Page, expectedVersion int64) (block.Document, error) {
	if err := block.ValidateBlocks(p.Blocks); err != nil {
		return block.Document{}, err
	}
	doc, err := block.Serialize(p)
	if err != nil {
		return block.Document{}, err
	}
	return svc.repo.SavePage(ctx, doc, expectedVersion)
}

// Open returns the editing session of a page, starting one if none is live.
func (svc *Service) Open(ctx context.Context, pageID string) (*Session, error) {
	svc.mu.Lock()
	if s, ok := svc.byPage[pageID]; ok {
		svc.mu.Unlock()
		s.mu.Lock()
		s.lastUsed = svc.now()
		s.mu.Unlock()
		return s, nil
	}
	svc.mu.Unlock()

	p, err := svc.Get(ctx, pageID)
	if err != nil {
		return nil, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if s, ok := svc.byPage[pageID]; ok { // opened concurrently
		return s, nil
	}
	s := newSession(svc, uuid.NewString(), p)
	svc.sessions[s.ID] = s
	svc.byPage[pageID] = s
	svc.log.Info(fmt.Sprintf("editing session %s opened on page %s", s.ID, pageID))
	return s, nil
}

// Session returns a live session.
func (svc *Service) Session(id string) (*Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	s, ok := svc.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Discard closes a session without saving it.
func (svc *Service) Discard(id string) error {
	svc.mu.Lock()
	s, ok := svc.sessions[id]
	if ok {
		svc.removeLocked(s)
	}
	svc.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

func (svc *Service) removeLocked(s *Session) {
	delete(svc.sessions, s.ID)
	if svc.byPage[s.PageID] == s {
		delete(svc.byPage, s.PageID)
	}
}

// SweepIdle closes the sessions unused for longer than the session TTL and without running uploads.
// It returns the number of closed sessions.
func (svc *Service) SweepIdle() int {
	now := svc.now()
	var expired []*Session
	svc.mu.Lock()
	for _, s := range svc.sessions {
		if s.idleSince(now) > svc.sessionTTL && s.InFlight() == 0 {
			svc.removeLocked(s)
			expired = append(expired, s)
		}
	}
	svc.mu.Unlock()

	for _, s := range expired {
		s.close()
		svc.log.Info(fmt.Sprintf("editing session %s expired", s.ID))
	}
	return len(expired)
}

// ActiveSessions returns the number of live sessions.
func (svc *Service) ActiveSessions() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.sessions)
}

// UploadsInFlight returns the number of running uploads across sessions.
func (svc *Service) UploadsInFlight() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	n := 0
	for _, s := range svc.sessions {
		n += s.InFlight()
	}
	return n
}

// startBackground counts a background task in. It returns false once Close has started.
func (svc *Service) startBackground() bool {
	svc.bgMu.Lock()
	defer svc.bgMu.Unlock()
	if svc.closing {
		return false
	}
	svc.bg.Add(1)
	return true
}

// dropAssets deletes the owned assets among refs in the background. Failures are only logged.
// Once Close has started, deletes run in the caller.
func (svc *Service) dropAssets(refs ...string) {
	for _, ref := range refs {
		if !svc.assets.Owns(ref) {
			continue
		}
		if !svc.startBackground() {
			svc.deleteAsset(ref)
			continue
		}
		go func(ref string) {
			defer svc.bg.Done()
			svc.deleteAsset(ref)
		}(ref)
	}
}

func (svc *Service) deleteAsset(ref string) {
	ctx, cancel := context.WithTimeout(svc.ctx, assetDeleteTimeout)
	defer cancel()
	if err := svc.assets.Delete(ctx, ref); err != nil {
		svc.log.Warn("asset cleanup failed", errors.Wrapf(err, "delete %s", ref))
	}
}

// Wait blocks until running uploads and asset deletions are over, or ctx is done.
func (svc *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		svc.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting uploads, waits for background work until ctx is done,
// then cancels what is left and closes all sessions.
func (svc *Service) Close(ctx context.Context) error {
	svc.bgMu.Lock()
	svc.closing = true
	svc.bgMu.Unlock()

	err := svc.Wait(ctx)
	svc.cancel()

	svc.mu.Lock()
	sessions := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		sessions = append(sessions, s)
		svc.removeLocked(s)
	}
	svc.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
	return err
}
