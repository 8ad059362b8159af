package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

// ErrEmptyPool is returned when the selected pool has no cards at all.
var ErrEmptyPool = errors.New("card pool is empty")

// ErrNoneAvailable matches *NoneAvailableError with errors.Is.
var ErrNoneAvailable = errors.New("no card available now")

// NoneAvailableError means the pool has cards but none may be shown yet.
type NoneAvailableError struct {
	// NextDue is the soonest pending due time in scope, 0 when nothing is pending
	NextDue int64
}

func (e *NoneAvailableError) Error() string {
	if e.NextDue == 0 {
		return ErrNoneAvailable.Error()
	}
	return fmt.Sprintf("%s: next card due at %d", ErrNoneAvailable, e.NextDue)
}

func (e *NoneAvailableError) Is(target error) bool {
	return target == ErrNoneAvailable
}

// PoolScope restricts pool queries to a user and optionally a set. SetID 0 means all sets.
type PoolScope struct {
	UserID int64
	SetID  int64
}

// PoolStore provides the candidate pools for card selection
type PoolStore interface {
	// DueCards returns learned, non-skipped cards with due_time <= now in insertion order.
	DueCards(ctx context.Context, scope PoolScope, now int64) ([]models.PoolCard, error)
	// NewCards returns cards without a learned date in insertion order.
	NewCards(ctx context.Context, scope PoolScope) ([]models.PoolCard, error)
	// LearnedCards returns every learned card, hardest (most incorrect answers) first.
	LearnedCards(ctx context.Context, scope PoolScope) ([]models.PoolCard, error)
	// NextDueTime returns the soonest due_time after now among learned, non-skipped cards, or 0.
	NextDueTime(ctx context.Context, scope PoolScope, now int64) (int64, error)
	CountCards(ctx context.Context, scope PoolScope) (int, error)
	CountLearned(ctx context.Context, scope PoolScope) (int, error)
	CreateProgress(ctx context.Context, userID, flashcardID int64, now int64) (*models.CardProgress, error)
}

// SelectRequest asks for the next card of a session
type SelectRequest struct {
	UserID int64
	Mode   models.Mode
	SetID  int64
}

// Selection is the card to show next
type Selection struct {
	Card     models.Flashcard
	Progress *models.CardProgress
	Mode     models.Mode
	IsNew    bool
}

type sessionKey struct {
	userID int64
	mode   models.Mode
}

// Selector picks the next card for a learning session
type Selector struct {
	store    PoolStore
	settings Settings
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand
	served map[sessionKey]map[int64]struct{}
}

// NewSelector creates a card selector
func NewSelector(store PoolStore, settings Settings, logger *zap.Logger) *Selector {
	return &Selector{
		store:    store,
		settings: settings,
		logger:   logger.Named("selector"),
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		served:   make(map[sessionKey]map[int64]struct{}),
	}
}

// Next returns one eligible card for the mode, or ErrEmptyPool / *NoneAvailableError.
func (s *Selector) Next(ctx context.Context, req SelectRequest) (*Selection, error) {
	if !req.Mode.Valid() {
		return nil, apperrors.NewValidationError("mode", "unknown learning mode "+string(req.Mode))
	}
	if req.Mode.NeedsSet() && req.SetID == 0 {
		return nil, apperrors.NewValidationError("set", "mode "+string(req.Mode)+" needs a current set")
	}

	now := s.now().Unix()
	scope := s.scopeFor(req)

	var (
		pick *models.PoolCard
		err  error
	)
	switch req.Mode {
	case models.ModeSequentialInterspersed:
		pick, err = s.sequential(ctx, scope, now, 0)
	case models.ModeSequentialRandomNew:
		pick, err = s.sequential(ctx, scope, now, s.settings.ReviewInjectionRate)
	case models.ModeNewSequential:
		pick, err = s.newCard(ctx, scope, now, false, req)
	case models.ModeNewRandom:
		pick, err = s.newCard(ctx, scope, now, true, req)
	case models.ModeDueOnlyRandom, models.ModeReviewAllDue:
		pick, err = s.randomDue(ctx, scope, now)
	case models.ModeReviewHardest:
		pick, err = s.hardest(ctx, scope, req)
	case models.ModeCramSet, models.ModeCramAll:
		pick, err = s.cram(ctx, scope)
	}
	if err != nil {
		return nil, err
	}

	sel := &Selection{Card: pick.Card, Progress: pick.Progress, Mode: req.Mode}
	if sel.Progress == nil {
		progress, err := s.store.CreateProgress(ctx, req.UserID, pick.Card.ID, now)
		if err != nil {
			return nil, wrapStoreError("create progress", err)
		}
		sel.Progress = progress
	}
	sel.IsNew = !sel.Progress.IsLearned()

	s.logger.Debug("card selected",
		zap.Int64("user_id", req.UserID),
		zap.String("mode", string(req.Mode)),
		zap.Int64("card_id", sel.Card.ID),
		zap.Bool("new", sel.IsNew),
	)
	return sel, nil
}

// EndSession forgets which cards were already served to the user.
func (s *Selector) EndSession(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.served {
		if key.userID == userID {
			delete(s.served, key)
		}
	}
}

func (s *Selector) scopeFor(req SelectRequest) PoolScope {
	switch req.Mode {
	case models.ModeReviewAllDue, models.ModeReviewHardest, models.ModeCramAll:
		return PoolScope{UserID: req.UserID}
	}
	return PoolScope{UserID: req.UserID, SetID: req.SetID}
}

// sequential serves due cards first, then new cards, both in insertion order.
// With a positive injection rate new cards lead and a random due card is mixed in.
func (s *Selector) sequential(ctx context.Context, scope PoolScope, now int64, injectRate float64) (*models.PoolCard, error) {
	due, err := s.store.DueCards(ctx, scope, now)
	if err != nil {
		return nil, wrapStoreError("due cards", err)
	}
	fresh, err := s.store.NewCards(ctx, scope)
	if err != nil {
		return nil, wrapStoreError("new cards", err)
	}

	switch {
	case injectRate > 0 && len(fresh) > 0:
		if len(due) > 0 && s.chance(injectRate) {
			return s.randomOf(due), nil
		}
		return &fresh[0], nil
	case len(due) > 0:
		return &due[0], nil
	case len(fresh) > 0:
		return &fresh[0], nil
	}

	total, err := s.store.CountCards(ctx, scope)
	if err != nil {
		return nil, wrapStoreError("count cards", err)
	}
	return nil, s.exhausted(ctx, scope, now, total)
}

func (s *Selector) newCard(ctx context.Context, scope PoolScope, now int64, random bool, req SelectRequest) (*models.PoolCard, error) {
	fresh, err := s.store.NewCards(ctx, scope)
	if err != nil {
		return nil, wrapStoreError("new cards", err)
	}
	if len(fresh) == 0 {
		total, err := s.store.CountCards(ctx, scope)
		if err != nil {
			return nil, wrapStoreError("count cards", err)
		}
		return nil, s.exhausted(ctx, scope, now, total)
	}
	if !random {
		return &fresh[0], nil
	}

	candidates := s.unserved(req, fresh)
	pick := s.randomOf(candidates)
	s.markServed(req, pick.Card.ID)
	return pick, nil
}

func (s *Selector) randomDue(ctx context.Context, scope PoolScope, now int64) (*models.PoolCard, error) {
	due, err := s.store.DueCards(ctx, scope, now)
	if err != nil {
		return nil, wrapStoreError("due cards", err)
	}
	if len(due) > 0 {
		return s.randomOf(due), nil
	}

	learned, err := s.store.CountLearned(ctx, scope)
	if err != nil {
		return nil, wrapStoreError("count learned", err)
	}
	return nil, s.exhausted(ctx, scope, now, learned)
}

// hardest walks learned cards by incorrect count, each at most once per session.
func (s *Selector) hardest(ctx context.Context, scope PoolScope, req SelectRequest) (*models.PoolCard, error) {
	learned, err := s.store.LearnedCards(ctx, scope)
	if err != nil {
		return nil, wrapStoreError("learned cards", err)
	}
	if len(learned) == 0 {
		return nil, ErrEmptyPool
	}

	candidates := s.unserved(req, learned)
	pick := &candidates[0]
	s.markServed(req, pick.Card.ID)
	return pick, nil
}

func (s *Selector) cram(ctx context.Context, scope PoolScope) (*models.PoolCard, error) {
	learned, err := s.store.LearnedCards(ctx, scope)
	if err != nil {
		return nil, wrapStoreError("learned cards", err)
	}
	if len(learned) == 0 {
		return nil, ErrEmptyPool
	}
	return s.randomOf(learned), nil
}

// exhausted builds the error for a pool that produced no card.
func (s *Selector) exhausted(ctx context.Context, scope PoolScope, now int64, poolSize int) error {
	if poolSize == 0 {
		return ErrEmptyPool
	}
	next, err := s.store.NextDueTime(ctx, scope, now)
	if err != nil {
		return wrapStoreError("next due time", err)
	}
	return &NoneAvailableError{NextDue: next}
}

// unserved drops cards already served in this session. Once everything was served
// the session starts over.
func (s *Selector) unserved(req SelectRequest, pool []models.PoolCard) []models.PoolCard {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{userID: req.UserID, mode: req.Mode}
	seen := s.served[key]
	out := make([]models.PoolCard, 0, len(pool))
	for _, c := range pool {
		if _, ok := seen[c.Card.ID]; !ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.served, key)
		return pool
	}
	return out
}

func (s *Selector) markServed(req SelectRequest, cardID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{userID: req.UserID, mode: req.Mode}
	if s.served[key] == nil {
		s.served[key] = make(map[int64]struct{})
	}
	s.served[key][cardID] = struct{}{}
}

func (s *Selector) randomOf(pool []models.PoolCard) *models.PoolCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &pool[s.rng.Intn(len(pool))]
}

func (s *Selector) chance(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < p
}
