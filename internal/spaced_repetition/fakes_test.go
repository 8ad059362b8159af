package spaced_repetition

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

const testNow int64 = 1_700_000_000

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

var errBoom = errors.New("disk I/O error")

// reviewStoreFake keeps one copy of every row and records writes.
type reviewStoreFake struct {
	progress map[int64]*models.ProgressWithCard
	users    map[int64]*models.User
	logs     []models.ReviewLogEntry

	progressWrites int
	scoreWrites    int

	updateErr error
	scoreErr  error
	logErr    error
}

func newReviewStoreFake() *reviewStoreFake {
	return &reviewStoreFake{
		progress: make(map[int64]*models.ProgressWithCard),
		users:    make(map[int64]*models.User),
	}
}

func (f *reviewStoreFake) GetProgressWithCardInfo(_ context.Context, progressID int64) (*models.ProgressWithCard, error) {
	p, ok := f.progress[progressID]
	if !ok {
		return nil, apperrors.NewProgressNotFound(progressID)
	}
	cp := *p
	return &cp, nil
}

func (f *reviewStoreFake) UpdateProgressByID(_ context.Context, progressID int64, update models.ProgressUpdate) (int64, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	p, ok := f.progress[progressID]
	if !ok {
		return 0, nil
	}
	f.progressWrites++
	update.Apply(&p.CardProgress)
	return 1, nil
}

func (f *reviewStoreFake) SetProgressSkipped(_ context.Context, progressID int64, skipped bool) error {
	p, ok := f.progress[progressID]
	if !ok {
		return apperrors.NewProgressNotFound(progressID)
	}
	p.IsSkipped = skipped
	return nil
}

func (f *reviewStoreFake) GetUser(_ context.Context, userID int64) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, apperrors.NewUserNotFound(userID)
	}
	cp := *u
	return &cp, nil
}

func (f *reviewStoreFake) UpdateUserScore(_ context.Context, userID int64, newScore int64) (int64, error) {
	if f.scoreErr != nil {
		return 0, f.scoreErr
	}
	f.scoreWrites++
	f.users[userID].Score = newScore
	return 1, nil
}

func (f *reviewStoreFake) AppendReviewLog(_ context.Context, entry models.ReviewLogEntry) (int64, error) {
	if f.logErr != nil {
		return 0, f.logErr
	}
	entry.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, entry)
	return entry.ID, nil
}

// poolFake is an in-memory card pool for a single user.
type poolFake struct {
	cards    []models.Flashcard
	progress map[int64]*models.CardProgress // keyed by card ID
	nextID   int64
	err      error
}

func newPoolFake() *poolFake {
	return &poolFake{progress: make(map[int64]*models.CardProgress)}
}

func (f *poolFake) addCard(setID int64, front string) int64 {
	id := int64(len(f.cards) + 1)
	f.cards = append(f.cards, models.Flashcard{ID: id, SetID: setID, Front: front, Back: front + "-back"})
	return id
}

// learn marks a card as seen with the given due time and incorrect count.
func (f *poolFake) learn(cardID, due int64, incorrect int) *models.CardProgress {
	f.nextID++
	learned := due - 86400
	p := &models.CardProgress{
		ID:             f.nextID,
		UserID:         1,
		FlashcardID:    cardID,
		DueTime:        due,
		LearnedDate:    &learned,
		IncorrectCount: incorrect,
	}
	f.progress[cardID] = p
	return p
}

func (f *poolFake) inScope(c models.Flashcard, scope PoolScope) bool {
	return scope.SetID == 0 || c.SetID == scope.SetID
}

func (f *poolFake) DueCards(_ context.Context, scope PoolScope, now int64) ([]models.PoolCard, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PoolCard
	for _, c := range f.cards {
		p := f.progress[c.ID]
		if f.inScope(c, scope) && p != nil && p.IsLearned() && !p.IsSkipped && p.IsDue(now) {
			out = append(out, models.PoolCard{Card: c, Progress: p})
		}
	}
	return out, nil
}

func (f *poolFake) NewCards(_ context.Context, scope PoolScope) ([]models.PoolCard, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PoolCard
	for _, c := range f.cards {
		p := f.progress[c.ID]
		if f.inScope(c, scope) && (p == nil || !p.IsLearned()) {
			out = append(out, models.PoolCard{Card: c, Progress: p})
		}
	}
	return out, nil
}

func (f *poolFake) LearnedCards(_ context.Context, scope PoolScope) ([]models.PoolCard, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PoolCard
	for _, c := range f.cards {
		p := f.progress[c.ID]
		if f.inScope(c, scope) && p != nil && p.IsLearned() {
			out = append(out, models.PoolCard{Card: c, Progress: p})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Progress.IncorrectCount > out[j].Progress.IncorrectCount
	})
	return out, nil
}

func (f *poolFake) NextDueTime(_ context.Context, scope PoolScope, now int64) (int64, error) {
	var next int64
	for _, c := range f.cards {
		p := f.progress[c.ID]
		if !f.inScope(c, scope) || p == nil || !p.IsLearned() || p.IsSkipped || p.DueTime <= now {
			continue
		}
		if next == 0 || p.DueTime < next {
			next = p.DueTime
		}
	}
	return next, nil
}

func (f *poolFake) CountCards(_ context.Context, scope PoolScope) (int, error) {
	n := 0
	for _, c := range f.cards {
		if f.inScope(c, scope) {
			n++
		}
	}
	return n, nil
}

func (f *poolFake) CountLearned(_ context.Context, scope PoolScope) (int, error) {
	n := 0
	for _, c := range f.cards {
		if p := f.progress[c.ID]; f.inScope(c, scope) && p != nil && p.IsLearned() {
			n++
		}
	}
	return n, nil
}

func (f *poolFake) CreateProgress(_ context.Context, userID, flashcardID int64, now int64) (*models.CardProgress, error) {
	if p, ok := f.progress[flashcardID]; ok {
		return p, nil
	}
	f.nextID++
	p := &models.CardProgress{ID: f.nextID, UserID: userID, FlashcardID: flashcardID, DueTime: now}
	f.progress[flashcardID] = p
	return p, nil
}
