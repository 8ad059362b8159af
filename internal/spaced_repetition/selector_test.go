package spaced_repetition

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

const (
	setA int64 = 1
	setB int64 = 2
)

func newTestSelector(store PoolStore, settings Settings) *Selector {
	s := NewSelector(store, settings, zap.NewNop())
	s.now = fixedClock(testNow)
	s.rng = rand.New(rand.NewSource(42))
	return s
}

func next(t *testing.T, s *Selector, mode models.Mode, setID int64) *Selection {
	t.Helper()
	sel, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: mode, SetID: setID})
	require.NoError(t, err)
	require.NotNil(t, sel.Progress)
	return sel
}

func TestSelector_SequentialInterspersed(t *testing.T) {
	pool := newPoolFake()
	c1 := pool.addCard(setA, "one")
	c2 := pool.addCard(setA, "two")
	c3 := pool.addCard(setA, "three")
	pool.addCard(setB, "other")
	pool.learn(c2, testNow-10, 0)
	s := newTestSelector(pool, DefaultSettings())

	sel := next(t, s, models.ModeSequentialInterspersed, setA)
	assert.Equal(t, c2, sel.Card.ID, "due card comes before new cards")
	assert.False(t, sel.IsNew)

	pool.progress[c2].DueTime = testNow + 3600
	sel = next(t, s, models.ModeSequentialInterspersed, setA)
	assert.Equal(t, c1, sel.Card.ID)
	assert.True(t, sel.IsNew)
	assert.Equal(t, testUserID, sel.Progress.UserID)
	assert.Same(t, pool.progress[c1], sel.Progress, "progress row is created on first exposure")

	learned := testNow
	pool.progress[c1].LearnedDate = &learned
	pool.progress[c1].DueTime = testNow + 600
	sel = next(t, s, models.ModeSequentialInterspersed, setA)
	assert.Equal(t, c3, sel.Card.ID)
}

func TestSelector_SequentialRandomNew(t *testing.T) {
	pool := newPoolFake()
	c1 := pool.addCard(setA, "one")
	c2 := pool.addCard(setA, "two")
	pool.learn(c2, testNow-10, 0)

	t.Run("never injects at zero rate", func(t *testing.T) {
		settings := DefaultSettings()
		settings.ReviewInjectionRate = 0
		s := newTestSelector(pool, settings)
		for i := 0; i < 20; i++ {
			assert.Equal(t, c1, next(t, s, models.ModeSequentialRandomNew, setA).Card.ID)
		}
	})

	t.Run("always injects at full rate", func(t *testing.T) {
		settings := DefaultSettings()
		settings.ReviewInjectionRate = 1
		s := newTestSelector(pool, settings)
		for i := 0; i < 20; i++ {
			assert.Equal(t, c2, next(t, s, models.ModeSequentialRandomNew, setA).Card.ID)
		}
	})

	t.Run("serves due when new cards run out", func(t *testing.T) {
		pool := newPoolFake()
		c := pool.addCard(setA, "only")
		pool.learn(c, testNow-10, 0)
		s := newTestSelector(pool, DefaultSettings())
		assert.Equal(t, c, next(t, s, models.ModeSequentialRandomNew, setA).Card.ID)
	})
}

func TestSelector_NeedsSet(t *testing.T) {
	s := newTestSelector(newPoolFake(), DefaultSettings())
	for _, mode := range []models.Mode{
		models.ModeSequentialInterspersed,
		models.ModeSequentialRandomNew,
		models.ModeDueOnlyRandom,
		models.ModeCramSet,
	} {
		_, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: mode})
		assert.ErrorIs(t, err, apperrors.ErrValidation, string(mode))
	}

	_, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: "bogus", SetID: setA})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSelector_EmptyPool(t *testing.T) {
	pool := newPoolFake()
	pool.addCard(setB, "elsewhere")
	s := newTestSelector(pool, DefaultSettings())

	for _, mode := range []models.Mode{
		models.ModeSequentialInterspersed,
		models.ModeDueOnlyRandom,
		models.ModeCramSet,
		models.ModeReviewAllDue,
		models.ModeReviewHardest,
		models.ModeCramAll,
	} {
		_, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: mode, SetID: setA})
		assert.ErrorIs(t, err, ErrEmptyPool, string(mode))
		assert.NotErrorIs(t, err, ErrNoneAvailable, string(mode))
	}
}

func TestSelector_NoneAvailableReportsNextDue(t *testing.T) {
	pool := newPoolFake()
	c1 := pool.addCard(setA, "one")
	c2 := pool.addCard(setA, "two")
	pool.learn(c1, testNow+7200, 0)
	pool.learn(c2, testNow+3600, 0)
	s := newTestSelector(pool, DefaultSettings())

	for _, mode := range []models.Mode{
		models.ModeSequentialInterspersed,
		models.ModeSequentialRandomNew,
		models.ModeNewSequential,
		models.ModeNewRandom,
		models.ModeDueOnlyRandom,
		models.ModeReviewAllDue,
	} {
		_, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: mode, SetID: setA})
		require.ErrorIs(t, err, ErrNoneAvailable, string(mode))

		var none *NoneAvailableError
		require.True(t, errors.As(err, &none))
		assert.Equal(t, testNow+3600, none.NextDue, string(mode))
	}
}

func TestSelector_NewSequentialIgnoresLearned(t *testing.T) {
	pool := newPoolFake()
	c1 := pool.addCard(setA, "one")
	c2 := pool.addCard(setB, "two")
	pool.learn(c1, testNow-10, 0)
	s := newTestSelector(pool, DefaultSettings())

	assert.Equal(t, c2, next(t, s, models.ModeNewSequential, 0).Card.ID)

	_, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: models.ModeNewSequential, SetID: setA})
	assert.ErrorIs(t, err, ErrNoneAvailable)
}

func TestSelector_NewRandomWithoutReplacement(t *testing.T) {
	pool := newPoolFake()
	ids := map[int64]bool{}
	for _, front := range []string{"a", "b", "c", "d"} {
		ids[pool.addCard(setA, front)] = true
	}
	s := newTestSelector(pool, DefaultSettings())

	seen := map[int64]bool{}
	for i := 0; i < len(ids); i++ {
		sel := next(t, s, models.ModeNewRandom, setA)
		assert.False(t, seen[sel.Card.ID], "card %d served twice", sel.Card.ID)
		seen[sel.Card.ID] = true
	}
	assert.Equal(t, ids, seen)

	// the session starts over once every card was served
	sel := next(t, s, models.ModeNewRandom, setA)
	assert.True(t, ids[sel.Card.ID])
}

func TestSelector_DueOnlyRandom(t *testing.T) {
	pool := newPoolFake()
	due1 := pool.addCard(setA, "due1")
	due2 := pool.addCard(setA, "due2")
	later := pool.addCard(setA, "later")
	skipped := pool.addCard(setA, "skipped")
	otherSet := pool.addCard(setB, "other")
	pool.addCard(setA, "unseen")
	pool.learn(due1, testNow-100, 0)
	pool.learn(due2, testNow, 0)
	pool.learn(later, testNow+100, 0)
	pool.learn(skipped, testNow-100, 0).IsSkipped = true
	pool.learn(otherSet, testNow-100, 0)
	s := newTestSelector(pool, DefaultSettings())

	for i := 0; i < 30; i++ {
		id := next(t, s, models.ModeDueOnlyRandom, setA).Card.ID
		assert.Contains(t, []int64{due1, due2}, id)
	}
}

func TestSelector_ReviewAllDueSpansSets(t *testing.T) {
	pool := newPoolFake()
	a := pool.addCard(setA, "a")
	b := pool.addCard(setB, "b")
	pool.learn(a, testNow+100, 0)
	pool.learn(b, testNow-100, 0)
	s := newTestSelector(pool, DefaultSettings())

	for i := 0; i < 10; i++ {
		assert.Equal(t, b, next(t, s, models.ModeReviewAllDue, setA).Card.ID)
	}
}

func TestSelector_ReviewHardest(t *testing.T) {
	pool := newPoolFake()
	easy := pool.addCard(setA, "easy")
	hard := pool.addCard(setB, "hard")
	medium := pool.addCard(setA, "medium")
	pool.addCard(setA, "unseen")
	pool.learn(easy, testNow+1000, 0)
	pool.learn(hard, testNow+1000, 9).IsSkipped = true
	pool.learn(medium, testNow+1000, 3)
	s := newTestSelector(pool, DefaultSettings())

	var order []int64
	for i := 0; i < 3; i++ {
		order = append(order, next(t, s, models.ModeReviewHardest, 0).Card.ID)
	}
	assert.Equal(t, []int64{hard, medium, easy}, order)

	assert.Equal(t, hard, next(t, s, models.ModeReviewHardest, 0).Card.ID, "cycle restarts")
	assert.Equal(t, medium, next(t, s, models.ModeReviewHardest, 0).Card.ID)

	s.EndSession(testUserID)
	assert.Equal(t, hard, next(t, s, models.ModeReviewHardest, 0).Card.ID)
}

func TestSelector_Cram(t *testing.T) {
	pool := newPoolFake()
	a1 := pool.addCard(setA, "a1")
	a2 := pool.addCard(setA, "a2")
	b1 := pool.addCard(setB, "b1")
	pool.addCard(setA, "unseen")
	pool.learn(a1, testNow+5000, 0)
	pool.learn(a2, testNow+9000, 0).IsSkipped = true
	pool.learn(b1, testNow+5000, 0)
	s := newTestSelector(pool, DefaultSettings())

	setSeen := map[int64]bool{}
	allSeen := map[int64]bool{}
	for i := 0; i < 60; i++ {
		setSeen[next(t, s, models.ModeCramSet, setA).Card.ID] = true
		allSeen[next(t, s, models.ModeCramAll, setA).Card.ID] = true
	}
	assert.Equal(t, map[int64]bool{a1: true, a2: true}, setSeen)
	assert.Equal(t, map[int64]bool{a1: true, a2: true, b1: true}, allSeen)
}

func TestSelector_StoreErrorsAreDatabaseErrors(t *testing.T) {
	pool := newPoolFake()
	pool.addCard(setA, "one")
	pool.err = errBoom
	s := newTestSelector(pool, DefaultSettings())

	_, err := s.Next(context.Background(), SelectRequest{UserID: testUserID, Mode: models.ModeCramAll})
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.ErrorIs(t, err, errBoom)
}
