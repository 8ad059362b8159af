package spaced_repetition

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

const (
	testUserID     int64 = 1
	testProgressID int64 = 10
	testCardID     int64 = 100
	testSetID      int64 = 7
)

func newTestProcessor(store ReviewStore, logger *zap.Logger) *Processor {
	settings := DefaultSettings()
	scheduler := NewScheduler(settings)
	scheduler.now = fixedClock(testNow)
	p := NewProcessor(store, scheduler, settings, logger)
	p.now = fixedClock(testNow)
	return p
}

// seed stores a user in the given mode and one progress row.
func seed(store *reviewStoreFake, mode models.Mode, progress models.CardProgress) {
	store.users[testUserID] = &models.User{ID: testUserID, Score: 100, CurrentMode: mode}
	progress.ID = testProgressID
	progress.UserID = testUserID
	progress.FlashcardID = testCardID
	store.progress[testProgressID] = &models.ProgressWithCard{
		CardProgress: progress,
		SetID:        testSetID,
		Front:        "hola",
		Back:         "hello",
	}
}

func review(t *testing.T, p *Processor, resp models.Response) *ReviewResult {
	t.Helper()
	res, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
		UserID:     testUserID,
		ProgressID: testProgressID,
		Response:   resp,
	})
	require.NoError(t, err)
	return res
}

func learnedAt(ts int64) *int64 { return &ts }

func TestProcess_ScenarioA_NewCardContinue(t *testing.T) {
	store := newReviewStoreFake()
	seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: 0, DueTime: testNow})
	p := newTestProcessor(store, zap.NewNop())

	res := review(t, p, models.ResponseContinue)

	got := store.progress[testProgressID]
	assert.Equal(t, 0, got.ReviewCount)
	require.NotNil(t, got.LearnedDate)
	assert.Equal(t, StartOfLocalDay(testNow, 0), *got.LearnedDate)
	assert.Equal(t, testNow+600, got.DueTime)
	assert.Equal(t, testNow+600, res.NextReviewTime)
	assert.Equal(t, 0, res.ScoreDelta)
	assert.Equal(t, int64(100), store.users[testUserID].Score)
	assert.Zero(t, store.scoreWrites)
	assert.Empty(t, store.logs)
}

func TestProcess_ScenarioB_CorrectAnswer(t *testing.T) {
	store := newReviewStoreFake()
	seed(store, models.ModeSequentialInterspersed, models.CardProgress{
		ReviewCount: 7, CorrectStreak: 2, CorrectCount: 5, LearnedDate: learnedAt(testNow - 86400),
	})
	p := newTestProcessor(store, zap.NewNop())

	res := review(t, p, models.ResponseCorrect)

	got := store.progress[testProgressID]
	assert.Equal(t, 3, got.CorrectStreak)
	assert.Equal(t, 6, got.CorrectCount)
	assert.Equal(t, 8, got.ReviewCount)
	assert.Equal(t, testNow+8*3600, got.DueTime)
	assert.Equal(t, 5, res.ScoreDelta)
	assert.Equal(t, int64(105), store.users[testUserID].Score)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ReviewLogEntry{
		ID:          1,
		UserID:      testUserID,
		FlashcardID: testCardID,
		SetID:       testSetID,
		Timestamp:   testNow,
		Response:    models.ResponseCorrect,
		ScoreChange: 5,
	}, store.logs[0])
}

func TestProcess_ScenarioC_Lapse(t *testing.T) {
	store := newReviewStoreFake()
	seed(store, models.ModeSequentialInterspersed, models.CardProgress{
		ReviewCount: 4, CorrectStreak: 4, CorrectCount: 4, LapseCount: 1, IncorrectCount: 2,
	})
	p := newTestProcessor(store, zap.NewNop())

	res := review(t, p, models.ResponseWrong)

	got := store.progress[testProgressID]
	assert.Equal(t, 0, got.CorrectStreak)
	assert.Equal(t, 2, got.LapseCount)
	assert.Equal(t, 3, got.IncorrectCount)
	assert.Equal(t, 4, got.CorrectCount)
	assert.Equal(t, testNow+1800, got.DueTime)
	assert.Equal(t, 0, res.ScoreDelta)
	assert.Zero(t, store.scoreWrites)
	require.Len(t, store.logs, 1)
	assert.Equal(t, 0, store.logs[0].ScoreChange)
}

func TestProcess_ScenarioD_CramCorrect(t *testing.T) {
	store := newReviewStoreFake()
	seed(store, models.ModeCramSet, models.CardProgress{
		ReviewCount: 3, CorrectStreak: 1, CorrectCount: 2, DueTime: testNow + 5000, LearnedDate: learnedAt(testNow - 86400),
	})
	before := store.progress[testProgressID].CardProgress
	p := newTestProcessor(store, zap.NewNop())

	res := review(t, p, models.ResponseCorrect)

	got := store.progress[testProgressID].CardProgress
	assert.Equal(t, 4, got.ReviewCount)
	require.NotNil(t, got.LastReviewed)
	assert.Equal(t, testNow, *got.LastReviewed)

	got.ReviewCount = before.ReviewCount
	got.LastReviewed = before.LastReviewed
	assert.Equal(t, before, got)

	assert.True(t, res.QuickReview)
	assert.Equal(t, testNow+5000, res.NextReviewTime)
	assert.Equal(t, 1, res.ScoreDelta)
	assert.Equal(t, int64(101), store.users[testUserID].Score)
	require.Len(t, store.logs, 1)
	assert.Equal(t, 1, store.logs[0].ScoreChange)
}

func TestProcess_WrongWithoutStreakIsNotALapse(t *testing.T) {
	store := newReviewStoreFake()
	seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: 2, LapseCount: 1, IncorrectCount: 2})
	p := newTestProcessor(store, zap.NewNop())

	review(t, p, models.ResponseWrong)

	got := store.progress[testProgressID]
	assert.Equal(t, 1, got.LapseCount)
	assert.Equal(t, 3, got.IncorrectCount)
	assert.Equal(t, 0, got.CorrectStreak)
}

func TestProcess_HardResetsStreak(t *testing.T) {
	store := newReviewStoreFake()
	seed(store, models.ModeReviewAllDue, models.CardProgress{ReviewCount: 5, CorrectStreak: 5, CorrectCount: 5})
	p := newTestProcessor(store, zap.NewNop())

	res := review(t, p, models.ResponseHard)

	got := store.progress[testProgressID]
	assert.Equal(t, 0, got.CorrectStreak)
	assert.Equal(t, 0, got.LapseCount)
	assert.Equal(t, 0, got.IncorrectCount)
	assert.Equal(t, testNow+3600, got.DueTime)
	assert.Equal(t, 1, res.ScoreDelta)
	assert.Equal(t, int64(101), store.users[testUserID].Score)
}

func TestProcess_QuickReviewIsolation(t *testing.T) {
	quickModes := []models.Mode{models.ModeReviewHardest, models.ModeCramSet, models.ModeCramAll}
	responses := []models.Response{models.ResponseWrong, models.ResponseHard, models.ResponseCorrect, models.ResponseContinue}
	wantDelta := map[models.Response]int{
		models.ResponseWrong:    0,
		models.ResponseHard:     0,
		models.ResponseCorrect:  1,
		models.ResponseContinue: 0,
	}

	for _, mode := range quickModes {
		for _, resp := range responses {
			t.Run(string(mode)+"/"+resp.String(), func(t *testing.T) {
				store := newReviewStoreFake()
				seed(store, mode, models.CardProgress{
					ReviewCount:    6,
					CorrectStreak:  3,
					CorrectCount:   4,
					IncorrectCount: 2,
					LapseCount:     1,
					DueTime:        testNow + 999,
					LearnedDate:    learnedAt(testNow - 3*86400),
				})
				before := store.progress[testProgressID].CardProgress
				p := newTestProcessor(store, zap.NewNop())

				res := review(t, p, resp)
				got := store.progress[testProgressID].CardProgress

				assert.Equal(t, before.DueTime, got.DueTime)
				assert.Equal(t, before.CorrectStreak, got.CorrectStreak)
				assert.Equal(t, before.CorrectCount, got.CorrectCount)
				assert.Equal(t, before.IncorrectCount, got.IncorrectCount)
				assert.Equal(t, before.LapseCount, got.LapseCount)
				assert.Equal(t, before.LearnedDate, got.LearnedDate)
				assert.Nil(t, res.Update.DueTime)
				assert.Nil(t, res.Update.CorrectStreak)
				assert.Nil(t, res.Update.LearnedDate)
				assert.Equal(t, before.DueTime, res.NextReviewTime)
				assert.Equal(t, wantDelta[resp], res.ScoreDelta)

				if resp.IsReview() {
					assert.Equal(t, 7, got.ReviewCount)
				} else {
					assert.Equal(t, 6, got.ReviewCount)
				}
			})
		}
	}
}

func TestProcess_LearnedDateSetOnce(t *testing.T) {
	store := newReviewStoreFake()
	store.users[testUserID] = &models.User{ID: testUserID, CurrentMode: models.ModeNewSequential, TimezoneOffset: 3}
	store.progress[testProgressID] = &models.ProgressWithCard{
		CardProgress: models.CardProgress{ID: testProgressID, UserID: testUserID, FlashcardID: testCardID},
		SetID:        testSetID,
	}
	p := newTestProcessor(store, zap.NewNop())

	first := review(t, p, models.ResponseContinue)
	require.NotNil(t, first.Update.LearnedDate)
	want := StartOfLocalDay(testNow, 3)
	assert.Equal(t, want, *first.Update.LearnedDate)

	p.now = fixedClock(testNow + 3*86400)
	second := review(t, p, models.ResponseContinue)
	assert.Nil(t, second.Update.LearnedDate)
	require.NotNil(t, store.progress[testProgressID].LearnedDate)
	assert.Equal(t, want, *store.progress[testProgressID].LearnedDate)
}

func TestProcess_AuditCompleteness(t *testing.T) {
	tests := []struct {
		resp      models.Response
		wantLogs  int
		wantDelta int
	}{
		{models.ResponseWrong, 1, 0},
		{models.ResponseHard, 1, 1},
		{models.ResponseCorrect, 1, 5},
		{models.ResponseContinue, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.resp.String(), func(t *testing.T) {
			store := newReviewStoreFake()
			seed(store, models.ModeDueOnlyRandom, models.CardProgress{ReviewCount: 1, CorrectStreak: 1, CorrectCount: 1})
			p := newTestProcessor(store, zap.NewNop())

			review(t, p, tt.resp)

			require.Len(t, store.logs, tt.wantLogs)
			if tt.wantLogs == 1 {
				assert.Equal(t, tt.wantDelta, store.logs[0].ScoreChange)
				assert.Equal(t, tt.resp, store.logs[0].Response)
			}
			assert.LessOrEqual(t, store.progress[testProgressID].CorrectStreak, store.progress[testProgressID].ReviewCount)
		})
	}
}

func TestProcess_ModeResolution(t *testing.T) {
	t.Run("request mode wins", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: 1})
		p := newTestProcessor(store, zap.NewNop())

		res, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: testProgressID, Response: models.ResponseCorrect, Mode: models.ModeCramAll,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ModeCramAll, res.Mode)
		assert.True(t, res.QuickReview)
	})

	t.Run("fallback when user has none", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, "", models.CardProgress{ReviewCount: 1})
		p := newTestProcessor(store, zap.NewNop())

		res, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: testProgressID, Response: models.ResponseCorrect,
			FallbackMode: models.ModeReviewAllDue,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ModeReviewAllDue, res.Mode)
		assert.False(t, res.QuickReview)
	})

	t.Run("no mode at all", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, "", models.CardProgress{ReviewCount: 1})
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: testProgressID, Response: models.ResponseCorrect,
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Zero(t, store.progressWrites)
	})
}

func TestProcess_Errors(t *testing.T) {
	t.Run("invalid response", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{})
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: testProgressID, Response: models.Response(3),
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Zero(t, store.progressWrites)
	})

	t.Run("progress not found", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{})
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: 999, Response: models.ResponseCorrect,
		})
		assert.ErrorIs(t, err, apperrors.ErrProgressNotFound)
		assert.NotErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("progress of another user", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{})
		store.users[2] = &models.User{ID: 2}
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: 2, ProgressID: testProgressID, Response: models.ResponseCorrect,
		})
		assert.ErrorIs(t, err, apperrors.ErrProgressNotFound)
	})

	t.Run("user not found", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{})
		delete(store.users, testUserID)
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: testProgressID, Response: models.ResponseCorrect,
		})
		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		assert.NotErrorIs(t, err, apperrors.ErrProgressNotFound)
	})

	t.Run("progress write fails", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{})
		store.updateErr = errBoom
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.ProcessReviewResponse(context.Background(), ReviewRequest{
			UserID: testUserID, ProgressID: testProgressID, Response: models.ResponseCorrect,
		})
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
		assert.ErrorIs(t, err, errBoom)
		assert.Zero(t, store.scoreWrites)
		assert.Empty(t, store.logs)
	})
}

func TestProcess_SecondaryWritesAreBestEffort(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newReviewStoreFake()
	seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: 1, CorrectStreak: 1, CorrectCount: 1})
	store.scoreErr = errBoom
	store.logErr = errBoom
	p := newTestProcessor(store, zap.New(core))

	res := review(t, p, models.ResponseCorrect)

	assert.Equal(t, 1, store.progressWrites)
	assert.Equal(t, 2, store.progress[testProgressID].CorrectStreak)
	require.Len(t, res.Secondary, 2)
	assert.Equal(t, "update score", res.Secondary[0].Op)
	assert.Equal(t, "append review log", res.Secondary[1].Op)
	assert.ErrorIs(t, res.Secondary[1].Err, errBoom)

	entries := logs.FilterMessage("best-effort write failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "update score", entries[0].ContextMap()["op"])
	assert.Equal(t, testUserID, entries[0].ContextMap()["user_id"])
}

func TestSkipCard(t *testing.T) {
	for _, streak := range []int{4, 5} {
		t.Run("streak "+strconv.Itoa(streak), func(t *testing.T) {
			store := newReviewStoreFake()
			seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: streak, CorrectStreak: streak})
			p := newTestProcessor(store, zap.NewNop())

			_, err := p.SkipCard(context.Background(), testUserID, testProgressID)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.False(t, store.progress[testProgressID].IsSkipped)
		})
	}

	t.Run("above threshold", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: 6, CorrectStreak: 6})
		p := newTestProcessor(store, zap.NewNop())

		got, err := p.SkipCard(context.Background(), testUserID, testProgressID)
		require.NoError(t, err)
		assert.True(t, got.IsSkipped)
		assert.True(t, store.progress[testProgressID].IsSkipped)
	})

	t.Run("other user", func(t *testing.T) {
		store := newReviewStoreFake()
		seed(store, models.ModeSequentialInterspersed, models.CardProgress{ReviewCount: 9, CorrectStreak: 9})
		p := newTestProcessor(store, zap.NewNop())

		_, err := p.SkipCard(context.Background(), 42, testProgressID)
		assert.ErrorIs(t, err, apperrors.ErrProgressNotFound)
	})
}
