package spaced_repetition

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/pkg/models"
)

// ReviewStore is the persistence the review processor needs
type ReviewStore interface {
	GetProgressWithCardInfo(ctx context.Context, progressID int64) (*models.ProgressWithCard, error)
	UpdateProgressByID(ctx context.Context, progressID int64, update models.ProgressUpdate) (int64, error)
	SetProgressSkipped(ctx context.Context, progressID int64, skipped bool) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	UpdateUserScore(ctx context.Context, userID int64, newScore int64) (int64, error)
	AppendReviewLog(ctx context.Context, entry models.ReviewLogEntry) (int64, error)
}

// ReviewRequest is one answer to a shown card
type ReviewRequest struct {
	UserID     int64
	ProgressID int64
	Response   models.Response
	// Mode overrides the user's stored mode when set
	Mode models.Mode
	// FallbackMode is used when neither Mode nor the user's stored mode is set
	FallbackMode models.Mode
}

// SecondaryFailure records a best-effort write that did not go through
type SecondaryFailure struct {
	Op  string
	Err error
}

// ReviewResult is the outcome of processing an answer
type ReviewResult struct {
	Progress       models.ProgressWithCard // state after the update
	Update         models.ProgressUpdate   // fields that were written
	NextReviewTime int64
	ScoreDelta     int
	Mode           models.Mode
	QuickReview    bool
	Secondary      []SecondaryFailure
}

// Processor applies user answers to progress rows
type Processor struct {
	store     ReviewStore
	scheduler *Scheduler
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a review processor
func NewProcessor(store ReviewStore, scheduler *Scheduler, settings Settings, logger *zap.Logger) *Processor {
	return &Processor{
		store:     store,
		scheduler: scheduler,
		settings:  settings,
		logger:    logger.Named("review"),
		now:       time.Now,
	}
}

// ProcessReviewResponse applies one answer: it updates the progress row, the user's
// score and the review log. Only the progress write is fatal; score and log writes
// are best-effort and reported in ReviewResult.Secondary.
func (p *Processor) ProcessReviewResponse(ctx context.Context, req ReviewRequest) (*ReviewResult, error) {
	if !req.Response.Valid() {
		return nil, apperrors.NewValidationError("response", "must be one of -1, 0, 1, 2")
	}

	progress, err := p.store.GetProgressWithCardInfo(ctx, req.ProgressID)
	if err != nil {
		return nil, wrapStoreError("get progress", err)
	}
	if progress == nil || progress.UserID != req.UserID {
		return nil, apperrors.NewProgressNotFound(req.ProgressID)
	}

	user, err := p.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, wrapStoreError("get user", err)
	}
	if user == nil {
		return nil, apperrors.NewUserNotFound(req.UserID)
	}

	mode, err := resolveMode(req, user)
	if err != nil {
		return nil, err
	}

	now := p.now().Unix()
	quick := mode.IsQuickReview()
	delta := p.scoreDelta(quick, req.Response)

	var (
		update models.ProgressUpdate
		next   int64
	)
	if quick {
		update, next = p.quickTransition(progress.CardProgress, req.Response, now)
	} else {
		update, next = p.standardTransition(progress.CardProgress, req.Response, now, user.TimezoneOffset)
	}

	affected, err := p.store.UpdateProgressByID(ctx, progress.ID, update)
	if err != nil {
		return nil, wrapStoreError("update progress", err)
	}
	if affected == 0 {
		return nil, apperrors.NewProgressNotFound(progress.ID)
	}

	result := &ReviewResult{
		Progress:       *progress,
		Update:         update,
		NextReviewTime: next,
		ScoreDelta:     delta,
		Mode:           mode,
		QuickReview:    quick,
	}
	update.Apply(&result.Progress.CardProgress)

	logFields := []zap.Field{
		zap.Int64("user_id", req.UserID),
		zap.Int64("progress_id", progress.ID),
		zap.String("mode", string(mode)),
	}

	if delta != 0 {
		newScore := user.Score + int64(delta)
		p.attemptSecondaryWrite(result, "update score", func() error {
			_, err := p.store.UpdateUserScore(ctx, req.UserID, newScore)
			return err
		}, logFields...)
	}

	if req.Response.IsReview() {
		entry := models.ReviewLogEntry{
			UserID:      req.UserID,
			FlashcardID: progress.FlashcardID,
			SetID:       progress.SetID,
			Timestamp:   now,
			Response:    req.Response,
			ScoreChange: delta,
		}
		p.attemptSecondaryWrite(result, "append review log", func() error {
			_, err := p.store.AppendReviewLog(ctx, entry)
			return err
		}, logFields...)
	}

	p.logger.Debug("review processed",
		append(logFields,
			zap.String("response", req.Response.String()),
			zap.Int("score_delta", delta),
			zap.Int64("next_review", next),
		)...)

	return result, nil
}

// SkipCard excludes a well-known card from due-based pools. The card's correct
// streak must exceed SkipStreakThreshold.
func (p *Processor) SkipCard(ctx context.Context, userID, progressID int64) (*models.ProgressWithCard, error) {
	progress, err := p.store.GetProgressWithCardInfo(ctx, progressID)
	if err != nil {
		return nil, wrapStoreError("get progress", err)
	}
	if progress == nil || progress.UserID != userID {
		return nil, apperrors.NewProgressNotFound(progressID)
	}
	if progress.CorrectStreak <= p.settings.SkipStreakThreshold {
		return nil, apperrors.NewValidationError("correct_streak", "card is not known well enough to skip")
	}

	if err := p.store.SetProgressSkipped(ctx, progressID, true); err != nil {
		return nil, wrapStoreError("skip card", err)
	}
	progress.IsSkipped = true
	return progress, nil
}

// standardTransition implements scheduling for SRS, new-only and normal review modes.
func (p *Processor) standardTransition(cur models.CardProgress, resp models.Response, now int64, tzOffset float64) (models.ProgressUpdate, int64) {
	streak := cur.CorrectStreak
	correct := cur.CorrectCount
	incorrect := cur.IncorrectCount
	lapses := cur.LapseCount
	reviews := cur.ReviewCount
	if resp.IsReview() {
		reviews++
	}

	update := models.ProgressUpdate{
		ReviewCount:  &reviews,
		LastReviewed: &now,
	}

	var next int64
	switch resp {
	case models.ResponseCorrect:
		streak++
		correct++
		next = p.scheduler.CalculateNextReviewTime(streak, correct, now, tzOffset)
		update.CorrectStreak = &streak
		update.CorrectCount = &correct
	case models.ResponseWrong:
		if streak > 0 {
			lapses++
		}
		streak = 0
		incorrect++
		next = now + minutes(p.settings.RetryWrongMinutes)
		update.CorrectStreak = &streak
		update.IncorrectCount = &incorrect
		update.LapseCount = &lapses
	case models.ResponseHard:
		streak = 0
		next = now + minutes(p.settings.RetryHardMinutes)
		update.CorrectStreak = &streak
	case models.ResponseContinue:
		next = now + minutes(p.settings.RetryNewMinutes)
		if cur.LearnedDate == nil {
			learned := StartOfLocalDay(now, tzOffset)
			update.LearnedDate = &learned
		}
	}
	update.DueTime = &next

	return update, next
}

// quickTransition only stamps the review; the schedule stays where it was.
func (p *Processor) quickTransition(cur models.CardProgress, resp models.Response, now int64) (models.ProgressUpdate, int64) {
	reviews := cur.ReviewCount
	if resp.IsReview() {
		reviews++
	}
	return models.ProgressUpdate{
		ReviewCount:  &reviews,
		LastReviewed: &now,
	}, cur.DueTime
}

func (p *Processor) scoreDelta(quick bool, resp models.Response) int {
	switch {
	case quick && resp == models.ResponseCorrect:
		return p.settings.ScoreQuickCorrect
	case quick && resp == models.ResponseHard:
		return p.settings.ScoreQuickHard
	case !quick && resp == models.ResponseCorrect:
		return p.settings.ScoreCorrect
	case !quick && resp == models.ResponseHard:
		return p.settings.ScoreHard
	}
	return 0
}

// attemptSecondaryWrite runs a write whose failure must not fail the review.
// Failures are logged and recorded on the result.
func (p *Processor) attemptSecondaryWrite(result *ReviewResult, op string, write func() error, fields ...zap.Field) {
	err := write()
	if err == nil {
		return
	}
	p.logger.Warn("best-effort write failed",
		append(fields, zap.String("op", op), zap.Error(err))...)
	result.Secondary = append(result.Secondary, SecondaryFailure{Op: op, Err: err})
}

func resolveMode(req ReviewRequest, user *models.User) (models.Mode, error) {
	mode := req.Mode
	if mode == "" {
		mode = user.CurrentMode
	}
	if mode == "" {
		mode = req.FallbackMode
	}
	if !mode.Valid() {
		return "", apperrors.NewValidationError("mode", "unknown learning mode "+string(mode))
	}
	return mode, nil
}

// wrapStoreError keeps typed errors from the store and classifies the rest as database errors.
func wrapStoreError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewDatabaseError(op, err)
}

func minutes(n int) int64 {
	return int64(n) * 60
}
