package database

import (
	"context"

	"github.com/example/cardbot/internal/excel"
	"github.com/example/cardbot/internal/scheduler"
	"github.com/example/cardbot/internal/spaced_repetition"
	"github.com/example/cardbot/pkg/models"
)

// Store groups the repositories and serves the review processor and card selector
type Store struct {
	db *DB

	Users      *UserRepository
	Sets       *SetRepository
	Cards      *CardRepository
	Progress   *ProgressRepository
	ReviewLog  *ReviewLogRepository
	Statistics *StatisticsRepository
}

var (
	_ spaced_repetition.ReviewStore = (*Store)(nil)
	_ spaced_repetition.PoolStore   = (*Store)(nil)
	_ excel.CardImporter            = (*Store)(nil)
	_ scheduler.ReminderStore       = (*Store)(nil)
)

// NewStore creates the repositories over one connection
func NewStore(db *DB) *Store {
	return &Store{
		db:         db,
		Users:      NewUserRepository(db),
		Sets:       NewSetRepository(db),
		Cards:      NewCardRepository(db),
		Progress:   NewProgressRepository(db),
		ReviewLog:  NewReviewLogRepository(db),
		Statistics: NewStatisticsRepository(db),
	}
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProgressWithCardInfo(ctx context.Context, progressID int64) (*models.ProgressWithCard, error) {
	return s.Progress.GetWithCardInfo(ctx, progressID)
}

func (s *Store) UpdateProgressByID(ctx context.Context, progressID int64, update models.ProgressUpdate) (int64, error) {
	return s.Progress.UpdateByID(ctx, progressID, update)
}

func (s *Store) SetProgressSkipped(ctx context.Context, progressID int64, skipped bool) error {
	return s.Progress.SetSkipped(ctx, progressID, skipped)
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.Users.GetByID(ctx, userID)
}

func (s *Store) UpdateUserScore(ctx context.Context, userID int64, newScore int64) (int64, error) {
	return s.Users.UpdateScore(ctx, userID, newScore)
}

func (s *Store) AppendReviewLog(ctx context.Context, entry models.ReviewLogEntry) (int64, error) {
	return s.ReviewLog.Append(ctx, entry)
}

func (s *Store) DueCards(ctx context.Context, scope spaced_repetition.PoolScope, now int64) ([]models.PoolCard, error) {
	return s.Progress.DueCards(ctx, scope.UserID, scope.SetID, now)
}

func (s *Store) NewCards(ctx context.Context, scope spaced_repetition.PoolScope) ([]models.PoolCard, error) {
	return s.Progress.NewCards(ctx, scope.UserID, scope.SetID)
}

func (s *Store) LearnedCards(ctx context.Context, scope spaced_repetition.PoolScope) ([]models.PoolCard, error) {
	return s.Progress.LearnedCards(ctx, scope.UserID, scope.SetID)
}

func (s *Store) NextDueTime(ctx context.Context, scope spaced_repetition.PoolScope, now int64) (int64, error) {
	return s.Progress.NextDueTime(ctx, scope.UserID, scope.SetID, now)
}

func (s *Store) CountCards(ctx context.Context, scope spaced_repetition.PoolScope) (int, error) {
	return s.Progress.CountCards(ctx, scope.SetID)
}

func (s *Store) CountLearned(ctx context.Context, scope spaced_repetition.PoolScope) (int, error) {
	return s.Progress.CountLearned(ctx, scope.UserID, scope.SetID)
}

func (s *Store) CreateProgress(ctx context.Context, userID, flashcardID int64, now int64) (*models.CardProgress, error) {
	return s.Progress.Create(ctx, userID, flashcardID, now)
}

// GetOrCreateSet and UpsertCard let the Excel importer write through the store
func (s *Store) GetOrCreateSet(ctx context.Context, name string) (*models.CardSet, bool, error) {
	return s.Sets.GetOrCreate(ctx, name)
}

func (s *Store) UpsertCard(ctx context.Context, card *models.Flashcard) (bool, error) {
	return s.Cards.Upsert(ctx, card)
}

// ListReminderUsers, CountDue and MarkReminded serve the reminder job
func (s *Store) ListReminderUsers(ctx context.Context) ([]models.User, error) {
	return s.Users.ListForReminders(ctx)
}

func (s *Store) CountDue(ctx context.Context, userID int64, now int64) (int, error) {
	return s.Progress.CountDue(ctx, userID, now)
}

func (s *Store) MarkReminded(ctx context.Context, userID int64, ts int64) error {
	return s.Users.MarkReminded(ctx, userID, ts)
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	return s.Users.Upsert(ctx, user)
}

func (s *Store) SetUserMode(ctx context.Context, userID int64, mode models.Mode) error {
	return s.Users.SetMode(ctx, userID, mode)
}

func (s *Store) SetUserSet(ctx context.Context, userID int64, setID *int64) error {
	return s.Users.SetCurrentSet(ctx, userID, setID)
}

func (s *Store) SetUserTimezone(ctx context.Context, userID int64, offsetHours float64) error {
	return s.Users.SetTimezone(ctx, userID, offsetHours)
}

func (s *Store) SetUserNotifications(ctx context.Context, userID int64, enabled bool) error {
	return s.Users.SetNotifications(ctx, userID, enabled)
}

func (s *Store) GetSet(ctx context.Context, setID int64) (*models.CardSet, error) {
	return s.Sets.GetByID(ctx, setID)
}

func (s *Store) ListSets(ctx context.Context) ([]models.CardSet, error) {
	return s.Sets.List(ctx)
}

func (s *Store) UserStatistics(ctx context.Context, userID, now, dayStart int64, masteredStreak int) (*models.Statistics, error) {
	return s.Statistics.GetByUser(ctx, userID, now, dayStart, masteredStreak)
}

func (s *Store) ExportRows(ctx context.Context, userID int64) ([]models.ProgressExportRow, error) {
	return s.Progress.ExportRows(ctx, userID)
}
