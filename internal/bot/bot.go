package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/cardbot/internal/excel"
	"github.com/example/cardbot/internal/spaced_repetition"
	"github.com/example/cardbot/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Sender is the part of the Telegram API the bot uses. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// Repository represents the interface for accessing data for the bot
type Repository interface {
	excel.CardImporter

	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	SetUserMode(ctx context.Context, userID int64, mode models.Mode) error
	SetUserSet(ctx context.Context, userID int64, setID *int64) error
	SetUserTimezone(ctx context.Context, userID int64, offsetHours float64) error
	SetUserNotifications(ctx context.Context, userID int64, enabled bool) error
	GetProgressWithCardInfo(ctx context.Context, progressID int64) (*models.ProgressWithCard, error)
	GetSet(ctx context.Context, setID int64) (*models.CardSet, error)
	ListSets(ctx context.Context) ([]models.CardSet, error)
	UserStatistics(ctx context.Context, userID, now, dayStart int64, masteredStreak int) (*models.Statistics, error)
	ExportRows(ctx context.Context, userID int64) ([]models.ProgressExportRow, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	api       Sender
	repo      Repository
	processor *spaced_repetition.Processor
	selector  *spaced_repetition.Selector
	config    *BotConfig
	logger    *zap.Logger
	now       func() time.Time
	download  func(ctx context.Context, url string) (io.ReadCloser, error)

	adminUserIDs map[int64]bool

	mu                 sync.Mutex
	lastShown          map[int64]int64 // user -> progress ID of the last card shown
	awaitingFileUpload map[int64]bool
	userLocks          map[int64]*sync.Mutex

	maxUploadSize int64

	wg sync.WaitGroup
}

// Limits for importing an uploaded file
const (
	defaultMaxUploadSize = 10 << 20
	downloadTimeout      = 30 * time.Second
)

var downloadClient = &http.Client{Timeout: downloadTimeout}

// New creates a new bot instance
func New(
	api Sender,
	repo Repository,
	processor *spaced_repetition.Processor,
	selector *spaced_repetition.Selector,
	config *BotConfig,
	logger *zap.Logger,
) *Bot {
	if config == nil {
		config = DefaultConfig()
	}

	b := &Bot{
		api:                api,
		repo:               repo,
		processor:          processor,
		selector:           selector,
		config:             config,
		logger:             logger.Named("bot"),
		now:                time.Now,
		download:           httpDownload,
		adminUserIDs:       make(map[int64]bool),
		lastShown:          make(map[int64]int64),
		awaitingFileUpload: make(map[int64]bool),
		userLocks:          make(map[int64]*sync.Mutex),
		maxUploadSize:      defaultMaxUploadSize,
	}
	for _, id := range config.AdminIDs {
		b.adminUserIDs[id] = true
	}
	return b
}

// Start receives updates until ctx is cancelled, then waits for in-flight handlers
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout

	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("receiving updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(userID int64, count int) error {
	word := "cards"
	if count == 1 {
		word = "card"
	}

	// Private chats share the user's ID
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf("You have %d %s to review.", count, word))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "Start learning", CallbackData: callbackNext}}})
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	return nil
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.adminUserIDs[userID]
}

// lockUser serializes updates of one user. Different users proceed in parallel.
func (b *Bot) lockUser(userID int64) func() {
	b.mu.Lock()
	l, ok := b.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		b.userLocks[userID] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		defer b.lockUser(cb.From.ID)()

		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Debug("answer callback", zap.Error(err))
		}
		if err := b.HandleCallback(ctx, cb.From.ID, cb.Message.Chat.ID, cb.Data); err != nil {
			b.replyError(cb.Message.Chat.ID, cb.From.ID, err)
		}

	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil {
			return
		}
		defer b.lockUser(msg.From.ID)()

		var err error
		switch {
		case msg.IsCommand():
			err = b.HandleCommand(ctx, msg)
		case msg.Document != nil && b.takeAwaitingUpload(msg.From.ID):
			err = b.handleDocument(ctx, msg)
		default:
			err = b.reply(msg.Chat.ID, "I don't understand. Send /help to see the commands.")
		}
		if err != nil {
			b.replyError(msg.Chat.ID, msg.From.ID, err)
		}
	}
}

// Callback data
const (
	callbackNext   = "n"
	callbackAnswer = "a"
	callbackReveal = "s"
)

// parseAnswer parses "a:<progress_id>:<response>"
func parseAnswer(data string) (int64, models.Response, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackAnswer {
		return 0, 0, fmt.Errorf("malformed answer callback %q", data)
	}
	progressID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || progressID <= 0 {
		return 0, 0, fmt.Errorf("malformed progress ID in %q", data)
	}
	resp, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed response in %q", data)
	}
	return progressID, models.Response(resp), nil
}

// parseReveal parses "s:<progress_id>"
func parseReveal(data string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, callbackReveal+":"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed reveal callback %q", data)
	}
	return id, nil
}

func answerData(progressID int64, resp models.Response) string {
	return fmt.Sprintf("%s:%d:%d", callbackAnswer, progressID, int(resp))
}

func (b *Bot) reply(chatID int64, text string) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) rememberShown(userID, progressID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastShown[userID] = progressID
}

func (b *Bot) shown(userID int64) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.lastShown[userID]
	return id, ok
}

func (b *Bot) setAwaitingUpload(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.awaitingFileUpload[userID] = true
}

func (b *Bot) takeAwaitingUpload(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	waiting := b.awaitingFileUpload[userID]
	delete(b.awaitingFileUpload, userID)
	return waiting
}

func httpDownload(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return resp.Body, nil
}
