package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/cardbot/internal/apperrors"
	"github.com/example/cardbot/internal/excel"
	"github.com/example/cardbot/internal/spaced_repetition"
	"github.com/example/cardbot/pkg/models"
)

// userError is shown to the user verbatim
type userError string

func (e userError) Error() string { return string(e) }

const helpText = `Commands:
/learn - next card
/mode [name] - show or change the learning mode
/sets - list card sets
/set <id> - pick the current set (/set none to clear)
/tz <hours> - your UTC offset, e.g. /tz 3 or /tz -5.5
/stats - your progress
/skip - stop reviewing the last card once you know it well
/export - download your progress as a spreadsheet
/notify on|off - due card reminders`

// modeFamilies orders the /mode listing
var modeFamilies = []struct {
	family models.ModeFamily
	title  string
}{
	{models.FamilySRS, "Spaced repetition"},
	{models.FamilyNewOnly, "New cards only"},
	{models.FamilyReview, "Review"},
}

var modeDescriptions = map[models.Mode]string{
	models.ModeSequentialInterspersed: "due reviews first, then new cards in order",
	models.ModeSequentialRandomNew:    "new cards in order with random due reviews mixed in",
	models.ModeNewSequential:          "only new cards, in order",
	models.ModeNewRandom:              "only new cards, shuffled",
	models.ModeDueOnlyRandom:          "due cards of the current set, shuffled",
	models.ModeReviewAllDue:           "due cards of every set, shuffled",
	models.ModeReviewHardest:          "learned cards you miss most, no scheduling",
	models.ModeCramSet:                "random learned cards of the current set, no scheduling",
	models.ModeCramAll:                "random learned cards of every set, no scheduling",
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(ctx, message)
	case "help":
		err = b.reply(message.Chat.ID, helpText)
	case "learn":
		err = b.showNext(ctx, message.Chat.ID, message.From.ID)
	case "mode":
		err = b.handleMode(ctx, message)
	case "sets":
		err = b.handleListSets(ctx, message)
	case "set":
		err = b.handleSetCommand(ctx, message)
	case "tz":
		err = b.handleTimezone(ctx, message)
	case "stats":
		err = b.handleStats(ctx, message)
	case "skip":
		err = b.handleSkip(ctx, message)
	case "export":
		err = b.handleExport(ctx, message)
	case "import":
		err = b.handleImportCommand(message)
	case "notify":
		err = b.handleNotifyCommand(ctx, message)
	default:
		err = b.reply(message.Chat.ID, "Unknown command. Send /help to see the commands.")
	}
	return err
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, userID, chatID int64, data string) error {
	switch {
	case data == callbackNext:
		return b.showNext(ctx, chatID, userID)
	case strings.HasPrefix(data, callbackAnswer+":"):
		progressID, resp, err := parseAnswer(data)
		if err != nil {
			b.logger.Debug("bad callback", zap.String("data", data), zap.Error(err))
			return userError("Unknown action.")
		}
		return b.handleAnswer(ctx, chatID, userID, progressID, resp)
	case strings.HasPrefix(data, callbackReveal+":"):
		progressID, err := parseReveal(data)
		if err != nil {
			return userError("Unknown action.")
		}
		return b.handleReveal(ctx, chatID, userID, progressID)
	}
	return userError("Unknown action.")
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	user := &models.User{
		ID:                   message.From.ID,
		Username:             message.From.UserName,
		FirstName:            message.From.FirstName,
		IsAdmin:              b.isAdmin(message.From.ID),
		TimezoneOffset:       b.config.DefaultTimezone,
		CurrentMode:          b.config.DefaultMode,
		NotificationsEnabled: true,
		CreatedAt:            b.now().Unix(),
	}
	if err := b.repo.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	text := fmt.Sprintf("Hi %s! I help you memorize flashcards with spaced repetition.\n\n%s",
		user.FirstName, helpText)
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "Start learning", CallbackData: callbackNext}},
	})
	return b.sendMessage(msg)
}

// showNext selects and sends the next card of the user's session
func (b *Bot) showNext(ctx context.Context, chatID, userID int64) error {
	user, err := b.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	mode := b.userMode(user)
	var setID int64
	if user.CurrentSetID != nil {
		setID = *user.CurrentSetID
	}
	if mode.NeedsSet() && setID == 0 {
		return userError("Pick a set first: /sets")
	}

	sel, err := b.selector.Next(ctx, spaced_repetition.SelectRequest{UserID: userID, Mode: mode, SetID: setID})
	if err != nil {
		return err
	}
	b.rememberShown(userID, sel.Progress.ID)

	var msg tgbotapi.MessageConfig
	if sel.IsNew {
		text := fmt.Sprintf("New card\n\n%s → %s", sel.Card.Front, sel.Card.Back)
		if sel.Card.Example != "" {
			text += "\n\n" + sel.Card.Example
		}
		msg = tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = createKeyboard([][]MenuButton{
			{{Text: "Continue", CallbackData: answerData(sel.Progress.ID, models.ResponseContinue)}},
		})
	} else {
		msg = tgbotapi.NewMessage(chatID, sel.Card.Front)
		msg.ReplyMarkup = createKeyboard([][]MenuButton{
			{{Text: "Show answer", CallbackData: fmt.Sprintf("%s:%d", callbackReveal, sel.Progress.ID)}},
		})
	}
	return b.sendMessage(msg)
}

func (b *Bot) handleReveal(ctx context.Context, chatID, userID, progressID int64) error {
	progress, err := b.repo.GetProgressWithCardInfo(ctx, progressID)
	if err != nil {
		return err
	}
	if progress.UserID != userID {
		return apperrors.NewProgressNotFound(progressID)
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s → %s", progress.Front, progress.Back))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{
		{Text: "Wrong", CallbackData: answerData(progressID, models.ResponseWrong)},
		{Text: "Hard", CallbackData: answerData(progressID, models.ResponseHard)},
		{Text: "Correct", CallbackData: answerData(progressID, models.ResponseCorrect)},
	}})
	return b.sendMessage(msg)
}

func (b *Bot) handleAnswer(ctx context.Context, chatID, userID, progressID int64, resp models.Response) error {
	res, err := b.processor.ProcessReviewResponse(ctx, spaced_repetition.ReviewRequest{
		UserID:       userID,
		ProgressID:   progressID,
		Response:     resp,
		FallbackMode: b.config.DefaultMode,
	})
	if err != nil {
		return err
	}

	if err := b.reply(chatID, b.feedback(res, resp)); err != nil {
		return err
	}
	return b.showNext(ctx, chatID, userID)
}

// feedback describes the outcome of an answer
func (b *Bot) feedback(res *spaced_repetition.ReviewResult, resp models.Response) string {
	var sb strings.Builder
	switch resp {
	case models.ResponseContinue:
		sb.WriteString("Got it.")
	case models.ResponseCorrect:
		sb.WriteString("Correct!")
	case models.ResponseHard:
		sb.WriteString("Hard, but done.")
	case models.ResponseWrong:
		sb.WriteString(fmt.Sprintf("Wrong. %s → %s", res.Progress.Front, res.Progress.Back))
	}
	if res.ScoreDelta > 0 {
		sb.WriteString(fmt.Sprintf(" +%d", res.ScoreDelta))
	}
	if !res.QuickReview && res.NextReviewTime > 0 {
		wait := time.Duration(res.NextReviewTime-b.now().Unix()) * time.Second
		sb.WriteString(fmt.Sprintf("\nNext review in %s.", formatWait(wait)))
	}
	return sb.String()
}

func (b *Bot) handleMode(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.repo.GetUser(ctx, message.From.ID)
	if err != nil {
		return err
	}

	arg := strings.TrimSpace(message.CommandArguments())
	if arg == "" {
		current := b.userMode(user)
		var sb strings.Builder
		sb.WriteString("Learning modes:\n")
		for _, f := range modeFamilies {
			sb.WriteString("\n" + f.title + ":\n")
			for _, m := range models.AllModes {
				if m.Family() != f.family {
					continue
				}
				marker := "  "
				if m == current {
					marker = "• "
				}
				sb.WriteString(fmt.Sprintf("%s%s - %s\n", marker, m, modeDescriptions[m]))
			}
		}
		sb.WriteString("\nChange it with /mode <name>.")
		return b.reply(message.Chat.ID, sb.String())
	}

	mode, err := models.ParseMode(arg)
	if err != nil {
		return userError(fmt.Sprintf("Unknown mode %q. Send /mode to see the list.", arg))
	}
	if err := b.repo.SetUserMode(ctx, user.ID, mode); err != nil {
		return err
	}
	b.selector.EndSession(user.ID)

	text := fmt.Sprintf("Mode set to %s.", mode)
	if mode.NeedsSet() && user.CurrentSetID == nil {
		text += " This mode needs a set: /sets"
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleListSets(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.repo.GetUser(ctx, message.From.ID)
	if err != nil {
		return err
	}
	sets, err := b.repo.ListSets(ctx)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return b.reply(message.Chat.ID, "There are no card sets yet.")
	}

	var sb strings.Builder
	sb.WriteString("Card sets:\n")
	for _, set := range sets {
		marker := "  "
		if user.CurrentSetID != nil && *user.CurrentSetID == set.ID {
			marker = "• "
		}
		sb.WriteString(fmt.Sprintf("%s%d. %s\n", marker, set.ID, set.Name))
	}
	sb.WriteString("\nPick one with /set <id>.")
	return b.reply(message.Chat.ID, sb.String())
}

func (b *Bot) handleSetCommand(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	if _, err := b.repo.GetUser(ctx, userID); err != nil {
		return err
	}

	arg := strings.TrimSpace(message.CommandArguments())
	if strings.EqualFold(arg, "none") {
		if err := b.repo.SetUserSet(ctx, userID, nil); err != nil {
			return err
		}
		b.selector.EndSession(userID)
		return b.reply(message.Chat.ID, "Current set cleared.")
	}

	setID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || setID <= 0 {
		return userError("Usage: /set <id>. Send /sets to see the ids.")
	}
	set, err := b.repo.GetSet(ctx, setID)
	if apperrors.IsNotFound(err) {
		return userError(fmt.Sprintf("There is no set %d.", setID))
	}
	if err != nil {
		return err
	}

	if err := b.repo.SetUserSet(ctx, userID, &set.ID); err != nil {
		return err
	}
	b.selector.EndSession(userID)
	return b.reply(message.Chat.ID, fmt.Sprintf("Current set: %s.", set.Name))
}

func (b *Bot) handleTimezone(ctx context.Context, message *tgbotapi.Message) error {
	offset, err := parseTimezone(message.CommandArguments())
	if err != nil {
		return userError("Usage: /tz <hours>, between -12 and 14, e.g. /tz 3 or /tz -5.5")
	}
	if err := b.repo.SetUserTimezone(ctx, message.From.ID, offset); err != nil {
		return err
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("Timezone set to UTC%+g.", offset))
}

func parseTimezone(arg string) (float64, error) {
	arg = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(arg)), "UTC")
	offset, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, err
	}
	if offset < -12 || offset > 14 {
		return 0, fmt.Errorf("offset %v out of range", offset)
	}
	return offset, nil
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.repo.GetUser(ctx, message.From.ID)
	if err != nil {
		return err
	}

	now := b.now().Unix()
	dayStart := spaced_repetition.StartOfLocalDay(now, user.TimezoneOffset)
	stats, err := b.repo.UserStatistics(ctx, user.ID, now, dayStart, b.config.SkipStreakThreshold)
	if err != nil {
		return err
	}

	text := "📊 Your progress\n\n" +
		fmt.Sprintf("Score: %d\n", stats.Score) +
		fmt.Sprintf("Cards learned: %d\n", stats.CardsLearned) +
		fmt.Sprintf("Known well: %d\n", stats.Mastered) +
		fmt.Sprintf("Skipped: %d\n", stats.Skipped) +
		fmt.Sprintf("Due now: %d\n", stats.DueNow) +
		fmt.Sprintf("Reviews today: %d (total %d)\n", stats.ReviewsToday, stats.TotalReviews) +
		fmt.Sprintf("Lapses: %d\n", stats.TotalLapses) +
		fmt.Sprintf("Mode: %s", b.userMode(user))
	if stats.NextDueTime > now {
		text += fmt.Sprintf("\nNext review in %s", formatWait(time.Duration(stats.NextDueTime-now)*time.Second))
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleSkip(ctx context.Context, message *tgbotapi.Message) error {
	progressID, ok := b.shown(message.From.ID)
	if !ok {
		return userError("Nothing to skip. Send /learn first.")
	}

	progress, err := b.processor.SkipCard(ctx, message.From.ID, progressID)
	if errors.Is(err, apperrors.ErrValidation) {
		return userError(fmt.Sprintf("Answer a card correctly more than %d times in a row before skipping it.",
			b.config.SkipStreakThreshold))
	}
	if err != nil {
		return err
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("Skipped %q. It won't come up in due reviews anymore.", progress.Front))
}

func (b *Bot) handleExport(ctx context.Context, message *tgbotapi.Message) error {
	rows, err := b.repo.ExportRows(ctx, message.From.ID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return b.reply(message.Chat.ID, "Nothing to export yet. Send /learn to start.")
	}

	var buf bytes.Buffer
	if err := excel.ExportProgress(&buf, rows); err != nil {
		return fmt.Errorf("failed to export progress: %w", err)
	}

	doc := tgbotapi.NewDocument(message.Chat.ID, tgbotapi.FileBytes{Name: "progress.xlsx", Bytes: buf.Bytes()})
	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("failed to send export: %w", err)
	}
	return nil
}

func (b *Bot) handleImportCommand(message *tgbotapi.Message) error {
	if !b.isAdmin(message.From.ID) {
		return b.reply(message.Chat.ID, "This command is only available for administrators.")
	}

	b.setAwaitingUpload(message.From.ID)
	return b.reply(message.Chat.ID, "Send an .xlsx or .csv file with the columns front, back, example, set.")
}

// handleDocument imports an uploaded card file
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	doc := message.Document
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return fmt.Errorf("failed to get file URL: %w", err)
	}
	body, err := b.download(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, b.maxUploadSize+1))
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	if int64(len(data)) > b.maxUploadSize {
		return userError(fmt.Sprintf("The file is too large, the limit is %d MB.", b.maxUploadSize>>20))
	}

	config := excel.DefaultImportConfig()
	config.FileName = doc.FileName
	config.Reader = bytes.NewReader(data)

	result, err := excel.ImportCards(ctx, config, b.repo)
	if err != nil {
		b.logger.Warn("import failed", zap.String("file", doc.FileName), zap.Error(err))
		return userError("Could not read the file: " + err.Error())
	}
	b.logger.Info("cards imported",
		zap.String("file", doc.FileName),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", len(result.Errors)),
	)
	return b.reply(message.Chat.ID, importSummary(result))
}

func importSummary(result *excel.ImportResult) string {
	text := "Import finished\n\n" +
		fmt.Sprintf("Rows: %d\n", result.TotalProcessed) +
		fmt.Sprintf("New sets: %d\n", result.SetsCreated) +
		fmt.Sprintf("New cards: %d\n", result.Created) +
		fmt.Sprintf("Updated cards: %d\n", result.Updated) +
		fmt.Sprintf("Skipped rows: %d", result.Skipped)

	const maxShown = 10
	if len(result.Errors) > 0 {
		text += "\n\nProblems:\n"
		for i, e := range result.Errors {
			if i == maxShown {
				text += fmt.Sprintf("... and %d more", len(result.Errors)-maxShown)
				break
			}
			text += e + "\n"
		}
	}
	return text
}

func (b *Bot) handleNotifyCommand(ctx context.Context, message *tgbotapi.Message) error {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(message.CommandArguments())) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return userError("Usage: /notify on|off")
	}

	if err := b.repo.SetUserNotifications(ctx, message.From.ID, enabled); err != nil {
		return err
	}
	return b.reply(message.Chat.ID, "Reminders "+boolToEnabledString(enabled)+".")
}

func boolToEnabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func (b *Bot) userMode(user *models.User) models.Mode {
	if user.CurrentMode.Valid() {
		return user.CurrentMode
	}
	return b.config.DefaultMode
}

// replyError tells the user what went wrong
func (b *Bot) replyError(chatID, userID int64, err error) {
	var none *spaced_repetition.NoneAvailableError
	var uerr userError

	var text string
	switch {
	case errors.As(err, &uerr):
		text = string(uerr)
	case errors.Is(err, spaced_repetition.ErrEmptyPool):
		text = "There are no cards to learn here. Pick a set with /sets or another mode with /mode."
	case errors.As(err, &none):
		text = "All caught up!"
		if wait := time.Duration(none.NextDue-b.now().Unix()) * time.Second; none.NextDue > 0 && wait > 0 {
			text += fmt.Sprintf(" The next card is due in %s.", formatWait(wait))
		}
	case errors.Is(err, apperrors.ErrUserNotFound):
		text = "Send /start first."
	default:
		switch kind := apperrors.KindOf(err); kind {
		case apperrors.KindNotFound:
			text = "That card is no longer available. Send /learn to continue."
		case apperrors.KindValidation:
			text = "That request is not valid. Send /help to see the commands."
		default:
			b.logger.Error("request failed",
				zap.Int64("user_id", userID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			text = "Something went wrong, please try again later."
		}
	}

	if sendErr := b.reply(chatID, text); sendErr != nil {
		b.logger.Warn("send error reply", zap.Int64("user_id", userID), zap.Error(sendErr))
	}
}

// formatWait renders a duration the way a person would say it
func formatWait(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%d h", int(d.Round(time.Hour).Hours()))
	}
	return fmt.Sprintf("%d days", int(d.Hours()/24))
}
