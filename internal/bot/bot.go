package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dayplanner/internal/apperr"
	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/observability"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
)

const (
	menuLabelToday     = "📋 Сегодня"
	menuLabelWeek      = "🗓 Неделя"
	menuLabelRecurring = "♻️ Регулярные"
	menuLabelHelp      = "ℹ️ Помощь"
)

// telegram is the part of the Bot API the bot uses.
type telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api     telegram
	users   *service.UserService
	tasks   *service.TaskService
	digest  *service.DigestService
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Deps are the services the bot talks to. Digest may be nil when the
// morning digest is disabled.
type Deps struct {
	Users   *service.UserService
	Tasks   *service.TaskService
	Digest  *service.DigestService
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, deps)
	b.logger.Info("bot authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(api telegram, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:     api,
		users:   deps.Users,
		tasks:   deps.Tasks,
		digest:  deps.Digest,
		metrics: deps.Metrics,
		logger:  logger.With("component", "bot"),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Error("handle message", "error", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if msg.IsCommand() {
		b.logger.Debug("command", "telegram_id", msg.From.ID, "command", msg.Command())
		return b.handleCommand(ctx, msg)
	}
	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}
	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Добавь задачу через /add текст или загляни в /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		return b.handleStart(chatID, msg.From)
	case "help":
		return b.sendText(chatID, helpText)
	case "today":
		return b.sendDay(ctx, chatID, user, nil)
	case "day":
		return b.handleDay(ctx, chatID, user, args)
	case "week":
		return b.handleWeek(ctx, chatID, user)
	case "add":
		return b.handleAdd(ctx, chatID, user, args)
	case "done":
		return b.handleDone(ctx, chatID, user, args, true)
	case "undo":
		return b.handleDone(ctx, chatID, user, args, false)
	case "move":
		return b.handleMove(ctx, chatID, user, args)
	case "date":
		return b.handleDate(ctx, chatID, user, args)
	case "rename":
		return b.handleRename(ctx, chatID, user, args)
	case "delete":
		return b.handleDelete(ctx, chatID, user, args)
	case "recurring":
		return b.handleRecurring(ctx, chatID, user)
	case "stop":
		return b.handleStop(ctx, chatID, user, args)
	case "tz":
		return b.handleTimezone(ctx, chatID, user, args)
	default:
		return b.sendText(chatID, "Команда не поддерживается. Загляни в /help.")
	}
}

const helpText = "ℹ️ <b>Подсказки</b>\n" +
	"• /today — задачи на сегодня\n" +
	"• /day &lt;дата&gt; — задачи на день (2024-03-15, 15.03.2024, завтра)\n" +
	"• /week — ближайшие 7 дней\n" +
	"• /add &lt;текст&gt; [@дата] — добавить задачу; окончание every day / every week / every other week / every month / every year делает её регулярной\n" +
	"• /done &lt;id&gt;, /undo &lt;id&gt; — отметить выполненной или вернуть\n" +
	"• /move &lt;id&gt; &lt;место&gt; — переставить задачу в списке дня\n" +
	"• /date &lt;id&gt; &lt;дата&gt; — перенести на другой день\n" +
	"• /rename &lt;id&gt; &lt;текст&gt; — переименовать\n" +
	"• /delete &lt;id&gt; [all] — удалить; с all — и все будущие повторы\n" +
	"• /recurring — регулярные задачи, /stop &lt;id&gt; — удалить регулярную\n" +
	"• /tz &lt;зона&gt; — часовой пояс, например /tz Europe/Moscow"

func (b *Bot) handleStart(chatID int64, from *tgbotapi.User) error {
	name := strings.TrimSpace(from.FirstName)
	if name == "" {
		name = "друг"
	}
	text := fmt.Sprintf("👋 Привет, %s!\n<b>Я ежедневный планировщик: невыполненное сам перенесу на сегодня.</b>\n\n%s",
		escape(name), helpText)
	return b.sendText(chatID, text)
}

func (b *Bot) today(user *model.User) calendar.Date {
	today, err := b.tasks.Today(user)
	if err != nil {
		// Stored zones are validated, so this only guards legacy rows.
		return calendar.Today(time.Now(), time.UTC)
	}
	return today
}

func (b *Bot) handleDay(ctx context.Context, chatID int64, user *model.User, args string) error {
	if args == "" {
		return b.sendText(chatID, "Укажи дату: /day 2024-03-15")
	}
	d, err := parseDate(args, b.today(user))
	if err != nil {
		return b.sendText(chatID, "Не понял дату. Пример: /day 2024-03-15 или /day завтра")
	}
	return b.sendDay(ctx, chatID, user, &d)
}

// sendDay shows the list for d, or for today when d is nil, with complete
// buttons for the open entries.
func (b *Bot) sendDay(ctx context.Context, chatID int64, user *model.User, d *calendar.Date) error {
	today := b.today(user)
	date := today
	if d != nil {
		date = *d
	}
	list, err := b.tasks.ForDate(ctx, user.ID, date)
	if err != nil {
		return b.replyError(chatID, err)
	}
	msg := tgbotapi.NewMessage(chatID, formatDay(date, today, list))
	msg.ParseMode = tgbotapi.ModeHTML
	if kb := dayKeyboard(list); kb != nil {
		msg.ReplyMarkup = kb
	} else {
		msg.ReplyMarkup = mainMenuKeyboard()
	}
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleWeek(ctx context.Context, chatID int64, user *model.User) error {
	today := b.today(user)
	list, err := b.tasks.ForRange(ctx, user.ID, today, today.AddDays(6))
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, formatWeek(list))
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, user *model.User, args string) error {
	text, date, err := splitAddArgs(args, b.today(user))
	if err != nil {
		return b.sendText(chatID, "Не понял дату после @. Пример: /add купить молоко @завтра")
	}
	if text == "" {
		return b.sendText(chatID, "Напиши текст задачи: /add купить молоко")
	}
	v, err := b.tasks.Create(ctx, user.ID, service.CreateInput{Text: text, Date: date})
	if err != nil {
		return b.replyError(chatID, err)
	}
	b.logger.Info("task created", "user_id", user.ID, "recurring", v.RecurringPatternID != nil)
	if v.RecurringPatternID != nil {
		return b.sendText(chatID, fmt.Sprintf("♻️ Регулярная задача «%s» добавлена с %s.", escape(normalizeTitle(v.Text)), formatDate(v.AssignedDate)))
	}
	return b.sendText(chatID, fmt.Sprintf("🟢 Задача <b>#%d</b> «%s» добавлена на %s.", *v.ID, escape(normalizeTitle(v.Text)), formatDate(v.AssignedDate)))
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, user *model.User, args string, done bool) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(chatID, "Укажи ID задачи: /done 12")
	}
	var v *service.TaskView
	if done {
		v, err = b.tasks.Complete(ctx, user.ID, id)
	} else {
		v, err = b.tasks.Uncomplete(ctx, user.ID, id)
	}
	if err != nil {
		return b.replyError(chatID, err)
	}
	if done {
		return b.sendText(chatID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(normalizeTitle(v.Text))))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ Задача «%s» снова в работе.", escape(normalizeTitle(v.Text))))
}

func (b *Bot) handleMove(ctx context.Context, chatID int64, user *model.User, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return b.sendText(chatID, "Формат: /move &lt;id&gt; &lt;место&gt;, например /move 12 1")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return b.sendText(chatID, "ID задачи должен быть числом.")
	}
	pos, err := strconv.Atoi(fields[1])
	if err != nil {
		return b.sendText(chatID, "Место должно быть числом.")
	}
	v, err := b.tasks.UpdatePosition(ctx, user.ID, id, pos)
	if err != nil {
		return b.replyError(chatID, err)
	}
	list, err := b.tasks.ForDate(ctx, user.ID, v.AssignedDate)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if slotOf(list, id) != pos {
		if err := b.sendText(chatID, "Выполненные задачи остаются внизу списка, поэтому задача осталась на месте."); err != nil {
			return err
		}
	}
	d := v.AssignedDate
	return b.sendDay(ctx, chatID, user, &d)
}

func (b *Bot) handleDate(ctx context.Context, chatID int64, user *model.User, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return b.sendText(chatID, "Формат: /date &lt;id&gt; &lt;дата&gt;, например /date 12 завтра")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return b.sendText(chatID, "ID задачи должен быть числом.")
	}
	d, err := parseDate(fields[1], b.today(user))
	if err != nil {
		return b.sendText(chatID, "Не понял дату. Пример: /date 12 2024-03-15")
	}
	v, err := b.tasks.UpdateAssignedDate(ctx, user.ID, id, d)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("📅 Задача «%s» перенесена на %s.", escape(normalizeTitle(v.Text)), formatDate(v.AssignedDate)))
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, user *model.User, args string) error {
	rawID, text, _ := strings.Cut(args, " ")
	id, err := parseID(rawID)
	if err != nil || strings.TrimSpace(text) == "" {
		return b.sendText(chatID, "Формат: /rename &lt;id&gt; &lt;новый текст&gt;")
	}
	v, err := b.tasks.UpdateText(ctx, user.ID, id, text)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("✏️ Теперь задача называется «%s».", escape(normalizeTitle(v.Text))))
}

// handleDelete удаляет задачу; с аргументом all заканчивает и её серию.
func (b *Bot) handleDelete(ctx context.Context, chatID int64, user *model.User, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return b.sendText(chatID, "Укажи ID задачи: /delete 12 или /delete 12 all")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return b.sendText(chatID, "ID задачи должен быть числом.")
	}
	allFuture := len(fields) == 2 && strings.EqualFold(fields[1], "all")
	if err := b.tasks.Delete(ctx, user.ID, id, allFuture); err != nil {
		return b.replyError(chatID, err)
	}
	if allFuture {
		return b.sendText(chatID, "🗑 Задача и все её будущие повторы удалены.")
	}
	return b.sendText(chatID, "🗑 Задача удалена.")
}

func (b *Bot) handleRecurring(ctx context.Context, chatID int64, user *model.User) error {
	patterns, err := b.tasks.Patterns(ctx, user.ID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, formatPatterns(patterns))
}

func (b *Bot) handleStop(ctx context.Context, chatID int64, user *model.User, args string) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(chatID, "Укажи ID регулярной задачи из /recurring: /stop 3")
	}
	if err := b.tasks.DeletePattern(ctx, user.ID, id); err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, "⏹ Регулярная задача удалена. Уже созданные задачи остались в списках.")
}

func (b *Bot) handleTimezone(ctx context.Context, chatID int64, user *model.User, args string) error {
	if args == "" {
		return b.sendText(chatID, fmt.Sprintf("🌍 Твой часовой пояс: <b>%s</b>. Сменить: /tz Europe/Moscow", escape(user.Timezone)))
	}
	updated, err := b.users.UpdateTimezone(ctx, user.ID, args)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("🌍 Часовой пояс обновлён: <b>%s</b>.", escape(updated.Timezone)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", "error", err)
	}

	data, err := parseCallback(cb.Data)
	if err != nil {
		return nil
	}
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	chatID := cb.Message.Chat.ID

	var v *service.TaskView
	if data.virtual() {
		v, err = b.tasks.CompleteVirtual(ctx, user.ID, data.patternID, data.date)
	} else {
		v, err = b.tasks.Complete(ctx, user.ID, data.taskID)
	}
	if err != nil {
		return b.replyError(chatID, err)
	}
	b.logger.Info("task completed", "user_id", user.ID, "task_id", *v.ID)
	d := v.AssignedDate
	return b.sendDay(ctx, chatID, user, &d)
}

// SendDailyDigests sends the morning summary to every user whose digest
// hour has come.
func (b *Bot) SendDailyDigests(ctx context.Context) error {
	if b.digest == nil {
		return nil
	}
	users, err := b.digest.DueUsers(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		user := &users[i]
		if user.TelegramID == nil {
			continue
		}
		text, err := b.digest.Summary(ctx, user)
		if err == nil {
			err = b.sendText(*user.TelegramID, text)
		}
		b.metrics.RecordDigest(err)
		if err != nil {
			b.logger.Warn("send digest", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.EnsureTelegramUser(ctx, repository.TelegramProfile{
		TelegramID: from.ID,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Username:   from.UserName,
	})
}

// replyError tells the user what went wrong without leaking internals.
func (b *Bot) replyError(chatID int64, err error) error {
	var text string
	switch apperr.KindOf(err) {
	case apperr.NotFound, apperr.Unauthorized:
		text = "Задача не найдена или уже удалена."
	case apperr.Invalid:
		text = fmt.Sprintf("Некорректный ввод: %s", escape(apperr.UserMessage(err)))
	case apperr.Conflict, apperr.Transient:
		text = "Данные только что изменились, попробуй ещё раз."
	default:
		b.logger.Error("request failed", "error", err)
		text = "Что-то пошло не так, попробуй позже."
	}
	return b.sendText(chatID, text)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(msg.Text)
	switch text {
	case menuLabelToday, menuLabelWeek, menuLabelRecurring, menuLabelHelp:
	default:
		return false, nil
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return true, err
	}
	switch text {
	case menuLabelToday:
		return true, b.sendDay(ctx, msg.Chat.ID, user, nil)
	case menuLabelWeek:
		return true, b.handleWeek(ctx, msg.Chat.ID, user)
	case menuLabelRecurring:
		return true, b.handleRecurring(ctx, msg.Chat.ID, user)
	default:
		return true, b.sendText(msg.Chat.ID, helpText)
	}
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelWeek),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelRecurring),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}
