package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dayplanner/internal/calendar"
	"dayplanner/internal/recurrence"
	"dayplanner/internal/service"
)

const (
	cbDonePrefix        = "done:"
	cbVirtualDonePrefix = "vdone:"
)

const (
	iconDefault   = "🟢"
	iconDone      = "✅"
	iconRolled    = "↪️"
	iconRecurring = "♻️"
	dateLayout    = "02.01.2006"
)

var weekdays = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

func escape(s string) string {
	return html.EscapeString(s)
}

func formatDate(d calendar.Date) string {
	return fmt.Sprintf("%s, %s", weekdays[d.Time().Weekday()], d.Time().Format(dateLayout))
}

func taskIcon(v service.TaskView) string {
	switch {
	case v.IsCompleted:
		return iconDone
	case v.IsRolledOver:
		return iconRolled
	case v.RecurringPatternID != nil:
		return iconRecurring
	default:
		return iconDefault
	}
}

// formatEntry renders one line of a day list. slot is the 1-based position
// the user passes to /move.
func formatEntry(slot int, v service.TaskView) string {
	if v.IsVirtual {
		return fmt.Sprintf("%d. %s %s <i>(регулярная)</i>\n", slot, iconRecurring, escape(normalizeTitle(v.Text)))
	}
	line := fmt.Sprintf("%d. %s <b>#%d</b> %s", slot, taskIcon(v), *v.ID, escape(normalizeTitle(v.Text)))
	if v.IsCompleted {
		line = fmt.Sprintf("%d. %s <b>#%d</b> <s>%s</s>", slot, iconDone, *v.ID, escape(normalizeTitle(v.Text)))
	}
	return line + "\n"
}

func formatDay(d, today calendar.Date, list []service.TaskView) string {
	var b strings.Builder
	switch d {
	case today:
		b.WriteString(fmt.Sprintf("📋 <b>Сегодня</b> · %s\n\n", formatDate(d)))
	default:
		b.WriteString(fmt.Sprintf("📋 <b>%s</b>\n\n", formatDate(d)))
	}
	if len(list) == 0 {
		b.WriteString("Задач нет. Добавь новую: /add текст")
		return b.String()
	}
	for i, v := range list {
		b.WriteString(formatEntry(i+1, v))
	}
	return strings.TrimSpace(b.String())
}

// formatWeek groups a range listing by date. Days without tasks are left out.
func formatWeek(list []service.TaskView) string {
	if len(list) == 0 {
		return "🗓 На этой неделе задач нет."
	}
	var b strings.Builder
	b.WriteString("🗓 <b>Неделя</b>\n")
	var current calendar.Date
	slot := 0
	for _, v := range list {
		if v.AssignedDate != current {
			current = v.AssignedDate
			slot = 0
			b.WriteString(fmt.Sprintf("\n<b>%s</b>\n", formatDate(current)))
		}
		slot++
		b.WriteString(formatEntry(slot, v))
	}
	return strings.TrimSpace(b.String())
}

func kindLabel(k string) string {
	switch recurrence.Kind(k) {
	case recurrence.Daily:
		return "каждый день"
	case recurrence.Weekly:
		return "каждую неделю"
	case recurrence.Biweekly:
		return "раз в две недели"
	case recurrence.Monthly:
		return "каждый месяц"
	case recurrence.Yearly:
		return "каждый год"
	}
	return strings.ToLower(k)
}

func formatPatterns(patterns []service.PatternView) string {
	if len(patterns) == 0 {
		return "Регулярных задач нет. Добавь, например: /add зарядка every day"
	}
	var b strings.Builder
	b.WriteString("♻️ <b>Регулярные задачи</b>\n\n")
	for _, p := range patterns {
		b.WriteString(fmt.Sprintf("<b>#%d</b> %s · %s\n", p.ID, escape(normalizeTitle(p.Text)), kindLabel(p.Kind)))
		switch {
		case p.Next != nil:
			b.WriteString(fmt.Sprintf("   ⏭ Следующая: %s\n", formatDate(*p.Next)))
		case p.EndDate != nil:
			b.WriteString(fmt.Sprintf("   ⏹ Завершена %s\n", formatDate(*p.EndDate)))
		}
	}
	b.WriteString("\nОстановить: /stop &lt;id&gt;")
	return b.String()
}

// dayKeyboard offers a complete button for every open entry.
func dayKeyboard(list []service.TaskView) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, v := range list {
		if v.IsCompleted {
			continue
		}
		label := fmt.Sprintf("%s %d · %s", iconDone, i+1, shortTitle(v.Text, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(v)),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// slotOf is the 1-based displayed slot of the stored task id, or 0.
func slotOf(list []service.TaskView, id int64) int {
	for i, v := range list {
		if v.ID != nil && *v.ID == id {
			return i + 1
		}
	}
	return 0
}

func callbackData(v service.TaskView) string {
	if v.IsVirtual {
		return fmt.Sprintf("%s%d:%s", cbVirtualDonePrefix, *v.RecurringPatternID, v.AssignedDate)
	}
	return fmt.Sprintf("%s%d", cbDonePrefix, *v.ID)
}

// callback is a decoded inline button press.
type callback struct {
	taskID    int64
	patternID int64
	date      calendar.Date
}

func (c callback) virtual() bool { return c.patternID != 0 }

var errUnknownCallback = errors.New("unknown callback")

func parseCallback(data string) (callback, error) {
	switch {
	case strings.HasPrefix(data, cbDonePrefix):
		id, err := parseID(strings.TrimPrefix(data, cbDonePrefix))
		if err != nil {
			return callback{}, err
		}
		return callback{taskID: id}, nil
	case strings.HasPrefix(data, cbVirtualDonePrefix):
		rawID, rawDate, ok := strings.Cut(strings.TrimPrefix(data, cbVirtualDonePrefix), ":")
		if !ok {
			return callback{}, errUnknownCallback
		}
		id, err := parseID(rawID)
		if err != nil {
			return callback{}, err
		}
		d, err := calendar.Parse(rawDate)
		if err != nil {
			return callback{}, err
		}
		return callback{patternID: id, date: d}, nil
	}
	return callback{}, errUnknownCallback
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseDate accepts ISO dates, dd.mm.yyyy and the words "сегодня" and
// "завтра" relative to today.
func parseDate(raw string, today calendar.Date) (calendar.Date, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "сегодня", "today":
		return today, nil
	case "завтра", "tomorrow":
		return today.AddDays(1), nil
	}
	if d, err := calendar.Parse(raw); err == nil {
		return d, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("invalid date %q", raw)
	}
	return calendar.Of(t), nil
}

// splitAddArgs separates a trailing "@date" from the task text.
func splitAddArgs(args string, today calendar.Date) (string, calendar.Date, error) {
	args = strings.TrimSpace(args)
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", today, nil
	}
	last := fields[len(fields)-1]
	if !strings.HasPrefix(last, "@") {
		return args, today, nil
	}
	d, err := parseDate(strings.TrimPrefix(last, "@"), today)
	if err != nil {
		return "", today, err
	}
	text := strings.TrimSpace(strings.TrimSuffix(args, last))
	return text, d, nil
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
