package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCron — cron-выражение не разбирается.
var ErrInvalidCron = errors.New("invalid cron expression")

// cronParser — парсер классических 5-польных выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NormalizeCron приводит выражение к классическому crontab (5 полей).
//
// Поддерживаются:
//
//	"*/5 * * * *"     — crontab
//	"0/5 * * * ? *"   — AWS EventBridge: min hour dom month dow year
//
// В AWS-формате "?" заменяется на "*", год должен быть "*",
// а номера дней недели (1-7, 1 = воскресенье) сдвигаются к 0-6.
func NormalizeCron(expr string) (string, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 5:
		return strings.Join(fields, " "), nil
	case 6:
	default:
		return "", fmt.Errorf("%w %q: expected 5 or 6 fields, got %d", ErrInvalidCron, expr, len(fields))
	}

	if fields[5] != "*" {
		return "", fmt.Errorf("%w %q: year field must be *", ErrInvalidCron, expr)
	}
	fields = fields[:5]

	for i, f := range fields {
		if f == "?" {
			fields[i] = "*"
		}
	}

	dow, err := shiftDow(fields[4])
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	fields[4] = dow

	return strings.Join(fields, " "), nil
}

// shiftDow переводит числовые дни недели AWS (1-7) в crontab (0-6).
// Имена дней (MON, FRI) не меняются.
func shiftDow(field string) (string, error) {
	if field == "*" {
		return field, nil
	}

	parts := strings.Split(field, ",")
	for i, part := range parts {
		base, step, hasStep := strings.Cut(part, "/")

		bounds := strings.Split(base, "-")
		for j, b := range bounds {
			n, err := strconv.Atoi(b)
			if err != nil {
				continue
			}
			if n < 1 || n > 7 {
				return "", fmt.Errorf("day of week %d out of range 1-7", n)
			}
			bounds[j] = strconv.Itoa(n - 1)
		}

		parts[i] = strings.Join(bounds, "-")
		if hasStep {
			parts[i] += "/" + step
		}
	}
	return strings.Join(parts, ","), nil
}

// ParseCron разбирает выражение в любом из поддерживаемых форматов.
func ParseCron(expr string) (cron.Schedule, error) {
	normalized, err := NormalizeCron(expr)
	if err != nil {
		return nil, err
	}
	schedule, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return schedule, nil
}

// ValidateCron проверяет выражение.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// NextDue вычисляет следующее время запуска после from.
//
// Время считается в timezone расписания (по умолчанию UTC)
// и возвращается в UTC для хранения в БД.
func NextDue(expr, timezone string, from time.Time) (time.Time, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}

	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}

// NextN возвращает n следующих времён запуска после from.
func NextN(expr, timezone string, from time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	for range n {
		next, err := NextDue(expr, timezone, from)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		from = next
	}
	return out, nil
}
