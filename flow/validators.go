package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	phoneRe = regexp.MustCompile(`(\+?1[\s\-.]?)?\(?([0-9]{3})\)?[\s\-.]?([0-9]{3})[\s\-.]?([0-9]{4})`)
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	timeRe  = regexp.MustCompile(`(?i)\b([01]?[0-9]|2[0-3])(?::([0-5][0-9]))?\s*(am|pm|a\.m\.|p\.m\.)?\b`)
	digitRe = regexp.MustCompile(`\b([0-9]{1,3})\b`)
	numDate = regexp.MustCompile(`\b([0-9]{1,2})[/\-]([0-9]{1,2})(?:[/\-]([0-9]{2,4}))?\b`)
	isoDate = regexp.MustCompile(`\b([0-9]{4})-([0-9]{2})-([0-9]{2})\b`)
)

// ValidateName accepts a spoken name and normalizes spacing and casing.
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	// Strip common lead-ins from transcripts ("my name is John Smith").
	lower := strings.ToLower(name)
	for _, lead := range []string{"my name is ", "my name's ", "this is ", "i am ", "i'm ", "it's ", "the name is "} {
		if strings.HasPrefix(lower, lead) {
			name = strings.TrimSpace(name[len(lead):])
			break
		}
	}
	if name == "" {
		return "", &ValidationError{Slot: "name", Reason: ReasonEmpty, Detail: "I didn't catch a name"}
	}
	if len([]rune(name)) < 2 {
		return "", &ValidationError{Slot: "name", Reason: ReasonTooShort, Detail: "that name seems too short"}
	}
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " "), nil
}

// ValidatePhone extracts a North American phone number and normalizes it to
// +1XXXXXXXXXX. Rejection reasons distinguish a number that is merely too
// short from text with no number at all.
func ValidatePhone(raw string) (string, error) {
	m := phoneRe.FindStringSubmatch(raw)
	if m == nil {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, raw)
		if len(digits) > 0 && len(digits) < 10 {
			return "", &ValidationError{Slot: "phone", Reason: ReasonTooShort, Detail: "I need all ten digits of your phone number"}
		}
		return "", &ValidationError{Slot: "phone", Reason: ReasonMalformed, Detail: "I couldn't make out a phone number"}
	}
	return "+1" + m[2] + m[3] + m[4], nil
}

// ValidateEmail extracts an email address if one is present.
func ValidateEmail(raw string) (string, error) {
	m := emailRe.FindString(raw)
	if m == "" {
		return "", &ValidationError{Slot: "email", Reason: ReasonMalformed, Detail: "I couldn't make out an email address"}
	}
	return strings.ToLower(m), nil
}

// DateValidator builds a date validator anchored at the supplied clock so
// relative phrases ("tomorrow", "next friday") normalize to absolute
// YYYY-MM-DD dates deterministically.
func DateValidator(now func() time.Time) ValidateFunc {
	weekdays := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	months := map[string]time.Month{
		"january": time.January, "february": time.February, "march": time.March,
		"april": time.April, "may": time.May, "june": time.June, "july": time.July,
		"august": time.August, "september": time.September, "october": time.October,
		"november": time.November, "december": time.December,
	}

	return func(raw string) (string, error) {
		text := strings.ToLower(strings.TrimSpace(raw))
		if text == "" {
			return "", &ValidationError{Slot: "date", Reason: ReasonEmpty, Detail: "I didn't catch a date"}
		}
		n := now()
		today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())

		var d time.Time
		switch {
		case strings.Contains(text, "today") || strings.Contains(text, "tonight"):
			d = today
		case strings.Contains(text, "tomorrow"):
			d = today.AddDate(0, 0, 1)
		default:
			if m := isoDate.FindStringSubmatch(text); m != nil {
				year, _ := strconv.Atoi(m[1])
				month, _ := strconv.Atoi(m[2])
				day, _ := strconv.Atoi(m[3])
				d = time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location())
			} else if wd, ok := matchWeekday(text, weekdays); ok {
				offset := (int(wd) - int(today.Weekday()) + 7) % 7
				if offset == 0 && strings.Contains(text, "next") {
					offset = 7
				}
				d = today.AddDate(0, 0, offset)
			} else if mon, day, ok := matchMonthDay(text, months); ok {
				d = time.Date(today.Year(), mon, day, 0, 0, 0, 0, today.Location())
				if d.Before(today) {
					d = d.AddDate(1, 0, 0)
				}
			} else if m := numDate.FindStringSubmatch(text); m != nil {
				month, _ := strconv.Atoi(m[1])
				day, _ := strconv.Atoi(m[2])
				year := today.Year()
				if m[3] != "" {
					year, _ = strconv.Atoi(m[3])
					if year < 100 {
						year += 2000
					}
				}
				if month < 1 || month > 12 || day < 1 || day > 31 {
					return "", &ValidationError{Slot: "date", Reason: ReasonOutOfRange, Detail: "that doesn't look like a valid calendar date"}
				}
				d = time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location())
				if m[3] == "" && d.Before(today) {
					d = d.AddDate(1, 0, 0)
				}
			} else {
				return "", &ValidationError{Slot: "date", Reason: ReasonUnrecognized, Detail: "I couldn't make out a date"}
			}
		}

		if d.Before(today) {
			return "", &ValidationError{Slot: "date", Reason: ReasonOutOfRange, Detail: "that date has already passed"}
		}
		return d.Format("2006-01-02"), nil
	}
}

func matchWeekday(text string, weekdays map[string]time.Weekday) (time.Weekday, bool) {
	for name, wd := range weekdays {
		if strings.Contains(text, name) {
			return wd, true
		}
	}
	return 0, false
}

func matchMonthDay(text string, months map[string]time.Month) (time.Month, int, bool) {
	for name, mon := range months {
		idx := strings.Index(text, name)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(name):]
		if m := digitRe.FindStringSubmatch(rest); m != nil {
			day, _ := strconv.Atoi(m[1])
			if day >= 1 && day <= 31 {
				return mon, day, true
			}
		}
	}
	return 0, 0, false
}

// ValidateTime parses a spoken time of day and normalizes it to HH:MM
// (24-hour).
func ValidateTime(raw string) (string, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return "", &ValidationError{Slot: "time", Reason: ReasonEmpty, Detail: "I didn't catch a time"}
	}
	switch {
	case strings.Contains(text, "noon"):
		return "12:00", nil
	case strings.Contains(text, "midnight"):
		return "00:00", nil
	}

	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return "", &ValidationError{Slot: "time", Reason: ReasonUnrecognized, Detail: "I couldn't make out a time"}
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	meridiem := strings.ReplaceAll(m[3], ".", "")
	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		// Bare small hours in conversation almost always mean evening
		// for a restaurant ("table at 7").
		if hour >= 1 && hour <= 8 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return "", &ValidationError{Slot: "time", Reason: ReasonOutOfRange, Detail: "that time doesn't look right"}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// PartySizeValidator builds an integer validator bounded to [min, max].
// Spoken number words up to twelve are accepted.
func PartySizeValidator(min, max int) ValidateFunc {
	words := map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
		"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
		"a couple": 2, "just me": 1,
	}
	return func(raw string) (string, error) {
		text := strings.ToLower(strings.TrimSpace(raw))
		if text == "" {
			return "", &ValidationError{Slot: "party_size", Reason: ReasonEmpty, Detail: "I didn't catch how many guests"}
		}
		n := -1
		if m := digitRe.FindStringSubmatch(text); m != nil {
			n, _ = strconv.Atoi(m[1])
		} else {
			for w, v := range words {
				if strings.Contains(text, w) {
					n = v
					break
				}
			}
		}
		if n < 0 {
			return "", &ValidationError{Slot: "party_size", Reason: ReasonUnrecognized, Detail: "I couldn't make out a number of guests"}
		}
		if n < min || n > max {
			return "", &ValidationError{Slot: "party_size", Reason: ReasonOutOfRange,
				Detail: fmt.Sprintf("we can seat parties of %d to %d", min, max)}
		}
		return strconv.Itoa(n), nil
	}
}

// FreeTextValidator accepts any non-trivial utterance, trimmed.
func FreeTextValidator(slot string, minLen int) ValidateFunc {
	return func(raw string) (string, error) {
		text := strings.TrimSpace(raw)
		if text == "" {
			return "", &ValidationError{Slot: slot, Reason: ReasonEmpty, Detail: "I didn't catch that"}
		}
		if len(text) < minLen {
			return "", &ValidationError{Slot: slot, Reason: ReasonTooShort, Detail: "could you give me a little more detail"}
		}
		return text, nil
	}
}

// EnumValidator accepts only the listed values (case-insensitive).
func EnumValidator(slot string, allowed ...string) ValidateFunc {
	return func(raw string) (string, error) {
		text := strings.ToLower(strings.TrimSpace(raw))
		for _, a := range allowed {
			if strings.Contains(text, strings.ToLower(a)) {
				return a, nil
			}
		}
		return "", &ValidationError{Slot: slot, Reason: ReasonUnrecognized,
			Detail: "please choose one of " + strings.Join(allowed, ", ")}
	}
}
