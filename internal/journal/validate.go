package journal

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/learning-journal/internal/model"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 1000
	maxLogBodyLength     = 20000
	maxCommentLength     = 1000
	maxTags              = 10
	maxTagLength         = 30
	maxResources         = 10
	maxMinutesPerLog     = 24 * 60

	// logDateLayout はログ日付の入出力形式。
	logDateLayout = "2006-01-02"
)

func newUUID() string {
	return uuid.NewString()
}

func requireText(field, value string, max int) error {
	if value == "" {
		return model.NewValidationError(fmt.Sprintf("%sを入力してください。", field))
	}
	return limitText(field, value, max)
}

func limitText(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return model.NewValidationError(fmt.Sprintf("%sは%d文字以内で入力してください。", field, max))
	}
	return nil
}

// normalizeTags はタグを前後空白除去・小文字化・重複除去し、件数と長さを検証する。
func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLength {
			return nil, model.NewValidationError(fmt.Sprintf("タグは%d文字以内で入力してください。", maxTagLength))
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	if len(tags) > maxTags {
		return nil, model.NewValidationError(fmt.Sprintf("タグは%d個までです。", maxTags))
	}
	return tags, nil
}

// parseLogDate はYYYY-MM-DD形式の日付を解析する。空の場合はtodayを返す。
func parseLogDate(raw string, today time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		y, m, d := today.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(logDateLayout, raw)
	if err != nil {
		return time.Time{}, model.NewValidationError("日付はYYYY-MM-DD形式で入力してください。")
	}
	return date, nil
}
