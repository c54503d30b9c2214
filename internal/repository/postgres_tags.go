package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// normalizeTags はタグ名を前後空白除去・小文字化し、空と重複を取り除く。
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		name := strings.ToLower(strings.TrimSpace(tag))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// replaceTags は中間テーブル（unit_tags / log_tags）の紐付けを指定タグで置き換える。
// tagsテーブルに存在しないタグはその場で作成する。
func replaceTags(ctx context.Context, q Querier, joinTable, ownerColumn, ownerID string, tags []string) error {
	if _, err := q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, joinTable, ownerColumn), ownerID,
	); err != nil {
		return fmt.Errorf("failed to clear %s: %w", joinTable, err)
	}

	for _, name := range normalizeTags(tags) {
		var tagID string
		err := q.QueryRowContext(ctx,
			`INSERT INTO tags (id, name) VALUES ($1, $2)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			uuid.New().String(), name,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", name, err)
		}

		if _, err := q.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, joinTable, ownerColumn),
			ownerID, tagID,
		); err != nil {
			return fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}
	return nil
}
