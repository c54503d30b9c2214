package model

import "time"

// Unit はユーザーが定義する学習目標（ログのコンテナ）を表す。
type Unit struct {
	ID          string
	UserID      string
	Title       string
	Description string
	IsPublic    bool
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UnitSummary は一覧表示用にいいね数・コメント数を付与したUnit。
type UnitSummary struct {
	Unit
	LikeCount    int
	CommentCount int
	LikedByMe    bool
}

// Log はUnit内の日付付き学習記録を表す。
type Log struct {
	ID           string
	UnitID       string
	UserID       string
	Title        string
	Body         string
	LogDate      time.Time
	MinutesSpent int
	Tags         []string
	Resources    []Resource
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resource はログに添付された参考リソース（URL）を表す。
type Resource struct {
	ID    string
	LogID string
	URL   string
	Title string
}

// Comment はUnitへのコメントを表す。
type Comment struct {
	ID        string
	UnitID    string
	UserID    string
	UserName  string
	Body      string
	CreatedAt time.Time
}

// ErrorLog は管理者ダッシュボードに表示するエラー記録を表す。
type ErrorLog struct {
	ID        string
	Level     string
	Message   string
	Path      string
	Method    string
	UserID    string
	CreatedAt time.Time
}
