// Package resource はログに添付されたリソースURLのメタデータ（タイトル）を取得する。
package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	// maxBodySize は読み込むレスポンスボディの上限（2MB）。
	maxBodySize = 2 * 1024 * 1024

	defaultTimeout = 5 * time.Second

	userAgent = "LearningJournal/1.0 (+resource-metadata)"
)

// Metadata はリソースURLから取得した情報。
type Metadata struct {
	URL   string
	Kind  ContentKind
	Title string
}

// SafeClientProvider はSSRF対策済みクライアントの提供元。
// security.SSRFGuardServiceを抽象化する。
type SafeClientProvider interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// TitleLookup はリソースのタイトル取得を表すインターフェース。
type TitleLookup interface {
	LookupTitle(ctx context.Context, rawURL string) string
}

// MetadataFetcher はリソースURLを取得してタイトルを抽出する。
type MetadataFetcher struct {
	guard   SafeClientProvider
	client  *http.Client
	timeout time.Duration
}

var _ TitleLookup = (*MetadataFetcher)(nil)

// NewMetadataFetcher はMetadataFetcherを生成する。
// guardがnilの場合は検証なしの通常クライアントを使う（テスト用）。
func NewMetadataFetcher(guard SafeClientProvider) *MetadataFetcher {
	f := &MetadataFetcher{guard: guard, timeout: defaultTimeout}
	if guard != nil {
		f.client = guard.NewSafeClient(f.timeout)
	} else {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// Fetch はURLを取得し、HTMLなら<title>/og:title、RSS/Atomならフィードタイトルを返す。
func (f *MetadataFetcher) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	if f.guard != nil {
		if err := f.guard.ValidateURL(rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	meta := &Metadata{URL: rawURL, Kind: classify(resp.Header.Get("Content-Type"), body)}
	switch meta.Kind {
	case KindHTML:
		meta.Title = extractHTMLTitle(body)
	case KindFeed:
		parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse feed: %w", err)
		}
		meta.Title = normalizeTitle(parsed.Title)
	}
	return meta, nil
}

// LookupTitle はタイトルのみを返す。取得に失敗した場合は空文字列を返す。
// ログ保存を失敗させないため、エラーは警告ログに留める。
func (f *MetadataFetcher) LookupTitle(ctx context.Context, rawURL string) string {
	meta, err := f.Fetch(ctx, rawURL)
	if err != nil {
		slog.Warn("resource title lookup failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return meta.Title
}
