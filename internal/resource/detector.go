package resource

import (
	"bytes"
	"mime"
	"strings"

	"golang.org/x/net/html"
)

// ContentKind はリソースURLが返した内容の種別。
type ContentKind string

const (
	KindHTML  ContentKind = "html"
	KindFeed  ContentKind = "feed"
	KindOther ContentKind = "other"
)

var feedMediaTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/feed+json": true,
}

var genericXMLMediaTypes = map[string]bool{
	"text/xml":        true,
	"application/xml": true,
}

// sniffLimit はボディ判定に使う先頭バイト数。
const sniffLimit = 4096

// classify はContent-Typeとボディ先頭から内容の種別を判定する。
func classify(contentType string, body []byte) ContentKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case feedMediaTypes[mediaType]:
		return KindFeed
	case genericXMLMediaTypes[mediaType]:
		if looksLikeFeed(body) {
			return KindFeed
		}
		return KindOther
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return KindHTML
	case mediaType == "":
		// Content-Typeなしはボディで判断する
		if looksLikeFeed(body) {
			return KindFeed
		}
		if bytes.Contains(bytes.ToLower(head(body)), []byte("<html")) {
			return KindHTML
		}
	}
	return KindOther
}

func head(body []byte) []byte {
	if len(body) > sniffLimit {
		return body[:sniffLimit]
	}
	return body
}

// looksLikeFeed はXMLのルート要素がRSS/RDF/Atomかを簡易判定する。
func looksLikeFeed(body []byte) bool {
	prefix := strings.ToLower(string(head(body)))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// extractHTMLTitle はHTMLからページタイトルを取り出す。
// og:title があればそれを優先し、なければ <title> の内容を使う。
// <body> に入った時点で解析を打ち切る。
func extractHTMLTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var ogTitle, title string
	inTitle := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return pickTitle(ogTitle, title)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "body":
				return pickTitle(ogTitle, title)
			case "title":
				inTitle = title == ""
			case "meta":
				if !hasAttr || ogTitle != "" {
					continue
				}
				var property, content string
				for {
					key, val, more := tokenizer.TagAttr()
					switch strings.ToLower(string(key)) {
					case "property", "name":
						property = strings.ToLower(string(val))
					case "content":
						content = string(val)
					}
					if !more {
						break
					}
				}
				if property == "og:title" {
					ogTitle = content
				}
			}

		case html.TextToken:
			if inTitle {
				title += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				return pickTitle(ogTitle, title)
			}
		}
	}
}

func pickTitle(candidates ...string) string {
	for _, c := range candidates {
		if c = normalizeTitle(c); c != "" {
			return c
		}
	}
	return ""
}

// maxTitleRunes は保存するタイトルの最大文字数。
const maxTitleRunes = 300

// normalizeTitle は連続する空白を1つにまとめ、長すぎるタイトルを切り詰める。
func normalizeTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxTitleRunes {
		s = string(r[:maxTitleRunes])
	}
	return s
}
