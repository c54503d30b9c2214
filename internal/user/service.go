// Package user はプロフィール管理・ユーザー検索・退会のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

const (
	maxNameLength = 50
	maxBioLength  = 500
	maxAge        = 150

	// DefaultSearchLimit は検索結果の既定件数。
	DefaultSearchLimit = 20
	maxSearchLimit     = 50
)

// TextSanitizer はプレーンテキストのサニタイズを行う。
type TextSanitizer interface {
	SanitizePlain(raw string) string
}

// URLValidator はプロフィール画像URLの検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ProfileUpdate はプロフィール更新の入力。nilの項目は変更しない。
type ProfileUpdate struct {
	Name     *string
	Bio      *string
	Age      *int
	ClearAge bool
	Image    *string
	IsPublic *bool
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	urls      URLValidator
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer TextSanitizer, urls URLValidator) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		urls:      urls,
		now:       time.Now,
	}
}

// GetMe は本人のプロフィールを返す。
func (s *Service) GetMe(ctx context.Context, userID string) (*model.User, error) {
	return s.find(ctx, userID)
}

// GetProfile はviewerから見たtargetのプロフィールを返す。
// 非公開ユーザーは本人以外にはUSER_NOT_FOUNDとして扱う。
func (s *Service) GetProfile(ctx context.Context, viewerID, targetID string) (*model.User, error) {
	user, err := s.find(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !user.IsPublic && user.ID != viewerID {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は本人のプロフィールを更新して更新後の内容を返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := s.sanitizer.SanitizePlain(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("名前を入力してください。")
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return nil, model.NewValidationError(fmt.Sprintf("名前は%d文字以内で入力してください。", maxNameLength))
		}
		user.Name = name
	}
	if in.Bio != nil {
		bio := s.sanitizer.SanitizePlain(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, model.NewValidationError(fmt.Sprintf("自己紹介は%d文字以内で入力してください。", maxBioLength))
		}
		user.Bio = bio
	}
	switch {
	case in.ClearAge:
		user.Age = nil
	case in.Age != nil:
		if *in.Age < 0 || *in.Age > maxAge {
			return nil, model.NewValidationError("年齢の値が不正です。")
		}
		age := *in.Age
		user.Age = &age
	}
	if in.Image != nil {
		image := strings.TrimSpace(*in.Image)
		if image != "" && s.urls != nil {
			if err := s.urls.ValidateURL(image); err != nil {
				return nil, model.NewValidationError("画像URLが不正です。")
			}
		}
		user.Image = image
	}
	if in.IsPublic != nil {
		user.IsPublic = *in.IsPublic
	}

	user.UpdatedAt = s.now()
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// Search は公開ユーザーを名前またはメールアドレスの部分一致で検索する。
// 空のクエリには空の結果を返す。
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*model.User{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	users, err := s.userRepo.SearchPublic(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Withdraw はユーザーの退会処理を実行する。
// linked_accounts、units、logs、comments、likesはCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.find(ctx, userID); err != nil {
		return err
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}

func (s *Service) find(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
