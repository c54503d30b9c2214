package journal

import (
	"context"
	"fmt"

	"github.com/hitoshi/learning-journal/internal/model"
)

// Like はユニットにいいねを付け、更新後のいいね数を返す。既にいいね済みでもエラーにしない。
func (s *Service) Like(ctx context.Context, userID, unitID string) (int, error) {
	if _, err := s.visibleUnit(ctx, userID, unitID); err != nil {
		return 0, err
	}
	if err := s.likes.Like(ctx, unitID, userID); err != nil {
		return 0, fmt.Errorf("failed to like unit: %w", err)
	}
	return s.countLikes(ctx, unitID)
}

// Unlike はいいねを取り消し、更新後のいいね数を返す。
func (s *Service) Unlike(ctx context.Context, userID, unitID string) (int, error) {
	if _, err := s.visibleUnit(ctx, userID, unitID); err != nil {
		return 0, err
	}
	if err := s.likes.Unlike(ctx, unitID, userID); err != nil {
		return 0, fmt.Errorf("failed to unlike unit: %w", err)
	}
	return s.countLikes(ctx, unitID)
}

func (s *Service) countLikes(ctx context.Context, unitID string) (int, error) {
	n, err := s.likes.Count(ctx, unitID)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// ListComments はユニットのコメントを投稿順に返す。
func (s *Service) ListComments(ctx context.Context, viewerID, unitID string) ([]*model.Comment, error) {
	if _, err := s.visibleUnit(ctx, viewerID, unitID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if comments == nil {
		comments = []*model.Comment{}
	}
	return comments, nil
}

// AddComment は閲覧可能なユニットにコメントを投稿する。
func (s *Service) AddComment(ctx context.Context, userID, unitID, body string) (*model.Comment, error) {
	if _, err := s.visibleUnit(ctx, userID, unitID); err != nil {
		return nil, err
	}
	body = s.sanitizer.SanitizePlain(body)
	if err := requireText("コメント", body, maxCommentLength); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:        s.newID(),
		UnitID:    unitID,
		UserID:    userID,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}

// DeleteComment はコメントを削除する。投稿者またはユニット所有者のみ削除できる。
func (s *Service) DeleteComment(ctx context.Context, userID, commentID string) error {
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("failed to find comment: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(commentID)
	}

	if comment.UserID != userID {
		unit, err := s.visibleUnit(ctx, userID, comment.UnitID)
		if err != nil {
			return model.NewCommentNotFoundError(commentID)
		}
		if unit.UserID != userID {
			return model.NewForbiddenError()
		}
	}

	if err := s.comments.Delete(ctx, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}
