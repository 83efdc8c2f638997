package service

import (
	"context"

	"lessonbot/internal/domain"
	"lessonbot/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.BookingRepository
	admins map[int64]bool
	logger *zerolog.Logger
}

func NewUserService(repo domain.BookingRepository, admins []int64, logger *zerolog.Logger) *UserService {
	set := make(map[int64]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	return &UserService{repo: repo, admins: set, logger: logger}
}

func (s *UserService) IsAdmin(userID int64) bool {
	return s.admins[userID]
}

func (s *UserService) SaveUser(ctx context.Context, user *models.User) error {
	return s.repo.CreateUser(ctx, user)
}

func (s *UserService) SetLanguage(ctx context.Context, userID int64, language string) error {
	return s.repo.SetUserLanguage(ctx, userID, language)
}

func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.repo.GetUser(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}
