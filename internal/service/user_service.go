package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/internal/models"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetBudget(ctx context.Context, id string, budget *float64) error
	SpentAmount(ctx context.Context, id string) (float64, error)
}

// UserService provides profile and gift budget use cases.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// Me returns the user's profile with the spent amount aggregated from
// their gifts and, when a budget is set, what remains of it.
func (s *UserService) Me(ctx context.Context, userID string) (*models.UserProfile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	spent, err := s.repo.SpentAmount(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate spending")
	}

	profile := &models.UserProfile{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		IsVerified: user.IsVerified,
		Budget:     user.Budget,
		Spent:      spent,
	}
	if user.Budget != nil {
		remaining := *user.Budget - spent
		profile.Remaining = &remaining
	}
	return profile, nil
}

// UpdateBudget sets the user's gift budget.
func (s *UserService) UpdateBudget(ctx context.Context, userID string, req models.BudgetRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid budget payload")
	}
	if err := s.repo.SetBudget(ctx, userID, &req.Budget); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update budget")
	}
	return nil
}

// ClearBudget removes the user's gift budget.
func (s *UserService) ClearBudget(ctx context.Context, userID string) error {
	if err := s.repo.SetBudget(ctx, userID, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear budget")
	}
	return nil
}
