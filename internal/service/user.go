package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"syncway/internal/domain"
	"syncway/internal/redis"
	"syncway/internal/repository"
)

// UserResult is a user snapshot plus the side effects the change produced.
type UserResult struct {
	User   *domain.User
	Events []domain.Event
}

// UserService handles account operations.
type UserService struct {
	userRepo repository.UserRepository
	presence redis.PresenceStoreInterface
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	presence redis.PresenceStoreInterface,
	logger logrus.FieldLogger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		presence: presence,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRequest contains the parameters for registering a user.
type RegisterRequest struct {
	Name  string
	Phone string
	Email string
	Role  domain.UserRole
}

// NormalizePhone strips whitespace and lowercases a phone number so the same
// number typed differently maps to one account.
func NormalizePhone(phone string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phone))
}

// Register creates an account, or reactivates a soft-deleted one with the
// same phone number.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*UserResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = NormalizePhone(req.Phone)

	if req.Name == "" {
		return nil, ErrInvalidUserName
	}
	if req.Phone == "" {
		return nil, ErrInvalidPhone
	}
	if req.Role != domain.UserRoleUser && req.Role != domain.UserRoleDriver {
		return nil, ErrInvalidUserRole
	}

	existing, err := s.userRepo.GetByPhone(ctx, req.Phone)
	switch {
	case err == nil && existing.AccountActive:
		return nil, ErrPhoneAlreadyRegistered
	case err == nil:
		return s.reactivate(ctx, existing, req)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup phone: %w", err)
	}

	user := &domain.User{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		Phone:              req.Phone,
		Email:              req.Email,
		Role:               req.Role,
		EmailNotifications: true,
		AccountActive:      true,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPhoneAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return &UserResult{User: user, Events: welcomeEvents(user)}, nil
}

func (s *UserService) reactivate(ctx context.Context, user *domain.User, req RegisterRequest) (*UserResult, error) {
	user.Name = req.Name
	user.Email = req.Email
	user.Role = req.Role
	user.AccountActive = true
	user.EmailNotifications = true

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("reactivate user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("user reactivated")
	return &UserResult{User: user, Events: welcomeEvents(user)}, nil
}

func welcomeEvents(user *domain.User) []domain.Event {
	if user.Email == "" {
		return nil
	}
	u := *user
	return []domain.Event{domain.EmailEventFor(domain.EmailEvent{
		Template:    domain.EmailWelcome,
		To:          user.Email,
		RecipientID: user.ID,
		User:        &u,
	})}
}

// Get retrieves a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, ErrInvalidUserID
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateUserError(err)
	}
	return user, nil
}

// List returns all active users.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.userRepo.GetAll(ctx)
}

// SetEmailNotifications turns email on or off for a user.
func (s *UserService) SetEmailNotifications(ctx context.Context, id string, enabled bool) (*domain.User, error) {
	if id == "" {
		return nil, ErrInvalidUserID
	}

	user, err := s.userRepo.SetEmailNotifications(ctx, id, enabled)
	if err != nil {
		return nil, translateUserError(err)
	}
	return user, nil
}

// Deactivate soft-deletes a user and takes them offline.
func (s *UserService) Deactivate(ctx context.Context, id string) (*UserResult, error) {
	if id == "" {
		return nil, ErrInvalidUserID
	}

	if err := s.userRepo.Deactivate(ctx, id); err != nil {
		return nil, translateUserError(err)
	}

	res := &UserResult{}
	if err := s.presence.MarkOffline(ctx, id); err != nil {
		s.logger.WithError(err).WithField("user_id", id).Warn("remove presence failed")
		return res, nil
	}
	count, err := s.presence.Count(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("count online users failed")
		return res, nil
	}
	res.Events = []domain.Event{
		domain.BroadcastEvent(domain.EventOnlineUsersUpdate, domain.OnlineUsers{OnlineCount: count}),
	}

	s.logger.WithField("user_id", id).Info("user deactivated")
	return res, nil
}

func translateUserError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("user storage: %w", err)
}
