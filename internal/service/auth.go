package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

type AuthService struct {
	tx          repository.TxManager
	userRepo    repository.UserRepository
	cartRepo    repository.CartRepository
	jwtSecret   []byte
	jwtExpiry   time.Duration
	adminEmails []string
	log         *slog.Logger
}

// NewAuthService builds the auth service. Accounts registered with one of
// adminEmails get the admin role.
func NewAuthService(
	tx repository.TxManager,
	userRepo repository.UserRepository,
	cartRepo repository.CartRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
	adminEmails []string,
	log *slog.Logger,
) *AuthService {
	normalized := make([]string, 0, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			normalized = append(normalized, e)
		}
	}
	return &AuthService{
		tx: tx, userRepo: userRepo, cartRepo: cartRepo,
		jwtSecret: []byte(jwtSecret), jwtExpiry: jwtExpiry,
		adminEmails: normalized, log: log,
	}
}

// Register creates the user and their empty cart in one transaction.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email: email, Password: string(hashed),
		FirstName: req.FirstName, LastName: req.LastName, Role: model.RoleCustomer,
	}
	if slices.Contains(s.adminEmails, email) {
		user.Role = model.RoleAdmin
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.userRepo.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.cartRepo.Create(ctx, tx, &model.Cart{UserID: user.ID})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("register user: %w", err)
	}
	s.log.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role)

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &dto.AuthResponse{Token: token, User: dto.ToUserResponse(user)}, nil
}

func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &dto.AuthResponse{Token: token, User: dto.ToUserResponse(user)}, nil
}

func (s *AuthService) generateToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  now.Add(s.jwtExpiry).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}
