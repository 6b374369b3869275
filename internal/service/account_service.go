package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"cryptopulse/config"
	"cryptopulse/internal/auth"
	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
)

const minPasswordLen = 8

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidAccount     = errors.New("invalid account details")
)

// Session is a signed-in user plus the access token for the rest of the API.
type Session struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
}

// AccountService signs users up and in, and manages their profile.
type AccountService struct {
	jwt   *config.JWTConfig
	users *repository.UserRepository
	log   zerolog.Logger
	cost  int
	now   func() time.Time
}

func NewAccountService(jwtCfg *config.JWTConfig, users *repository.UserRepository, log zerolog.Logger) *AccountService {
	return &AccountService{
		jwt:   jwtCfg,
		users: users,
		log:   log.With().Str("component", "accounts").Logger(),
		cost:  bcrypt.DefaultCost,
		now:   Now,
	}
}

// SetHashCost lowers the bcrypt cost, for tests.
func (s *AccountService) SetHashCost(cost int) { s.cost = cost }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) SignUp(ctx context.Context, email, password string, username *string) (*Session, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidAccount)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidAccount, minPasswordLen)
	}
	users := s.users.WithContext(ctx)
	_, err := users.GetByEmail(email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageErr("lookup email", err)
	}
	if username != nil {
		name := strings.TrimSpace(*username)
		if name == "" {
			username = nil
		} else {
			taken, err := users.UsernameTaken(name, 0)
			if err != nil {
				return nil, storageErr("lookup username", err)
			}
			if taken {
				return nil, ErrUsernameTaken
			}
			username = &name
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	u := &models.User{Email: email, Username: username, PasswordHash: string(hash)}
	if err := users.Create(u); err != nil {
		return nil, storageErr("create user", err)
	}
	s.log.Info().Uint("user_id", u.ID).Msg("account created")
	return s.session(u)
}

// SignIn checks the password and stamps last_sign_in_at. Unknown email and
// wrong password give the same error.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	users := s.users.WithContext(ctx)
	u, err := users.GetByEmail(normalizeEmail(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storageErr("lookup email", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	at := s.now()
	u.LastSignInAt = &at
	if err := users.Update(u); err != nil {
		return nil, storageErr("stamp sign-in", err)
	}
	return s.session(u)
}

func (s *AccountService) session(u *models.User) (*Session, error) {
	token, err := auth.GenerateAccessToken(s.jwt, u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: token, TokenType: "bearer"}, nil
}

func (s *AccountService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	u, err := s.users.WithContext(ctx).GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

// UpdateUsername sets or clears (empty string) the username.
func (s *AccountService) UpdateUsername(ctx context.Context, userID uint, username string) (*models.User, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	users := s.users.WithContext(ctx)
	name := strings.TrimSpace(username)
	if name == "" {
		u.Username = nil
	} else {
		taken, err := users.UsernameTaken(name, userID)
		if err != nil {
			return nil, storageErr("lookup username", err)
		}
		if taken {
			return nil, ErrUsernameTaken
		}
		u.Username = &name
	}
	if err := users.Update(u); err != nil {
		return nil, storageErr("update user", err)
	}
	return u, nil
}

// DeleteAccount removes the user with their rules, logs, favorites and push token.
func (s *AccountService) DeleteAccount(ctx context.Context, userID uint) error {
	ok, err := s.users.WithContext(ctx).DeleteAccount(userID)
	if err != nil {
		return storageErr("delete account", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	s.log.Info().Uint("user_id", userID).Msg("account deleted")
	return nil
}
