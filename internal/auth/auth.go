package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/simstreet/simstreet/internal/models"
)

// UserStore is the durable user state the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash, role string, startingCash float64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Roles carried in the token's role claim.
const (
	RoleAdmin  = "admin"
	RoleTrader = "trader"
)

// Principal is the authenticated identity attached to each request.
type Principal struct {
	UserID int
	Role   string
}

// IsAdmin reports whether the principal may perform admin operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// AuthService handles user authentication
type AuthService struct {
	store        UserStore
	secret       []byte
	startingCash float64
}

// NewAuthService creates a new auth service
func NewAuthService(store UserStore, secret string, startingCash float64) *AuthService {
	return &AuthService{store: store, secret: []byte(secret), startingCash: startingCash}
}

// Register creates a new trader with hashed password and the configured
// starting cash balance.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	// Validate input
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// Create user in database
	user, err := s.store.CreateUser(ctx, username, string(hashedPassword), RoleTrader, s.startingCash)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	// Get user from database
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	// Generate JWT
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// PrincipalFromToken extracts the authenticated principal from a JWT.
func (s *AuthService) PrincipalFromToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return Principal{}, fmt.Errorf("invalid user_id claim")
	}
	role, _ := claims["role"].(string)

	return Principal{UserID: int(userID), Role: role}, nil
}
