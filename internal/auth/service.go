package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizhub/internal/db"
	"quizhub/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleUser  = "user"
	RoleStaff = "staff"

	minPasswordLen = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBootstrapDenied    = errors.New("bootstrap denied")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidInput       = errors.New("invalid input")
)

type Service struct {
	db             *sql.DB
	log            *logger.Logger
	sessionTTL     time.Duration
	bcryptCost     int
	bootstrapToken string
}

type ServiceConfig struct {
	SessionTTL     time.Duration
	BcryptCost     int
	BootstrapToken string
	Logger         *logger.Logger
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

func (u *User) IsStaff() bool {
	return u != nil && u.Role == RoleStaff
}

type RegisterInput struct {
	Username string
	Password string
	FullName string
}

type BootstrapInput struct {
	Token    string
	Username string
	Password string
	FullName string
}

func NewService(conn *sql.DB, cfg ServiceConfig) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Service{
		db:             conn,
		log:            cfg.Logger.With("component", "auth"),
		sessionTTL:     cfg.SessionTTL,
		bcryptCost:     cfg.BcryptCost,
		bootstrapToken: strings.TrimSpace(cfg.BootstrapToken),
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := normalizeUsername(in.Username)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := User{Username: username, FullName: fullName, Role: RoleUser, IsActive: true}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id
	`, username, string(hash), fullName, RoleUser).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	return &u, nil
}

func (s *Service) AuthenticatePassword(ctx context.Context, username, password string) (*User, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var u User
	var passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, role, is_active, password_hash
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.IsActive, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrForbidden
	}
	return &u, nil
}

// BootstrapStaff creates or resets a staff account when token matches the
// configured bootstrap token.
func (s *Service) BootstrapStaff(ctx context.Context, in BootstrapInput) (*User, error) {
	if s.bootstrapToken == "" || !secureEqual(strings.TrimSpace(in.Token), s.bootstrapToken) {
		return nil, ErrBootstrapDenied
	}

	username := normalizeUsername(in.Username)
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = "Quiz Staff"
	}
	if username == "" || len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: username and a password of at least %d characters are required", ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash staff password: %w", err)
	}

	u := User{Username: username, FullName: fullName, Role: RoleStaff, IsActive: true}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (username)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			is_active = TRUE,
			updated_at = now()
		RETURNING id
	`, username, string(hash), fullName, RoleStaff).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert staff user %s: %w", username, err)
	}

	s.log.Warn("staff account bootstrapped", "user_id", u.ID, "username", u.Username)
	return &u, nil
}

func (s *Service) CreateSession(ctx context.Context, userID int64, ipAddress, userAgent string) (string, time.Time, error) {
	token, err := generateToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := time.Now().Add(s.sessionTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (user_id, session_token_hash, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, hashToken(token), expiresAt, nullableString(ipAddress), nullableString(userAgent))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *Service) GetSessionUser(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}

	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.role, u.is_active
		FROM user_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.session_token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
	`, hashToken(token)).Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("query session user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrUnauthorized
	}
	return &u, nil
}

func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET revoked_at = now()
		WHERE session_token_hash = $1
		  AND revoked_at IS NULL
	`, hashToken(token))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func normalizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._-")
}

func nullableString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func secureEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
