package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/entity"
	auditDto "anoa.com/studentrecords/internal/modules/audit/dto"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	"anoa.com/studentrecords/internal/modules/auth/dto"
	"anoa.com/studentrecords/internal/modules/auth/repository"
	userDto "anoa.com/studentrecords/internal/modules/user/dto"
	userRepo "anoa.com/studentrecords/internal/modules/user/repository"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SearchTokenGenerator issues a search-only token scoped to what the user may read.
type SearchTokenGenerator interface {
	GenerateSearchToken(ctx context.Context, user *entity.User) (string, error)
}

type SessionConfig struct {
	SessionTTL    time.Duration
	RememberMeTTL time.Duration
	Now           func() time.Time
}

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest, meta commonDto.RequestMeta) (*dto.LoginResponse, error)
	Logout(ctx context.Context, session dto.Session, meta commonDto.RequestMeta) error
}

type authService struct {
	transactor  database.Transactor
	users       userRepo.UserRepository
	attempts    repository.LoginAttemptRepository
	lockout     *LockoutTracker
	audit       auditService.AuditService
	tokens      *TokenIssuer
	revocations RevocationStore
	search      SearchTokenGenerator
	cfg         SessionConfig
}

func NewAuthService(
	transactor database.Transactor,
	users userRepo.UserRepository,
	attempts repository.LoginAttemptRepository,
	lockout *LockoutTracker,
	audit auditService.AuditService,
	tokens *TokenIssuer,
	revocations RevocationStore,
	search SearchTokenGenerator,
	cfg SessionConfig,
) AuthService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.RememberMeTTL < cfg.SessionTTL {
		cfg.RememberMeTTL = cfg.SessionTTL
	}

	return &authService{
		transactor:  transactor,
		users:       users,
		attempts:    attempts,
		lockout:     lockout,
		audit:       audit,
		tokens:      tokens,
		revocations: revocations,
		search:      search,
		cfg:         cfg,
	}
}

// Login runs one attempt of the lockout state machine. Every call writes exactly
// one LoginAttempt row and at most one SecurityLog row, committed even when the
// attempt is rejected.
func (s *authService) Login(ctx context.Context, req dto.LoginRequest, meta commonDto.RequestMeta) (*dto.LoginResponse, error) {
	role, err := entity.ParseRole(req.Role)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Please select a valid role.")
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Username is required.")
	}

	var (
		user    *entity.User
		outcome error
	)

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		lockout := s.lockout.WithTx(tx)
		users := s.users.WithTx(tx)
		attempts := s.attempts.WithTx(tx)
		audit := s.audit.WithTx(tx)

		record := func(success bool) error {
			return attempts.Create(ctx, &entity.LoginAttempt{
				Username:  username,
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
				Success:   success,
				Timestamp: s.cfg.Now(),
			})
		}

		state, err := lockout.Acquire(ctx, username)
		if err != nil {
			return err
		}
		if state.Locked {
			outcome = apperror.Wrap(apperror.ErrAccountLocked,
				fmt.Sprintf("Account is locked. Try again in %d minutes.", state.RemainingMinutes()))
			return record(false)
		}

		matched, err := s.matchCredentials(ctx, users, username, req.Password)
		if err != nil {
			return err
		}

		if matched == nil {
			state, err := lockout.RecordFailure(ctx, username)
			if err != nil {
				return err
			}
			if err := record(false); err != nil {
				return err
			}
			if state.JustLocked {
				outcome = apperror.Wrap(apperror.ErrAccountLocked, s.lockedMessage())
				return s.logLockout(ctx, audit, nil, username, state, meta)
			}
			outcome = apperror.Wrap(apperror.ErrInvalidCredentials,
				fmt.Sprintf("Invalid username or password. %d attempts remaining.", state.AttemptsRemaining))
			return nil
		}

		if matched.Role != role {
			state, err := lockout.RecordFailure(ctx, username)
			if err != nil {
				return err
			}
			if err := record(false); err != nil {
				return err
			}
			message := fmt.Sprintf("Invalid role selected. You are not registered as %s.", role.Label())
			if state.JustLocked {
				message += " " + s.lockedMessage()
				outcome = apperror.Wrap(apperror.ErrRoleMismatch, message)
				return s.logLockout(ctx, audit, &matched.ID, username, state, meta)
			}
			outcome = apperror.Wrap(apperror.ErrRoleMismatch, message)
			return nil
		}

		if err := lockout.RecordSuccess(ctx, username); err != nil {
			return err
		}
		if err := record(true); err != nil {
			return err
		}
		if err := audit.Log(ctx, auditDto.Entry{
			UserID:  &matched.ID,
			Action:  entity.ActionLogin,
			Meta:    meta,
			Details: fmt.Sprintf("Successful login as %s", matched.Role.Label()),
		}); err != nil {
			return err
		}

		user = matched
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}

	return s.buildLoginResponse(ctx, user, req.RememberMe)
}

// matchCredentials tries the identifier as a username first, then as an email
// address. Inactive accounts never match.
func (s *authService) matchCredentials(ctx context.Context, users userRepo.UserRepository, identifier, password string) (*entity.User, error) {
	byUsername, err := users.FindByUsername(ctx, identifier)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if byUsername != nil && passwordMatches(byUsername, password) {
		return byUsername, nil
	}

	byEmail, err := users.FindByEmail(ctx, identifier)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if byUsername != nil && byEmail.ID == byUsername.ID {
		return nil, nil
	}
	if passwordMatches(byEmail, password) {
		return byEmail, nil
	}
	return nil, nil
}

func passwordMatches(user *entity.User, password string) bool {
	if !user.IsActive {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (s *authService) lockedMessage() string {
	return fmt.Sprintf("Account locked for %d minutes due to too many failed attempts.", int(s.lockout.Duration().Minutes()))
}

func (s *authService) logLockout(ctx context.Context, audit auditService.AuditService, userID *uuid.UUID, username string, state LockState, meta commonDto.RequestMeta) error {
	return audit.Log(ctx, auditDto.Entry{
		UserID: userID,
		Action: entity.ActionLoginFailed,
		Meta:   meta,
		Details: fmt.Sprintf("Account %q locked for %d minutes after %d failed attempts",
			username, int(s.lockout.Duration().Minutes()), state.FailedAttempts),
	})
}

func (s *authService) buildLoginResponse(ctx context.Context, user *entity.User, rememberMe bool) (*dto.LoginResponse, error) {
	ttl := s.cfg.SessionTTL
	if rememberMe {
		ttl = s.cfg.RememberMeTTL
	}

	token, claims, err := s.tokens.Issue(user.ID, ttl)
	if err != nil {
		return nil, err
	}

	var searchToken string
	if s.search != nil {
		st, err := s.search.GenerateSearchToken(ctx, user)
		if err != nil {
			log.Printf("Failed to generate search token for user %s (role %s): %v", user.Username, user.Role, err)
		} else {
			searchToken = st
		}
	}

	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		ExpiresAt:   claims.ExpiresAt.Unix(),
		User:        userDto.NewUserResponse(user),
		RedirectTo:  user.Role.DashboardPath(),
		SearchToken: searchToken,
		Message:     fmt.Sprintf("Welcome back, %s!", displayName(user)),
	}, nil
}

func displayName(user *entity.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Username
}

func (s *authService) Logout(ctx context.Context, session dto.Session, meta commonDto.RequestMeta) error {
	if err := s.audit.Log(ctx, auditDto.Entry{
		UserID:  &session.UserID,
		Action:  entity.ActionLogout,
		Meta:    meta,
		Details: "User logged out",
	}); err != nil {
		return err
	}

	if s.revocations == nil || session.TokenID == "" {
		return nil
	}
	return s.revocations.Revoke(ctx, session.TokenID, session.ExpiresAt.Sub(s.cfg.Now()))
}
