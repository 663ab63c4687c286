package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

var _ Authenticator = (*Auther)(nil)

// Auther is the authentication engine. It owns the login state machine and
// delegates registration, confirmation, and reset flows to their command
// handlers.
type Auther struct {
	repo         RepositoryManager
	tokens       *TokenService
	sessions     *SessionTokenService
	lockout      *LockoutPolicy
	hasher       *PasswordHasher
	mailer       Mailer
	activitySink ActivitySink
	logger       Logger
	cfg          Config
	now          func() time.Time

	// decoyHash is the comparison target for unknown accounts, computed
	// once so the decoy path costs a single derivation like the real one.
	decoyHash string
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, cfg Config) *Auther {
	cfg = cfg.WithDefaults()
	hasher := NewPasswordHasher(cfg.Password)

	return &Auther{
		repo:   repo,
		tokens: NewTokenService(repo, cfg.ConfirmationTokenTTL, cfg.ResetTokenTTL),
		sessions: NewSessionTokenService(
			[]byte(cfg.SigningKey),
			cfg.SessionTTL,
			cfg.Issuer,
			cfg.Audience,
			defLogger{},
		),
		lockout:      NewLockoutPolicy(repo, cfg.Lockout),
		hasher:       hasher,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		cfg:          cfg,
		now:          time.Now,
		decoyHash:    hasher.RandomPasswordHash(),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.sessions = NewSessionTokenService(
		[]byte(s.cfg.SigningKey),
		s.cfg.SessionTTL,
		s.cfg.Issuer,
		s.cfg.Audience,
		logger,
	)
	return s
}

// WithMailer configures the outbound mailer for confirmation and reset
// notifications.
func (s *Auther) WithMailer(mailer Mailer) *Auther {
	s.mailer = mailer
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the opaque token service used by this Authenticator
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

// SessionTokenService returns the session token service used by this
// Authenticator
func (s *Auther) SessionTokenService() *SessionTokenService {
	return s.sessions
}

// Login runs the credential check state machine and returns a signed
// session token. Unknown email and wrong password both come back as
// ErrInvalidCredentials.
func (s *Auther) Login(ctx context.Context, email, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// Burn a hash comparison against the precomputed decoy so the
			// unknown-email path costs the same as a wrong-password one.
			_ = s.hasher.ComparePasswordAndHash(password, s.decoyHash)
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"email": NormalizeEmail(email),
				"error": ErrInvalidCredentials.Error(),
			})
			return "", ErrInvalidCredentials
		}

		s.logger.Error("Login account lookup error: %v", err)
		return "", newTransientError(err, "account lookup failed")
	}

	if locked, remaining := s.lockout.IsLocked(account); locked {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromAccount(account), account.ID.String(), map[string]any{
			"error": ErrAccountLocked.Error(),
		})
		return "", newAccountLockedError(remaining)
	}

	if err := s.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return "", s.handleFailedPassword(ctx, account)
	}

	// Confirmation status is only disclosed once the password has verified;
	// an unverified caller learns nothing about the account's state.
	if !account.EmailConfirmed {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromAccount(account), account.ID.String(), map[string]any{
			"error": ErrEmailUnconfirmed.Error(),
		})
		return "", ErrEmailUnconfirmed
	}

	if err := s.handleSuccessfulPassword(ctx, account, password); err != nil {
		return "", err
	}

	token, err := s.sessions.Generate(NewIdentityFromAccount(account))
	if err != nil {
		s.logger.Error("Login session token generation error: %v", err)
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromAccount(account), account.ID.String(), nil)

	return token, nil
}

func (s *Auther) handleFailedPassword(ctx context.Context, account *Account) error {
	var lockedNow bool
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		lockedNow, err = s.lockout.RecordFailure(ctx, tx, account.ID)
		return err
	})

	if err != nil {
		s.logger.Error("Login failure tracking error: %v", err)
		return newTransientError(err, "failed access tracking failed")
	}

	if lockedNow {
		s.emitAuthEvent(ctx, ActivityEventAccountLocked, s.actorFromAccount(account), account.ID.String(), nil)
	}

	s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromAccount(account), account.ID.String(), map[string]any{
		"error": ErrInvalidCredentials.Error(),
	})

	return ErrInvalidCredentials
}

func (s *Auther) handleSuccessfulPassword(ctx context.Context, account *Account, password string) error {
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.lockout.RecordSuccess(ctx, tx, account.ID); err != nil {
			return err
		}

		// Rehash legacy or stale-parameter hashes while we still hold the
		// plaintext. A lost version race just means someone else already
		// changed the password, skip quietly.
		if s.hasher.NeedsRehash(account.PasswordHash) {
			hash, err := s.hasher.HashPassword(password)
			if err != nil {
				return err
			}
			err = s.repo.Accounts().SetPasswordTx(ctx, tx, account.ID, hash, account.Version)
			if err != nil && !goerrors.Is(err, ErrVersionConflict) {
				return err
			}
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Login success tracking error: %v", err)
		return newTransientError(err, "successful access tracking failed")
	}

	return nil
}

// Logout discards the session. Sessions are stateless so there is nothing
// to revoke server side; the event is recorded for auditing.
func (s *Auther) Logout(ctx context.Context, session Session) {
	if session == nil {
		return
	}
	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: session.GetUserID(), Type: "user"}, session.GetUserID(), nil)
}

// Register creates an account and dispatches its confirmation token.
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*RegisterUserResponse, error) {
	var resp *RegisterUserResponse
	inner := msg.OnResponse
	msg.OnResponse = func(r *RegisterUserResponse) {
		resp = r
		if inner != nil {
			inner(r)
		}
	}

	handler := NewRegisterUserHandler(s.repo, s.tokens, s.hasher, s.mailer, s.logger, s.cfg)
	if err := handler.Execute(ctx, msg); err != nil {
		return nil, err
	}

	if resp != nil && resp.Account != nil {
		s.emitAuthEvent(ctx, ActivityEventRegistration, s.actorFromAccount(resp.Account), resp.Account.ID.String(), nil)
	}

	return resp, nil
}

// ConfirmEmail consumes a confirmation token and marks the address
// confirmed.
func (s *Auther) ConfirmEmail(ctx context.Context, token string) (*ConfirmEmailResponse, error) {
	var resp *ConfirmEmailResponse
	handler := NewConfirmEmailHandler(s.repo, s.tokens, s.cfg)
	err := handler.Execute(ctx, ConfirmEmailMessage{
		Token: token,
		OnResponse: func(r *ConfirmEmailResponse) {
			resp = r
		},
	})
	if err != nil {
		return nil, err
	}

	if resp != nil && resp.Account != nil {
		s.emitAuthEvent(ctx, ActivityEventEmailConfirmed, s.actorFromAccount(resp.Account), resp.Account.ID.String(), nil)
	}

	return resp, nil
}

// RequestPasswordReset issues a reset token for the address. It succeeds
// silently when the address is unknown.
func (s *Auther) RequestPasswordReset(ctx context.Context, email string) (*InitializePasswordResetResponse, error) {
	var resp *InitializePasswordResetResponse
	handler := NewInitializePasswordResetHandler(s.repo, s.tokens, s.mailer, s.logger, s.cfg)
	err := handler.Execute(ctx, InitializePasswordResetMessage{
		Email: email,
		OnResponse: func(r *InitializePasswordResetResponse) {
			resp = r
		},
	})
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventPasswordResetRequest, ActorRef{Type: "unknown"}, "", map[string]any{
		"email": NormalizeEmail(email),
	})

	return resp, nil
}

// ResetPassword consumes a reset token and replaces the password. The reset
// also confirms the email and clears any lockout.
func (s *Auther) ResetPassword(ctx context.Context, token, password string) (*FinalizePasswordResetResponse, error) {
	var resp *FinalizePasswordResetResponse
	handler := NewFinalizePasswordResetHandler(s.repo, s.tokens, s.hasher, s.cfg)
	err := handler.Execute(ctx, FinalizePasswordResetMessage{
		Token:    token,
		Password: password,
		OnResponse: func(r *FinalizePasswordResetResponse) {
			resp = r
		},
	})
	if err != nil {
		return nil, err
	}

	if resp != nil {
		s.emitAuthEvent(ctx, ActivityEventPasswordResetSuccess, ActorRef{ID: resp.AccountID, Type: "user"}, resp.AccountID, nil)
	}

	return resp, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	if session == nil {
		return nil, ErrUnableToFindSession
	}

	account, err := s.repo.Accounts().GetByID(ctx, session.GetUserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		s.logger.Error("IdentityFromSession account lookup: %v", err)
		return nil, err
	}

	return NewIdentityFromAccount(account), nil
}

func (s Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.sessions.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromAccount(account *Account) ActorRef {
	if account == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   account.ID.String(),
		Type: "user",
	}
}
