// Package service holds the account saga: registration, email
// verification and login.  Each operation keeps three parties in step:
// the accounts table (authoritative), the AccountCollection projection
// and the downstream profile service.
//
// Only the relational writes are transactional.  The profile call runs
// while the transaction is open and decides whether it commits.  The
// projection and the notification are written after the commit and their
// failures are logged, never returned, so the projection can lag behind
// but never lead.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/edusmart-auth/internal/dbx"
	"github.com/iliyamo/edusmart-auth/internal/logging"
	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/projection"
	"github.com/iliyamo/edusmart-auth/internal/queue"
	"github.com/iliyamo/edusmart-auth/internal/repository"
	"github.com/iliyamo/edusmart-auth/internal/rpc"
	"github.com/iliyamo/edusmart-auth/internal/telemetry"
	"github.com/iliyamo/edusmart-auth/internal/token"
	"github.com/iliyamo/edusmart-auth/internal/uow"
	"github.com/iliyamo/edusmart-auth/internal/utils"
)

// ProfileGateway is the downstream profile service.
type ProfileGateway interface {
	RequestCreate(ctx context.Context, req queue.ProfileCreateRequest) (*rpc.Future[queue.ProfileCreateResponse], error)
	RequestLogin(ctx context.Context, req queue.ProfileLoginRequest) (*rpc.Future[queue.ProfileLoginResponse], error)
}

// KeyPublisher hands verification keys to the notifier.
type KeyPublisher interface {
	PublishSendKey(ctx context.Context, ev queue.SendKeyEvent) error
}

// Options tunes the saga.  Zero values fall back to production defaults.
type Options struct {
	BcryptCost         int
	PasswordMinEntropy float64
	// MaskConflicts reports duplicate and cooldown registrations under one
	// generic code so the response does not reveal whether an email exists.
	MaskConflicts bool
	// Actor is written to created_by/updated_by.
	Actor string
	Now   func() time.Time
}

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type RegisterResult struct {
	Success     bool
	MessageCode string
	AccountID   string
}

type VerifyResult struct {
	Success     bool
	MessageCode string
	AccountID   string
	// AlreadyConfirmed is set when the token had been redeemed before.
	AlreadyConfirmed bool
}

type LoginResult struct {
	UserID   string
	FullName string
	Email    string
	RoleName string
}

type AccountService struct {
	uow       *uow.UnitOfWork
	codec     *token.Codec
	profiles  ProfileGateway
	publisher KeyPublisher
	log       logging.Logger
	tracer    trace.Tracer
	opts      Options
}

func NewAccountService(u *uow.UnitOfWork, codec *token.Codec, profiles ProfileGateway, publisher KeyPublisher, log logging.Logger, opts Options) *AccountService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.Actor == "" {
		opts.Actor = "system"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AccountService{
		uow:       u,
		codec:     codec,
		profiles:  profiles,
		publisher: publisher,
		log:       log,
		tracer:    telemetry.Tracer(),
		opts:      opts,
	}
}

func (s *AccountService) now() time.Time { return s.opts.Now().UTC() }

// Register creates a student account.  See the package comment for the
// consistency model.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (res *RegisterResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Register")
	defer func() { endSpan(span, err) }()

	req.Email = repository.NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validateRegister(req, s.opts.PasswordMinEntropy); err != nil {
		return nil, err
	}
	log := s.log.With("op", "register", "email", req.Email)

	db := s.uow.DB()
	role, err := repository.NewRoleRepo(db).FindByName(ctx, model.RoleStudent)
	if errors.Is(err, repository.ErrNotFound) {
		log.Error(ctx, "student role missing, run the seeder")
		return nil, ErrRoleMissing
	}
	if err != nil {
		return nil, s.fail(ctx, "load student role", err)
	}

	now := s.now()
	existing, err := repository.NewAccountRepo(db).FindActiveByEmail(ctx, req.Email)
	var old *model.Account
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, s.fail(ctx, "lookup existing account", err)
	case existing.EmailConfirmed:
		return nil, s.conflict(ErrDuplicateEmail)
	case !existing.CooldownElapsed(now):
		return nil, s.conflict(ErrCooldown)
	default:
		old = existing
	}
	// Projections to drop once the new account is committed.
	var superseded []string
	if old != nil {
		span.SetAttributes(attribute.String("account.old_id", old.AccountID))
		superseded = append(superseded, old.AccountID)
		doc, err := s.uow.Documents().FindActiveByEmail(ctx, req.Email)
		switch {
		case errors.Is(err, projection.ErrNotFound):
			// Projection writes are best effort, so a missing document must
			// not keep the email from being registered again.
			log.Warn(ctx, "projection of superseded account is missing, continuing", "old_account_id", old.AccountID)
		case err != nil:
			log.Warn(ctx, "projection lookup failed, continuing", "old_account_id", old.AccountID, "err", err)
		case doc.AccountID != old.AccountID:
			log.Warn(ctx, "stale projection holds the email", "old_account_id", old.AccountID, "stale_account_id", doc.AccountID)
			superseded = append(superseded, doc.AccountID)
		}
	}

	// Hash before the transaction opens so it stays short.
	hash, err := utils.HashPassword(req.Password, s.opts.BcryptCost)
	if err != nil {
		return nil, s.fail(ctx, "hash password", err)
	}
	id := uuid.NewString()
	key, err := s.codec.Encode(req.Email, id)
	if err != nil {
		return nil, s.fail(ctx, "encode verification key", err)
	}
	acc := model.NewAccount(id, role.ID, req.Email, hash, key)
	acc.StampCreated(s.opts.Actor, now)
	span.SetAttributes(attribute.String("account.id", id))

	createReq := queue.ProfileCreateRequest{
		UserID:    id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      byte(model.RoleCodeStudent),
		Email:     req.Email,
	}
	if old != nil {
		oldID := old.AccountID
		createReq.OldUserID = &oldID
	}

	err = s.uow.Run(ctx, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		accounts := repository.NewAccountRepo(tx)
		if old != nil {
			old.Retire(s.opts.Actor, now)
			if err := accounts.RetireUnconfirmed(ctx, old); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return false, repository.ErrEmailExists
				}
				return false, err
			}
		}
		if err := accounts.Insert(ctx, acc); err != nil {
			return false, err
		}
		fut, err := s.profiles.RequestCreate(ctx, createReq)
		if err != nil {
			return false, downstreamError(err)
		}
		resp, err := fut.Await(ctx)
		if err != nil {
			return false, downstreamError(err)
		}
		if !resp.Success {
			return false, downstreamError(fmt.Errorf("profile create rejected: %s", resp.Message))
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			// Another registration won; report what it left behind.
			return nil, s.existingConflict(ctx, req.Email)
		}
		log.Warn(ctx, "registration rolled back", "account_id", id, "err", err)
		return nil, s.fail(ctx, "register", err)
	}
	log.Info(ctx, "account registered", "account_id", id)

	docs := s.uow.Documents()
	for _, sid := range superseded {
		if err := docs.Delete(ctx, sid); err != nil {
			log.Warn(ctx, "delete superseded projection failed", "old_account_id", sid, "err", err)
		}
	}
	info := model.UserInformation{FirstName: req.FirstName, LastName: req.LastName}
	if err := docs.Upsert(ctx, model.FromWriteModel(acc, info, role)); err != nil {
		log.Warn(ctx, "projection upsert failed", "account_id", id, "err", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSendKey(ctx, queue.SendKeyEvent{Key: key}); err != nil {
			log.Warn(ctx, "send-key publish failed", "account_id", id, "err", err)
		}
	}

	return &RegisterResult{Success: true, MessageCode: CodeSuccess, AccountID: id}, nil
}

// VerifyAccount redeems a verification token.  Replaying a token that was
// already redeemed succeeds without touching anything.
func (s *AccountService) VerifyAccount(ctx context.Context, tok string) (res *VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.VerifyAccount")
	defer func() { endSpan(span, err) }()

	claims, err := s.codec.Decode(tok)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	span.SetAttributes(attribute.String("account.id", claims.AccountID))
	log := s.log.With("op", "verify", "account_id", claims.AccountID)

	accounts := repository.NewAccountRepo(s.uow.DB())
	acc, err := accounts.FindActiveByKey(ctx, tok)
	if errors.Is(err, repository.ErrNotFound) {
		prev, err := accounts.FindByID(ctx, claims.AccountID)
		if err == nil && prev.IsActive && prev.EmailConfirmed && prev.Email == claims.Email {
			return &VerifyResult{Success: true, MessageCode: CodeSuccess, AccountID: prev.AccountID, AlreadyConfirmed: true}, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, s.fail(ctx, "lookup account", err)
		}
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, s.fail(ctx, "lookup account by key", err)
	}
	if acc.AccountID != claims.AccountID || acc.Email != claims.Email {
		log.Warn(ctx, "token claims do not match the account holding the key")
		return nil, ErrTokenInvalid
	}
	if acc.EmailConfirmed {
		return &VerifyResult{Success: true, MessageCode: CodeSuccess, AccountID: acc.AccountID, AlreadyConfirmed: true}, nil
	}
	now := s.now()
	if acc.RegistrationExpired(now) {
		return nil, ErrTokenInvalid
	}

	already := false
	err = s.uow.Run(ctx, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		accounts := repository.NewAccountRepo(tx)
		cur, err := accounts.FindByID(ctx, acc.AccountID)
		if err != nil {
			return false, err
		}
		if !cur.IsActive {
			return false, ErrTokenInvalid
		}
		if cur.EmailConfirmed {
			already = true
			return false, nil
		}
		cur.Confirm()
		cur.StampUpdated(s.opts.Actor, now)
		if err := accounts.Update(ctx, cur); err != nil {
			return false, err
		}
		acc = cur
		return true, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "verify", err)
	}
	if already {
		return &VerifyResult{Success: true, MessageCode: CodeSuccess, AccountID: acc.AccountID, AlreadyConfirmed: true}, nil
	}
	log.Info(ctx, "email confirmed")

	s.mirror(ctx, log, acc, nil)
	return &VerifyResult{Success: true, MessageCode: CodeSuccess, AccountID: acc.AccountID}, nil
}

// Login checks credentials and applies the lockout policy.  Every refusal,
// whatever its cause, is ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Login")
	defer func() { endSpan(span, err) }()

	email = repository.NormalizeEmail(email)
	log := s.log.With("op", "login", "email", email)

	acc, err := repository.NewAccountRepo(s.uow.DB()).FindActiveByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.fail(ctx, "lookup account", err)
	}
	now := s.now()
	if !acc.EmailConfirmed || acc.IsLocked(now) {
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.String("account.id", acc.AccountID))

	if !utils.VerifyPassword(acc.PasswordHash, password) {
		return nil, s.recordFailedLogin(ctx, log, acc.AccountID, now)
	}

	var (
		role *model.Role
		info model.UserInformation
	)
	err = s.uow.Run(ctx, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		accounts := repository.NewAccountRepo(tx)
		// Writing first takes the row lock before the profile call.
		err := accounts.ResetFailedLogins(ctx, acc.AccountID, now, s.opts.Actor)
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrInvalidCredentials
		}
		if err != nil {
			return false, err
		}

		role, err = repository.NewRoleRepo(tx).FindByID(ctx, acc.RoleID)
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrRoleMissing
		}
		if err != nil {
			return false, err
		}

		fut, err := s.profiles.RequestLogin(ctx, queue.ProfileLoginRequest{UserID: acc.AccountID})
		if err != nil {
			return false, downstreamError(err)
		}
		resp, err := fut.Await(ctx)
		if err != nil {
			return false, downstreamError(err)
		}
		if !resp.Success {
			return false, downstreamError(fmt.Errorf("profile login rejected: %s", resp.Message))
		}
		info = model.UserInformation{FirstName: resp.FirstName, LastName: resp.LastName}

		acc, err = accounts.FindByID(ctx, acc.AccountID)
		if err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "login", err)
	}

	s.mirror(ctx, log, acc, &info)
	return &LoginResult{
		UserID:   acc.AccountID,
		FullName: info.FullName(),
		Email:    acc.Email,
		RoleName: role.Name,
	}, nil
}

// recordFailedLogin counts a password mismatch.  The increment is a single
// statement so concurrent attempts are all counted.  The caller always gets
// ErrInvalidCredentials unless the store itself fails.
func (s *AccountService) recordFailedLogin(ctx context.Context, log logging.Logger, id string, now time.Time) error {
	accounts := repository.NewAccountRepo(s.uow.DB())
	err := accounts.RecordFailedLogin(ctx, id, model.MaxAccessFailedCount, model.LockoutUntil(now), now, s.opts.Actor)
	if errors.Is(err, repository.ErrNotFound) {
		// locked or retired by a concurrent request
		return ErrInvalidCredentials
	}
	if err != nil {
		return s.fail(ctx, "record failed login", err)
	}
	acc, err := accounts.FindByID(ctx, id)
	if err != nil {
		log.Warn(ctx, "reload after failed login", "account_id", id, "err", err)
		return ErrInvalidCredentials
	}
	log.Info(ctx, "password mismatch", "account_id", id, "failed_count", acc.AccessFailedCount, "locked", acc.IsLocked(now))
	s.mirror(ctx, log, acc, nil)
	return ErrInvalidCredentials
}

// Profile returns the projection of an account.
func (s *AccountService) Profile(ctx context.Context, accountID string) (model.AccountCollection, error) {
	doc, err := s.uow.Documents().FindByAccountID(ctx, accountID)
	if errors.Is(err, projection.ErrNotFound) {
		return model.AccountCollection{}, ErrAccountNotFound
	}
	if err != nil {
		return model.AccountCollection{}, s.fail(ctx, "load profile", err)
	}
	return doc, nil
}

// Roles lists the seeded roles.
func (s *AccountService) Roles(ctx context.Context) ([]model.Role, error) {
	roles, err := repository.NewRoleRepo(s.uow.DB()).List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list roles", err)
	}
	return roles, nil
}

// SeedRoles inserts the reference roles that are missing.
func (s *AccountService) SeedRoles(ctx context.Context) (int, error) {
	var created int
	err := s.uow.Run(ctx, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		n, err := repository.NewRoleRepo(tx).Seed(ctx, s.opts.Actor, s.now())
		created = n
		return err == nil, err
	})
	if err != nil {
		return 0, fmt.Errorf("seed roles: %w", err)
	}
	return created, nil
}

// mirror copies acc onto its projection after a commit.  info replaces
// the stored profile names when given.
func (s *AccountService) mirror(ctx context.Context, log logging.Logger, acc *model.Account, info *model.UserInformation) {
	docs := s.uow.Documents()
	var names model.UserInformation
	var role *model.Role
	doc, err := docs.FindByAccountID(ctx, acc.AccountID)
	switch {
	case err == nil:
		names = doc.UserInformation
		if doc.Role != nil {
			role = &model.Role{ID: doc.Role.ID, Name: doc.Role.Name, NormalizedName: doc.Role.NormalizedName}
		}
	case errors.Is(err, projection.ErrNotFound):
		log.Warn(ctx, "projection missing, rebuilding from the account row", "account_id", acc.AccountID)
	default:
		log.Warn(ctx, "projection read failed", "account_id", acc.AccountID, "err", err)
		return
	}
	if info != nil {
		names = *info
	}
	if role == nil {
		if r, err := repository.NewRoleRepo(s.uow.DB()).FindByID(ctx, acc.RoleID); err == nil {
			role = r
		}
	}
	if err := docs.Upsert(ctx, model.FromWriteModel(acc, names, role)); err != nil {
		log.Warn(ctx, "projection upsert failed", "account_id", acc.AccountID, "err", err)
	}
}

// existingConflict classifies a registration that lost to a concurrent
// one: the winner is still unconfirmed (cooldown) or already confirmed.
func (s *AccountService) existingConflict(ctx context.Context, email string) error {
	cur, err := repository.NewAccountRepo(s.uow.DB()).FindActiveByEmail(ctx, email)
	if err == nil && !cur.EmailConfirmed {
		return s.conflict(ErrCooldown)
	}
	return s.conflict(ErrDuplicateEmail)
}

func (s *AccountService) conflict(e *Error) error {
	if s.opts.MaskConflicts {
		return maskedConflict(e)
	}
	return e
}

// fail passes classified errors through and wraps everything else as a
// system error, logging the detail that the client will not see.
func (s *AccountService) fail(ctx context.Context, op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	s.log.Error(ctx, "unexpected failure", "op", op, "err", err)
	return systemError(op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}
