// Package accounts owns registration, sign-in verification and administrator decisions on profiles.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/approval"
	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	"github.com/MarkoPoloResearchLab/safecall/internal/storage"
)

const (
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
	// maxPasswordBytes is the longest input bcrypt hashes without truncation.
	maxPasswordBytes = 72

	emailCondition     = "email = ?"
	idCondition        = "id = ?"
	logEventSignUp     = "sign_up"
	logEventDecision   = "profile_decision"
	logFieldProfileID  = "profile_id"
	logFieldStatus     = "status"
	logFieldRole       = "role"
	logFieldAction     = "action"
	logFieldActorID    = "actor_id"
	lookupProfileError = "accounts: lookup profile"
	createProfileError = "accounts: create profile"
	updateProfileError = "accounts: update profile"
	hashPasswordError  = "accounts: hash password"
	evaluateRuleError  = "accounts: evaluate approval rule"
)

var (
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrPasswordTooShort   = errors.New("password_too_short")
	ErrPasswordTooLong    = errors.New("password_too_long")
	ErrProfileNotFound    = errors.New("profile_not_found")
	ErrActionNotAllowed   = errors.New("action_not_allowed")
	ErrUnknownAction      = errors.New("unknown_action")
)

// Action is an administrator decision on a profile.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionPromote Action = "promote"
	ActionDemote  Action = "demote"
)

// ParseAction validates an action name.
func ParseAction(rawAction string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(rawAction)))
	switch action {
	case ActionApprove, ActionReject, ActionPromote, ActionDemote:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, rawAction)
	}
}

// RegistrationInput holds the sign-up form.
type RegistrationInput struct {
	Email      string
	Password   string
	FullName   string
	Phone      string
	Department string
}

// Config captures the Service dependencies.
type Config struct {
	Database        *gorm.DB
	Policy          *approval.Policy
	BootstrapAdmins []string
	Recorder        *metrics.Recorder
	Logger          *zap.Logger
	BcryptCost      int
}

// Service implements account operations on top of the profiles table.
type Service struct {
	database        *gorm.DB
	policy          *approval.Policy
	bootstrapAdmins map[string]struct{}
	recorder        *metrics.Recorder
	logger          *zap.Logger
	bcryptCost      int
	dummyHash       []byte
}

// NewService builds a Service. A zero BcryptCost selects bcrypt.DefaultCost.
func NewService(config Config) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := config.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%s: %w", hashPasswordError, bcrypt.InvalidCostError(cost))
	}
	dummyHash, hashErr := bcrypt.GenerateFromPassword([]byte("safecall-unknown-account"), cost)
	if hashErr != nil {
		return nil, fmt.Errorf("%s: %w", hashPasswordError, hashErr)
	}
	admins := make(map[string]struct{})
	for _, email := range storage.NormalizeEmailList(config.BootstrapAdmins) {
		admins[email] = struct{}{}
	}
	return &Service{
		database:        config.Database,
		policy:          config.Policy,
		bootstrapAdmins: admins,
		recorder:        config.Recorder,
		logger:          logger,
		bcryptCost:      cost,
		dummyHash:       dummyHash,
	}, nil
}

// IsBootstrapAdmin reports whether the email is configured as an administrator.
func (service *Service) IsBootstrapAdmin(email string) bool {
	_, exists := service.bootstrapAdmins[strings.ToLower(strings.TrimSpace(email))]
	return exists
}

// Register creates a password account. The initial status comes from the approval policy.
func (service *Service) Register(ctx context.Context, input RegistrationInput) (model.Profile, error) {
	email, emailErr := model.NormalizeEmail(input.Email)
	if emailErr != nil {
		return model.Profile{}, emailErr
	}
	if passwordErr := validatePassword(input.Password); passwordErr != nil {
		return model.Profile{}, passwordErr
	}
	details := model.ProfileDetails{FullName: input.FullName, Phone: input.Phone, Department: input.Department}
	if _, detailsErr := model.NormalizeProfileDetails(details); detailsErr != nil {
		return model.Profile{}, detailsErr
	}

	taken, takenErr := service.emailExists(ctx, email)
	if takenErr != nil {
		return model.Profile{}, takenErr
	}
	if taken {
		return model.Profile{}, ErrEmailTaken
	}

	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(input.Password), service.bcryptCost)
	if hashErr != nil {
		return model.Profile{}, fmt.Errorf("%s: %w", hashPasswordError, hashErr)
	}
	return service.createProfile(ctx, email, string(passwordHash), details)
}

// Authenticate verifies a password sign-in.
// Unknown emails and accounts without a password answer ErrInvalidCredentials after the same bcrypt work.
func (service *Service) Authenticate(ctx context.Context, email string, password string) (model.Profile, error) {
	profile, lookupErr := service.ProfileByEmail(ctx, email)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrProfileNotFound) || errors.Is(lookupErr, model.ErrInvalidProfileEmail) {
			_ = bcrypt.CompareHashAndPassword(service.dummyHash, []byte(password))
			return model.Profile{}, ErrInvalidCredentials
		}
		return model.Profile{}, lookupErr
	}
	if profile.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(service.dummyHash, []byte(password))
		return model.Profile{}, ErrInvalidCredentials
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); compareErr != nil {
		return model.Profile{}, ErrInvalidCredentials
	}
	return profile, nil
}

// EnsureExternalProfile returns the profile for an identity verified elsewhere, creating it on first sight.
func (service *Service) EnsureExternalProfile(ctx context.Context, email string, fullName string) (model.Profile, bool, error) {
	profile, lookupErr := service.ProfileByEmail(ctx, email)
	if lookupErr == nil {
		return profile, false, nil
	}
	if !errors.Is(lookupErr, ErrProfileNotFound) {
		return model.Profile{}, false, lookupErr
	}
	normalizedEmail, emailErr := model.NormalizeEmail(email)
	if emailErr != nil {
		return model.Profile{}, false, emailErr
	}
	created, createErr := service.createProfile(ctx, normalizedEmail, "", model.ProfileDetails{FullName: fullName})
	if errors.Is(createErr, ErrEmailTaken) {
		existing, existingErr := service.ProfileByEmail(ctx, normalizedEmail)
		return existing, false, existingErr
	}
	if createErr != nil {
		return model.Profile{}, false, createErr
	}
	return created, true, nil
}

// ProfileByEmail loads a profile by its normalized email.
func (service *Service) ProfileByEmail(ctx context.Context, email string) (model.Profile, error) {
	normalizedEmail, emailErr := model.NormalizeEmail(email)
	if emailErr != nil {
		return model.Profile{}, emailErr
	}
	var profile model.Profile
	queryErr := service.database.WithContext(ctx).Where(emailCondition, normalizedEmail).Take(&profile).Error
	if errors.Is(queryErr, gorm.ErrRecordNotFound) {
		return model.Profile{}, ErrProfileNotFound
	}
	if queryErr != nil {
		return model.Profile{}, fmt.Errorf("%s: %w", lookupProfileError, queryErr)
	}
	return profile, nil
}

// ProfileByID loads a profile by identifier.
func (service *Service) ProfileByID(ctx context.Context, profileID string) (model.Profile, error) {
	var profile model.Profile
	queryErr := service.database.WithContext(ctx).Where(idCondition, strings.TrimSpace(profileID)).Take(&profile).Error
	if errors.Is(queryErr, gorm.ErrRecordNotFound) {
		return model.Profile{}, ErrProfileNotFound
	}
	if queryErr != nil {
		return model.Profile{}, fmt.Errorf("%s: %w", lookupProfileError, queryErr)
	}
	return profile, nil
}

// UpdateDetails saves the trimmed self-editable fields.
func (service *Service) UpdateDetails(ctx context.Context, profileID string, details model.ProfileDetails) (model.Profile, error) {
	normalized, detailsErr := model.NormalizeProfileDetails(details)
	if detailsErr != nil {
		return model.Profile{}, detailsErr
	}
	profile, lookupErr := service.ProfileByID(ctx, profileID)
	if lookupErr != nil {
		return model.Profile{}, lookupErr
	}
	updates := map[string]any{
		"full_name":  normalized.FullName,
		"phone":      normalized.Phone,
		"department": normalized.Department,
	}
	if updateErr := service.database.WithContext(ctx).Model(&profile).Updates(updates).Error; updateErr != nil {
		return model.Profile{}, fmt.Errorf("%s: %w", updateProfileError, updateErr)
	}
	return service.ProfileByID(ctx, profile.ID)
}

// ListProfiles returns every profile, newest first.
func (service *Service) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	var profiles []model.Profile
	if queryErr := service.database.WithContext(ctx).Order("created_at desc, id asc").Find(&profiles).Error; queryErr != nil {
		return nil, fmt.Errorf("%s: %w", lookupProfileError, queryErr)
	}
	return profiles, nil
}

// Decide applies an administrator action.
// Approve and reject only apply to pending profiles; promote needs an approved user;
// demote needs an administrator other than the actor.
func (service *Service) Decide(ctx context.Context, actorID string, targetID string, action Action) (model.Profile, error) {
	var updated model.Profile
	transactionErr := service.database.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var target model.Profile
		queryErr := transaction.Where(idCondition, strings.TrimSpace(targetID)).Take(&target).Error
		if errors.Is(queryErr, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		if queryErr != nil {
			return fmt.Errorf("%s: %w", lookupProfileError, queryErr)
		}

		updates, rulesErr := decisionUpdates(actorID, target, action)
		if rulesErr != nil {
			return rulesErr
		}
		if updateErr := transaction.Model(&target).Updates(updates).Error; updateErr != nil {
			return fmt.Errorf("%s: %w", updateProfileError, updateErr)
		}
		return transaction.Where(idCondition, target.ID).Take(&updated).Error
	})
	if transactionErr != nil {
		return model.Profile{}, transactionErr
	}

	if action == ActionApprove || action == ActionReject {
		service.recorder.AccountDecision(string(updated.Status))
	}
	service.logger.Info(logEventDecision,
		zap.String(logFieldAction, string(action)),
		zap.String(logFieldActorID, actorID),
		zap.String(logFieldProfileID, updated.ID),
		zap.String(logFieldStatus, string(updated.Status)),
		zap.String(logFieldRole, string(updated.Role)),
	)
	return updated, nil
}

// AllowedActions lists the actions the actor may take on target, in display order.
func AllowedActions(actorID string, target model.Profile) []Action {
	allowed := make([]Action, 0, 2)
	for _, action := range []Action{ActionApprove, ActionReject, ActionPromote, ActionDemote} {
		if _, rulesErr := decisionUpdates(actorID, target, action); rulesErr == nil {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

func decisionUpdates(actorID string, target model.Profile, action Action) (map[string]any, error) {
	switch action {
	case ActionApprove, ActionReject:
		if target.Status != model.StatusPending {
			return nil, fmt.Errorf("%w: %s on %s profile", ErrActionNotAllowed, action, target.Status)
		}
		status := model.StatusApproved
		if action == ActionReject {
			status = model.StatusRejected
		}
		return map[string]any{"status": status}, nil
	case ActionPromote:
		if target.Status != model.StatusApproved || target.Role != model.RoleUser {
			return nil, fmt.Errorf("%w: promote requires an approved user", ErrActionNotAllowed)
		}
		return map[string]any{"role": model.RoleAdmin}, nil
	case ActionDemote:
		if target.Role != model.RoleAdmin || target.ID == actorID {
			return nil, fmt.Errorf("%w: demote requires another administrator", ErrActionNotAllowed)
		}
		return map[string]any{"role": model.RoleUser}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

func (service *Service) createProfile(ctx context.Context, email string, passwordHash string, details model.ProfileDetails) (model.Profile, error) {
	role := model.RoleUser
	status, statusErr := service.policy.Evaluate(approval.NewApplicant(email, details))
	if statusErr != nil {
		service.logger.Warn(evaluateRuleError, zap.Error(statusErr))
		status = model.StatusPending
	}
	if service.IsBootstrapAdmin(email) {
		role = model.RoleAdmin
		status = model.StatusApproved
	}

	profile, profileErr := model.NewProfile(model.ProfileInput{
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     details.FullName,
		Phone:        details.Phone,
		Department:   details.Department,
		Role:         string(role),
		Status:       string(status),
	})
	if profileErr != nil {
		return model.Profile{}, profileErr
	}
	if createErr := service.database.WithContext(ctx).Create(&profile).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return model.Profile{}, ErrEmailTaken
		}
		taken, takenErr := service.emailExists(ctx, email)
		if takenErr == nil && taken {
			return model.Profile{}, ErrEmailTaken
		}
		return model.Profile{}, fmt.Errorf("%s: %w", createProfileError, createErr)
	}

	service.recorder.SignUp(string(profile.Status))
	service.logger.Info(logEventSignUp,
		zap.String(logFieldProfileID, profile.ID),
		zap.String(logFieldStatus, string(profile.Status)),
		zap.String(logFieldRole, string(profile.Role)),
	)
	return profile, nil
}

func (service *Service) emailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if countErr := service.database.WithContext(ctx).Model(&model.Profile{}).Where(emailCondition, email).Count(&count).Error; countErr != nil {
		return false, fmt.Errorf("%s: %w", lookupProfileError, countErr)
	}
	return count > 0, nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
