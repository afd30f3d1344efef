package usecase

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/logging"
	"telegram-llm-bot/internal/infra/metrics"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes user-related operations used by bot/admin flows.
type UserUseCase interface {
	// GetOrCreate registers the user on first contact and returns the stored
	// record afterwards. The bool reports whether a new record was created.
	GetOrCreate(ctx context.Context, userID int64, username, languageCode string) (*model.User, bool, error)
	Get(ctx context.Context, userID int64) (*model.User, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]*model.User, error)
	SetModel(ctx context.Context, userID int64, modelName string) error
}

type userUC struct {
	users        repository.UserRepository
	tm           repository.TransactionManager
	defaultModel string
	welcome      int64
	log          *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, defaultModel string, welcomeTokens int64, logger *zerolog.Logger) *userUC {
	return &userUC{
		users:        users,
		tm:           tm,
		defaultModel: defaultModel,
		welcome:      welcomeTokens,
		log:          logger,
	}
}

func (u *userUC) GetOrCreate(ctx context.Context, userID int64, username, languageCode string) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetOrCreate")()

	if existing, err := u.users.FindByID(ctx, repository.NoTX, userID); err == nil {
		return existing, false, nil
	} else if err != domain.ErrNotFound {
		return nil, false, err
	}

	nu, err := model.NewUser(userID, username, languageCode, u.defaultModel)
	if err != nil {
		return nil, false, err
	}
	nu.Balance = u.welcome

	var user *model.User
	// Save is insert-if-absent, so two concurrent first contacts race safely;
	// the loser just reads back the winner's row.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		usr, err := u.users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		user = usr
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	metrics.IncUsersRegistered()
	u.log.Info().Int64("user_id", userID).Str("username", logging.Redact(username, false)).Msg("new user registered")
	return user, true, nil
}

func (u *userUC) Get(ctx context.Context, userID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, repository.NoTX, userID)
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.Count")()
	return u.users.CountUsers(ctx, repository.NoTX)
}

func (u *userUC) List(ctx context.Context) ([]*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.List")()
	return u.users.List(ctx, repository.NoTX)
}

func (u *userUC) SetModel(ctx context.Context, userID int64, modelName string) error {
	defer logging.TraceDuration(u.log, "UserUC.SetModel")()
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return domain.ErrInvalidArgument
	}
	return u.users.UpdateFields(ctx, repository.NoTX, userID, map[string]any{"current_model": modelName})
}
