package services

import (
	"context"
	"strings"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// UserManager handles account level changes. Every change is applied to the
// live auctions held by the AuctionManager before it is announced.
type UserManager struct {
	store    domain.Store
	auctions *AuctionManager
	log      logger.Logger
}

func NewUserManager(store domain.Store, auctions *AuctionManager, log logger.Logger) *UserManager {
	return &UserManager{
		store:    store,
		auctions: auctions,
		log:      log,
	}
}

func (um *UserManager) EditEmail(ctx context.Context, oldEmail, newEmail string) error {
	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" {
		return domain.NewValidationError("new email is required")
	}
	if oldEmail == newEmail {
		return domain.NewValidationError("new email is the same as the current one")
	}
	if oldEmail == domain.ModeratorEmail || newEmail == domain.ModeratorEmail {
		return domain.NewStateError("the moderator identity cannot be changed or taken")
	}

	if err := um.store.RenameUser(ctx, oldEmail, newEmail); err != nil {
		return domain.Persistence("rename user", err)
	}
	um.auctions.RenameIdentity(oldEmail, newEmail)

	um.log.Info("Account email changed", "old_email", oldEmail, "new_email", newEmail)
	um.auctions.events.Publish(domain.AccountEdited{OldEmail: oldEmail, NewEmail: newEmail})
	return nil
}

func (um *UserManager) Ban(ctx context.Context, actor, email string) error {
	if actor != domain.ModeratorEmail {
		return domain.NewStateError("only the moderator can ban accounts")
	}
	if email == domain.ModeratorEmail {
		return domain.NewStateError("the moderator cannot be banned")
	}

	if err := um.store.Ban(ctx, email); err != nil {
		return domain.Persistence("ban user", err)
	}

	um.log.Info("Account banned", "email", email)
	um.auctions.notify(ctx, email, bannedMessage())
	um.auctions.events.Publish(domain.AccountBanned{Email: email})
	return nil
}

// DeleteAccount removes the account and every auction it sells. Only the
// owner or the moderator may do so.
func (um *UserManager) DeleteAccount(ctx context.Context, actor, email string) error {
	if actor != email && actor != domain.ModeratorEmail {
		return domain.NewStateError("accounts can only be deleted by their owner or the moderator")
	}
	if email == domain.ModeratorEmail {
		return domain.NewStateError("the moderator account cannot be deleted")
	}

	removed, err := um.store.DeleteUser(ctx, email)
	if err != nil {
		return domain.Persistence("delete user", err)
	}
	um.auctions.Forget(removed...)

	um.log.Info("Account deleted", "email", email, "auctions_removed", len(removed))
	um.auctions.events.Publish(domain.AccountDeleted{Email: email})
	return nil
}
