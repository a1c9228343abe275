package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Service handles user and sub-user business logic.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.store.GetUser(ctx, id)
}

func (a SubUserAttrs) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("users: name required: %w", shared.ErrValidation)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(a.Email)); err != nil {
		return fmt.Errorf("users: invalid email: %w", shared.ErrValidation)
	}
	return nil
}

// CreateSubUser creates a dependent account under parentID. The parent row
// is locked for the duration of the check-and-insert so two concurrent
// requests cannot both slip past the active-count cap.
func (s *Service) CreateSubUser(ctx context.Context, parentID int64, attrs SubUserAttrs) (User, error) {
	if err := attrs.validate(); err != nil {
		return User{}, err
	}
	var created User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		parent, err := tx.LockParent(ctx, parentID)
		if err != nil {
			return err
		}
		if !parent.IsActive {
			return ErrParentInactive
		}
		if parent.ParentID != nil {
			return ErrNestedSubUser
		}
		count, err := tx.CountActiveSubUsers(ctx, parentID)
		if err != nil {
			return err
		}
		if count >= MaxActiveSubUsers {
			return ErrSubUserLimit
		}
		created, err = tx.InsertSubUser(ctx, parentID, User{
			Email:     strings.ToLower(strings.TrimSpace(attrs.Email)),
			Name:      strings.TrimSpace(attrs.Name),
			RoleID:    parent.RoleID,
			PartnerID: parent.PartnerID,
		})
		return err
	})
	if err != nil {
		return User{}, err
	}
	if s.logger != nil {
		s.logger.Info("sub-user created",
			slog.Int64("parent", parentID), slog.Int64("user", created.ID))
	}
	return created, nil
}

// ListSubUsers returns the sub-users of a parent.
func (s *Service) ListSubUsers(ctx context.Context, parentID int64) ([]User, error) {
	if _, err := s.store.GetUser(ctx, parentID); err != nil {
		return nil, err
	}
	return s.store.ListSubUsers(ctx, parentID)
}

// DeactivateSubUser soft-deletes a sub-user, freeing one slot under its
// parent. The row and its override/link records are kept.
func (s *Service) DeactivateSubUser(ctx context.Context, id int64) error {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.ParentID == nil {
		return ErrNotSubUser
	}
	return s.store.SetActive(ctx, id, false)
}

// ReactivateSubUser re-enables a deactivated sub-user, re-checking the cap
// under the same parent lock used at creation.
func (s *Service) ReactivateSubUser(ctx context.Context, id int64) error {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.ParentID == nil {
		return ErrNotSubUser
	}
	if user.IsActive {
		return nil
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.LockParent(ctx, *user.ParentID); err != nil {
			return err
		}
		count, err := tx.CountActiveSubUsers(ctx, *user.ParentID)
		if err != nil {
			return err
		}
		if count >= MaxActiveSubUsers {
			return ErrSubUserLimit
		}
		return tx.SetActive(ctx, id, true)
	})
}
