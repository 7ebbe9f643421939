package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/models"
)

// Access is what the authorization collaborator knows about a user's
// relationship to a task.
type Access struct {
	Privileged bool // admin or manager
	Assignee   bool // assignee or creator of the task
}

// Authorizer answers role questions for the accounting services. The role
// model itself lives elsewhere.
type Authorizer interface {
	Authorize(ctx context.Context, userID uint, task *models.Task) (Access, error)
}

// RoleAuthorizer reads roles from the users table.
type RoleAuthorizer struct {
	db *gorm.DB
}

func NewRoleAuthorizer(db *gorm.DB) *RoleAuthorizer {
	return &RoleAuthorizer{db: db}
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, userID uint, task *models.Task) (Access, error) {
	var access Access

	var user models.User
	err := a.db.WithContext(ctx).First(&user, userID).Error
	switch {
	case err == nil:
		access.Privileged = user.Role == models.RoleAdmin || user.Role == models.RoleManager
	case isNotFound(err):
		// Unknown users get no role; they may still own an active timer.
	default:
		return access, fmt.Errorf("failed to load user #%d: %w", userID, err)
	}

	if task != nil {
		if task.AssignedTo != nil && *task.AssignedTo == userID {
			access.Assignee = true
		}
		if task.CreatedBy != nil && *task.CreatedBy == userID {
			access.Assignee = true
		}
	}
	return access, nil
}

// authorizeTask admits admins/managers, the task's assignee or creator, and
// anyone with an active timer on the task.
func authorizeTask(ctx context.Context, db *gorm.DB, authz Authorizer, userID uint, task *models.Task) error {
	access, err := authz.Authorize(ctx, userID, task)
	if err != nil {
		return err
	}
	if access.Privileged || access.Assignee {
		return nil
	}

	var count int64
	err = db.WithContext(ctx).Model(&models.TimeTrack{}).
		Where("user_id = ? AND task_id = ? AND end_time IS NULL", userID, task.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return errForbidden("No active time tracking for this task")
	}
	return nil
}
