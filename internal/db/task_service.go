package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/models"
)

// CreateTaskRequest holds the data needed to create a new task
type CreateTaskRequest struct {
	Title           string
	ProjectID       *uint
	AssignedTo      *uint
	CreatedBy       *uint
	EstimatedHours  float64
	TimeResetPolicy string // "fixed" or "per_week", empty means fixed
	DueDate         *time.Time
}

// TaskService is the task lookup collaborator. The accounting core only reads
// tasks; creation exists for seeding and administration.
type TaskService struct {
	db *gorm.DB
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db}
}

// CreateTask creates a new task
func (s *TaskService) CreateTask(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errInvalid("task title is required")
	}
	if req.EstimatedHours < 0 {
		return nil, errInvalid("estimated hours must not be negative")
	}

	policy, err := parseResetPolicy(req.TimeResetPolicy)
	if err != nil {
		return nil, err
	}

	task := models.Task{
		Title:           title,
		ProjectID:       req.ProjectID,
		Status:          models.TaskStatusTodo,
		AssignedTo:      req.AssignedTo,
		CreatedBy:       req.CreatedBy,
		EstimatedHours:  req.EstimatedHours,
		TimeResetPolicy: policy,
		DueDate:         req.DueDate,
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

// parseResetPolicy normalises a reset policy name
func parseResetPolicy(policy string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", models.ResetPolicyFixed:
		return models.ResetPolicyFixed, nil
	case models.ResetPolicyPerWeek, "weekly", "per-week":
		return models.ResetPolicyPerWeek, nil
	default:
		return "", errInvalid("unknown time reset policy %q (use fixed or per_week)", policy)
	}
}

// GetTask retrieves a task by ID
func (s *TaskService) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	return getTask(s.db.WithContext(ctx), id)
}

func getTask(tx *gorm.DB, id uint) (*models.Task, error) {
	var task models.Task
	if err := tx.First(&task, id).Error; err != nil {
		if isNotFound(err) {
			return nil, errNotFound(fmt.Sprintf("Task #%d not found", id))
		}
		return nil, fmt.Errorf("failed to load task #%d: %w", id, err)
	}
	return &task, nil
}

// ListTasks retrieves all tasks ordered by ID
func (s *TaskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// SetStatus changes a task's status
func (s *TaskService) SetStatus(ctx context.Context, id uint, status string) (*models.Task, error) {
	switch status {
	case models.TaskStatusTodo, models.TaskStatusInProgress, models.TaskStatusCompleted:
	default:
		return nil, errInvalid("unknown task status %q", status)
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Status = status
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// CreateUser creates a user with the given role
func (s *TaskService) CreateUser(ctx context.Context, name, role string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalid("user name is required")
	}
	switch role {
	case "":
		role = models.RoleMember
	case models.RoleAdmin, models.RoleManager, models.RoleMember:
	default:
		return nil, errInvalid("unknown role %q (use admin, manager or member)", role)
	}

	user := models.User{Name: name, Role: role}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}
