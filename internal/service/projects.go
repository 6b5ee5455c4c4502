package service

import (
	"context"
	"errors"
	"fmt"

	"timetally/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrProjectNotFound = errors.New("project not found")

type ProjectService struct{ db *gorm.DB }

func NewProjectService(db *gorm.DB) *ProjectService { return &ProjectService{db: db} }

func (s *ProjectService) List(ctx context.Context, userID int) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND archived = ?", userID, false).
		Order("name ASC").Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *ProjectService) Create(ctx context.Context, userID int, req model.ProjectRequest) (*model.Project, error) {
	p := model.Project{
		ID:     uuid.New(),
		UserID: userID,
		Name:   req.Name,
		Client: req.Client,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return &p, nil
}

func (s *ProjectService) Archive(ctx context.Context, userID int, projectID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ? AND user_id = ?", projectID, userID).
		Update("archived", true)
	if res.Error != nil {
		return fmt.Errorf("archive project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}
