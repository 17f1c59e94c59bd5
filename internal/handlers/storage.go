package handlers

import (
	"context"

	"tenderlens/internal/analytics"
	"tenderlens/internal/ingest"
	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

type StorageInterface interface {
	ListTenders(ctx context.Context, f models.ProjectFilter) ([]models.TenderRecord, int, error)
	FilterOptions(ctx context.Context, tenantID string) (*models.FilterOptions, error)
}

type DashboardService interface {
	Window(f analytics.Filters) (timewindow.Window, error)
	Get(ctx context.Context, tenantID string, f analytics.Filters) (*analytics.Result, error)
	View(ctx context.Context, tenantID string, f analytics.Filters, kind analytics.Kind) (any, error)
}

type Importer interface {
	Import(ctx context.Context, tenantID string, data any) (*ingest.Result, error)
}
