package notifications

import "github.com/mikroblog/discussions/internal/models"

// Interface defines the contract for operator notifications.
type Interface interface {
	SendRunSummary(summary *models.RunSummary) error
}
