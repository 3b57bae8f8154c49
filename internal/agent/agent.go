package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iudanet/zfswitness/pkg/api"
)

// APIClient is the slice of the server API the agent uses after registration.
type APIClient interface {
	Report(ctx context.Context, req api.ReportRequest) (*api.ReportResponse, error)
	Instructions(ctx context.Context, diagnostics bool) (*api.InstructionsResponse, error)
	UpdateSyncState(ctx context.Context, req api.UpdateSyncStateRequest) error
}

// InventoryCache хранит последний успешно отправленный инвентарь
type InventoryCache interface {
	GetInventory() ([]api.SnapshotRecord, error)
	SaveInventory(records []api.SnapshotRecord) error
}

// Service is the node agent: collects the local snapshot inventory, reports
// it to the server and pulls replication instructions back.
type Service struct {
	logger *slog.Logger
	client APIClient
	cache  InventoryCache
	lister InventoryLister
}

// NewService creates a new agent service
func NewService(logger *slog.Logger, client APIClient, cache InventoryCache, lister InventoryLister) *Service {
	return &Service{
		logger: logger.With("component", "agent"),
		client: client,
		cache:  cache,
		lister: lister,
	}
}

// Report собирает инвентарь и отправляет его на сервер.
// full=true — полный инвентарь, дельту вычислит сервер; иначе агент
// сравнивает с кешем и шлет только изменения. Пустая дельта тоже
// отправляется: отчет заодно обновляет last_seen ноды.
func (s *Service) Report(ctx context.Context, full bool) (*api.ReportResponse, error) {
	inventory, err := s.lister.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting inventory: %w", err)
	}

	req := api.ReportRequest{Full: full}
	if full {
		req.Snapshots = inventory
	} else {
		cached, err := s.cache.GetInventory()
		if err != nil {
			return nil, fmt.Errorf("reading inventory cache: %w", err)
		}
		req.Added, req.Removed = diffRecords(cached, inventory)
	}

	resp, err := s.client.Report(ctx, req)
	if err != nil {
		return nil, err
	}

	// Кеш обновляется только после принятого сервером отчета,
	// иначе следующая дельта потеряет изменения
	if err := s.cache.SaveInventory(inventory); err != nil {
		return nil, fmt.Errorf("updating inventory cache: %w", err)
	}

	s.logger.Info("inventory reported",
		"full", full,
		"snapshots", len(inventory),
		"added", resp.Added,
		"removed", resp.Removed)

	return resp, nil
}

// FetchInstructions запрашивает инструкции репликации для этой ноды
func (s *Service) FetchInstructions(ctx context.Context, diagnostics bool) (*api.InstructionsResponse, error) {
	return s.client.Instructions(ctx, diagnostics)
}

// ReportState сообщает серверу результат выполнения инструкции
func (s *Service) ReportState(ctx context.Context, req api.UpdateSyncStateRequest) error {
	return s.client.UpdateSyncState(ctx, req)
}

// diffRecords вычисляет дельту между кешем и текущим инвентарем
func diffRecords(cached, current []api.SnapshotRecord) (added, removed []api.SnapshotRecord) {
	have := make(map[string]bool, len(cached))
	for _, rec := range cached {
		have[recordIdentity(rec)] = true
	}

	seen := make(map[string]bool, len(current))
	for _, rec := range current {
		key := recordIdentity(rec)
		seen[key] = true
		if !have[key] {
			added = append(added, rec)
		}
	}

	for _, rec := range cached {
		if !seen[recordIdentity(rec)] {
			removed = append(removed, rec)
		}
	}
	return added, removed
}

func recordIdentity(rec api.SnapshotRecord) string {
	return rec.Pool + "\x00" + rec.Dataset + "\x00" + rec.Name
}
