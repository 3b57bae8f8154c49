package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/zfswitness/pkg/api"
)

type stubClient struct {
	lastReport api.ReportRequest
	reportErr  error
	states     []api.UpdateSyncStateRequest
}

func (c *stubClient) Report(_ context.Context, req api.ReportRequest) (*api.ReportResponse, error) {
	c.lastReport = req
	if c.reportErr != nil {
		return nil, c.reportErr
	}
	return &api.ReportResponse{
		Added:   len(req.Added) + len(req.Snapshots),
		Removed: len(req.Removed),
	}, nil
}

func (c *stubClient) Instructions(_ context.Context, _ bool) (*api.InstructionsResponse, error) {
	return &api.InstructionsResponse{}, nil
}

func (c *stubClient) UpdateSyncState(_ context.Context, req api.UpdateSyncStateRequest) error {
	c.states = append(c.states, req)
	return nil
}

type stubCache struct {
	inventory []api.SnapshotRecord
	saved     [][]api.SnapshotRecord
}

func (c *stubCache) GetInventory() ([]api.SnapshotRecord, error) { return c.inventory, nil }

func (c *stubCache) SaveInventory(records []api.SnapshotRecord) error {
	c.saved = append(c.saved, records)
	return nil
}

type stubLister struct {
	records []api.SnapshotRecord
	err     error
}

func (l *stubLister) ListSnapshots(_ context.Context) ([]api.SnapshotRecord, error) {
	return l.records, l.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func record(pool, dataset, name string) api.SnapshotRecord {
	return api.SnapshotRecord{
		Pool:      pool,
		Dataset:   dataset,
		Name:      name,
		Timestamp: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReportFull(t *testing.T) {
	client := &stubClient{}
	cache := &stubCache{}
	lister := &stubLister{records: []api.SnapshotRecord{
		record("tank", "data", "2025-11-01-000000"),
		record("tank", "data", "2025-11-02-000000"),
	}}

	svc := NewService(testLogger(), client, cache, lister)
	resp, err := svc.Report(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, client.lastReport.Full)
	assert.Len(t, client.lastReport.Snapshots, 2)
	assert.Empty(t, client.lastReport.Added)
	assert.Equal(t, 2, resp.Added)

	// Кеш обновлен принятым инвентарем
	require.Len(t, cache.saved, 1)
	assert.Len(t, cache.saved[0], 2)
}

func TestReportDelta(t *testing.T) {
	client := &stubClient{}
	cache := &stubCache{inventory: []api.SnapshotRecord{
		record("tank", "data", "2025-11-01-000000"),
		record("tank", "data", "2025-10-01-000000"),
	}}
	lister := &stubLister{records: []api.SnapshotRecord{
		record("tank", "data", "2025-11-01-000000"),
		record("tank", "data", "2025-11-02-000000"),
	}}

	svc := NewService(testLogger(), client, cache, lister)
	_, err := svc.Report(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, client.lastReport.Full)
	require.Len(t, client.lastReport.Added, 1)
	assert.Equal(t, "2025-11-02-000000", client.lastReport.Added[0].Name)
	require.Len(t, client.lastReport.Removed, 1)
	assert.Equal(t, "2025-10-01-000000", client.lastReport.Removed[0].Name)
}

func TestReportDeltaNoChanges(t *testing.T) {
	inventory := []api.SnapshotRecord{record("tank", "data", "2025-11-01-000000")}
	client := &stubClient{}
	cache := &stubCache{inventory: inventory}
	lister := &stubLister{records: inventory}

	svc := NewService(testLogger(), client, cache, lister)
	_, err := svc.Report(context.Background(), false)
	require.NoError(t, err)

	// Пустая дельта все равно отправляется: это heartbeat ноды
	assert.Empty(t, client.lastReport.Added)
	assert.Empty(t, client.lastReport.Removed)
}

func TestReportServerErrorKeepsCache(t *testing.T) {
	client := &stubClient{reportErr: errors.New("server unavailable")}
	cache := &stubCache{}
	lister := &stubLister{records: []api.SnapshotRecord{record("tank", "data", "2025-11-01-000000")}}

	svc := NewService(testLogger(), client, cache, lister)
	_, err := svc.Report(context.Background(), true)
	require.Error(t, err)

	// Отчет не принят — кеш не трогаем, иначе дельта потеряется
	assert.Empty(t, cache.saved)
}

func TestReportListerError(t *testing.T) {
	client := &stubClient{}
	lister := &stubLister{err: errors.New("zfs not found")}

	svc := NewService(testLogger(), client, &stubCache{}, lister)
	_, err := svc.Report(context.Background(), true)
	assert.ErrorContains(t, err, "collecting inventory")
}

func TestReportState(t *testing.T) {
	client := &stubClient{}
	svc := NewService(testLogger(), client, &stubCache{}, &stubLister{})

	req := api.UpdateSyncStateRequest{
		GroupID: "g1",
		Dataset: "data",
		NodeID:  "node-a",
		Status:  "in_sync",
	}
	require.NoError(t, svc.ReportState(context.Background(), req))
	require.Len(t, client.states, 1)
	assert.Equal(t, "in_sync", client.states[0].Status)
}
