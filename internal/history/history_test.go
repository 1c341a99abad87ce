package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*redis.Client, *store.Storage) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, store.NewStorage(store.NewRedisKV(client), "sos:", zap.NewNop())
}

type fakeMirror struct {
	records []models.HistoryRecord
	err     error
}

func (f *fakeMirror) InsertRecord(ctx context.Context, rec models.HistoryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func TestAppend_WritesKVMirrorAndStream(t *testing.T) {
	client, storage := setupTestRedis(t)
	mirror := &fakeMirror{}
	hs := NewStore(storage, mirror, NewStreamPublisher(client, "sos:alerts"), zap.NewNop())
	ctx := context.Background()

	saved, err := hs.Append(ctx, models.HistoryRecord{
		Type:     models.HistoryTypeEmergency,
		Location: &models.LocationFix{Latitude: 4.7, Longitude: -74.1},
		Contacts: &models.DispatchSummary{Total: 1, Sent: 1},
		Message:  "msg",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.Timestamp.IsZero())

	require.Len(t, mirror.records, 1)
	assert.Equal(t, saved.ID, mirror.records[0].ID)

	msgs, err := store.ReadStreamRange(ctx, client, "sos:alerts")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var published models.HistoryRecord
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &published))
	assert.Equal(t, saved.ID, published.ID)
}

func TestAppend_MirrorFailureIsNonFatal(t *testing.T) {
	_, storage := setupTestRedis(t)
	hs := NewStore(storage, &fakeMirror{err: errors.New("db down")}, nil, zap.NewNop())
	ctx := context.Background()

	_, err := hs.Append(ctx, models.HistoryRecord{Type: models.HistoryTypeShare, Message: "m"})
	require.NoError(t, err)

	list, err := hs.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type failingLog struct{}

func (failingLog) AppendAlertHistory(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error) {
	return rec, errors.New("redis unavailable")
}

func (failingLog) GetAlertHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	return nil, errors.New("redis unavailable")
}

func TestAppend_LogFailure(t *testing.T) {
	mirror := &fakeMirror{}
	hs := NewStore(failingLog{}, mirror, nil, zap.NewNop())

	_, err := hs.Append(context.Background(), models.HistoryRecord{Type: models.HistoryTypeShare})
	require.Error(t, err)
	assert.Empty(t, mirror.records)
}

func TestList_FilterSortLimit(t *testing.T) {
	_, storage := setupTestRedis(t)
	hs := NewStore(storage, nil, nil, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{models.HistoryTypeEmergency, models.HistoryTypeShare, models.HistoryTypeEmergency} {
		_, err := hs.Append(ctx, models.HistoryRecord{
			Type:      typ,
			Message:   typ,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	all, err := hs.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp))

	emergencies, err := hs.List(ctx, ListOptions{Type: models.HistoryTypeEmergency, Limit: 1})
	require.NoError(t, err)
	require.Len(t, emergencies, 1)
	assert.Equal(t, base.Add(2*time.Hour), emergencies[0].Timestamp)

	since := base.Add(90 * time.Minute)
	recent, err := hs.List(ctx, ListOptions{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
