package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"wisefido-sos/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestStorage(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Storage) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { redisClient.Close() })

	storage := NewStorage(NewRedisKV(redisClient), "sos:", zap.NewNop())
	return mr, redisClient, storage
}

func TestRedisKV_GetMiss(t *testing.T) {
	_, client, _ := setupTestStorage(t)
	kv := NewRedisKV(client)

	_, err := kv.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, kv.Del(context.Background()))
}

func TestStorage_ContactsRoundTrip(t *testing.T) {
	mr, _, storage := setupTestStorage(t)
	ctx := context.Background()

	// 空库返回空列表而不是 nil
	contacts, err := storage.GetContacts(ctx)
	require.NoError(t, err)
	assert.NotNil(t, contacts)
	assert.Len(t, contacts, 0)

	err = storage.SaveContacts(ctx, []models.Contact{
		{ID: "c1", Name: "Ana", Phone: "+573001112233", IsActive: true},
	})
	require.NoError(t, err)

	// 整体序列化在带前缀的键下
	raw, err := mr.Get("sos:contacts")
	require.NoError(t, err)
	assert.Contains(t, raw, `"phone":"+573001112233"`)

	contacts, err = storage.GetContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Ana", contacts[0].Name)
}

func TestStorage_AppendAlertHistory(t *testing.T) {
	_, _, storage := setupTestStorage(t)
	ctx := context.Background()
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return fixed }

	first, err := storage.AppendAlertHistory(ctx, models.HistoryRecord{Type: models.HistoryTypeEmergency, Message: "m1"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, fixed, first.Timestamp)

	_, err = storage.AppendAlertHistory(ctx, models.HistoryRecord{Type: models.HistoryTypeShare, Message: "m2"})
	require.NoError(t, err)

	history, err := storage.GetAlertHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "m1", history[0].Message)
	assert.Equal(t, "m2", history[1].Message)
	// blockchain 为空时依然序列化为 null
	assert.Nil(t, history[0].Blockchain)
}

func TestStorage_SettingsDefaults(t *testing.T) {
	_, _, storage := setupTestStorage(t)
	ctx := context.Background()

	settings, err := storage.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), settings)

	settings.Theme = "dark"
	require.NoError(t, storage.SaveSettings(ctx, settings))

	settings, err = storage.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", settings.Theme)
	assert.True(t, settings.EnableSound)
}

func TestStorage_Initialize(t *testing.T) {
	_, _, storage := setupTestStorage(t)
	ctx := context.Background()

	state, err := storage.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsFirstTime)

	require.NoError(t, storage.SaveUserName(ctx, "Laura"))
	state, err = storage.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsFirstTime) // 还没看过欢迎页

	require.NoError(t, storage.MarkWelcomeSeen(ctx))
	state, err = storage.Initialize(ctx)
	require.NoError(t, err)
	assert.False(t, state.IsFirstTime)
	assert.Equal(t, "Laura", state.UserName)
	assert.True(t, state.HasSeenWelcome)
}

func TestStorage_Clear(t *testing.T) {
	mr, _, storage := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveUserName(ctx, "Laura"))
	require.NoError(t, storage.SaveContacts(ctx, nil))
	require.NoError(t, storage.Clear(ctx))

	assert.False(t, mr.Exists("sos:user_name"))
	assert.False(t, mr.Exists("sos:contacts"))
}

func TestStorage_CorruptValue(t *testing.T) {
	mr, _, storage := setupTestStorage(t)
	require.NoError(t, mr.Set("sos:contacts", "{not json"))

	_, err := storage.GetContacts(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal contacts")
}

func TestPublishJSONToStream(t *testing.T) {
	_, client, _ := setupTestStorage(t)
	ctx := context.Background()

	id, err := PublishJSONToStream(ctx, client, "sos:alerts", map[string]string{"type": "emergency_alert"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadStreamRange(ctx, client, "sos:alerts")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &payload))
	assert.Equal(t, "emergency_alert", payload["type"])
}
