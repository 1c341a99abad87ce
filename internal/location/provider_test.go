package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePlatform 可控的定位平台
type fakePlatform struct {
	mu        sync.Mutex
	granted   bool
	permErr   error
	fix       models.LocationFix
	fixErr    error
	block     bool // CurrentPosition 一直等到 ctx 结束
	calls     int
	onFix     func(models.LocationFix)
	onErr     func(error)
	watchStop int
}

func (f *fakePlatform) RequestPermission(ctx context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakePlatform) CurrentPosition(ctx context.Context, opts Options) (models.LocationFix, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return models.LocationFix{}, ctx.Err()
	}
	return f.fix, f.fixErr
}

func (f *fakePlatform) WatchPosition(opts Options, onFix func(models.LocationFix), onErr func(error)) (func(), error) {
	f.mu.Lock()
	f.onFix = onFix
	f.onErr = onErr
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.watchStop++
		f.mu.Unlock()
	}, nil
}

func (f *fakePlatform) emit(fix models.LocationFix) {
	f.mu.Lock()
	cb := f.onFix
	f.mu.Unlock()
	cb(fix)
}

func newTestProvider(p Platform, opts Options) *Provider {
	return NewProvider(p, opts, nil, zap.NewNop())
}

func TestGetCurrentFix_Success(t *testing.T) {
	now := time.Now()
	platform := &fakePlatform{granted: true, fix: models.LocationFix{Latitude: 4.711, Longitude: -74.0721, Accuracy: 8, Timestamp: now.UnixMilli()}}
	provider := newTestProvider(platform, DefaultOptions())

	fix, err := provider.GetCurrentFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.711, fix.Latitude)
	assert.Equal(t, models.AccuracyVeryGood, fix.Band())
	assert.NotNil(t, provider.LastKnown())
}

func TestGetCurrentFix_PermissionDenied(t *testing.T) {
	platform := &fakePlatform{granted: false}
	provider := newTestProvider(platform, DefaultOptions())

	_, err := provider.GetCurrentFix(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindPermissionDenied))
	assert.Equal(t, 0, platform.calls)
}

func TestGetCurrentFix_UsesFreshCache(t *testing.T) {
	now := time.Now()
	platform := &fakePlatform{granted: true, fix: models.LocationFix{Latitude: 1, Longitude: 2, Timestamp: now.UnixMilli()}}
	provider := newTestProvider(platform, DefaultOptions())
	provider.now = func() time.Time { return now }

	_, err := provider.GetCurrentFix(context.Background())
	require.NoError(t, err)

	// 5s 后仍在 MaxAge(10s) 内
	provider.now = func() time.Time { return now.Add(5 * time.Second) }
	_, err = provider.GetCurrentFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, platform.calls)

	// 超过 MaxAge 后重新请求
	provider.now = func() time.Time { return now.Add(11 * time.Second) }
	_, err = provider.GetCurrentFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, platform.calls)
}

func TestGetCurrentFix_Timeout(t *testing.T) {
	platform := &fakePlatform{granted: true, block: true}
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	provider := newTestProvider(platform, opts)

	_, err := provider.GetCurrentFix(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindTimeout))
}

func TestGetCurrentFix_PlatformErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"permission", &PlatformError{Code: 1, Message: "denied"}, errs.KindPermissionDenied},
		{"unavailable", &PlatformError{Code: 2, Message: "no gps"}, errs.KindPositionUnavailable},
		{"timeout", &PlatformError{Code: 3, Message: "slow"}, errs.KindTimeout},
		{"other code", &PlatformError{Code: 9, Message: "?"}, errs.KindUnknown},
		{"plain error", errors.New("boom"), errs.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{granted: true, fixErr: tt.err}
			provider := newTestProvider(platform, DefaultOptions())

			_, err := provider.GetCurrentFix(context.Background())
			assert.Equal(t, tt.want, errs.KindOf(err))
		})
	}
}

func TestTracking_FiltersAndFansOut(t *testing.T) {
	base := time.Now()
	clock := base
	platform := &fakePlatform{granted: true}
	provider := newTestProvider(platform, DefaultOptions())
	provider.now = func() time.Time { return clock }

	var primary, sub []models.LocationFix
	unsubscribe := provider.Subscribe(func(f models.LocationFix) { sub = append(sub, f) })

	require.NoError(t, provider.StartTracking(context.Background(), func(f models.LocationFix) {
		primary = append(primary, f)
	}, nil))
	assert.True(t, provider.Status().IsTracking)

	platform.emit(models.LocationFix{Latitude: 4.7110, Longitude: -74.0721})

	// 位移不足 10m
	clock = base.Add(20 * time.Second)
	platform.emit(models.LocationFix{Latitude: 4.71101, Longitude: -74.0721})

	// 位移足够但距上次不足 15s
	clock = base.Add(5 * time.Second)
	platform.emit(models.LocationFix{Latitude: 4.7130, Longitude: -74.0721})

	// 位移和间隔都满足
	clock = base.Add(30 * time.Second)
	platform.emit(models.LocationFix{Latitude: 4.7130, Longitude: -74.0721})

	assert.Len(t, primary, 2)
	assert.Len(t, sub, 2)

	unsubscribe()
	clock = base.Add(60 * time.Second)
	platform.emit(models.LocationFix{Latitude: 4.7200, Longitude: -74.0721})
	assert.Len(t, primary, 3)
	assert.Len(t, sub, 2)

	provider.StopTracking()
	assert.False(t, provider.Status().IsTracking)
	assert.Equal(t, 1, platform.watchStop)

	// 停止后的上报被忽略
	clock = base.Add(120 * time.Second)
	platform.emit(models.LocationFix{Latitude: 4.8, Longitude: -74.0721})
	assert.Len(t, primary, 3)
}

func TestCleanup(t *testing.T) {
	platform := &fakePlatform{granted: true}
	provider := newTestProvider(platform, DefaultOptions())

	provider.Subscribe(func(models.LocationFix) {})
	require.NoError(t, provider.StartTracking(context.Background(), nil, nil))
	assert.Equal(t, 1, provider.Status().Listeners)

	provider.Cleanup()
	st := provider.Status()
	assert.False(t, st.IsTracking)
	assert.Equal(t, 0, st.Listeners)
}

func TestDistanceMeters(t *testing.T) {
	assert.InDelta(t, 0, DistanceMeters(4.711, -74.0721, 4.711, -74.0721), 1e-9)
	// 纬度 0.001 度约 111m
	assert.InDelta(t, 111.2, DistanceMeters(0, 0, 0.001, 0), 0.5)
}
