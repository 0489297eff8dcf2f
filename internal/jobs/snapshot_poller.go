package jobs

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tiffany-su2004/smart-greenhouse/internal/greenhouse"
	"github.com/tiffany-su2004/smart-greenhouse/internal/metrics"
	"github.com/tiffany-su2004/smart-greenhouse/internal/session"
)

// Source is the subset of the greenhouse facade the poller reads.
type Source interface {
	LatestSensor(ctx context.Context) (*greenhouse.SensorLatestResponse, error)
	DeviceControls(ctx context.Context) (*greenhouse.ControlsResponse, error)
	SystemSettings(ctx context.Context) (*greenhouse.SystemSettingsResponse, error)
}

// SnapshotPoller periodically refreshes the dashboard snapshot through the
// authenticated facade, so expired access credentials are recovered the same
// way an interactive page would.
type SnapshotPoller struct {
	logger   *zap.Logger
	source   Source
	store    *SnapshotStore
	interval time.Duration
	stopCh   chan struct{}
}

// NewSnapshotPoller constructs a background job that runs every interval.
func NewSnapshotPoller(logger *zap.Logger, source Source, store *SnapshotStore, interval time.Duration) *SnapshotPoller {
	return &SnapshotPoller{
		logger:   logger,
		source:   source,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start polls once immediately, then on every tick until stopped.
func (p *SnapshotPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("snapshot_poller.started", zap.Duration("interval", p.interval))
	p.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-p.stopCh:
			p.logger.Info("snapshot_poller.stopped (manual stop)")
			return
		case <-ctx.Done():
			p.logger.Info("snapshot_poller.stopped (context canceled)")
			return
		}
	}
}

// Stop halts the poller. It must be called at most once.
func (p *SnapshotPoller) Stop() {
	close(p.stopCh)
}

// runOnce executes one poll cycle. The three sources are fetched
// independently so one failing endpoint does not freeze the others.
func (p *SnapshotPoller) runOnce(ctx context.Context) {
	start := time.Now()
	var res PollResult

	res.Reading, res.ReadingErr = p.latestReading(ctx)
	if controls, err := p.source.DeviceControls(ctx); err != nil {
		res.ControlsErr = err
	} else {
		res.Controls = controls.Data
	}
	if settings, err := p.source.SystemSettings(ctx); err != nil {
		res.SettingsErr = err
	} else {
		res.Settings = settings.Data
	}

	p.store.Update(res)
	if err := res.err(); err != nil {
		p.fail(err)
		return
	}
	p.logger.Debug("snapshot_poller.success",
		zap.Bool("has_reading", res.Reading != nil),
		zap.Int("controls", len(res.Controls)),
		zap.Duration("duration", time.Since(start)))
}

// latestReading maps the backend's "No sensor data found" reply to no reading.
// The backend wraps that 404 in its generic handler, so it arrives as a 500.
func (p *SnapshotPoller) latestReading(ctx context.Context) (*greenhouse.SensorReading, error) {
	resp, err := p.source.LatestSensor(ctx)
	if err != nil {
		if noSensorData(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Data, nil
}

func noSensorData(err error) bool {
	var reqErr *greenhouse.RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	switch reqErr.Status {
	case http.StatusNotFound:
		return true
	case http.StatusInternalServerError:
		return strings.Contains(reqErr.Message, noSensorDataMessage)
	}
	return false
}

const noSensorDataMessage = "No sensor data found"

func (p *SnapshotPoller) fail(err error) {
	metrics.IncSnapshotFailure()

	var refreshErr *session.RefreshError
	if errors.As(err, &refreshErr) && refreshErr.Terminal() {
		p.logger.Warn("snapshot_poller.session_ended", zap.Error(err))
		return
	}
	p.logger.Warn("snapshot_poller.poll_failed", zap.Error(err))
}
