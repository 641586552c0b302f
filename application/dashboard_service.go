package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultReportInterval = 30 * time.Second

type DashboardService interface {
	Run(ctx context.Context) error
}

type DashboardServiceParams struct {
	MQTTClient MQTTClient
	Watchdog   *LivenessWatchdog
	MessageLog *MessageLog

	// ProbeInterval re-sends the status probe periodically; zero disables it.
	ProbeInterval  time.Duration
	ReportInterval time.Duration

	Log zerolog.Logger
}

type dashboardService struct {
	params DashboardServiceParams

	log zerolog.Logger
}

func NewDashboardService(params DashboardServiceParams) (DashboardService, error) {
	if params.MQTTClient == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	if params.Watchdog == nil {
		return nil, fmt.Errorf("Watchdog is nil")
	}
	if params.ReportInterval == 0 {
		params.ReportInterval = DefaultReportInterval
	}
	return &dashboardService{params: params, log: params.Log}, nil
}

func (d dashboardService) Run(ctx context.Context) error {
	// topics are registered before connecting so the first OnConnect
	// subscribes all of them
	d.params.Watchdog.Start()
	if d.params.MessageLog != nil {
		d.params.MessageLog.Start()
	}

	d.params.MQTTClient.Connect()
	d.params.Watchdog.CheckStatus()

	defer d.params.MQTTClient.Disconnect()
	defer d.params.Watchdog.Close()

	g := errgroup.Group{}

	// periodic probe
	if d.params.ProbeInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(d.params.ProbeInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					d.params.Watchdog.CheckStatus()
				}
			}
		})
	}

	// mqtt publish reported
	g.Go(func() error {
		ticker := time.NewTicker(d.params.ReportInterval)
		defer ticker.Stop()
		lastStatus := MQTTStatus{}

	ReporterLoop:
		for {
			select {
			case <-ctx.Done():
				break ReporterLoop
			case <-ticker.C:
				newStatus := d.params.MQTTClient.Status()

				msgPerMin := uint64(0)
				if newStatus.MessageCount > lastStatus.MessageCount {
					msgPerMin = uint64(float64(newStatus.MessageCount-lastStatus.MessageCount) / d.params.ReportInterval.Minutes())
				}

				d.log.Info().
					Uint64("msg_per_min", msgPerMin).
					Str("state", newStatus.State.String()).
					Int("pending", newStatus.Pending).
					Int("devices_online", d.params.Watchdog.OnlineCount()).
					Time("last_time_published", newStatus.LastTimePublished).
					Msg("publish report")

				lastStatus = newStatus
			}
		}

		return nil
	})

	return g.Wait()
}
