package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"landslidewatch/internal/config"
	"landslidewatch/internal/logger"
	"landslidewatch/internal/repository/sqlite"
	"landslidewatch/internal/routes"
	"landslidewatch/internal/service/ai"
	"landslidewatch/internal/service/notifier"
	"landslidewatch/internal/service/pipeline"
	"landslidewatch/internal/service/source"
	"landslidewatch/internal/service/storage"
	"landslidewatch/internal/service/websocket"

	"github.com/nats-io/nats.go"
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	detectors     []*ai.Detector
	source        pipeline.FrameSource
	natsConn      *nats.Conn
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	driver        *pipeline.Driver
	server        *http.Server
}

// NewApp loads the configuration and wires every service. Resources opened
// before a failure are released.
func NewApp(ctx context.Context) (_ *App, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}
	a := &App{config: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.db, err = sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	images := sqlite.NewImageRepository(a.db)
	detections := sqlite.NewDetectionRepository(a.db)
	alerts := sqlite.NewAlertRepository(a.db)

	alertNotifier, err := a.newNotifier(ctx)
	if err != nil {
		return nil, err
	}

	scheduler, delay, err := a.newSource()
	if err != nil {
		return nil, err
	}

	aggregator, err := a.newAggregator()
	if err != nil {
		return nil, err
	}

	a.hubService = websocket.NewHubService(cfg.DisplayMaxWidth, cfg.DisplayMaxHeight, log)
	a.bufferService = storage.NewBufferService(cfg.SnapshotDirectory, cfg.SnapshotBufferLimit, log, images, detections, alerts)
	annotate := func(img []byte, records []pipeline.DetectionRecord) ([]byte, error) {
		return ai.DrawOverlay(img, records, 0, 0)
	}
	journal := storage.NewJournal(detections, alerts, a.bufferService, annotate, log)

	a.driver, err = pipeline.New(pipeline.Config{
		Source:      a.source,
		Aggregator:  aggregator,
		Scheduler:   scheduler,
		Notifier:    notifier.WithTimeout(alertNotifier, cfg.NotifyTimeout),
		Display:     a.hubService,
		Journal:     journal,
		Logger:      log,
		WindowSize:  cfg.WindowSize,
		HistorySize: cfg.HistorySize,
		TickDelay:   delay,
		Location:    cfg.Location(),
	})
	if err != nil {
		return nil, err
	}

	router := routes.SetupRoutes(routes.Deps{
		Status:     a.driver,
		Hub:        a.hubService,
		Alerts:     alerts,
		Detections: detections,
		Images:     images,
	}, cfg, log)
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) newNotifier(ctx context.Context) (pipeline.Notifier, error) {
	switch a.config.Notifier {
	case config.NotifierTwilio:
		return notifier.NewTwilio(a.config.TwilioAccountSID, a.config.TwilioAuthToken, a.config.TwilioFrom, a.config.TwilioTo), nil
	case config.NotifierNATS:
		nc, err := notifier.Connect(ctx, a.config.NATSURL, a.logger)
		if err != nil {
			return nil, err
		}
		a.natsConn = nc
		return notifier.NewNATS(nc, a.config.NATSSubject), nil
	default:
		return notifier.Log{Logger: a.logger}, nil
	}
}

// newSource opens the frame source and returns its detection schedule and
// the pause between ticks.
func (a *App) newSource() (pipeline.Scheduler, time.Duration, error) {
	cfg := a.config
	if cfg.Source == config.SourceSatellite {
		bbox, err := config.ParseBBox(cfg.AreaBBox)
		if err != nil {
			return pipeline.Scheduler{}, 0, err
		}
		a.source = source.NewSatellite(source.SatelliteOptions{
			BaseURL:    cfg.SentinelURL,
			InstanceID: cfg.SentinelInstanceID,
			Layer:      cfg.SentinelLayer,
			BBox:       bbox,
			Resolution: cfg.Resolution,
		}, a.logger)
		scheduler, err := pipeline.NewScheduler(1)
		return scheduler, cfg.RefreshInterval, err
	}

	video, err := source.OpenVideo(cfg.VideoPath, a.logger)
	if err != nil {
		return pipeline.Scheduler{}, 0, err
	}
	a.source = video

	interval, err := pipeline.IntervalFromFrameRate(video.FrameRate(), cfg.DetectEvery)
	if err != nil {
		return pipeline.Scheduler{}, 0, err
	}
	a.logger.Info("Video at %.2f fps, detecting every %d frames", video.FrameRate(), interval)
	scheduler, err := pipeline.NewScheduler(interval)
	return scheduler, cfg.FrameDelay, err
}

func (a *App) newAggregator() (*pipeline.Aggregator, error) {
	cfg := a.config
	landslideClasses, err := ai.LoadClassNames(cfg.LandslideClasses)
	if err != nil {
		return nil, err
	}
	vehicleClasses, err := ai.LoadClassNames(cfg.VehicleClasses)
	if err != nil {
		return nil, err
	}

	opts := ai.Options{Confidence: cfg.Confidence, NMSThreshold: cfg.NMSThreshold, InputSize: cfg.InputSize}
	landslideOpts, vehicleOpts := opts, opts
	landslideOpts.ModelPath = cfg.LandslideModel
	vehicleOpts.ModelPath = cfg.VehicleModel

	landslide := ai.NewDetector("landslide", landslideOpts, a.logger)
	vehicle := ai.NewDetector("vehicle", vehicleOpts, a.logger)
	a.detectors = append(a.detectors, landslide, vehicle)

	return pipeline.NewAggregator(pipeline.AggregatorConfig{
		Landslide:        landslide,
		LandslideClasses: landslideClasses,
		Vehicle:          vehicle,
		VehicleClasses:   vehicleClasses,
		PositiveClass:    cfg.PositiveClass,
	})
}

// Run serves the viewer and drives the pipeline until ctx is done. The HTTP
// surface stays up after the source is exhausted.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.hubService.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.bufferService.Run(ctx, time.Duration(a.config.SnapshotFlushInterval)*time.Second)
	}()
	go func() {
		defer wg.Done()
		if err := a.driver.Run(ctx); err != nil {
			a.logger.Error("Pipeline stopped: %v", err)
			return
		}
		a.logger.Info("Pipeline finished at tick %d", a.driver.Status().Tick)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Landslide monitor listening on http://localhost:%d", a.config.Port)
		a.logger.Info("Source: %s, notifier: %s", a.config.Source, a.config.Notifier)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	a.driver.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}

	// Pending snapshots are flushed by the buffer service once ctx is cancelled.
	cancel()
	wg.Wait()
	return runErr
}

func (a *App) close() {
	if closer, ok := a.source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warning("Closing source: %v", err)
		}
	}
	for _, d := range a.detectors {
		if err := d.Close(); err != nil {
			a.logger.Warning("Closing %s detector: %v", d.Name(), err)
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warning("Closing database: %v", err)
		}
	}
	a.logger.Close()
}
