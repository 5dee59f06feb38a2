package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadewire/chunkupload/internal/chunkfile"
	"github.com/cascadewire/chunkupload/internal/config"
	"github.com/cascadewire/chunkupload/internal/errs"
	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/logging"
	"github.com/cascadewire/chunkupload/internal/netadapter"
	"github.com/cascadewire/chunkupload/internal/progress"
	"github.com/cascadewire/chunkupload/internal/resources"
	"github.com/cascadewire/chunkupload/internal/scheduler"
	"github.com/cascadewire/chunkupload/internal/state"
	"github.com/cascadewire/chunkupload/internal/transport/azure"
	"github.com/cascadewire/chunkupload/internal/transport/s3"
	"github.com/cascadewire/chunkupload/internal/uploader"
	"github.com/cascadewire/chunkupload/internal/validation"
	"github.com/cascadewire/chunkupload/internal/workerpool"
)

// pipeline bundles every long-lived component runUpload needs to tear
// down cleanly once every file has been processed.
type pipeline struct {
	up      *uploader.Uploader
	bus     *eventbus.Bus
	sched   *scheduler.Scheduler
	workers *workerpool.Pool
}

func (p *pipeline) close() {
	p.sched.Stop()
	if p.workers != nil {
		p.workers.Close()
	}
}

// buildPipeline wires logging, the event bus, the scheduler, the
// resumable-state store, the chosen transport, and the uploader itself,
// mirroring the explicit-injection shape of uploader.New: nothing here
// is constructed inside internal/uploader.
func buildPipeline(ctx context.Context, cfg *config.Config, token string, logger *logging.Logger) (*pipeline, error) {
	bus := eventbus.New(logger)
	if cfg.LogEvents {
		logAllEvents(bus, logger)
	}

	center := errs.New(bus)
	probe := resources.NewProbe()

	schedCfg := scheduler.Config{
		Concurrency: cfg.Concurrency,
		Retries:     cfg.Retries,
		InitialDelay: cfg.RetryDelay,
	}
	sched := scheduler.New(bus, logger, schedCfg,
		scheduler.WithRetryCap(center.RetryCapFor),
		scheduler.WithResourceProbe(probe),
	)
	sched.Start()

	managerOpts := []chunkfile.Option{chunkfile.WithMemoryProbe(probe.AvailableMemory)}
	if cfg.ChunkSize > 0 {
		managerOpts = append(managerOpts, chunkfile.WithChunkSizeBounds(cfg.ChunkSize, cfg.ChunkSize))
	}
	manager := chunkfile.NewManager(managerOpts...)

	var workers *workerpool.Pool
	if cfg.UseWorker {
		workers = workerpool.New(schedCfg.Concurrency, schedCfg.Concurrency*2)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	transport, err := buildTransport(ctx, cfg, token, bus, logger)
	if err != nil {
		sched.Stop()
		return nil, err
	}

	upCfg := uploader.Config{
		Rules: validation.UploadRules{
			MinFileSize:       cfg.MinFileSize,
			MaxFileSize:       cfg.MaxFileSize,
			AllowFileTypes:    cfg.AllowFileTypes,
			DisallowFileTypes: cfg.DisallowFileTypes,
			AllowEmptyFiles:   cfg.AllowEmptyFiles,
		},
		HashAlgorithm:  cfg.HashAlgorithm,
		EnablePrecheck: cfg.EnablePrecheck,
	}

	var opts []uploader.Option
	if workers != nil {
		opts = append(opts, uploader.WithWorkerPool(workers))
	}

	up := uploader.New(upCfg, bus, manager, transport, sched, center, store, logger, opts...)
	return &pipeline{up: up, bus: bus, sched: sched, workers: workers}, nil
}

func buildStore(cfg *config.Config) (state.Store, error) {
	if cfg.StorageType != "file" || !cfg.PersistQueue {
		return state.NewMemoryStore(), nil
	}
	dir := cfg.StateDir
	if dir == "" {
		configPath, err := config.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		dir = configPath + ".state"
	} else if err := validation.ValidateDirectoryPath(dir); err != nil {
		return nil, fmt.Errorf("invalid state directory: %w", err)
	}
	return state.NewFileStore(dir)
}

func buildTransport(ctx context.Context, cfg *config.Config, token string, bus *eventbus.Bus, logger *logging.Logger) (uploader.Transport, error) {
	switch cfg.Transport {
	case "s3":
		s3Cfg := s3.Config{
			Bucket:          flags.s3Bucket,
			Region:          flags.s3Region,
			Endpoint:        flags.s3Endpoint,
			AccessKeyID:     flags.s3AccessKeyID,
			SecretAccessKey: flags.s3SecretAccessKey,
			SessionToken:    flags.s3SessionToken,
		}
		return uploader.NewObjectTransport(func(ctx context.Context, key string) (uploader.Backend, error) {
			return s3.New(ctx, s3Cfg)
		}), nil

	case "azure":
		azCfg := azure.Config{
			ServiceURL:  flags.azureServiceURL,
			Container:   flags.azureContainer,
			AccountName: flags.azureAccountName,
			AccountKey:  flags.azureAccountKey,
		}
		return uploader.NewObjectTransport(func(ctx context.Context, key string) (uploader.Backend, error) {
			return azure.New(azCfg)
		}), nil

	default:
		proxy := netadapter.ProxyConfig{
			Mode:     flags.proxyMode,
			Host:     flags.proxyHost,
			Port:     flags.proxyPort,
			User:     flags.proxyUser,
			Password: flags.proxyPassword,
			NoProxy:  flags.proxyNoProxy,
		}
		adapter, err := netadapter.New(proxy, bus, logger)
		if err != nil {
			return nil, fmt.Errorf("build network adapter: %w", err)
		}
		headers := map[string]string{}
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
		return uploader.NewHTTPTransport(adapter, uploader.HTTPTransportConfig{
			Endpoint:      cfg.Endpoint,
			CheckEndpoint: cfg.CheckEndpoint,
			MergeEndpoint: cfg.MergeEndpoint,
			Headers:       headers,
		}), nil
	}
}

// runUpload processes every path in order, one file at a time: chunk
// concurrency within a file comes from the scheduler, but files
// themselves are not fanned out concurrently, which keeps the
// FileID-keyed progress events (internal/uploader/events.go) trivially
// attributable to the single progress bar currently in flight.
func runUpload(cmd *cobra.Command, cfg *config.Config, token string, paths []string) error {
	if err := validation.ValidateFilePaths(paths); err != nil {
		return fmt.Errorf("invalid upload arguments: %w", err)
	}

	logging.SetGlobalLevel(logging.LevelFromString(cfg.LogLevel))
	logger := logging.NewLogger("cli")
	ctx := context.Background()

	p, err := buildPipeline(ctx, cfg, token, logger)
	if err != nil {
		return err
	}
	defer p.close()

	ui := progress.NewUploadUI(len(paths))
	bridge := newProgressBridge(p.bus)
	defer bridge.unsubscribe()

	var failures int
	for i, path := range paths {
		info, statErr := os.Stat(path)
		size := int64(0)
		if statErr == nil {
			size = info.Size()
		}
		bar := ui.AddFileBar(i, path, size)
		bridge.begin(bar)

		fu, err := p.up.Upload(ctx, path)
		if err != nil {
			failures++
			bar.Complete("", err)
			logger.Errorf("upload failed for %s: %v", path, err)
			continue
		}
		bar.Complete(fu.ResultURL, nil)
	}
	ui.Wait()

	if failures > 0 {
		return fmt.Errorf("%d of %d uploads failed", failures, len(paths))
	}
	return nil
}

func logAllEvents(bus *eventbus.Bus, logger *logging.Logger) {
	for _, name := range []string{
		"beforeUpload", "progress", "chunkProgress", "chunkSuccess",
		"chunkError", "afterUpload", "error", "cancel",
		"instantUpload:success",
	} {
		bus.On(name, func(payload interface{}) {
			logger.Debugf("event %v", payload)
		})
	}
}
