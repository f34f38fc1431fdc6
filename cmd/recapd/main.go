// Command recapd is the recap processing daemon. It serves the HTTP API,
// runs provider calls in the background and reclaims expired audio
// artifacts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillsenselab/recap/artifact"
	// Artifact backends register themselves with the factory.
	_ "github.com/skillsenselab/recap/artifact/local"
	_ "github.com/skillsenselab/recap/artifact/s3"
	"github.com/skillsenselab/recap/audio"
	"github.com/skillsenselab/recap/cache"
	"github.com/skillsenselab/recap/component"
	"github.com/skillsenselab/recap/config"
	"github.com/skillsenselab/recap/credits"
	"github.com/skillsenselab/recap/insight"
	"github.com/skillsenselab/recap/insight/gemini"
	"github.com/skillsenselab/recap/insight/local"
	"github.com/skillsenselab/recap/insight/openai"
	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/logger"
	"github.com/skillsenselab/recap/server"
	"github.com/skillsenselab/recap/server/middleware"
	"github.com/skillsenselab/recap/store/gormstore"
	"github.com/skillsenselab/recap/util"
	"github.com/skillsenselab/recap/validation"
	"github.com/skillsenselab/recap/version"
)

const serviceName = "recapd"

// daemonConfig is the full recapd configuration tree.
type daemonConfig struct {
	config.ServiceConfig `mapstructure:",squash" yaml:",inline"`

	Server    server.Config    `mapstructure:"server" yaml:"server"`
	Store     gormstore.Config `mapstructure:"store" yaml:"store"`
	Cache     cache.Config     `mapstructure:"cache" yaml:"cache"`
	Artifacts artifact.Config  `mapstructure:"artifacts" yaml:"artifacts"`
	Audio     audio.Config     `mapstructure:"audio" yaml:"audio"`
	Jobs      job.Config       `mapstructure:"jobs" yaml:"jobs"`

	Providers providerConfig `mapstructure:"providers" yaml:"providers"`
}

type providerConfig struct {
	OpenAI openai.Config `mapstructure:"openai" yaml:"openai"`
	Gemini gemini.Config `mapstructure:"gemini" yaml:"gemini"`
	Local  local.Config  `mapstructure:"local" yaml:"local"`
}

func (c *daemonConfig) applyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Artifacts.ApplyDefaults()
	c.Audio.ApplyDefaults()
	c.Jobs.ApplyDefaults()
}

// validate collects errors across all sections so a broken config reports
// every problem in a single run.
func (c *daemonConfig) validate() error {
	v := validation.New()
	if err := c.ServiceConfig.Validate(); err != nil {
		v.AddError("service", err.Error())
	}
	if err := c.Server.Validate(); err != nil {
		v.AddError("server", err.Error())
	}
	if err := c.Cache.Validate(); err != nil {
		v.AddError("cache", err.Error())
	}
	if err := c.Artifacts.Validate(); err != nil {
		v.AddError("artifacts", err.Error())
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "recapd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg daemonConfig
	if err := config.Load(serviceName, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	logger.Init(cfg.Logging, cfg.Name)
	log := logger.GetGlobalLogger()
	log.Info("starting", map[string]interface{}{
		"version":     version.Full(),
		"environment": cfg.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := gormstore.Open(cfg.Store, log)
	if err != nil {
		return err
	}

	artifacts, err := artifact.New(cfg.Artifacts, log)
	if err != nil {
		return err
	}

	compressor, err := audio.New(cfg.Audio)
	if err != nil {
		return err
	}

	router := insight.NewRouter()
	localProvider := registerProviders(router, cfg.Providers)
	if localProvider != nil {
		defer localProvider.Close()
	}

	var views job.ViewCache
	var cacheClient *cache.Client
	if cfg.Cache.Enabled {
		cacheClient, err = cache.New(cfg.Cache, log)
		if err != nil {
			return err
		}
		views = cache.NewJobViews(cacheClient, cfg.Cache.TTL())
	}

	ledger := credits.NewLedger(store)
	jobs := job.NewService(cfg.Jobs, store, ledger, router, artifacts, compressor, views)

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()

	registry := component.NewRegistry()
	registry.Register(&storeComponent{store: store})
	if cacheClient != nil {
		registry.Register(&cacheComponent{client: cacheClient})
	}
	registry.Register(&serverComponent{server: srv})
	registry.Register(newJanitor(jobs))

	api := server.NewAPI(jobs, ledger)
	api.RegisterRoutes(srv.GinEngine(), middleware.AuthConfig{Secret: cfg.Server.JWTSecret}, cfg.Name, registry.HealthAll)

	if err := registry.StartAll(ctx); err != nil {
		registry.StopAll(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	return registry.StopAll(context.Background())
}

// registerProviders wires the configured insight providers onto the router.
// Registration order decides the default: openai when configured, otherwise
// gemini, otherwise the on-device provider.
func registerProviders(router *insight.Router, cfg providerConfig) *local.Provider {
	if cfg.OpenAI.APIKey != "" {
		router.Register(openai.NewProvider(cfg.OpenAI), "gpt-", "whisper-")
		logger.Info("provider registered", logger.Fields(
			"provider", "openai",
			"api_key", util.MaskSecret(cfg.OpenAI.APIKey, 6),
		))
	}
	if cfg.Gemini.APIKey != "" {
		router.Register(gemini.NewProvider(cfg.Gemini), "gemini-")
		logger.Info("provider registered", logger.Fields(
			"provider", "gemini",
			"api_key", util.MaskSecret(cfg.Gemini.APIKey, 6),
		))
	}
	localProvider := local.NewProvider(cfg.Local)
	router.Register(localProvider, "local-")
	return localProvider
}
