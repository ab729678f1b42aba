// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/config"
	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/awsclient"
	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/configcache"
	"github.com/cardinalhq/wikifarm/internal/dbopen"
	"github.com/cardinalhq/wikifarm/internal/fly"
	"github.com/cardinalhq/wikifarm/internal/installer"
	"github.com/cardinalhq/wikifarm/internal/jobqueue"
	"github.com/cardinalhq/wikifarm/internal/lifecycle"
	"github.com/cardinalhq/wikifarm/internal/memdb"
	"github.com/cardinalhq/wikifarm/internal/registry"
	"github.com/cardinalhq/wikifarm/internal/sqlitedb"
	"github.com/cardinalhq/wikifarm/internal/wikistate"
)

const servicename = "wikifarm"

// app is the wired set of collaborators one command runs against.
type app struct {
	cfg       *config.Config
	store     configdb.QuerierFull
	registry  *registry.Registry
	state     *wikistate.State
	cache     *configcache.Service
	env       *changeset.Env
	lifecycle *lifecycle.Manager
	closers   []func() error
}

// newApp assembles the change set environment. The installer is wired
// back into the environment it runs through.
func newApp(cfg *config.Config, store configdb.QuerierFull, reg *registry.Registry, jobs jobqueue.Dispatcher, cache *configcache.Service) *app {
	state := wikistate.New(store)
	env := &changeset.Env{
		Store:    store,
		Jobs:     jobs,
		Registry: reg,
		Tenant:   state.Tenant(nil, true),
	}
	if cache != nil {
		env.Invalidator = cache
	}
	env.Installer = installer.New(env, state)
	return &app{
		cfg:       cfg,
		store:     store,
		registry:  reg,
		state:     state,
		cache:     cache,
		env:       env,
		lifecycle: lifecycle.New(env, state),
	}
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var aws *awsclient.Manager
	awsManager := func() (*awsclient.Manager, error) {
		if aws != nil {
			return aws, nil
		}
		m, err := awsclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws: %w", err)
		}
		aws = m
		return m, nil
	}

	reg, err := loadRegistry(ctx, cfg.Registry.Source, awsManager)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, dbopen.WaitForMigrations())
	if err != nil {
		return nil, err
	}
	closers := []func() error{func() error { store.Close(); return nil }}

	jobs, closeJobs, err := openJobs(ctx, cfg, store, awsManager)
	if err != nil {
		store.Close()
		return nil, err
	}
	if closeJobs != nil {
		closers = append(closers, closeJobs)
	}

	opts := []configcache.Option{configcache.WithTTL(cfg.Cache.TTL)}
	if cfg.Cache.RedisAddr != "" {
		opts = append(opts, configcache.WithRemote(configcache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cfg.Cache.RedisPrefix)))
	}
	cache, err := configcache.New(store, reg, opts...)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	closers = append(closers, cache.Close)

	a := newApp(cfg, store, reg, jobs, cache)
	a.closers = closers
	return a, nil
}

func (a *app) Close() error {
	var errs *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func loadRegistry(ctx context.Context, source string, awsManager func() (*awsclient.Manager, error)) (*registry.Registry, error) {
	var opts []registry.LoadOption
	if strings.HasPrefix(source, "s3://") {
		m, err := awsManager()
		if err != nil {
			return nil, err
		}
		s3, err := m.GetS3(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		opts = append(opts, registry.WithObjectGetter(s3))
	}
	return registry.Load(ctx, source, opts...)
}

func openStore(ctx context.Context, cfg *config.Config, opts ...dbopen.Options) (configdb.QuerierFull, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		slog.Warn("Using the in-memory store; nothing is persisted")
		return memdb.New(), nil
	case config.StoreSQLite:
		store, err := sqlitedb.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		store, err := configdb.ConfigDBStore(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to configdb: %w", err)
		}
		return store, nil
	}
}

func openJobs(ctx context.Context, cfg *config.Config, store configdb.QuerierFull, awsManager func() (*awsclient.Manager, error)) (jobqueue.Dispatcher, func() error, error) {
	switch cfg.Jobs.Driver {
	case config.JobsNone:
		return jobqueue.Noop{}, nil, nil
	case config.JobsKafka:
		pc, err := cfg.Kafka.ProducerConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		k := jobqueue.NewKafka(fly.NewProducer(pc), cfg.Kafka.JobsTopic)
		return k, k.Close, nil
	case config.JobsSQS:
		m, err := awsManager()
		if err != nil {
			return nil, nil, err
		}
		client, err := m.GetSQS(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("sqs client: %w", err)
		}
		return jobqueue.NewSQS(client, cfg.Jobs.QueueURL), nil, nil
	default:
		return jobqueue.NewDB(store), nil, nil
	}
}

type runFunc func(ctx context.Context, a *app, out io.Writer, args []string) error

// withApp wraps a command body with telemetry and collaborator wiring.
func withApp(name string, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx, doneFx, err := setupTelemetry(servicename)
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		defer func() {
			if err := doneFx(); err != nil {
				slog.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()

		start := time.Now()
		defer func() { recordCommand(ctx, name, start, err) }()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil {
				slog.Warn("Error closing resources", slog.Any("error", cerr))
			}
		}()
		return fn(ctx, a, cmd.OutOrStdout(), args)
	}
}

// report prints the advisories and rejections a commit recorded.
func report(out io.Writer, errs []changeset.ErrorRecord) {
	for _, e := range errs {
		fmt.Fprintf(out, "warning: %s\n", e.String())
	}
}
