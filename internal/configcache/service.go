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

package configcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cardinalhq/wikifarm/configdb"
	"github.com/cardinalhq/wikifarm/internal/cbor"
	"github.com/cardinalhq/wikifarm/internal/logctx"
	"github.com/cardinalhq/wikifarm/internal/registry"
)

// DefaultTTL bounds how long a snapshot is served without a rebuild.
const DefaultTTL = 10 * time.Minute

// Reader defines the minimal store interface the cache needs.
type Reader interface {
	GetWiki(ctx context.Context, wikiID string) (configdb.Wiki, error)
	GetWikiSettings(ctx context.Context, wikiID string) (configdb.WikiSetting, error)
	ListWikiNamespaces(ctx context.Context, wikiID string) ([]configdb.WikiNamespace, error)
	ListWikiPermissions(ctx context.Context, wikiID string) ([]configdb.WikiPermission, error)
}

// Service serves snapshots from a local ttlcache, then the optional
// remote tier, then a fresh build. It is the invalidation target of
// every change set commit.
type Service struct {
	reader Reader
	reg    *registry.Registry
	ttl    time.Duration
	cache  *ttlcache.Cache[string, *Snapshot]
	remote Remote
	codec  *cbor.Config
	group  singleflight.Group

	// gens counts invalidations per wiki. A build only populates the
	// cache tiers if no invalidation landed while it ran.
	mu   sync.Mutex
	gens map[string]uint64
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithRemote(r Remote) Option {
	return func(s *Service) { s.remote = r }
}

func New(reader Reader, reg *registry.Registry, opts ...Option) (*Service, error) {
	codec, err := cbor.NewConfig()
	if err != nil {
		return nil, err
	}
	s := &Service{reader: reader, reg: reg, ttl: DefaultTTL, codec: codec, gens: map[string]uint64{}}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = ttlcache.New(
		ttlcache.WithTTL[string, *Snapshot](s.ttl),
	)
	go s.cache.Start()
	return s, nil
}

// Close stops the cache background goroutine and the remote client.
func (s *Service) Close() error {
	s.cache.Stop()
	if s.remote != nil {
		return s.remote.Close()
	}
	return nil
}

// Get returns the snapshot of wikiID, building it on a miss. Concurrent
// misses for one wiki share a single build.
func (s *Service) Get(ctx context.Context, wikiID string) (*Snapshot, error) {
	if item := s.cache.Get(wikiID); item != nil {
		return item.Value(), nil
	}
	v, err, _ := s.group.Do(wikiID, func() (any, error) {
		gen := s.generation(wikiID)
		if snap := s.fromRemote(ctx, wikiID); snap != nil {
			if s.generation(wikiID) == gen {
				s.cache.Set(wikiID, snap, ttlcache.DefaultTTL)
			}
			return snap, nil
		}
		snap, err := s.Build(ctx, wikiID)
		if err != nil {
			return nil, err
		}
		if s.generation(wikiID) != gen {
			logctx.FromContext(ctx).Debug("Snapshot invalidated during build, not caching", slog.String("wikiID", wikiID))
			return snap, nil
		}
		s.cache.Set(wikiID, snap, ttlcache.DefaultTTL)
		s.toRemote(ctx, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Build reads the stored state of wikiID and resolves it, bypassing the
// cache tiers.
func (s *Service) Build(ctx context.Context, wikiID string) (*Snapshot, error) {
	in, err := LoadInput(ctx, s.reader, wikiID)
	if err != nil {
		return nil, err
	}
	return Build(s.reg, in), nil
}

// LoadInput reads every stored row Build consumes. A wiki without a
// tenant or settings row resolves with defaults.
func LoadInput(ctx context.Context, r Reader, wikiID string) (Input, error) {
	in := Input{WikiID: wikiID, LanguageCode: "en"}

	wiki, err := r.GetWiki(ctx, wikiID)
	switch {
	case errors.Is(err, configdb.ErrNotFound):
	case err != nil:
		return Input{}, fmt.Errorf("read wiki %s: %w", wikiID, err)
	default:
		in.Private = wiki.Private
		if wiki.LanguageCode != "" {
			in.LanguageCode = wiki.LanguageCode
		}
	}

	settings, err := r.GetWikiSettings(ctx, wikiID)
	switch {
	case errors.Is(err, configdb.ErrNotFound):
	case err != nil:
		return Input{}, fmt.Errorf("read settings of %s: %w", wikiID, err)
	default:
		in.Settings = settings.Settings
		in.Extensions = settings.Extensions
	}

	if in.Namespaces, err = r.ListWikiNamespaces(ctx, wikiID); err != nil {
		return Input{}, fmt.Errorf("read namespaces of %s: %w", wikiID, err)
	}
	if in.Permissions, err = r.ListWikiPermissions(ctx, wikiID); err != nil {
		return Input{}, fmt.Errorf("read permissions of %s: %w", wikiID, err)
	}
	return in, nil
}

// Invalidate drops wikiID from both tiers. A build already in flight
// still answers its callers but is not cached, and later Gets start a
// new build.
func (s *Service) Invalidate(ctx context.Context, wikiID string) error {
	s.mu.Lock()
	s.gens[wikiID]++
	s.mu.Unlock()
	s.group.Forget(wikiID)
	s.cache.Delete(wikiID)
	if s.remote == nil {
		return nil
	}
	if err := s.remote.Del(ctx, wikiID); err != nil {
		return fmt.Errorf("invalidate %s in remote cache: %w", wikiID, err)
	}
	return nil
}

// Warm builds the snapshots of wikiIDs with at most limit builds in
// flight, returning the first failure.
func (s *Service) Warm(ctx context.Context, wikiIDs []string, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, id := range wikiIDs {
		g.Go(func() error {
			_, err := s.Get(ctx, id)
			return err
		})
	}
	return g.Wait()
}

func (s *Service) generation(wikiID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[wikiID]
}

// Len reports the number of snapshots held locally.
func (s *Service) Len() int {
	return s.cache.Len()
}

func (s *Service) fromRemote(ctx context.Context, wikiID string) *Snapshot {
	if s.remote == nil {
		return nil
	}
	data, ok, err := s.remote.Get(ctx, wikiID)
	if err != nil {
		logctx.FromContext(ctx).Warn("Remote cache read failed", slog.String("wikiID", wikiID), slog.Any("error", err))
		return nil
	}
	if !ok {
		return nil
	}
	var snap Snapshot
	if err := s.codec.Unmarshal(data, &snap); err != nil {
		logctx.FromContext(ctx).Warn("Discarding undecodable snapshot", slog.String("wikiID", wikiID), slog.Any("error", err))
		return nil
	}
	snap.Settings = cbor.Normalize(snap.Settings)
	return &snap
}

func (s *Service) toRemote(ctx context.Context, snap *Snapshot) {
	if s.remote == nil {
		return
	}
	data, err := s.codec.Marshal(snap)
	if err != nil {
		logctx.FromContext(ctx).Warn("Failed to encode snapshot", slog.String("wikiID", snap.WikiID), slog.Any("error", err))
		return
	}
	if err := s.remote.Set(ctx, snap.WikiID, data, s.ttl); err != nil {
		logctx.FromContext(ctx).Warn("Remote cache write failed", slog.String("wikiID", snap.WikiID), slog.Any("error", err))
	}
}
