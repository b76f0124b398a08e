package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"orderflow/internal/apperr"
	"orderflow/internal/repository"
	"orderflow/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// ConfigResolver resolves the connection profile of an AI service at dispatch
// time. A resolution failure is a permanent dispatch failure.
type ConfigResolver interface {
	Resolve(ctx context.Context, serviceID string) (*repository.ServiceConfig, error)
}

// ServiceConfigCache keeps an etcd-backed, watch-refreshed copy of all AI
// service configs so dispatch never pays an etcd round trip.
type ServiceConfigCache struct {
	repo *repository.ServiceConfigRepository

	mu      sync.RWMutex
	configs map[string]repository.ServiceConfig
	primed  bool
}

func NewServiceConfigCache(repo *repository.ServiceConfigRepository) *ServiceConfigCache {
	return &ServiceConfigCache{
		repo:    repo,
		configs: make(map[string]repository.ServiceConfig),
	}
}

func (c *ServiceConfigCache) Resolve(ctx context.Context, serviceID string) (*repository.ServiceConfig, error) {
	c.mu.RLock()
	cfg, ok := c.configs[serviceID]
	primed := c.primed
	c.mu.RUnlock()

	if ok {
		if cfg.Disabled {
			return nil, apperr.New(apperr.KindValidation, "ai service %s is disabled", serviceID)
		}
		return &cfg, nil
	}

	// Cache miss before the watcher has primed: fall through to etcd once.
	if !primed {
		fresh, err := c.repo.Get(ctx, serviceID)
		if err == repository.ErrServiceConfigNotFound {
			return nil, apperr.New(apperr.KindValidation, "no configuration for ai service %s", serviceID)
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDependency, err, "resolve ai service %s", serviceID)
		}
		c.update(*fresh)
		if fresh.Disabled {
			return nil, apperr.New(apperr.KindValidation, "ai service %s is disabled", serviceID)
		}
		return fresh, nil
	}
	return nil, apperr.New(apperr.KindValidation, "no configuration for ai service %s", serviceID)
}

func (c *ServiceConfigCache) update(cfg repository.ServiceConfig) {
	c.mu.Lock()
	c.configs[cfg.ServiceID] = cfg
	c.mu.Unlock()
}

func (c *ServiceConfigCache) remove(serviceID string) {
	c.mu.Lock()
	delete(c.configs, serviceID)
	c.mu.Unlock()
}

// Run loads the snapshot and then follows the watch stream until ctx ends.
// The watch starts at snapshot revision + 1 so no update is lost in between.
func (c *ServiceConfigCache) Run(ctx context.Context) {
	configs, rev, err := c.repo.GetAllWithRevision(ctx)
	if err != nil {
		logger.Error("failed to load ai service configs", zap.Error(err))
		return
	}
	c.mu.Lock()
	for _, cfg := range configs {
		c.configs[cfg.ServiceID] = cfg
	}
	c.primed = true
	c.mu.Unlock()
	logger.Info("ai service config snapshot loaded",
		zap.Int("count", len(configs)), zap.Int64("rev", rev))

	watchChan := c.repo.WatchFrom(ctx, rev+1)
	for {
		select {
		case <-ctx.Done():
			return
		case wresp := <-watchChan:
			if wresp.Canceled {
				logger.Warn("service config watch canceled", zap.Error(wresp.Err()))
				return
			}
			for _, ev := range wresp.Events {
				if ev.Type == clientv3.EventTypeDelete {
					id := strings.TrimPrefix(string(ev.Kv.Key), repository.ServiceConfigPrefix)
					c.remove(id)
					continue
				}
				var cfg repository.ServiceConfig
				if err := json.Unmarshal(ev.Kv.Value, &cfg); err != nil {
					logger.Warn("failed to decode ai service config",
						zap.String("key", string(ev.Kv.Key)), zap.Error(err))
					continue
				}
				c.update(cfg)
			}
		}
	}
}
