package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var ErrServiceConfigNotFound = errors.New("ai service config not found")

const ServiceConfigPrefix = "/orderflow/services/"

// ServiceConfig is the per-AI-service connection profile resolved at dispatch
// time. Stored as JSON under ServiceConfigPrefix + serviceID in etcd so it can
// be rotated without a restart.
type ServiceConfig struct {
	ServiceID string        `json:"service_id"`
	BaseURL   string        `json:"base_url"`
	APIKey    string        `json:"api_key"`
	Timeout   time.Duration `json:"timeout"`
	Disabled  bool          `json:"disabled"`
}

type EtcdInterface interface {
	clientv3.KV
	clientv3.Watcher
	Close() error
}

type ServiceConfigRepository struct {
	client EtcdInterface
}

func NewServiceConfigRepository(client EtcdInterface) *ServiceConfigRepository {
	return &ServiceConfigRepository{client: client}
}

func (r *ServiceConfigRepository) Get(ctx context.Context, serviceID string) (*ServiceConfig, error) {
	resp, err := r.client.Get(ctx, ServiceConfigPrefix+serviceID)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrServiceConfigNotFound
	}
	var cfg ServiceConfig
	if err := json.Unmarshal(resp.Kvs[0].Value, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *ServiceConfigRepository) Put(ctx context.Context, cfg *ServiceConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, ServiceConfigPrefix+cfg.ServiceID, string(b))
	return err
}

// GetAllWithRevision returns the full config set plus the revision to watch
// from, so the cache never misses updates between snapshot and watch.
func (r *ServiceConfigRepository) GetAllWithRevision(ctx context.Context) ([]ServiceConfig, int64, error) {
	resp, err := r.client.Get(ctx, ServiceConfigPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, 0, err
	}
	configs := make([]ServiceConfig, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var cfg ServiceConfig
		if err := json.Unmarshal(kv.Value, &cfg); err != nil {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, resp.Header.Revision, nil
}

func (r *ServiceConfigRepository) WatchFrom(ctx context.Context, startRev int64) clientv3.WatchChan {
	return r.client.Watch(ctx, ServiceConfigPrefix, clientv3.WithPrefix(), clientv3.WithRev(startRev))
}

func (r *ServiceConfigRepository) Health(ctx context.Context) error {
	_, err := r.client.Get(ctx, "health_check")
	return err
}
