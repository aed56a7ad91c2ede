package registry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/config"
	"github.com/rynowak/tye/internal/domain"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Close() error
}

// EtcdRepository keeps documents in etcd, one key per resource under
// cfg.Prefix.
type EtcdRepository struct {
	client   etcdClient
	cfg      *config.StoreConfig
	hostname string
	logger   zerolog.Logger
}

func NewEtcdRepository(client etcdClient, cfg *config.StoreConfig, hostname string, logger zerolog.Logger) *EtcdRepository {
	return &EtcdRepository{
		client:   client,
		cfg:      cfg,
		hostname: hostname,
		logger:   logger.With().Str("component", "etcd_repository").Logger(),
	}
}

// Init checks that etcd is reachable; there is no schema.
func (er *EtcdRepository) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, er.cfg.EtcdDialTimeout)
	defer cancel()
	if _, err := er.client.Get(ctx, er.cfg.EtcdPrefix, clientv3.WithPrefix(), clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("reach etcd: %w", err)
	}
	return nil
}

func (er *EtcdRepository) List(ctx context.Context, subscriptionID, resourceGroup, resourceType string) ([]*domain.Container, error) {
	scope := keyForScope(er.cfg.EtcdPrefix, subscriptionID, resourceGroup, resourceType)
	resp, err := er.client.Get(ctx, scope, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}
	out := []*domain.Container{}
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		if !isDirectChild(scope, key) {
			continue
		}
		c, err := unmarshalEtcdValue(key, kv.Value)
		if err != nil {
			er.logger.Error().Err(err).Str("key", key).Msg("Skipping unreadable document")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (er *EtcdRepository) Get(ctx context.Context, id domain.ResourceID) (*domain.Container, error) {
	key := keyForID(er.cfg.EtcdPrefix, id)
	resp, err := er.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalEtcdValue(key, resp.Kvs[0].Value)
}

func (er *EtcdRepository) Upsert(ctx context.Context, c *domain.Container) error {
	id, err := c.ResourceID()
	if err != nil {
		return err
	}
	value, err := marshalEtcdValue(c, er.hostname)
	if err != nil {
		return err
	}
	key := keyForID(er.cfg.EtcdPrefix, id)
	if _, err := er.client.Put(ctx, key, value); err != nil {
		return err
	}
	er.logger.Debug().Str("key", key).Msg("Stored document")
	return nil
}

func (er *EtcdRepository) Delete(ctx context.Context, id domain.ResourceID) error {
	key := keyForID(er.cfg.EtcdPrefix, id)
	resp, err := er.client.Delete(ctx, key)
	if err != nil {
		return err
	}
	if resp.Deleted > 0 {
		er.logger.Debug().Str("key", key).Msg("Deleted document")
	}
	return nil
}

func (er *EtcdRepository) Close() error {
	return er.client.Close()
}
