package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rynowak/tye/internal/domain"
)

type etcdRecord struct {
	Document  *domain.Container `json:"document"`
	UpdatedAt time.Time         `json:"updated_at"`
	UpdatedBy string            `json:"updated_by"`
}

func marshalEtcdValue(c *domain.Container, owner string) (string, error) {
	wire := etcdRecord{
		Document:  c,
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: owner,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalEtcdValue(key string, raw []byte) (*domain.Container, error) {
	var wire etcdRecord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode etcd value %s: %w", key, err)
	}
	if wire.Document == nil {
		return nil, fmt.Errorf("etcd value %s has no document", key)
	}
	return wire.Document, nil
}
