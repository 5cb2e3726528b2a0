package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

type DeviceStore struct {
	mu       sync.RWMutex
	bySerial map[string]types.Device
}

func NewDeviceStore(devices ...types.Device) *DeviceStore {
	s := &DeviceStore{bySerial: make(map[string]types.Device, len(devices))}
	for _, d := range devices {
		d.Serial = strings.TrimSpace(d.Serial)
		if d.Serial != "" {
			s.bySerial[d.Serial] = d
		}
	}
	return s
}

func (s *DeviceStore) FindBySerial(_ context.Context, serial string) (*types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.bySerial[serial]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *DeviceStore) GetDevice(_ context.Context, id string) (*types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.bySerial {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}
