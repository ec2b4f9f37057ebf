// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	cfg "github.com/tamzrod/mk3-bridge/internal/config"
	wmodbus "github.com/tamzrod/mk3-bridge/internal/writer/modbus"
)

// WriteTimeout bounds every register write.
const WriteTimeout = 2 * time.Second

// BuildPlan converts one device config into a Writer Plan.
// Assumes config has already passed validation.
func BuildPlan(b cfg.BridgeConfig, d cfg.DeviceConfig) (Plan, error) {
	if d.ID == "" {
		return Plan{}, errors.New("writer: device.id required")
	}

	plan := Plan{UnitID: d.ID}

	for _, t := range d.Targets {
		plan.Targets = append(plan.Targets, DataTarget{
			Endpoint: t.Endpoint,
			UnitID:   t.UnitID,
			Address:  t.Address,
		})

		if d.StatusSlot == nil || t.StatusUnitID == nil {
			continue
		}
		plan.Status = append(plan.Status, StatusPlan{
			Endpoint:   b.StatusEndpoint(t),
			UnitID:     *t.StatusUnitID,
			BaseSlot:   *d.StatusSlot,
			DeviceName: d.DeviceName,
		})
	}

	return plan, nil
}

// Dialer opens one endpoint client.
type Dialer func(endpoint string) (EndpointClient, func() error, error)

// ModbusDialer dials Modbus TCP endpoints.
func ModbusDialer(endpoint string) (EndpointClient, func() error, error) {
	c, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: endpoint,
		Timeout:  WriteTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// BuildEndpointClients creates one client per unique endpoint (data + status).
func BuildEndpointClients(plan Plan, dial Dialer) (map[string]EndpointClient, func() error, error) {
	unique := map[string]struct{}{}
	for _, t := range plan.Targets {
		unique[t.Endpoint] = struct{}{}
	}
	for _, s := range plan.Status {
		unique[s.Endpoint] = struct{}{}
	}

	clients := make(map[string]EndpointClient)
	var closers []func() error

	for endpoint := range unique {
		c, closeFn, err := dial(endpoint)
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, closeFn)
	}

	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	return clients, closeAll, nil
}
