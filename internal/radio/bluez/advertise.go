package bluez

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"go.uber.org/zap"

	"github.com/avetra/bleprobe/internal/logging"
	"github.com/avetra/bleprobe/internal/radio"
)

var advertisementID uint64

var _ radio.Advertiser = (*Advertiser)(nil)

// Advertiser implements radio.Advertiser by registering one broadcast
// LEAdvertisement1 object per Advertise call and unregistering it on
// StopAdvertise. The duty-cycle controller is the single caller, so no
// internal queueing is needed.
type Advertiser struct {
	adapter *Adapter

	mu   sync.Mutex
	path dbus.ObjectPath // non-empty while a broadcast is registered
}

// NewAdvertiser returns an advertiser backed by the given adapter. The
// adapter must be Enabled before the first Advertise call; Ready reports
// the specific cause when it is not.
func NewAdvertiser(adapter *Adapter) *Advertiser {
	return &Advertiser{adapter: adapter}
}

// Ready verifies the underlying controller is usable. The duty-cycle
// controller calls this before entering its loop so a dead radio fails
// the start instead of the first tick.
func (a *Advertiser) Ready() error {
	if !a.adapter.enabled() {
		if err := a.adapter.Enable(); err != nil {
			return err
		}
	}
	// Probing the manager interface catches adapters without LE support.
	if _, err := a.adapter.adapter.GetProperty(advManagerInterface + ".SupportedInstances"); err != nil {
		return fmt.Errorf("advertising manager: %w", mapDBusError(err))
	}
	return nil
}

// Advertise exports an advertisement object carrying the local name, the
// manufacturer payload and a tx-power include, then registers it with
// BlueZ. It returns once the stack accepts the registration; the frame
// stays on air until StopAdvertise.
func (a *Advertiser) Advertise(_ context.Context, b radio.Broadcast) error {
	if err := a.Ready(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.path != "" {
		return radio.ErrAlreadyActive
	}

	id := atomic.AddUint64(&advertisementID, 1)
	path := dbus.ObjectPath(fmt.Sprintf("/com/avetra/bleprobe/advertisement%d", id))

	manufacturerData := map[uint16]any{
		b.CompanyID: b.ManufacturerData,
	}
	includes := []string{}
	if b.IncludeTxPower {
		includes = append(includes, "tx-power")
	}

	propsSpec := map[string]map[string]*prop.Prop{
		advInterface: {
			"Type":             {Value: "broadcast"},
			"LocalName":        {Value: b.LocalName},
			"ManufacturerData": {Value: manufacturerData},
			"Includes":         {Value: includes},
			"Timeout":          {Value: uint16(0)},
		},
	}

	if _, err := prop.Export(a.adapter.bus, path, propsSpec); err != nil {
		return fmt.Errorf("export advertisement: %w", err)
	}

	call := a.adapter.adapter.Call(advManagerInterface+".RegisterAdvertisement", 0,
		path, map[string]interface{}{})
	if call.Err != nil {
		return fmt.Errorf("register advertisement: %w", mapDBusError(call.Err))
	}

	a.path = path
	logging.Debug("Advertisement registered",
		zap.String("path", string(path)),
		zap.String("name", b.LocalName),
	)
	return nil
}

// StopAdvertise unregisters the current advertisement, if any. Safe to
// call when nothing is on air.
func (a *Advertiser) StopAdvertise() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.path == "" || !a.adapter.enabled() {
		return nil
	}
	path := a.path
	a.path = ""

	call := a.adapter.adapter.Call(advManagerInterface+".UnregisterAdvertisement", 0, path)
	if call.Err != nil {
		var dbusErr dbus.Error
		// Already gone counts as stopped.
		if ok := asDBusError(call.Err, &dbusErr); ok && dbusErr.Name == "org.bluez.Error.DoesNotExist" {
			return nil
		}
		return fmt.Errorf("unregister advertisement: %w", mapDBusError(call.Err))
	}
	return nil
}

func asDBusError(err error, target *dbus.Error) bool {
	if e, ok := err.(dbus.Error); ok {
		*target = e
		return true
	}
	return false
}
