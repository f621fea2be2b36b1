package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/logging"
	"github.com/avetra/bleprobe/internal/radio"
)

const (
	dbusSignalInterfacesAdded   = "org.freedesktop.DBus.ObjectManager.InterfacesAdded"
	dbusSignalPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"

	// Indexes into signal bodies.
	//
	// InterfacesAdded: (object path, dict of interface -> properties)
	// PropertiesChanged: (interface name, changed dict, invalidated list)
	interfacesAddedDictionary   = 1
	propertiesChangedInterface  = 0
	propertiesChangedDictionary = 1
)

var (
	matchOptionsInterfacesAdded = []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.ObjectManager"),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	matchOptionsPropertiesChanged = []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(propertiesChangedInterface, deviceInterface),
	}
)

// deviceState caches the slowly-changing Device1 properties per object
// path, so a PropertiesChanged carrying only a fresh RSSI can still be
// turned into a complete advertisement event.
type deviceState struct {
	addr     string
	name     string
	mfr      map[uint16][]byte
	txPower  *int16
	lastRSSI int16
}

// Scanner implements radio.Scanner over BlueZ discovery. Each RSSI or
// manufacturer-data update on a Device1 object becomes one AdvEvent whose
// Data is the AD frame reassembled from the parsed properties, so the
// decode path sees the on-air layout.
type Scanner struct {
	adapter *Adapter
}

var _ radio.Scanner = (*Scanner)(nil)

func NewScanner(adapter *Adapter) *Scanner {
	return &Scanner{adapter: adapter}
}

// Ready verifies the controller is usable for discovery.
func (s *Scanner) Ready() error {
	if !s.adapter.enabled() {
		return s.adapter.Enable()
	}
	return nil
}

// Scan runs discovery until ctx is done, pushing one event per received
// advertisement update into ch. The caller owns ch's lifetime; Scan never
// closes it.
func (s *Scanner) Scan(ctx context.Context, ch chan<- radio.AdvEvent) error {
	if err := s.Ready(); err != nil {
		return err
	}
	bus := s.adapter.bus

	// Duplicate data matters here: every repeat broadcast is a sample.
	filter := map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": true,
	}
	if call := s.adapter.adapter.Call(adapterInterface+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		return fmt.Errorf("set discovery filter: %w", mapDBusError(call.Err))
	}

	if err := bus.AddMatchSignal(matchOptionsInterfacesAdded...); err != nil {
		return fmt.Errorf("add match signal: InterfacesAdded: %w", err)
	}
	if err := bus.AddMatchSignal(matchOptionsPropertiesChanged...); err != nil {
		return fmt.Errorf("add match signal: PropertiesChanged: %w", err)
	}

	sigCh := make(chan *dbus.Signal, 64)
	bus.Signal(sigCh)

	defer func() {
		_ = bus.RemoveMatchSignal(matchOptionsInterfacesAdded...)
		_ = bus.RemoveMatchSignal(matchOptionsPropertiesChanged...)
		bus.RemoveSignal(sigCh)
		if call := s.adapter.adapter.Call(adapterInterface+".StopDiscovery", 0); call.Err != nil {
			logging.Warn("Stop discovery failed", zap.Error(call.Err))
		}
	}()

	if call := s.adapter.adapter.Call(adapterInterface+".StartDiscovery", 0); call.Err != nil {
		return fmt.Errorf("start discovery: %w", mapDBusError(call.Err))
	}
	logging.Info("Discovery started", zap.String("adapter", s.adapter.id))

	devices := make(map[dbus.ObjectPath]*deviceState)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-sigCh:
			if !ok {
				return nil
			}
			ev, emit := s.handleSignal(devices, sig)
			if !emit {
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// handleSignal folds one D-Bus signal into the device cache and reports
// whether it amounts to a received advertisement.
func (s *Scanner) handleSignal(devices map[dbus.ObjectPath]*deviceState, sig *dbus.Signal) (radio.AdvEvent, bool) {
	switch sig.Name {
	case dbusSignalInterfacesAdded:
		if len(sig.Body) <= interfacesAddedDictionary {
			return radio.AdvEvent{}, false
		}
		interfaces, ok := sig.Body[interfacesAddedDictionary].(map[string]map[string]dbus.Variant)
		if !ok {
			return radio.AdvEvent{}, false
		}
		props, ok := interfaces[deviceInterface]
		if !ok {
			return radio.AdvEvent{}, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		dev := &deviceState{mfr: make(map[uint16][]byte)}
		devices[path] = dev
		sawSample := applyProperties(dev, props)
		return dev.event(), sawSample

	case dbusSignalPropertiesChanged:
		if len(sig.Body) <= propertiesChangedDictionary {
			return radio.AdvEvent{}, false
		}
		if iface, ok := sig.Body[propertiesChangedInterface].(string); !ok || iface != deviceInterface {
			return radio.AdvEvent{}, false
		}
		changes, ok := sig.Body[propertiesChangedDictionary].(map[string]dbus.Variant)
		if !ok {
			return radio.AdvEvent{}, false
		}
		dev := devices[sig.Path]
		if dev == nil {
			dev = &deviceState{mfr: make(map[uint16][]byte)}
			devices[sig.Path] = dev
		}
		sawSample := applyProperties(dev, changes)
		return dev.event(), sawSample
	}
	return radio.AdvEvent{}, false
}

// applyProperties merges Device1 properties into the cache and reports
// whether they carry a fresh sample (RSSI or manufacturer data).
func applyProperties(dev *deviceState, props map[string]dbus.Variant) bool {
	sawSample := false
	for name, v := range props {
		switch name {
		case "Address":
			if addr, ok := v.Value().(string); ok {
				dev.addr = addr
			}
		case "Name", "Alias":
			// Name is authoritative; Alias fills in when Name is absent.
			if s, ok := v.Value().(string); ok && (name == "Name" || dev.name == "") {
				dev.name = s
			}
		case "RSSI":
			sawSample = true
		case "TxPower":
			if p, ok := v.Value().(int16); ok {
				dev.txPower = &p
			}
		case "ManufacturerData":
			if md, ok := v.Value().(map[uint16]dbus.Variant); ok {
				for company, dv := range md {
					if data, ok := dv.Value().([]byte); ok {
						dev.mfr[company] = data
						sawSample = true
					}
				}
			}
		}
	}
	if sawSample {
		if rssi, ok := props["RSSI"]; ok {
			if r, ok := rssi.Value().(int16); ok {
				dev.lastRSSI = r
			}
		}
	}
	return sawSample
}

// event reassembles the AD frame from the cached properties.
func (d *deviceState) event() radio.AdvEvent {
	var f adv.Frame
	if d.name != "" {
		f.AppendName(d.name)
	}
	for company, data := range d.mfr {
		f.AppendManufacturerData(company, data)
	}
	if d.txPower != nil {
		f.AppendTxPower(int8(*d.txPower))
	}
	frame := f.Bytes()
	logging.LogAdvertisement(d.addr, d.name, d.lastRSSI, frame)
	return radio.AdvEvent{
		Addr: d.addr,
		Name: d.name,
		RSSI: d.lastRSSI,
		Data: frame,
	}
}
