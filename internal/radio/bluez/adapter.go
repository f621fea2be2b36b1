// Package bluez implements the radio interfaces on top of the BlueZ D-Bus
// API. The advertiser registers org.bluez.LEAdvertisement1 objects against
// the LEAdvertisingManager1; the scanner drives Adapter1 discovery and
// turns Device1 property traffic into advertisement events.
package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/avetra/bleprobe/internal/radio"
)

const defaultAdapterID = "hci0"

const (
	bluezService = "org.bluez"

	adapterInterface    = "org.bluez.Adapter1"
	deviceInterface     = "org.bluez.Device1"
	advManagerInterface = "org.bluez.LEAdvertisingManager1"
	advInterface        = "org.bluez.LEAdvertisement1"
)

// Adapter wraps one BlueZ controller. A single Adapter backs both the
// Advertiser and Scanner handles built from it.
type Adapter struct {
	id      string
	bus     *dbus.Conn
	adapter dbus.BusObject
	address string
}

// NewAdapter creates an adapter handle for the given controller id
// ("hci0", "hci1", ...). An empty id selects hci0.
func NewAdapter(id string) *Adapter {
	if id == "" {
		id = defaultAdapterID
	}
	return &Adapter{id: id}
}

// Enable connects to the system bus and verifies the controller exists
// and is powered. Failures map to the radio sentinel causes so callers
// can tell a missing adapter from a policy denial.
func (a *Adapter) Enable() error {
	bus, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("%w: connect system bus: %v", radio.ErrNotSupported, err)
	}
	a.bus = bus
	a.adapter = bus.Object(bluezService, dbus.ObjectPath("/org/bluez/"+a.id))

	addr, err := a.adapter.GetProperty(adapterInterface + ".Address")
	if err != nil {
		return fmt.Errorf("activate adapter %s: %w", a.id, mapDBusError(err))
	}
	if err := addr.Store(&a.address); err != nil {
		return fmt.Errorf("adapter %s address: %w", a.id, err)
	}

	powered, err := a.adapter.GetProperty(adapterInterface + ".Powered")
	if err != nil {
		return fmt.Errorf("adapter %s powered state: %w", a.id, mapDBusError(err))
	}
	if on, ok := powered.Value().(bool); ok && !on {
		return fmt.Errorf("%w: adapter %s is powered off", radio.ErrNotSupported, a.id)
	}

	return nil
}

// Address returns the controller MAC address, available after Enable.
func (a *Adapter) Address() string {
	return a.address
}

// enabled reports whether Enable has succeeded.
func (a *Adapter) enabled() bool {
	return a.bus != nil
}

// mapDBusError folds BlueZ and D-Bus failure names into the radio
// sentinels, keeping the original text for the log line.
func mapDBusError(err error) error {
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) {
		return err
	}
	name := dbusErr.Name
	switch {
	case name == "org.freedesktop.DBus.Error.AccessDenied",
		name == "org.bluez.Error.NotAuthorized",
		name == "org.bluez.Error.NotPermitted":
		return fmt.Errorf("%w: %v", radio.ErrPermissionDenied, err)
	case name == "org.freedesktop.DBus.Error.UnknownObject",
		name == "org.bluez.Error.NotReady",
		name == "org.freedesktop.DBus.Error.ServiceUnknown",
		strings.HasSuffix(name, ".NotSupported"):
		return fmt.Errorf("%w: %v", radio.ErrNotSupported, err)
	default:
		return err
	}
}
