// Package radio defines the interfaces between the probe logic and the
// platform BLE stack. The real implementation backed by BlueZ lives in
// radio/bluez; radio/stub provides an in-memory driver for tests and
// development on machines without an adapter.
package radio

import (
	"context"
	"errors"
)

// Sentinel causes surfaced by Start on either role. Callers match them
// with errors.Is to distinguish a missing radio from a policy denial.
var (
	// ErrNotSupported means no usable BLE adapter is present or powered.
	ErrNotSupported = errors.New("radio: bluetooth adapter unavailable")

	// ErrPermissionDenied means the platform refused the advertise or
	// scan request for the current user.
	ErrPermissionDenied = errors.New("radio: permission denied")

	// ErrAlreadyActive means a broadcast or scan is already running on
	// this handle.
	ErrAlreadyActive = errors.New("radio: already active")
)

// Broadcast describes one single-shot advertisement: the payload the
// duty-cycle controller built plus the identity fields the platform stack
// places alongside it.
type Broadcast struct {
	// LocalName is carried in the complete-local-name AD structure and is
	// the receiver's matching key.
	LocalName string

	// CompanyID and ManufacturerData form the manufacturer-specific AD
	// structure.
	CompanyID        uint16
	ManufacturerData []byte

	// IncludeTxPower asks the stack to add the standard Tx-Power AD
	// structure with the radio's actual dBm value.
	IncludeTxPower bool

	// TxPowerLevel is the coarse radio power setting (adv.Power* codes).
	TxPowerLevel byte
}

// Advertiser is the sender-side radio surface. Implementations are not
// required to be safe for concurrent Advertise calls; the duty-cycle
// controller is the single caller.
type Advertiser interface {
	// Ready reports whether the radio is usable for advertising, wrapping
	// ErrNotSupported or ErrPermissionDenied with the platform cause.
	Ready() error

	// Advertise starts a single broadcast and returns without waiting.
	Advertise(ctx context.Context, b Broadcast) error

	// StopAdvertise halts any in-flight broadcast. It must be safe to
	// call when nothing is advertising.
	StopAdvertise() error
}

// AdvEvent is one received advertisement, delivered by the platform scan
// machinery. Data is the raw (or reassembled) AD frame; RSSI is the
// receive signal strength in dBm.
type AdvEvent struct {
	Addr string
	Name string
	RSSI int16
	Data []byte
}

// Scanner is the receiver-side radio surface. Scan pushes events into ch
// until ctx is done, then returns; it owns the channel's writes but never
// closes it.
type Scanner interface {
	Scan(ctx context.Context, ch chan<- AdvEvent) error
}
