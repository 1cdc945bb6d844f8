// Package fprint is a system-bus client for fprintd, the fingerprint
// authentication daemon (net.reactivated.Fprint). Templates are captured,
// stored and matched by the daemon; this package only drives it.
package fprint

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	busName          = "net.reactivated.Fprint"
	managerPath      = dbus.ObjectPath("/net/reactivated/Fprint/Manager")
	managerInterface = "net.reactivated.Fprint.Manager"
	deviceInterface  = "net.reactivated.Fprint.Device"
)

// Manager wraps net.reactivated.Fprint.Manager.
type Manager struct {
	conn *dbus.Conn
}

// NewManager binds a manager proxy on an established system bus connection.
func NewManager(conn *dbus.Conn) *Manager {
	return &Manager{conn: conn}
}

// Devices returns the object paths of all fingerprint readers.
func (m *Manager) Devices(ctx context.Context) ([]dbus.ObjectPath, error) {
	obj := m.conn.Object(busName, managerPath)
	var paths []dbus.ObjectPath
	err := obj.CallWithContext(ctx, managerInterface+".GetDevices", 0).Store(&paths)
	if err != nil {
		return nil, translateError(err)
	}
	return paths, nil
}

// DefaultDevice returns a proxy for the daemon's default fingerprint reader.
func (m *Manager) DefaultDevice(ctx context.Context) (*Device, error) {
	obj := m.conn.Object(busName, managerPath)
	var path dbus.ObjectPath
	err := obj.CallWithContext(ctx, managerInterface+".GetDefaultDevice", 0).Store(&path)
	if err != nil {
		return nil, translateError(err)
	}
	return m.DeviceAt(path), nil
}

// DeviceAt binds a device proxy at a known object path.
func (m *Manager) DeviceAt(path dbus.ObjectPath) *Device {
	return &Device{
		conn: m.conn,
		obj:  m.conn.Object(busName, path),
		path: path,
	}
}

// Device wraps one net.reactivated.Fprint.Device object. Claim before
// enrolling or deleting single fingers, and Release afterwards; claims are
// exclusive per device.
type Device struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	path dbus.ObjectPath
}

// Path returns the device object path.
func (d *Device) Path() dbus.ObjectPath {
	return d.path
}

func (d *Device) call(ctx context.Context, method string, args ...interface{}) error {
	call := d.obj.CallWithContext(ctx, deviceInterface+"."+method, 0, args...)
	return translateError(call.Err)
}

// Claim takes exclusive control of the device for the given user. An empty
// username means the caller's own user.
func (d *Device) Claim(ctx context.Context, username string) error {
	return d.call(ctx, "Claim", username)
}

// Release gives up a previous claim.
func (d *Device) Release(ctx context.Context) error {
	return d.call(ctx, "Release")
}

// ListEnrolledFingers returns the finger names enrolled for the user.
// Does not require a claim.
func (d *Device) ListEnrolledFingers(ctx context.Context, username string) ([]string, error) {
	var fingers []string
	call := d.obj.CallWithContext(ctx, deviceInterface+".ListEnrolledFingers", 0, username)
	if err := call.Store(&fingers); err != nil {
		return nil, translateError(err)
	}
	return fingers, nil
}

// DeleteEnrolledFinger deletes one finger of the claimed user.
// The device must be claimed.
func (d *Device) DeleteEnrolledFinger(ctx context.Context, finger string) error {
	return d.call(ctx, "DeleteEnrolledFinger", finger)
}

// DeleteEnrolledFingers deletes every enrolled finger of the user.
func (d *Device) DeleteEnrolledFingers(ctx context.Context, username string) error {
	return d.call(ctx, "DeleteEnrolledFingers", username)
}

// EnrollStart begins enrollment of the named finger for the claimed user.
// Progress arrives through the EnrollStatus signal.
func (d *Device) EnrollStart(ctx context.Context, finger string) error {
	return d.call(ctx, "EnrollStart", finger)
}

// EnrollStop ends an enrollment, finished or not.
func (d *Device) EnrollStop(ctx context.Context) error {
	return d.call(ctx, "EnrollStop")
}

// Name returns the reader's product name.
func (d *Device) Name() (string, error) {
	return d.stringProperty("name")
}

// ScanType reports "press" or "swipe".
func (d *Device) ScanType() (string, error) {
	return d.stringProperty("scan-type")
}

// NumEnrollStages reports how many accepted scans one enrollment needs.
// Some drivers report 0 or -1 until the device is claimed.
func (d *Device) NumEnrollStages() (int, error) {
	variant, err := d.obj.GetProperty(deviceInterface + ".num-enroll-stages")
	if err != nil {
		return 0, translateError(err)
	}
	var stages int32
	if err := variant.Store(&stages); err != nil {
		return 0, fmt.Errorf("num-enroll-stages: %w", err)
	}
	return int(stages), nil
}

func (d *Device) stringProperty(name string) (string, error) {
	variant, err := d.obj.GetProperty(deviceInterface + "." + name)
	if err != nil {
		return "", translateError(err)
	}
	var value string
	if err := variant.Store(&value); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}

// EnrollStatus is one EnrollStatus signal from the daemon. Result is a raw
// status code such as "enroll-stage-passed"; Done marks the end of the
// enrollment.
type EnrollStatus struct {
	Result string
	Done   bool
}

// WatchEnrollStatus subscribes to EnrollStatus signals from this device.
// The returned stop function unsubscribes and closes the channel.
func (d *Device) WatchEnrollStatus() (<-chan EnrollStatus, func(), error) {
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(d.path),
		dbus.WithMatchInterface(deviceInterface),
		dbus.WithMatchMember("EnrollStatus"),
	}
	if err := d.conn.AddMatchSignal(matchOpts...); err != nil {
		return nil, nil, translateError(err)
	}

	signals := make(chan *dbus.Signal, 16)
	d.conn.Signal(signals)

	out := make(chan EnrollStatus, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				status, ok := parseEnrollStatus(sig)
				if !ok {
					continue
				}
				select {
				case out <- status:
				case <-done:
					return
				}
			}
		}
	}()

	stop := func() {
		close(done)
		d.conn.RemoveSignal(signals)
		_ = d.conn.RemoveMatchSignal(matchOpts...)
	}
	return out, stop, nil
}

func parseEnrollStatus(sig *dbus.Signal) (EnrollStatus, bool) {
	if sig.Name != deviceInterface+".EnrollStatus" || len(sig.Body) != 2 {
		return EnrollStatus{}, false
	}
	result, ok := sig.Body[0].(string)
	if !ok {
		return EnrollStatus{}, false
	}
	done, ok := sig.Body[1].(bool)
	if !ok {
		return EnrollStatus{}, false
	}
	return EnrollStatus{Result: result, Done: done}, true
}
