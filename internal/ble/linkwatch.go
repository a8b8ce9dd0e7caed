package ble

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	deviceIface = "org.bluez.Device1"
	propsIface  = "org.freedesktop.DBus.Properties"
	propsSignal = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath("/org/bluez/" + adapter + "/dev_" + escaped)
}

// disconnectedSignal reports whether sig says the device at path lost
// its connection.
func disconnectedSignal(sig *dbus.Signal, path dbus.ObjectPath) bool {
	if sig == nil || sig.Name != propsSignal || sig.Path != path {
		return false
	}
	// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
	if len(sig.Body) < 2 {
		return false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != deviceIface {
		return false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false
	}
	v, ok := changed["Connected"]
	if !ok {
		return false
	}
	connected, ok := v.Value().(bool)
	return ok && !connected
}

// linkWatch calls onLost once when BlueZ reports the device disconnected.
// It uses a private bus connection so closing it does not disturb the
// bluetooth package's shared one.
type linkWatch struct {
	conn      *dbus.Conn
	ch        chan *dbus.Signal
	closeOnce sync.Once
	done      chan struct{}
}

func watchLink(adapter, addr string, onLost func(), logger *slog.Logger) (*linkWatch, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	path := deviceObjectPath(adapter, addr)
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("add match for %s: %w", path, err)
	}

	w := &linkWatch{
		conn: conn,
		ch:   make(chan *dbus.Signal, 16),
		done: make(chan struct{}),
	}
	conn.Signal(w.ch)

	go func() {
		for {
			select {
			case <-w.done:
				return
			case sig, ok := <-w.ch:
				if !ok {
					return
				}
				if !disconnectedSignal(sig, path) {
					continue
				}
				logger.Warn("ble: device disconnected", "addr", addr, "path", path)
				w.Close()
				if onLost != nil {
					onLost()
				}
				return
			}
		}
	}()
	return w, nil
}

// Close stops watching. Safe on a nil watch and when called repeatedly.
func (w *linkWatch) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		close(w.done)
		w.conn.RemoveSignal(w.ch)
		w.conn.Close()
	})
}
