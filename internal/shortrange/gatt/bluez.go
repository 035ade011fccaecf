package gatt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBus       = "org.bluez"
	bluezDevice    = "org.bluez.Device1"
	dbusProperties = "org.freedesktop.DBus.Properties"
)

// ConnChange reports a central connecting to or leaving the adapter.
type ConnChange struct {
	Address   string
	Connected bool
}

// Watcher reports link changes the Bluetooth stack does not deliver through
// the connect handler.
type Watcher interface {
	Watch() (<-chan ConnChange, error)
	Close() error
}

// BlueZWatcher follows the Connected property of BlueZ device objects on the
// system bus. BlueZ never calls the connect handler for links a central
// opens to a local GATT server.
type BlueZWatcher struct {
	mux  sync.Mutex
	conn *dbus.Conn
	sigs chan *dbus.Signal
	stop chan struct{}
}

func NewBlueZWatcher() *BlueZWatcher {
	return &BlueZWatcher{}
}

func (w *BlueZWatcher) Watch() (<-chan ConnChange, error) {
	// Shared connection, also used by the bluetooth package. Never closed here.
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	rule := fmt.Sprintf(
		"type='signal',sender='%s',interface='%s',member='PropertiesChanged',arg0='%s'",
		bluezBus, dbusProperties, bluezDevice,
	)
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return nil, fmt.Errorf("add signal match: %w", call.Err)
	}

	sigs := make(chan *dbus.Signal, 64)
	stop := make(chan struct{})
	conn.Signal(sigs)

	w.mux.Lock()
	w.conn, w.sigs, w.stop = conn, sigs, stop
	w.mux.Unlock()

	changes := make(chan ConnChange, 16)
	go func() {
		defer close(changes)
		for {
			select {
			case <-stop:
				return
			case sig, ok := <-sigs:
				if !ok {
					return
				}
				c, ok := parseConnChange(sig)
				if !ok {
					continue
				}
				select {
				case changes <- c:
				case <-stop:
					return
				}
			}
		}
	}()
	return changes, nil
}

func (w *BlueZWatcher) Close() error {
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.conn == nil {
		return nil
	}
	w.conn.RemoveSignal(w.sigs)
	close(w.stop)
	w.conn = nil
	return nil
}

// parseConnChange extracts the Connected property from a Device1
// PropertiesChanged signal.
func parseConnChange(sig *dbus.Signal) (ConnChange, bool) {
	if sig == nil || sig.Name != dbusProperties+".PropertiesChanged" || len(sig.Body) < 2 {
		return ConnChange{}, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != bluezDevice {
		return ConnChange{}, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return ConnChange{}, false
	}
	v, ok := changed["Connected"]
	if !ok {
		return ConnChange{}, false
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return ConnChange{}, false
	}
	return ConnChange{Address: deviceAddress(sig.Path), Connected: connected}, true
}

// deviceAddress turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into
// AA:BB:CC:DD:EE:FF.
func deviceAddress(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return s
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}
