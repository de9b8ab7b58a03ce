// Package capture provides the entity capture adapters that record work
// orders, time entries and photos on device, online or not.
package capture

import (
	"context"

	"github.com/fieldsync-io/fieldsync/internal/models"
)

// DeviceContext exposes the device capabilities read at capture time.
// Providers are opaque: GPS, camera metadata and device identity live
// behind this interface.
type DeviceContext interface {
	// DeviceID returns the stable identifier of this device.
	DeviceID() string

	// Location returns the current device position, or an error when the
	// capability is unavailable.
	Location(ctx context.Context) (*models.GeoPoint, error)
}

// StaticDevice is a DeviceContext with a fixed identity and position.
// Useful for tests and for devices without GPS.
type StaticDevice struct {
	ID       string
	Position *models.GeoPoint
}

// DeviceID implements DeviceContext.
func (d StaticDevice) DeviceID() string { return d.ID }

// Location implements DeviceContext.
func (d StaticDevice) Location(ctx context.Context) (*models.GeoPoint, error) {
	return d.Position, nil
}
