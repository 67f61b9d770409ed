// Package bledb maps Bluetooth SIG assigned numbers to human-readable names
// for the inspection surface. The table is a curated subset of the assigned
// numbers registry; unknown UUIDs resolve to "".
package bledb

import "github.com/srg/blecentral/internal/bleid"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1812": "Human Interface Device",
	"1816": "Cycling Speed and Cadence",
	"181a": "Environmental Sensing",
	"fe59": "Nordic Secure DFU",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a6e": "Temperature",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Description",
	"2902": "Client Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// LookupService returns the assigned service name, or "".
func LookupService(uuid string) string {
	return services[shortKey(uuid)]
}

// LookupCharacteristic returns the assigned characteristic name, or "".
func LookupCharacteristic(uuid string) string {
	return characteristics[shortKey(uuid)]
}

// LookupDescriptor returns the assigned descriptor name, or "".
func LookupDescriptor(uuid string) string {
	return descriptors[shortKey(uuid)]
}

// shortKey reduces any accepted UUID spelling to the 16-bit short form when
// the UUID sits on the SIG base, otherwise the normalized full form (which
// will miss the table, as intended for vendor UUIDs).
func shortKey(uuid string) string {
	if u, err := bleid.ParseUUID(uuid); err == nil {
		return u.Short()
	}
	return bleid.NormalizeUUID(uuid)
}
