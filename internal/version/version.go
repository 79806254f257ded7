// ABOUTME: Version constants for the player and producer
// ABOUTME: Reported in client/hello device info and CLI banners
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the product name sent to producers
	Product = "PCM Player"

	// Manufacturer identifies who builds the player
	Manufacturer = "Resonate"
)
