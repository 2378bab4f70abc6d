// Package version exists solely so that we can store the version of
// this application in one location, despite needing it in a couple of
// places within the application.
package version

import "fmt"

var (
	// version is populated with our release tag, at build time.
	version = "unreleased"
)

// GetVersionBanner returns a banner which is suitable for printing,
// to show our name and version.
func GetVersionBanner() string {
	return fmt.Sprintf("cpmbox %s - a CP/M 2.2 emulator\n", version)
}

// GetVersionString returns our version number as a string.
func GetVersionString() string {
	return version
}
