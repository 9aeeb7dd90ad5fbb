package config

import "fmt"

// CurrentVersion is the configuration file format understood by this build.
const CurrentVersion = 1

// VersionError reports a config file whose version this build cannot read.
type VersionError struct {
	Version int
	Current int
	Newer   bool
}

func (e *VersionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Newer {
		return fmt.Sprintf("config version %d is newer than this build (current: %d); upgrade profileqa", e.Version, e.Current)
	}
	return fmt.Sprintf("config version %d is not supported (current: %d); set version: %d and run `profileqa config validate`", e.Version, e.Current, e.Current)
}

// ValidateVersion checks that version matches CurrentVersion.
func ValidateVersion(version int) error {
	switch {
	case version == CurrentVersion:
		return nil
	case version > CurrentVersion:
		return &VersionError{Version: version, Current: CurrentVersion, Newer: true}
	default:
		return &VersionError{Version: version, Current: CurrentVersion}
	}
}
