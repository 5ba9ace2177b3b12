package catalog

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the catalog file schema this build reads
const SchemaVersion = "1.0"

// checkSchemaVersion verifies a catalog file's schema version is one this
// build can read: same major version and not newer than SchemaVersion.
func checkSchemaVersion(version string) error {
	if version == "" {
		return fmt.Errorf("missing schema_version")
	}

	current, err := parseVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema_version: %s", version)
	}

	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("schema_version %s is newer than supported version %s", version, SchemaVersion)
	}
	if current.Major() != target.Major() {
		return fmt.Errorf("no migration path from schema_version %s to %s", version, SchemaVersion)
	}

	return nil
}

// parseVersion parses a version string, tolerating short forms like "1.0"
func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		parsed, err = semver.NewVersion(v + ".0")
		if err != nil {
			return nil, err
		}
	}
	return parsed, nil
}
