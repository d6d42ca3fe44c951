package remote

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/relq/dialect"
)

// ProtocolVersion is the version of the payload format this package
// produces.
const ProtocolVersion = "1.0.0"

// ServiceInfo describes the capabilities a service reports for one
// configuration.
type ServiceInfo struct {
	MappingSchemaType     string                `json:"mappingSchemaType"`
	SqlBuilderType        string                `json:"sqlBuilderType"`
	SqlOptimizerType      string                `json:"sqlOptimizerType"`
	SqlProviderFlags      dialect.ProviderFlags `json:"sqlProviderFlags"`
	SupportedTableOptions dialect.TableOptions  `json:"supportedTableOptions"`
	ProtocolVersion       string                `json:"protocolVersion,omitempty"`
}

// CheckProtocol returns an error unless v shares the major version of
// ProtocolVersion. An empty v is treated as 1.0.0.
func CheckProtocol(v string) error {
	if v == "" {
		v = "1.0.0"
	}
	theirs, err := version.NewVersion(v)
	if err != nil {
		return fmt.Errorf("parse protocol version %q: %w", v, err)
	}
	ours := version.Must(version.NewVersion(ProtocolVersion))

	major := ours.Segments()[0]
	constraint, err := version.NewConstraint(fmt.Sprintf(">= %d.0, < %d.0", major, major+1))
	if err != nil {
		return err
	}
	if !constraint.Check(theirs) {
		return fmt.Errorf("protocol version %s is not compatible with %s", theirs, ours)
	}
	return nil
}
