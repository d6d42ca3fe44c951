package dialect

import (
	"fmt"
	"strings"
)

// ProviderFlags describes the capabilities of a database provider. The
// struct is comparable and is used as part of cache keys.
type ProviderFlags struct {
	IsParameterOrderDependent bool `json:"isParameterOrderDependent" mapstructure:"parameter_order_dependent"`
	AcceptsTakeAsParameter    bool `json:"acceptsTakeAsParameter" mapstructure:"accepts_take_as_parameter"`
	IsSubQueryColumnSupported bool `json:"isSubQueryColumnSupported" mapstructure:"subquery_column_supported"`
	IsApplyJoinSupported      bool `json:"isApplyJoinSupported" mapstructure:"apply_join_supported"`
	IsUpdateFromSupported     bool `json:"isUpdateFromSupported" mapstructure:"update_from_supported"`
	MaxInListValuesCount      int  `json:"maxInListValuesCount" mapstructure:"max_in_list_values"`
}

// DefaultFlags returns the flags of a provider named by its driver.
func DefaultFlags(provider string) ProviderFlags {
	switch strings.ToLower(provider) {
	case "postgres", "postgresql":
		return ProviderFlags{
			IsSubQueryColumnSupported: true,
			IsUpdateFromSupported:     true,
			AcceptsTakeAsParameter:    true,
			MaxInListValuesCount:      32767,
		}
	case "mysql":
		return ProviderFlags{
			IsParameterOrderDependent: true,
			IsSubQueryColumnSupported: true,
			AcceptsTakeAsParameter:    true,
			MaxInListValuesCount:      65535,
		}
	case "sqlite", "sqlite3":
		return ProviderFlags{
			IsParameterOrderDependent: true,
			IsSubQueryColumnSupported: true,
			MaxInListValuesCount:      999,
		}
	}
	return ProviderFlags{}
}

// TableOptions is a set of table creation capabilities.
type TableOptions uint32

// Table options.
const (
	TableOptionsNone TableOptions = 0

	IsTemporary TableOptions = 1 << (iota - 1)
	IsLocalTemporaryStructure
	IsGlobalTemporaryStructure
	IsLocalTemporaryData
	IsGlobalTemporaryData
	IsTransactionTemporaryData
	CreateIfNotExists
	DropIfExists
)

var tableOptionNames = []struct {
	opt  TableOptions
	name string
}{
	{IsTemporary, "IsTemporary"},
	{IsLocalTemporaryStructure, "IsLocalTemporaryStructure"},
	{IsGlobalTemporaryStructure, "IsGlobalTemporaryStructure"},
	{IsLocalTemporaryData, "IsLocalTemporaryData"},
	{IsGlobalTemporaryData, "IsGlobalTemporaryData"},
	{IsTransactionTemporaryData, "IsTransactionTemporaryData"},
	{CreateIfNotExists, "CreateIfNotExists"},
	{DropIfExists, "DropIfExists"},
}

// Has reports whether all options in o are set.
func (t TableOptions) Has(o TableOptions) bool {
	return t&o == o
}

func (t TableOptions) String() string {
	if t == TableOptionsNone {
		return "None"
	}
	var parts []string
	for _, n := range tableOptionNames {
		if t.Has(n.opt) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseTableOptions parses option names, case-insensitively.
func ParseTableOptions(names []string) (TableOptions, error) {
	var opts TableOptions
next:
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "None") {
			continue
		}
		for _, n := range tableOptionNames {
			if strings.EqualFold(n.name, name) {
				opts |= n.opt
				continue next
			}
		}
		return 0, fmt.Errorf("unknown table option %q", name)
	}
	return opts, nil
}

// DefaultTableOptions returns the table options a provider supports.
func DefaultTableOptions(provider string) TableOptions {
	common := IsTemporary | IsLocalTemporaryStructure | IsLocalTemporaryData | CreateIfNotExists | DropIfExists
	switch strings.ToLower(provider) {
	case "postgres", "postgresql":
		return common | IsTransactionTemporaryData
	case "mysql", "sqlite", "sqlite3":
		return common
	}
	return TableOptionsNone
}
