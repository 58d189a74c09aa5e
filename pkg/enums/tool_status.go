package enums

// ToolStatus maps to the tool_status enum in Postgres.
type ToolStatus string

const (
	ToolStatusActive      ToolStatus = "active"
	ToolStatusMaintenance ToolStatus = "maintenance"
	ToolStatusRetired     ToolStatus = "retired"
)

var validToolStatuses = []ToolStatus{
	ToolStatusActive,
	ToolStatusMaintenance,
	ToolStatusRetired,
}

// IsValid reports whether the value matches the canonical tool_status enum.
func (s ToolStatus) IsValid() bool {
	return member(validToolStatuses, s)
}

// ParseToolStatus converts raw input into ToolStatus.
func ParseToolStatus(value string) (ToolStatus, error) {
	return parse(validToolStatuses, "tool status", value)
}
