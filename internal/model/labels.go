package model

// Status labels are kept apart from the status types so that wire values
// never depend on display text.
var labels = map[string]string{
	string(DroneActive):         "Active",
	string(DroneInMaintenance):  "In maintenance",
	string(DroneRepairing):      "Repairing",
	string(DroneOutOfService):   "Out of service",
	string(DroneDecommissioned): "Decommissioned",

	string(MaintenanceScheduled): "Scheduled",
	string(MaintenanceCompleted): "Completed",

	string(PiecePending):  "Pending",
	string(PieceChecked):  "Checked",
	string(PieceReplaced): "Replaced",
	string(PieceDamaged):  "Damaged",

	string(OperatorInactive):  "Inactive",
	string(OperatorSuspended): "Suspended",
}

// StatusLabel pairs a wire code with its human-readable description.
type StatusLabel struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Label returns the display text for any status value.  Codes shared by
// several enums (ACTIVE, IN_MAINTENANCE, ...) share a label.  Unknown
// codes are returned unchanged.
func Label[T ~string](s T) string {
	if l, ok := labels[string(s)]; ok {
		return l
	}
	return string(s)
}

// Labels builds the code/description listing for an enum.
func Labels[T ~string](all []T) []StatusLabel {
	out := make([]StatusLabel, 0, len(all))
	for _, s := range all {
		out = append(out, StatusLabel{Code: string(s), Description: Label(s)})
	}
	return out
}
