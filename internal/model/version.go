package model

// Version constants for the history format.
const (
	// ExportVersion is the version of the exported history bundle.
	ExportVersion = "1.0"

	// EngineVersion is the tally engine version.
	EngineVersion = "0.1.0"
)
