package types

// ---- Development error events (non-retained) ----

// DetEvent is published on det/<module> for every reported error.
type DetEvent struct {
	Module   uint16 `json:"module"`
	Instance uint8  `json:"instance"`
	Service  uint8  `json:"service"`
	Error    uint8  `json:"error"`
	Code     string `json:"code,omitempty"` // errcode text when known
}

// VersionInfo mirrors the standard driver version record.
type VersionInfo struct {
	VendorID   uint16 `json:"vendor_id"`
	ModuleID   uint16 `json:"module_id"`
	SWMajor    uint8  `json:"sw_major"`
	SWMinor    uint8  `json:"sw_minor"`
	SWPatch    uint8  `json:"sw_patch"`
	ARMajor    uint8  `json:"ar_major,omitempty"`
	ARMinor    uint8  `json:"ar_minor,omitempty"`
	ARRevision uint8  `json:"ar_revision,omitempty"`
}

// Heartbeat is published periodically on heartbeat.
type Heartbeat struct {
	TS       int64  `json:"ts_ns"`
	UptimeMs int64  `json:"uptime_ms"`
	Ticks    uint32 `json:"ticks"`
	Reports  int    `json:"reports"`
}
