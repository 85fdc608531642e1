package types

// PoolStats is a read-only snapshot of a resource pool.
type PoolStats struct {
	// Idle is the number of instances waiting in the idle queue
	Idle int `json:"idle_count" yaml:"idle_count"`
	// CheckedOut is the number of capacity-tracked instances handed out
	CheckedOut int `json:"checked_out_count" yaml:"checked_out_count"`
	// Overflow is the number of on-demand instances currently handed out
	Overflow int `json:"overflow_count" yaml:"overflow_count"`
	// Capacity is the fixed number of instances the pool keeps
	Capacity int `json:"capacity" yaml:"capacity"`
	// UtilizationPercent is CheckedOut relative to Capacity
	UtilizationPercent float64 `json:"utilization_percent" yaml:"utilization_percent"`
	// Initialized reports whether the pool has been pre-filled
	Initialized bool `json:"initialized" yaml:"initialized"`

	TotalCheckouts       uint64 `json:"total_checkouts" yaml:"total_checkouts"`
	OverflowCreated      uint64 `json:"overflow_created" yaml:"overflow_created"`
	ConstructionFailures uint64 `json:"construction_failures" yaml:"construction_failures"`
	DoubleCheckins       uint64 `json:"double_checkins" yaml:"double_checkins"`
}

// DispatchFailure records one consumer that did not receive one event.
type DispatchFailure struct {
	RegistrationID uint64                `json:"registration_id" yaml:"registration_id"`
	ComponentType  string                `json:"component_type" yaml:"component_type"`
	Event          VisibilityChangeEvent `json:"event" yaml:"event"`
	Err            error                 `json:"-" yaml:"-"`
	Reason         string                `json:"reason" yaml:"reason"`
}

// DispatchResult aggregates the outcome of one visibility change broadcast.
// Attempted counts (event, consumer) pairs.
type DispatchResult struct {
	Attempted int                     `json:"attempted" yaml:"attempted"`
	Succeeded int                     `json:"succeeded" yaml:"succeeded"`
	Failed    int                     `json:"failed" yaml:"failed"`
	Failures  []DispatchFailure       `json:"failures,omitempty" yaml:"failures,omitempty"`
	Events    []VisibilityChangeEvent `json:"events" yaml:"events"`
}

// HasFailures reports whether any dispatch failed.
func (r DispatchResult) HasFailures() bool {
	return r.Failed > 0
}

// RegistryStats is a snapshot of consumer registrations and broadcast totals.
type RegistryStats struct {
	Registered int    `json:"registered" yaml:"registered"`
	Broadcasts uint64 `json:"broadcasts" yaml:"broadcasts"`
	Delivered  uint64 `json:"delivered" yaml:"delivered"`
	Failed     uint64 `json:"failed" yaml:"failed"`
	Pruned     uint64 `json:"pruned" yaml:"pruned"`
}
