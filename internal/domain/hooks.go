package domain

// HookPoint names the task life-cycle moment a hook fires at (§4.5),
// mirroring the original engine's TaskLifeCycle enum.
type HookPoint string

const (
	HookCreated      HookPoint = "created"
	HookCompleted    HookPoint = "completed"
	HookTimeout      HookPoint = "timeout"
	HookBeforeUpdate HookPoint = "before_update"
	HookUpdated      HookPoint = "updated"
	HookStep         HookPoint = "step"
	HookErrorCatch   HookPoint = "error_catch"
)

// HookKind tags which of the three statement batches a hook runs as
// (§4.5). Statement runs a plain act as the task's child; Catch and
// Timeout run their subtree only once per matching error/deadline.
type HookKind string

const (
	HookKindStatement HookKind = "statement"
	HookKindCatch     HookKind = "catch"
	HookKindTimeout   HookKind = "timeout"
)
