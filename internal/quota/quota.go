// Package quota enforces cardinality limits before a mutation commits.
//
// Every check is stateless: it takes counts the caller read inside the
// current transaction and returns a rule violation carrying the
// machine-readable key clients use for messaging. Checks run before any
// store mutation begins.
package quota

import "github.com/daybook-app/daybook/internal/fault"

const (
	// MaxPlansPerType caps a user's plans within one (user, type) partition.
	MaxPlansPerType = 100

	// MaxTasksPerPlan caps the tasks of a single plan.
	MaxTasksPerPlan = 100

	// MaxPlanMembers caps the members of an already-shared plan.
	MaxPlanMembers = 20

	// MaxSharedPlansPerOwner caps how many of an owner's plans may be
	// actively shared. Checked only on the first share of a given plan.
	MaxSharedPlansPerOwner = 20

	// MaxDevicesPerUser caps devices per user; the oldest is evicted when
	// a merge would attach one more.
	MaxDevicesPerUser = 5
)

// CheckPlanCount rejects plan creation or retype when the destination
// partition is full.
func CheckPlanCount(count int) error {
	if count >= MaxPlansPerType {
		return fault.Rule("max_is_100", "maximum of %d plans reached", MaxPlansPerType)
	}
	return nil
}

// CheckTaskCount rejects task creation when the plan is full.
func CheckTaskCount(count int) error {
	if count >= MaxTasksPerPlan {
		return fault.Rule("max_tasks_limit_reached", "maximum of %d tasks reached", MaxTasksPerPlan)
	}
	return nil
}

// CheckMemberCount rejects a new share of an already-shared plan when the
// plan's membership is full.
func CheckMemberCount(count int) error {
	if count >= MaxPlanMembers {
		return fault.Rule("max_is_20", "maximum of %d shares reached", MaxPlanMembers)
	}
	return nil
}

// CheckSharedPlanCount rejects the first share of a plan when the owner
// already has too many actively-shared plans.
func CheckSharedPlanCount(count int) error {
	if count >= MaxSharedPlansPerOwner {
		return fault.Rule("max_is_20", "maximum of %d shared plans reached", MaxSharedPlansPerOwner)
	}
	return nil
}
