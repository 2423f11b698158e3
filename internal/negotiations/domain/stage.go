// Package domain provides core business rules for the negotiations bounded context.
package domain

// Stage is a position in the negotiation lifecycle graph. Unknown values are
// rejected at the boundary; nothing downstream handles an unlisted stage.
type Stage string

const (
	StageInitialContact               Stage = "initial_contact"
	StageAwaitingProviderAvailability Stage = "awaiting_provider_availability"
	StageAwaitingClientSlotSelection  Stage = "awaiting_client_slot_selection"
	StageAwaitingProviderConfirmation Stage = "awaiting_provider_confirmation"
	StageAwaitingMeetingLink          Stage = "awaiting_meeting_link"
	StageConfirmed                    Stage = "confirmed"
	StageSessionHeld                  Stage = "session_held"
	StageFeedbackRequested            Stage = "feedback_requested"
	StageCompleted                    Stage = "completed"

	// Side branches reachable from any non-terminal stage.
	StageRescheduling Stage = "rescheduling"
	StageStalled      Stage = "stalled"
	StageCancelled    Stage = "cancelled"
)

// ThreadRole identifies which of a negotiation's message threads a message
// belongs to.
type ThreadRole string

const (
	RoleClient   ThreadRole = "client"
	RoleProvider ThreadRole = "provider"
	RoleOperator ThreadRole = "operator"
)

// stageOrder defines the natural forward ordering of the main path.
// Side branches carry no order and never produce backward-transition warnings.
var stageOrder = map[Stage]int{
	StageInitialContact:               0,
	StageAwaitingProviderAvailability: 1,
	StageAwaitingClientSlotSelection:  2,
	StageAwaitingProviderConfirmation: 3,
	StageAwaitingMeetingLink:          4,
	StageConfirmed:                    5,
	StageSessionHeld:                  6,
	StageFeedbackRequested:            7,
	StageCompleted:                    8,
}

var knownStages = map[Stage]struct{}{
	StageInitialContact:               {},
	StageAwaitingProviderAvailability: {},
	StageAwaitingClientSlotSelection:  {},
	StageAwaitingProviderConfirmation: {},
	StageAwaitingMeetingLink:          {},
	StageConfirmed:                    {},
	StageSessionHeld:                  {},
	StageFeedbackRequested:            {},
	StageCompleted:                    {},
	StageRescheduling:                 {},
	StageStalled:                      {},
	StageCancelled:                    {},
}

// terminalStages admit no further transitions except none at all.
var terminalStages = map[Stage]bool{
	StageCompleted: true,
	StageCancelled: true,
}

// postBookingStages always report green health and suppress stale/stalled
// flags: once the slot is locked in, silence is expected, not a problem.
var postBookingStages = map[Stage]bool{
	StageSessionHeld:       true,
	StageFeedbackRequested: true,
	StageCompleted:         true,
	StageCancelled:         true,
}

// checkpointFloors maps each stage to the progress value a negotiation
// resets to when entering it. Side branches that pause the main path
// (rescheduling drops back to slot selection; stalled holds position).
var checkpointFloors = map[Stage]int{
	StageInitialContact:               0,
	StageAwaitingProviderAvailability: 15,
	StageAwaitingClientSlotSelection:  35,
	StageAwaitingProviderConfirmation: 55,
	StageAwaitingMeetingLink:          70,
	StageConfirmed:                    80,
	StageSessionHeld:                  90,
	StageFeedbackRequested:            95,
	StageCompleted:                    100,
	StageRescheduling:                 35,
}

// IsKnownStage reports whether the stage value is part of the lifecycle graph.
func IsKnownStage(stage Stage) bool {
	_, ok := knownStages[stage]
	return ok
}

// IsKnownThreadRole reports whether the role is one of the three threads.
func IsKnownThreadRole(role ThreadRole) bool {
	return role == RoleClient || role == RoleProvider || role == RoleOperator
}

// IsTerminal reports whether the stage admits no further transitions.
func IsTerminal(stage Stage) bool {
	return terminalStages[stage]
}

// IsPostBooking reports whether the stage is exempt from health scoring.
func IsPostBooking(stage Stage) bool {
	return postBookingStages[stage]
}

// RequiresConfirmedInstant reports whether a negotiation in this stage must
// carry a confirmed time. Confirmed and everything after it on the main
// path is only reachable once a time was agreed.
func RequiresConfirmedInstant(stage Stage) bool {
	order, ok := stageOrder[stage]
	return ok && order >= stageOrder[StageConfirmed]
}

// CheckpointFloor returns the progress value a negotiation resets to when
// entering the stage. Stages without a floor of their own (stalled,
// cancelled) report -1: the caller keeps the previous value.
func CheckpointFloor(stage Stage) int {
	floor, ok := checkpointFloors[stage]
	if !ok {
		return -1
	}
	return floor
}

// IsBackwardTransition reports whether moving from one stage to the other
// runs against the natural ordering. Transitions involving side branches
// are never backward.
func IsBackwardTransition(from, to Stage) bool {
	fromOrder, fromOK := stageOrder[from]
	toOrder, toOK := stageOrder[to]
	return fromOK && toOK && toOrder < fromOrder
}

// IsForwardSkip reports whether the move jumps over at least one main-path
// stage. Side branches carry no order and never count as a skip, and
// confirming straight from provider confirmation is regular: the meeting
// link can arrive together with the confirmation.
func IsForwardSkip(from, to Stage) bool {
	if from == StageAwaitingProviderConfirmation && to == StageConfirmed {
		return false
	}
	fromOrder, fromOK := stageOrder[from]
	toOrder, toOK := stageOrder[to]
	return fromOK && toOK && toOrder > fromOrder+1
}
