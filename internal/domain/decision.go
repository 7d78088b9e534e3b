package domain

// EntryDecision is the orchestrator's answer to an entry request.
type EntryDecision struct {
	Accepted   bool
	Reason     string // rejection reason, empty when accepted
	PositionID string // set when accepted
}

// Rejection reasons produced by the entry gates. Momentum rejections carry
// the evaluator's own reason strings instead.
const (
	RejectHalted           = "engine halted"
	RejectDailyLoss        = "daily loss limit"
	RejectCreatorBlacklist = "creator blacklisted"
	RejectKeywordBlacklist = "keyword blacklisted"
	RejectCurveBand        = "curve fill out of band"
	RejectPositionCap      = "position cap reached"
	RejectCapital          = "insufficient capital"
)
