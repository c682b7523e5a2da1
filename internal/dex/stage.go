package dex

// Stage is a step of the swap lifecycle.
type Stage uint8

const (
	StageIdle Stage = iota
	StageLocked
	StageExtendingBefore
	StagePriced
	StageExtendingAfter
	StageSettling
	StageUnlocked
	StageRolledBack
)

var stageNames = [...]string{
	StageIdle:            "idle",
	StageLocked:          "locked",
	StageExtendingBefore: "extending(before)",
	StagePriced:          "priced",
	StageExtendingAfter:  "extending(after)",
	StageSettling:        "settling",
	StageUnlocked:        "unlocked",
	StageRolledBack:      "rolled_back",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageUnlocked || s == StageRolledBack
}
