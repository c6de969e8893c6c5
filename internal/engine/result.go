package engine

type Result string

const (
	ResultWin        Result = "win"
	ResultLose       Result = "lose"
	ResultDraw       Result = "draw"
	ResultAbandonWin Result = "abandon-win"
)

const ReasonAbandon = "abandon"

// Classify derives the local outcome of a finished game. A missing winner is
// a draw whatever the scores say.
func Classify(reason, winnerID, abandonPlayerID, localPlayerID string) Result {
	if winnerID == "" {
		return ResultDraw
	}
	if reason == ReasonAbandon {
		if abandonPlayerID == localPlayerID {
			return ResultLose
		}
		return ResultAbandonWin
	}
	if winnerID == localPlayerID {
		return ResultWin
	}
	return ResultLose
}

// Result is only meaningful once the session is finished.
func (s State) Result() (Result, bool) {
	if s.Finished == nil {
		return "", false
	}
	f := s.Finished
	return Classify(f.Reason, f.WinnerID, f.AbandonPlayerID, s.Me.ID), true
}

func (r Result) Won() bool {
	return r == ResultWin || r == ResultAbandonWin
}
