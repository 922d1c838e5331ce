package model

// SearchMode controls how aggressively search_decisions chases supersede
// chains and filters non-active results (§4.10).
type SearchMode string

const (
	ModeStrict   SearchMode = "strict"
	ModeBalanced SearchMode = "balanced"
	ModeAudit    SearchMode = "audit"
)

// SearchResult pairs a resolved artifact row with its final ranked score.
type SearchResult struct {
	Row          Row
	Score        float64
	EvidenceHits int
}

// RankedCandidate is an intermediate fusion candidate before truth
// resolution and rescoring (§4.10 steps 1-2).
type RankedCandidate struct {
	FID        string
	VectorRank int // -1 if absent from the vector ranking
	KeywordRank int // -1 if absent from the keyword ranking
	RRFScore   float64
}

// AssessmentOutcome mirrors the teacher's DecisionAssessment.Outcome, folded
// into ledgermind's rescoring as a supplemented feature (SPEC_FULL.md C.3).
type AssessmentOutcome string

const (
	AssessmentCorrect          AssessmentOutcome = "correct"
	AssessmentIncorrect        AssessmentOutcome = "incorrect"
	AssessmentPartiallyCorrect AssessmentOutcome = "partially_correct"
)

// Assessment is explicit outcome feedback attached to a decision artifact.
type Assessment struct {
	DecisionFID string
	AssessorID  string
	Outcome     AssessmentOutcome
	Notes       string
}

// AssessmentSummary is a precomputed tally used by the rescorer.
type AssessmentSummary struct {
	Total            int
	Correct          int
	Incorrect        int
	PartiallyCorrect int
}

// Score returns the [0,1] assessment contribution used in rescoring: correct
// counts fully, partially_correct counts as half, mirroring the teacher's
// search.ReScore assessment contribution.
func (s AssessmentSummary) Score() float64 {
	if s.Total == 0 {
		return 0
	}
	return (float64(s.Correct) + 0.5*float64(s.PartiallyCorrect)) / float64(s.Total)
}
