package scoring

import (
	"sort"

	"github.com/google/uuid"

	"github.com/certwise/certprep-backend/internal/model"
)

// Tier is a qualitative performance bucket derived from a percentage.
type Tier string

const (
	TierExcellent        Tier = "excellent"
	TierGood             Tier = "good"
	TierFair             Tier = "fair"
	TierNeedsImprovement Tier = "needs_improvement"
)

// Fixed grade thresholds, shared by the overall, per-area and per-difficulty
// tiers.
const (
	excellentFloor = 90.0
	goodFloor      = 75.0
	fairFloor      = 60.0
)

// TierFor buckets a percentage score.
func TierFor(pct float64) Tier {
	switch {
	case pct >= excellentFloor:
		return TierExcellent
	case pct >= goodFloor:
		return TierGood
	case pct >= fairFloor:
		return TierFair
	default:
		return TierNeedsImprovement
	}
}

// Time-efficiency bands, as elapsed time over the exam's limit.
const (
	efficiencyExcellentMax = 0.50
	efficiencyGoodMax      = 0.75
)

// EfficiencyFor classifies elapsed time against the time limit. A limit of
// zero or less means no time pressure and always reads as the best tier.
func EfficiencyFor(elapsedMinutes float64, limitMinutes int) Tier {
	if limitMinutes <= 0 {
		return TierExcellent
	}
	ratio := elapsedMinutes / float64(limitMinutes)
	switch {
	case ratio <= efficiencyExcellentMax:
		return TierExcellent
	case ratio <= efficiencyGoodMax:
		return TierGood
	case ratio < 1.0:
		return TierFair
	default:
		return TierNeedsImprovement
	}
}

// Input bundles everything Score needs. Score treats all of it as read-only.
type Input struct {
	Questions        []model.Question
	Areas            []model.KnowledgeArea
	Answers          []model.UserAnswer
	ElapsedMinutes   float64
	TimeLimitMinutes int // 0 for practice mode
	PassingScore     float64
}

// QuestionOutcome is the graded verdict for a single question.
type QuestionOutcome struct {
	QuestionID  uuid.UUID        `json:"question_id"`
	Position    int              `json:"position"`
	AreaID      uuid.UUID        `json:"area_id"`
	Difficulty  model.Difficulty `json:"difficulty"`
	SelectedIDs []uuid.UUID      `json:"selected_ids,omitempty"`
	CorrectIDs  []uuid.UUID      `json:"correct_ids"`
	Answered    bool             `json:"answered"`
	Correct     bool             `json:"correct"`
}

// AreaBreakdown aggregates one knowledge area of the exam.
type AreaBreakdown struct {
	AreaID        uuid.UUID `json:"area_id"`
	Name          string    `json:"name"`
	WeightPercent float64   `json:"weight_percent"`
	Correct       int       `json:"correct"`
	Total         int       `json:"total"`
	Percent       float64   `json:"percent"`
	Tier          Tier      `json:"tier"`
}

// DifficultyBreakdown aggregates one difficulty level. Levels the exam does
// not use report 0/0 with a zero percentage.
type DifficultyBreakdown struct {
	Difficulty model.Difficulty `json:"difficulty"`
	Correct    int              `json:"correct"`
	Total      int              `json:"total"`
	Percent    float64          `json:"percent"`
}

// Result is the detailed outcome of one completed attempt. Percentages are
// carried unrounded; rounding is left to presentation.
type Result struct {
	TotalQuestions   int                   `json:"total_questions"`
	CorrectCount     int                   `json:"correct_count"`
	ScorePercent     float64               `json:"score_percent"`
	PassingScore     float64               `json:"passing_score"`
	Passed           bool                  `json:"passed"`
	TimeSpentMinutes float64               `json:"time_spent_minutes"`
	OverallTier      Tier                  `json:"overall_tier"`
	TimeEfficiency   Tier                  `json:"time_efficiency"`
	Outcomes         []QuestionOutcome     `json:"outcomes"`
	Areas            []AreaBreakdown       `json:"areas"`
	Difficulties     []DifficultyBreakdown `json:"difficulties"`
}

type tally struct {
	correct int
	total   int
}

// Score grades a completed attempt. Pure and deterministic: no I/O, inputs
// are never mutated, equal inputs yield equal results.
//
// A question counts as correct only when the submitted selection set exactly
// equals its correct-answer set; multi-select questions earn no partial
// credit. Unanswered questions are incorrect but still count toward every
// total, so the per-area and per-difficulty totals always sum back to the
// question count.
func Score(in Input) *Result {
	questions := make([]model.Question, len(in.Questions))
	copy(questions, in.Questions)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })

	latest := latestPerQuestion(in.Answers)

	res := &Result{
		TotalQuestions:   len(questions),
		PassingScore:     in.PassingScore,
		TimeSpentMinutes: in.ElapsedMinutes,
		TimeEfficiency:   EfficiencyFor(in.ElapsedMinutes, in.TimeLimitMinutes),
		Outcomes:         make([]QuestionOutcome, 0, len(questions)),
	}

	areaTallies := make(map[uuid.UUID]*tally)
	var areaOrder []uuid.UUID
	diffTallies := make(map[model.Difficulty]*tally)

	for _, q := range questions {
		out := QuestionOutcome{
			QuestionID: q.ID,
			Position:   q.Position,
			AreaID:     q.AreaID,
			Difficulty: q.Difficulty,
			CorrectIDs: q.CorrectAnswerIDs(),
		}
		if ua, ok := latest[q.ID]; ok {
			out.Answered = true
			out.SelectedIDs = ua.AnswerIDs
			out.Correct = sameIDSet(ua.AnswerIDs, out.CorrectIDs)
		}
		if out.Correct {
			res.CorrectCount++
		}
		res.Outcomes = append(res.Outcomes, out)

		at, ok := areaTallies[q.AreaID]
		if !ok {
			at = &tally{}
			areaTallies[q.AreaID] = at
			areaOrder = append(areaOrder, q.AreaID)
		}
		at.total++
		dt, ok := diffTallies[q.Difficulty]
		if !ok {
			dt = &tally{}
			diffTallies[q.Difficulty] = dt
		}
		dt.total++
		if out.Correct {
			at.correct++
			dt.correct++
		}
	}

	res.ScorePercent = percent(res.CorrectCount, res.TotalQuestions)
	res.Passed = res.ScorePercent >= in.PassingScore
	res.OverallTier = TierFor(res.ScorePercent)
	res.Areas = areaBreakdowns(in.Areas, areaTallies, areaOrder)
	res.Difficulties = difficultyBreakdowns(diffTallies)
	return res
}

// areaBreakdowns reports declared areas in their declared order, including
// areas no question references (0/0), then any area id seen only on
// questions, in first-appearance order.
func areaBreakdowns(declared []model.KnowledgeArea, tallies map[uuid.UUID]*tally, seen []uuid.UUID) []AreaBreakdown {
	areas := make([]model.KnowledgeArea, len(declared))
	copy(areas, declared)
	sort.SliceStable(areas, func(i, j int) bool { return areas[i].Position < areas[j].Position })

	out := make([]AreaBreakdown, 0, len(areas))
	covered := make(map[uuid.UUID]bool, len(areas))
	for _, a := range areas {
		covered[a.ID] = true
		b := AreaBreakdown{AreaID: a.ID, Name: a.Name, WeightPercent: a.WeightPercent}
		if t, ok := tallies[a.ID]; ok {
			b.Correct, b.Total = t.correct, t.total
		}
		b.Percent = percent(b.Correct, b.Total)
		b.Tier = TierFor(b.Percent)
		out = append(out, b)
	}
	for _, id := range seen {
		if covered[id] {
			continue
		}
		t := tallies[id]
		b := AreaBreakdown{AreaID: id, Correct: t.correct, Total: t.total}
		b.Percent = percent(b.Correct, b.Total)
		b.Tier = TierFor(b.Percent)
		out = append(out, b)
	}
	return out
}

func difficultyBreakdowns(tallies map[model.Difficulty]*tally) []DifficultyBreakdown {
	out := make([]DifficultyBreakdown, 0, len(model.Difficulties))
	for _, d := range model.Difficulties {
		b := DifficultyBreakdown{Difficulty: d}
		if t, ok := tallies[d]; ok {
			b.Correct, b.Total = t.correct, t.total
		}
		b.Percent = percent(b.Correct, b.Total)
		out = append(out, b)
	}
	return out
}

// latestPerQuestion keeps only the newest answer for each question. Answers
// are normally already superseded at the store, so this is a safety net for
// histories assembled elsewhere.
func latestPerQuestion(answers []model.UserAnswer) map[uuid.UUID]model.UserAnswer {
	latest := make(map[uuid.UUID]model.UserAnswer, len(answers))
	for _, ua := range answers {
		cur, ok := latest[ua.QuestionID]
		if !ok || !ua.AnsweredAt.Before(cur.AnsweredAt) {
			latest[ua.QuestionID] = ua
		}
	}
	return latest
}

func sameIDSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

func percent(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}
