package grading

import "math"

// Item pairs a question with the learner's canonical answer.
type Item struct {
	Q      Q
	Answer Answer
}

// Checked is the per-question record produced by Score.
type Checked struct {
	Verdict
	StudentAnswer Answer
	Key           []string
	Points        float64 // awarded
	MaxPoints     float64
}

// Scorecard aggregates the verdicts of one submission.
type Scorecard struct {
	Score      float64
	Total      float64
	Percentage int
	Items      []Checked
}

// Score grades every item and aggregates the result.
//
// A question's weight is its own Points, defaulting to 1. When no question
// carries explicit points and quizPoints is positive, quizPoints becomes the
// total and is split evenly across questions; the two are never summed.
func Score(g Grader, items []Item, quizPoints float64) Scorecard {
	weights := make([]float64, len(items))
	explicit := false
	for _, it := range items {
		if it.Q.Points > 0 {
			explicit = true
			break
		}
	}

	var total float64
	switch {
	case !explicit && quizPoints > 0 && len(items) > 0:
		each := quizPoints / float64(len(items))
		for i := range weights {
			weights[i] = each
		}
		total = quizPoints
	default:
		for i, it := range items {
			w := it.Q.Points
			if w <= 0 {
				w = 1
			}
			weights[i] = w
			total += w
		}
	}

	sc := Scorecard{Total: total, Items: make([]Checked, len(items))}
	for i, it := range items {
		v := g.Grade(it.Q, it.Answer)
		c := Checked{
			Verdict:       v,
			StudentAnswer: it.Answer,
			Key:           append([]string(nil), it.Q.AnswerKey...),
			MaxPoints:     weights[i],
		}
		if v.Correct {
			c.Points = weights[i]
			sc.Score += weights[i]
		}
		sc.Items[i] = c
	}
	sc.Score = round2(sc.Score)
	sc.Percentage = Percentage(sc.Score, sc.Total)
	return sc
}

// Percentage is round(score/total*100), or 0 when total is not positive.
func Percentage(score, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(score / total * 100))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
