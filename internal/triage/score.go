package triage

// Signal weights.
const (
	WeightProductiveHit   = 2
	WeightUnproductiveHit = -2
	WeightReference       = 2
	WeightQuestion        = 1
	WeightAttachment      = 1
	WeightURL             = -2
	WeightPromotional     = -3
	WeightGreetingOnly    = -2
)

// ProductiveThreshold is the lowest score classified as Productive.
const ProductiveThreshold = 2

// Signal names a scoring rule.
type Signal string

const (
	SignalProductive   Signal = "productive"
	SignalUnproductive Signal = "unproductive"
	SignalReference    Signal = "reference"
	SignalQuestion     Signal = "question"
	SignalAttachment   Signal = "attachment"
	SignalURL          Signal = "url"
	SignalPromotional  Signal = "promotional"
	SignalGreetingOnly Signal = "greeting_only"
)

// Contribution is one weighted term of a score. Term carries the matched
// phrase or reference when there is one.
type Contribution struct {
	Signal Signal
	Term   string
	Weight int
}

// Contributions lists every weight that applies to m. Lexicon hits appear
// once per phrase, in lexicon order.
func Contributions(m Matches) []Contribution {
	var out []Contribution
	for _, hit := range m.ProductiveHits {
		out = append(out, Contribution{Signal: SignalProductive, Term: hit, Weight: WeightProductiveHit})
	}
	for _, hit := range m.UnproductiveHits {
		out = append(out, Contribution{Signal: SignalUnproductive, Term: hit, Weight: WeightUnproductiveHit})
	}
	if m.Reference != nil {
		out = append(out, Contribution{Signal: SignalReference, Term: m.Reference.String(), Weight: WeightReference})
	}
	if m.HasQuestion {
		out = append(out, Contribution{Signal: SignalQuestion, Weight: WeightQuestion})
	}
	if m.Attachment {
		out = append(out, Contribution{Signal: SignalAttachment, Weight: WeightAttachment})
	}
	if m.HasURL {
		out = append(out, Contribution{Signal: SignalURL, Weight: WeightURL})
	}
	if m.Promotional {
		out = append(out, Contribution{Signal: SignalPromotional, Weight: WeightPromotional})
	}
	if m.GreetingOnly {
		out = append(out, Contribution{Signal: SignalGreetingOnly, Weight: WeightGreetingOnly})
	}
	return out
}

// Score sums the contributions of m.
func Score(m Matches) int {
	score := 0
	for _, c := range Contributions(m) {
		score += c.Weight
	}
	return score
}

// Categorize applies the fixed threshold to a score.
func Categorize(score int) Category {
	if score >= ProductiveThreshold {
		return Productive
	}
	return Unproductive
}
