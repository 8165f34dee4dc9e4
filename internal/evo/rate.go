package evo

// RateController adapts the mutation rate between generations: successes
// narrow the search, failures widen it.
type RateController struct {
	Rate        float64
	FailureStep float64
	SuccessStep float64
	Max         float64
}

// Succeed lowers the rate and reports whether it reached zero.
func (c *RateController) Succeed() bool {
	c.Rate -= c.SuccessStep
	return c.Rate <= 0
}

// Fail raises the rate and reports whether it passed the ceiling.
func (c *RateController) Fail() bool {
	c.Rate += c.FailureStep
	return c.Rate > c.Max
}
