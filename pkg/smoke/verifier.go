package smoke

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

// Verifier classifies expectations one by one. Checks never share state and
// are never retried: a render race shows up as "absent" for that run.
type Verifier struct {
	log          *zap.Logger
	checkTimeout time.Duration
}

func NewVerifier(log *zap.Logger, checkTimeout time.Duration) *Verifier {
	return &Verifier{log: log, checkTimeout: checkTimeout}
}

func (v *Verifier) Verify(ctx context.Context, page browser.Page, items []Expectation) []CheckResult {
	return lo.Map(items, func(item Expectation, _ int) CheckResult {
		return v.Check(ctx, page, item)
	})
}

func (v *Verifier) Check(ctx context.Context, page browser.Page, item Expectation) CheckResult {
	res := CheckResult{Expectation: item, State: StateAbsent}

	checkCtx := ctx
	if v.checkTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, v.checkTimeout)
		defer cancel()
	}
	m, err := page.Query(checkCtx, item.Query())
	switch {
	case err != nil:
		checkErr := &ExpectationCheckError{Text: item.Text, Err: err}
		v.log.Warn("expectation check failed", zap.String("text", item.Text), zap.Error(err))
		res.Error = checkErr.Error()
	case m != nil:
		res.State = m.Visibility
		res.Count = m.Count
	}
	res.Passed = item.requirement().Satisfied(res.State)
	return res
}

// Passed reports whether every result satisfied its requirement.
func Passed(results []CheckResult) bool {
	return lo.EveryBy(results, func(r CheckResult) bool { return r.Passed })
}
