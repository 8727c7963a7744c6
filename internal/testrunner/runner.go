package testrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/getnao/nao-cli/internal/providers"
	"github.com/getnao/nao-cli/internal/session"
)

// ErrFailures is returned by Summary.Err when at least one case failed.
var ErrFailures = errors.New("test cases failed")

// Asker answers a question within a session.
type Asker interface {
	Ask(ctx context.Context, sess *session.Session, input string) (*providers.LLMResponse, error)
}

// Result is the outcome of one case.
type Result struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Failures []string      `json:"failures,omitempty"`
	Response string        `json:"response,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Summary aggregates results in case order.
type Summary struct {
	Results  []Result      `json:"results"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// Err returns ErrFailures when any case failed.
func (s Summary) Err() error {
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d: %w", s.Failed, len(s.Results), ErrFailures)
	}
	return nil
}

// Runner executes cases with bounded parallelism.
type Runner struct {
	Agent    Asker
	Parallel int
	Logger   *log.Logger
	Now      func() time.Time

	// OnResult, when set, is called as each case finishes. Calls are serialized.
	OnResult func(Result)
}

// NewRunner creates a runner with a single worker.
func NewRunner(agent Asker, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{Agent: agent, Parallel: 1, Logger: logger, Now: time.Now}
}

// Run executes all cases. Each case gets a fresh session.
func (r *Runner) Run(ctx context.Context, cases []Case) Summary {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	workers := r.Parallel
	if workers < 1 {
		workers = 1
	}
	if workers > len(cases) {
		workers = len(cases)
	}

	start := now()
	results := make([]Result, len(cases))
	jobs := make(chan int)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res := r.runCase(ctx, cases[i], now)
				results[i] = res
				if r.OnResult != nil {
					mu.Lock()
					r.OnResult(res)
					mu.Unlock()
				}
			}
		}()
	}

	for i := range cases {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sum := Summary{Results: results, Duration: now().Sub(start)}
	for _, res := range results {
		if res.Passed {
			sum.Passed++
		} else {
			sum.Failed++
		}
	}
	return sum
}

func (r *Runner) runCase(ctx context.Context, c Case, now func() time.Time) Result {
	start := now()
	res := Result{Name: c.Name}

	if err := ctx.Err(); err != nil {
		res.Failures = []string{err.Error()}
		return res
	}

	sess := session.New("test:" + c.Name)
	resp, err := r.Agent.Ask(ctx, sess, c.Prompt)
	res.Duration = now().Sub(start)
	if err != nil {
		r.Logger.Warn("case errored", "case", c.Name, "err", err)
		res.Failures = []string{fmt.Sprintf("error: %v", err)}
		return res
	}

	res.Response = resp.Content
	res.Failures = Evaluate(c.Expect, resp.Content)
	res.Passed = len(res.Failures) == 0
	r.Logger.Debug("case finished", "case", c.Name, "passed", res.Passed, "elapsed", res.Duration)
	return res
}

// Evaluate checks answer against e and returns one message per failed check.
func Evaluate(e Expect, answer string) []string {
	var failures []string
	lower := strings.ToLower(answer)
	for _, want := range e.Contains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			failures = append(failures, fmt.Sprintf("expected answer to contain %q", want))
		}
	}
	for _, unwanted := range e.NotContains {
		if strings.Contains(lower, strings.ToLower(unwanted)) {
			failures = append(failures, fmt.Sprintf("expected answer not to contain %q", unwanted))
		}
	}
	if e.Regex != "" {
		re, err := regexp.Compile(e.Regex)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("invalid regex %q: %v", e.Regex, err))
		case !re.MatchString(answer):
			failures = append(failures, fmt.Sprintf("expected answer to match /%s/", e.Regex))
		}
	}
	return failures
}
