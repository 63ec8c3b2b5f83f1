// Package action implements the ACTION stage: mandatory vectorization of the
// analysis plus optional GitHub issue and webhook side effects. Optional
// failures are reported in the result and never fail the stage.
package action

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/video-refinery/internal/types"
)

// External reference kinds.
const (
	KindGitHubIssue = "github_issue"
	KindWebhook     = "webhook"
)

// Request is the input to Execute.
type Request struct {
	JobID     string
	SourceURL string
	TaskType  types.TaskType
	Result    *types.AnalysisResult
	Options   types.ActionOptions
}

// IssueCreator opens a tracking issue for a completed analysis.
type IssueCreator interface {
	CreateIssue(ctx context.Context, req Request) (string, error)
}

// Notifier delivers the analysis to an external endpoint.
type Notifier interface {
	Notify(ctx context.Context, url string, req Request) error
}

// Executor runs the ACTION stage.
type Executor struct {
	vectorizer *Vectorizer
	issues     IssueCreator
	notifier   Notifier
	webhookURL string
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithIssues enables GitHub issue creation for jobs that request it.
func WithIssues(issues IssueCreator) ExecutorOption {
	return func(e *Executor) { e.issues = issues }
}

// WithWebhook sets the notifier and the default webhook URL used when a job
// does not name its own.
func WithWebhook(notifier Notifier, defaultURL string) ExecutorOption {
	return func(e *Executor) {
		e.notifier = notifier
		e.webhookURL = defaultURL
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an Executor around the mandatory vectorizer.
func NewExecutor(vectorizer *Vectorizer, opts ...ExecutorOption) *Executor {
	e := &Executor{vectorizer: vectorizer, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = NewWebhook(nil)
	}
	return e
}

// Execute vectorizes the result and then runs the optional sub-actions
// concurrently. Only a vectorization failure or the cancellation of ctx is
// returned; sub-action failures are recorded on the result.
func (e *Executor) Execute(ctx context.Context, req Request) (*types.ActionResult, error) {
	if req.Result == nil {
		return nil, fmt.Errorf("action requires an analysis result")
	}

	count, err := e.vectorizer.Vectorize(ctx, req.JobID, req.Result)
	if err != nil {
		return nil, err
	}
	out := &types.ActionResult{VectorCount: count}

	var subs []func(context.Context) types.ExternalRef
	if req.Options.CreateIssue {
		subs = append(subs, e.createIssue(req))
	}
	if url := e.webhookTarget(req.Options); url != "" {
		subs = append(subs, e.notify(url, req))
	}
	if len(subs) == 0 {
		return out, nil
	}

	refs := make([]types.ExternalRef, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		g.Go(func() error {
			refs[i] = sub(gctx)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("action interrupted: %w", err)
	}

	for _, ref := range refs {
		if ref.Error != "" {
			e.logger.Warn("optional action failed",
				slog.String("job_id", req.JobID),
				slog.String("kind", ref.Kind),
				slog.String("error", ref.Error))
		}
	}
	out.ExternalRefs = refs
	return out, nil
}

func (e *Executor) webhookTarget(opts types.ActionOptions) string {
	if opts.WebhookURL != "" {
		return opts.WebhookURL
	}
	return e.webhookURL
}

func (e *Executor) createIssue(req Request) func(context.Context) types.ExternalRef {
	return func(ctx context.Context) types.ExternalRef {
		ref := types.ExternalRef{Kind: KindGitHubIssue}
		if e.issues == nil {
			ref.Error = "issue creation is not configured"
			return ref
		}
		url, err := e.issues.CreateIssue(ctx, req)
		if err != nil {
			ref.Error = types.Humanize(err)
			return ref
		}
		ref.URL = url
		return ref
	}
}

func (e *Executor) notify(url string, req Request) func(context.Context) types.ExternalRef {
	return func(ctx context.Context) types.ExternalRef {
		ref := types.ExternalRef{Kind: KindWebhook, URL: url}
		if err := e.notifier.Notify(ctx, url, req); err != nil {
			ref.Error = types.Humanize(err)
		}
		return ref
	}
}
