/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package notify implements the Notification Dispatcher (§4.H): when a
// deploy goes live in production, walk the commits between the old and
// new version, find the pull requests and issues they touch, and label
// and comment on whichever of them haven't already been marked live.
// Grounded on the corpus's githubops package, which wraps go-github for
// this same compare-commits/label/comment shape of work.
package notify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/logging"
)

// liveLabel is applied to every pull request and issue the dispatcher
// touches, and doubles as the idempotence marker (§4.H step 3): a target
// already carrying it is left alone.
const liveLabel = "live"

// liveCommentMarker is embedded in the posted comment body so a second
// dispatch run recognizes a target it already commented on, even if the
// label was since removed by a human.
const liveCommentMarker = "<!-- fleetctl:notify:live -->"

// repo identifies the GitHub repository the dispatcher walks commits and
// pull requests against for one environment.
type repo struct {
	owner string
	name  string
}

// repoForEnvironment resolves E's associated repository (§4.H step 1).
// Every environment in the registry currently lives in the same
// application repository; this is a function, not a field on
// environment.Environment, because the mapping is a notify-specific
// concern, not part of the environment model itself.
func repoForEnvironment(env environment.Environment) repo {
	return repo{owner: "compiler-explorer", name: "compiler-explorer"}
}

// Outcome is the per-target result the dispatcher records for one pull
// request or issue, never aborting the whole dispatch on an individual
// failure (§4.H: "Partial failure does not abort the dispatcher").
type Outcome struct {
	Kind   string `json:"kind"` // "pull_request" or "issue"
	Number int    `json:"number"`
	Action string `json:"action"` // "labeled", "already_live", "skipped_preview", "failed"
	Err    string `json:"err,omitempty"`
}

// Dispatcher drives the compare-commits -> discover-PRs -> discover-issues
// -> label/comment pipeline against one GitHub client.
type Dispatcher struct {
	client *github.Client
	policy config.NotificationPolicy
}

// New returns a Dispatcher that posts through client under policy. client
// is expected to already carry GitHub App installation auth (see
// NewInstallationClient).
func New(client *github.Client, policy config.NotificationPolicy) *Dispatcher {
	return &Dispatcher{client: client, policy: policy}
}

// SetPolicy updates the mode NotifyLive runs under. The CLI calls this
// once per invocation after parsing --notify, since the Dispatcher is
// constructed before command-line flags are known.
func (d *Dispatcher) SetPolicy(policy config.NotificationPolicy) {
	if d == nil {
		return
	}
	d.policy = policy
}

// NotifyLive runs the full pipeline for one production version bump,
// satisfying deploy.Notifier. A nil Dispatcher (no GitHub App credentials
// configured) is a documented no-op, so deploys never fail for want of a
// notification side-channel.
func (d *Dispatcher) NotifyLive(ctx context.Context, env environment.Environment, oldVersion, newVersion string) error {
	if d == nil {
		return nil
	}
	ctx = logging.Named(ctx, "notify")
	log := logging.FromContext(ctx)

	if d.policy == config.NotificationOff {
		log.Debugf("notification policy is off, skipping dispatch for %s", env.Name)
		return nil
	}

	r := repoForEnvironment(env)
	commits, err := d.compareCommits(ctx, r, oldVersion, newVersion)
	if err != nil {
		return fmt.Errorf("notify: compare commits %s..%s: %w", oldVersion, newVersion, err)
	}

	prNumbers, err := d.pullRequestsForCommits(ctx, r, commits)
	if err != nil {
		return fmt.Errorf("notify: discover pull requests: %w", err)
	}
	if len(prNumbers) == 0 {
		log.Infof("no pull requests found between %s and %s for %s", oldVersion, newVersion, env.Name)
		return nil
	}

	targets := map[int]string{}
	for _, pr := range prNumbers {
		targets[pr] = "pull_request"
	}
	for _, pr := range prNumbers {
		body, err := d.pullRequestBody(ctx, r, pr)
		if err != nil {
			log.Warnf("fetching pull request #%d body: %v", pr, err)
			continue
		}
		for _, issue := range linkedIssues(body) {
			if _, isPR := targets[issue]; !isPR {
				targets[issue] = "issue"
			}
		}
	}

	outcomes := make([]Outcome, 0, len(targets))
	for number, kind := range targets {
		outcomes = append(outcomes, d.markLive(ctx, r, number, kind))
	}

	failed := 0
	for _, o := range outcomes {
		if o.Action == "failed" {
			failed++
			log.Warnf("notify target #%d (%s) failed: %s", o.Number, o.Kind, o.Err)
		}
	}
	if failed > 0 {
		log.Warnf("notify dispatch for %s completed with %d/%d targets failed", env.Name, failed, len(outcomes))
	} else {
		log.Infof("notify dispatch for %s marked %d target(s) live", env.Name, len(outcomes))
	}
	return nil
}

// compareCommits lists the commits between base and head (§4.H step 1).
func (d *Dispatcher) compareCommits(ctx context.Context, r repo, base, head string) ([]*github.RepositoryCommit, error) {
	var cmp *github.CommitsComparison
	err := d.withRetry(ctx, func(callCtx context.Context) error {
		var innerErr error
		cmp, _, innerErr = d.client.Repositories.CompareCommits(callCtx, r.owner, r.name, base, head, &github.ListOptions{PerPage: 100})
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return cmp.Commits, nil
}

// pullRequestsForCommits discovers the distinct pull requests associated
// with any of commits (§4.H step 2).
func (d *Dispatcher) pullRequestsForCommits(ctx context.Context, r repo, commits []*github.RepositoryCommit) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, c := range commits {
		sha := c.GetSHA()
		if sha == "" {
			continue
		}
		var prs []*github.PullRequest
		err := d.withRetry(ctx, func(callCtx context.Context) error {
			var innerErr error
			prs, _, innerErr = d.client.PullRequests.ListPullRequestsWithCommit(callCtx, r.owner, r.name, sha, nil)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, pr := range prs {
			n := pr.GetNumber()
			if n == 0 || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// pullRequestBody fetches one pull request's body text, used to scan for
// closing-keyword issue references.
func (d *Dispatcher) pullRequestBody(ctx context.Context, r repo, number int) (string, error) {
	var pr *github.PullRequest
	err := d.withRetry(ctx, func(callCtx context.Context) error {
		var innerErr error
		pr, _, innerErr = d.client.PullRequests.Get(callCtx, r.owner, r.name, number)
		return innerErr
	})
	if err != nil {
		return "", err
	}
	return pr.GetTitle() + "\n" + pr.GetBody(), nil
}

// closingKeyword matches GitHub's standard closing-keyword syntax
// ("fixes #123", "closes #45", "resolves #7"); go-github has no direct
// "linked issues" endpoint, so the dispatcher scans for the same
// convention GitHub's own UI parses.
var closingKeyword = regexp.MustCompile(`(?i)\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s*:?\s*#(\d+)\b`)

// linkedIssues extracts issue numbers referenced via closing keywords in
// text (§4.H step 2).
func linkedIssues(text string) []int {
	matches := closingKeyword.FindAllStringSubmatch(text, -1)
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// markLive labels and comments on one pull request or issue number if it
// isn't already marked, recording the action taken (§4.H step 3). GitHub
// treats pull requests as issues for labeling and commenting, so a single
// code path serves both kinds; kind in the returned Outcome is informational
// only and does not change which API is called.
func (d *Dispatcher) markLive(ctx context.Context, r repo, number int, kind string) Outcome {
	already, err := d.alreadyLive(ctx, r, number)
	if err != nil {
		return Outcome{Kind: kind, Number: number, Action: "failed", Err: err.Error()}
	}
	if already {
		return Outcome{Kind: kind, Number: number, Action: "already_live"}
	}
	if d.policy == config.NotificationPreview {
		return Outcome{Kind: kind, Number: number, Action: "skipped_preview"}
	}

	err = d.withRetry(ctx, func(callCtx context.Context) error {
		_, _, innerErr := d.client.Issues.AddLabelsToIssue(callCtx, r.owner, r.name, number, []string{liveLabel})
		return innerErr
	})
	if err != nil {
		return Outcome{Kind: kind, Number: number, Action: "failed", Err: err.Error()}
	}

	comment := &github.IssueComment{Body: github.String("This change is now live. " + liveCommentMarker)}
	err = d.withRetry(ctx, func(callCtx context.Context) error {
		_, _, innerErr := d.client.Issues.CreateComment(callCtx, r.owner, r.name, number, comment)
		return innerErr
	})
	if err != nil {
		return Outcome{Kind: kind, Number: number, Action: "failed", Err: err.Error()}
	}
	return Outcome{Kind: kind, Number: number, Action: "labeled"}
}

// alreadyLive reports whether number already carries the live label or a
// comment bearing liveCommentMarker.
func (d *Dispatcher) alreadyLive(ctx context.Context, r repo, number int) (bool, error) {
	var issue *github.Issue
	err := d.withRetry(ctx, func(callCtx context.Context) error {
		var innerErr error
		issue, _, innerErr = d.client.Issues.Get(callCtx, r.owner, r.name, number)
		return innerErr
	})
	if err != nil {
		return false, err
	}
	for _, l := range issue.Labels {
		if l.GetName() == liveLabel {
			return true, nil
		}
	}

	var comments []*github.IssueComment
	err = d.withRetry(ctx, func(callCtx context.Context) error {
		var innerErr error
		comments, _, innerErr = d.client.Issues.ListComments(callCtx, r.owner, r.name, number, nil)
		return innerErr
	})
	if err != nil {
		return false, err
	}
	for _, c := range comments {
		if strings.Contains(c.GetBody(), liveCommentMarker) {
			return true, nil
		}
	}
	return false, nil
}
