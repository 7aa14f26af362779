package casjobs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type submitSettings struct {
	queryContext string
	taskName     string
	estimate     int
}

// SubmitOption adjusts a single Submit or Quick call.
type SubmitOption func(*submitSettings)

// SubmitContext overrides the database context for this call only.
func SubmitContext(name string) SubmitOption {
	return func(s *submitSettings) { s.queryContext = name }
}

// TaskName labels the job in the service's job listings.
func TaskName(name string) SubmitOption {
	return func(s *submitSettings) { s.taskName = name }
}

// Estimate declares the expected runtime of the job in minutes, which the
// service uses for queue placement. Ignored by Quick.
func Estimate(minutes int) SubmitOption {
	return func(s *submitSettings) { s.estimate = minutes }
}

func (c *Client) submitSettings(taskName string, opts []SubmitOption) submitSettings {
	s := submitSettings{
		queryContext: c.queryContext,
		taskName:     taskName,
		estimate:     30,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Submit sends a query to the service as an asynchronous job and returns
// its identifier. The job writes its output into the user's MyDB; use
// SubmitExtract to get result tables out.
func (c *Client) Submit(ctx context.Context, query string, opts ...SubmitOption) (JobID, error) {
	s := c.submitSettings("casjobs", opts)
	params := url.Values{}
	params.Set("qry", query)
	params.Set("context", s.queryContext)
	params.Set("taskname", s.taskName)
	params.Set("estimate", strconv.Itoa(s.estimate))

	body, err := c.send(ctx, "SubmitJob", params)
	if err != nil {
		return 0, err
	}
	id, err := innerInt64(body, "long")
	if err != nil {
		return 0, err
	}
	c.logger.Debug("job submitted", map[string]interface{}{
		"job":      id,
		"context":  s.queryContext,
		"taskname": s.taskName,
	})
	return JobID(id), nil
}

// Quick runs a query synchronously through the service's quick-job lane
// and returns the raw result payload, one row per line.
func (c *Client) Quick(ctx context.Context, query string, opts ...SubmitOption) (string, error) {
	s := c.submitSettings("quickie", opts)
	params := url.Values{}
	params.Set("qry", query)
	params.Set("context", s.queryContext)
	params.Set("taskname", s.taskName)
	params.Set("isSystem", "false")

	body, err := c.send(ctx, "ExecuteQuickJob", params)
	if err != nil {
		return "", err
	}
	return innerText(body, "string")
}

// Status asks the service for a job's current status.
func (c *Client) Status(ctx context.Context, id JobID) (Status, error) {
	params := url.Values{}
	params.Set("jobid", id.String())

	body, err := c.send(ctx, "GetJobStatus", params)
	if err != nil {
		return 0, err
	}
	code, err := innerInt64(body, "int")
	if err != nil {
		return 0, err
	}
	return Status(code), nil
}

// Cancel asks the service to cancel a job. Cancellation is asynchronous on
// the server; poll Status to see it land.
func (c *Client) Cancel(ctx context.Context, id JobID) error {
	params := url.Values{}
	params.Set("jobid", id.String())
	_, err := c.send(ctx, "CancelJob", params)
	return err
}

// Monitor polls Status at the client's poll interval until the job reaches
// a terminal status. It returns a TimeoutError if the monitor timeout
// elapses first, and the context error if ctx is cancelled. There is no
// backoff and no retry: one status request per interval, nothing more.
func (c *Client) Monitor(ctx context.Context, id JobID) (Status, error) {
	start := time.Now()
	deadline := start.Add(c.monitorTimeout)

	var last Status
	for {
		st, err := c.Status(ctx, id)
		if err != nil {
			return 0, err
		}
		last = st
		if st.Terminal() {
			c.logger.Info("job reached terminal status", map[string]interface{}{
				"job":    id,
				"status": st.String(),
			})
			return st, nil
		}
		c.logger.Debug("monitoring job", map[string]interface{}{
			"job":    id,
			"status": st.String(),
		})

		now := time.Now()
		if now.Add(c.pollInterval).After(deadline) {
			return last, &TimeoutError{JobID: id, Last: last, Waited: now.Sub(start)}
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

// Count runs "SELECT COUNT(*) <query>" as a quick job and parses the
// single resulting value.
func (c *Client) Count(ctx context.Context, query string) (int64, error) {
	result, err := c.Quick(ctx, "SELECT COUNT(*) "+query)
	if err != nil {
		return 0, err
	}
	lines := strings.Split(result, "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("unexpected count result %q", result)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected count result %q: %w", result, err)
	}
	return n, nil
}

// DropTable drops a table from the user's MyDB and waits for the drop job
// to complete.
func (c *Client) DropTable(ctx context.Context, table string) error {
	id, err := c.Submit(ctx, "DROP TABLE "+table, SubmitContext("MYDB"), TaskName("drop "+table))
	if err != nil {
		return err
	}
	st, err := c.Monitor(ctx, id)
	if err != nil {
		return err
	}
	if st != StatusFinished {
		return fmt.Errorf("drop table %s: job %d ended with status %s", table, id, st)
	}
	return nil
}
