package casjobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// JobInfo is a job record from the service's job listings.
type JobInfo struct {
	JobID      JobID
	Status     Status
	TaskName   string
	Query      string
	Context    string
	Type       string
	OutputLoc  string
	TimeSubmit string
	TimeStart  string
	TimeEnd    string
	Rows       int64
	Error      string
}

// JobSearch filters the service's job listing. Keys and values follow the
// GetJobs condition syntax, e.g. {"jobid": "123"} or {"status": "5"}. An
// empty search returns all of the user's jobs.
type JobSearch map[string]string

func (s JobSearch) encode() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" : "+s[k])
	}
	return strings.Join(parts, ";")
}

// Jobs searches the caller's job history.
func (c *Client) Jobs(ctx context.Context, search JobSearch) ([]JobInfo, error) {
	params := url.Values{}
	params.Set("owner_wsid", fmt.Sprintf("%d", c.wsid))
	params.Set("owner_pw", c.password)
	params.Set("conditions", search.encode())
	params.Set("includeSystem", "false")

	body, err := c.send(ctx, "GetJobs", params)
	if err != nil {
		return nil, err
	}
	return parseJobList(body)
}

// OutputFormat selects the file format of a table extract.
type OutputFormat string

const (
	FormatCSV     OutputFormat = "CSV"
	FormatDataSet OutputFormat = "DataSet"
	FormatFITS    OutputFormat = "FITS"
	FormatVOTable OutputFormat = "VOTable"
)

func (f OutputFormat) valid() bool {
	switch f {
	case FormatCSV, FormatDataSet, FormatFITS, FormatVOTable:
		return true
	}
	return false
}

// SubmitExtract asks the service to export a MyDB table to a file and
// returns the identifier of the export job. The file location appears in
// the job record once the job finishes; see OutputURL and Download.
func (c *Client) SubmitExtract(ctx context.Context, table string, format OutputFormat) (JobID, error) {
	if !format.valid() {
		return 0, fmt.Errorf("unsupported output format %q", format)
	}
	params := url.Values{}
	params.Set("tableName", table)
	params.Set("type", string(format))

	body, err := c.send(ctx, "SubmitExtractJob", params)
	if err != nil {
		return 0, err
	}
	id, err := innerInt64(body, "long")
	if err != nil {
		return 0, err
	}
	return JobID(id), nil
}

// OutputURL returns the download location of a finished extract job. It
// returns ErrJobNotFinished (wrapped, with the current status) when the
// job is not done yet, and NotFoundError when the service does not know
// the job.
func (c *Client) OutputURL(ctx context.Context, id JobID) (string, error) {
	jobs, err := c.Jobs(ctx, JobSearch{"jobid": id.String()})
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "", &NotFoundError{Op: "GetJobs", Body: fmt.Sprintf("no job with id %d", id)}
	}
	job := jobs[0]
	if job.Status != StatusFinished {
		return "", fmt.Errorf("job %d is %s: %w", id, job.Status, ErrJobNotFinished)
	}
	if job.OutputLoc == "" {
		return "", fmt.Errorf("job %d has no output location", id)
	}
	return job.OutputLoc, nil
}

// Download streams the output file of a finished extract job into w and
// returns the number of bytes written.
func (c *Client) Download(ctx context.Context, id JobID, w io.Writer) (int64, error) {
	loc, err := c.OutputURL(ctx, id)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return 0, &TransportError{Op: "Download", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &TransportError{Op: "Download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, classify("Download", resp.StatusCode, body)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &TransportError{Op: "Download", Err: err}
	}
	return n, nil
}

// ExtractTable requests an export of a MyDB table, waits for the export
// job to finish, and streams the file into w.
func (c *Client) ExtractTable(ctx context.Context, table string, format OutputFormat, w io.Writer) error {
	id, err := c.SubmitExtract(ctx, table, format)
	if err != nil {
		return err
	}
	st, err := c.Monitor(ctx, id)
	if err != nil {
		return err
	}
	if st != StatusFinished {
		return fmt.Errorf("extract of %s: job %d ended with status %s", table, id, st)
	}
	_, err = c.Download(ctx, id, w)
	return err
}
