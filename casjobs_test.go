package casjobs_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dfm/casjobs"
	"github.com/dfm/casjobs/casjobstest"
)

func newTestClient(s *casjobstest.Server, opts ...casjobs.Option) *casjobs.Client {
	base := []casjobs.Option{casjobs.WithBaseURL(s.URL())}
	return casjobs.New(42, "secret", append(base, opts...)...)
}

func TestSubmitReturnsJobID(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	client := newTestClient(server)
	id, err := client.Submit(context.Background(), "SELECT TOP 10 * FROM PhotoObj")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero job id")
	}

	subs := server.Submissions()
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	if subs[0].Query != "SELECT TOP 10 * FROM PhotoObj" {
		t.Errorf("unexpected query: %s", subs[0].Query)
	}
	if subs[0].Context != casjobs.DefaultQueryContext {
		t.Errorf("unexpected context: %s", subs[0].Context)
	}
	if subs[0].TaskName != "casjobs" {
		t.Errorf("unexpected task name: %s", subs[0].TaskName)
	}
}

func TestSubmitOptions(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Submit(context.Background(), "SELECT 1",
		casjobs.SubmitContext("DR9"), casjobs.TaskName("load photometry"))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	subs := server.Submissions()
	if subs[0].Context != "DR9" {
		t.Errorf("expected context DR9, got %s", subs[0].Context)
	}
	if subs[0].TaskName != "load photometry" {
		t.Errorf("unexpected task name: %s", subs[0].TaskName)
	}
}

func TestSubmitBadCredentials(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()
	server.RequireAuth(42, "right-password")

	client := newTestClient(server) // wrong password
	_, err := client.Submit(context.Background(), "SELECT 1")

	var authErr *casjobs.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.StatusCode != 401 {
		t.Errorf("expected status 401, got %d", authErr.StatusCode)
	}
}

func TestSubmitRejectedQuery(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()
	server.RejectSubmissions("syntax error near 'SELEC'")

	client := newTestClient(server)
	_, err := client.Submit(context.Background(), "SELEC 1")

	var subErr *casjobs.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if !strings.Contains(subErr.Body, "syntax error") {
		t.Errorf("expected service message in error body, got %q", subErr.Body)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Status(context.Background(), 99999)

	var nfErr *casjobs.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestStatusReportsServiceCode(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusStarted)
	client := newTestClient(server)

	st, err := client.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if st != casjobs.StatusStarted {
		t.Errorf("expected started, got %s", st)
	}
}

func TestMonitorPollsUntilFinished(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusReady, casjobs.StatusStarted, casjobs.StatusFinished)
	interval := 20 * time.Millisecond
	client := newTestClient(server, casjobs.WithPollInterval(interval))

	start := time.Now()
	st, err := client.Monitor(context.Background(), id)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Monitor returned error: %v", err)
	}
	if st != casjobs.StatusFinished {
		t.Errorf("expected finished, got %s", st)
	}
	if calls := server.StatusCalls(id); calls != 3 {
		t.Errorf("expected 3 status polls, got %d", calls)
	}
	// Two non-terminal polls means two full intervals slept.
	if elapsed < 2*interval {
		t.Errorf("expected at least %s elapsed, got %s", 2*interval, elapsed)
	}
}

func TestMonitorTimesOut(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusStarted)
	client := newTestClient(server,
		casjobs.WithPollInterval(10*time.Millisecond),
		casjobs.WithMonitorTimeout(35*time.Millisecond))

	_, err := client.Monitor(context.Background(), id)

	var toErr *casjobs.TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if toErr.Last != casjobs.StatusStarted {
		t.Errorf("expected last status started, got %s", toErr.Last)
	}
}

func TestMonitorHonorsContext(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusStarted)
	client := newTestClient(server, casjobs.WithPollInterval(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Monitor(ctx, id)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestCancelMarksJobCancelled(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusStarted)
	client := newTestClient(server)

	if err := client.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	st, err := client.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if st != casjobs.StatusCancelled {
		t.Errorf("expected cancelled, got %s", st)
	}
}

func TestQuickReturnsPayload(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()
	server.SetQuickResult("ra,dec\n1.5,-0.3")

	client := newTestClient(server)
	result, err := client.Quick(context.Background(), "SELECT TOP 1 ra,dec FROM PhotoObj")
	if err != nil {
		t.Fatalf("Quick returned error: %v", err)
	}
	if result != "ra,dec\n1.5,-0.3" {
		t.Errorf("unexpected quick result: %q", result)
	}
}

func TestCountParsesQuickResult(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()
	server.SetQuickResult("Column1\n1234")

	client := newTestClient(server)
	n, err := client.Count(context.Background(), "FROM PhotoObj WHERE ra > 180")
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 1234 {
		t.Errorf("expected 1234, got %d", n)
	}

	subs := server.Submissions()
	if want := "SELECT COUNT(*) FROM PhotoObj WHERE ra > 180"; subs[0].Query != want {
		t.Errorf("expected query %q, got %q", want, subs[0].Query)
	}
}

func TestJobsSearch(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusFinished)
	server.CreateJob(casjobs.StatusStarted)

	client := newTestClient(server)
	jobs, err := client.Jobs(context.Background(), casjobs.JobSearch{"jobid": id.String()})
	if err != nil {
		t.Fatalf("Jobs returned error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].JobID != id {
		t.Errorf("expected job %d, got %d", id, jobs[0].JobID)
	}
	if jobs[0].Status != casjobs.StatusFinished {
		t.Errorf("expected finished, got %s", jobs[0].Status)
	}
	if jobs[0].OutputLoc == "" {
		t.Error("expected a non-empty output location")
	}
}

func TestSubmitExtractRejectsUnknownFormat(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	client := newTestClient(server)
	if _, err := client.SubmitExtract(context.Background(), "MyTable", "XLSX"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if len(server.Submissions()) != 0 {
		t.Error("invalid format should be rejected before hitting the service")
	}
}

func TestDownloadMatchesOutput(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	canned := []byte("ra,dec\n1.1,2.2\n3.3,4.4\n")
	server.SetOutput(canned)

	client := newTestClient(server)
	id, err := client.SubmitExtract(context.Background(), "MyTable", casjobs.FormatCSV)
	if err != nil {
		t.Fatalf("SubmitExtract returned error: %v", err)
	}

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), id, &buf)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if n != int64(len(canned)) {
		t.Errorf("expected %d bytes, got %d", len(canned), n)
	}
	if !bytes.Equal(buf.Bytes(), canned) {
		t.Errorf("downloaded output does not match: %q", buf.Bytes())
	}
}

func TestOutputURLBeforeFinished(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	id := server.CreateJob(casjobs.StatusStarted)
	client := newTestClient(server)

	_, err := client.OutputURL(context.Background(), id)
	if !errors.Is(err, casjobs.ErrJobNotFinished) {
		t.Fatalf("expected ErrJobNotFinished, got %v", err)
	}
}

func TestExtractTable(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	canned := []byte("objid,ra\n1,2\n")
	server.SetOutput(canned)

	client := newTestClient(server, casjobs.WithPollInterval(5*time.Millisecond))
	var buf bytes.Buffer
	if err := client.ExtractTable(context.Background(), "MyTable", casjobs.FormatCSV, &buf); err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), canned) {
		t.Errorf("extracted output does not match: %q", buf.Bytes())
	}
}

func TestDropTable(t *testing.T) {
	server := casjobstest.NewServer()
	defer server.Close()

	client := newTestClient(server, casjobs.WithPollInterval(5*time.Millisecond))
	if err := client.DropTable(context.Background(), "OldTable"); err != nil {
		t.Fatalf("DropTable returned error: %v", err)
	}

	subs := server.Submissions()
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	if subs[0].Query != "DROP TABLE OldTable" {
		t.Errorf("unexpected query: %s", subs[0].Query)
	}
	if subs[0].Context != "MYDB" {
		t.Errorf("expected MYDB context, got %s", subs[0].Context)
	}
}

func TestTransportErrorOnUnreachableService(t *testing.T) {
	client := casjobs.New(42, "secret", casjobs.WithBaseURL("http://127.0.0.1:1"))

	_, err := client.Submit(context.Background(), "SELECT 1")

	var tErr *casjobs.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
