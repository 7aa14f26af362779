// Package casjobstest provides an in-process fake of the CasJobs service
// for tests. The fake speaks just enough of the jobs.asmx wire dialect for
// the client in the parent package: scalar XML replies, CJJob listings,
// and scriptable per-job status sequences.
package casjobstest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/dfm/casjobs"
)

const xmlNamespace = "http://Services.Cas.jhu.edu"

// Submission records one query submitted to the fake service.
type Submission struct {
	Op       string
	Query    string
	Context  string
	TaskName string
}

type jobRecord struct {
	taskName  string
	seq       []casjobs.Status
	calls     int
	outputLoc string
}

// current is the status the job shows right now, without advancing the
// script.
func (j *jobRecord) current() casjobs.Status {
	idx := j.calls
	if idx >= len(j.seq) {
		idx = len(j.seq) - 1
	}
	return j.seq[idx]
}

// Server is a fake CasJobs service backed by httptest.
type Server struct {
	mu sync.Mutex

	srv *httptest.Server

	requireAuth bool
	wsid        string
	password    string

	nextID       int64
	jobs         map[int64]*jobRecord
	submissions  []Submission
	quickResult  string
	output       []byte
	rejectSubmit string
}

// NewServer starts a fake service. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		nextID:      1000,
		jobs:        make(map[int64]*jobRecord),
		quickResult: "Column1\n0",
	}

	r := mux.NewRouter()
	r.HandleFunc("/SubmitJob", s.handleSubmit).Methods("GET")
	r.HandleFunc("/ExecuteQuickJob", s.handleQuick).Methods("GET")
	r.HandleFunc("/GetJobStatus", s.handleStatus).Methods("GET")
	r.HandleFunc("/CancelJob", s.handleCancel).Methods("GET")
	r.HandleFunc("/GetJobs", s.handleJobs).Methods("GET")
	r.HandleFunc("/SubmitExtractJob", s.handleExtract).Methods("GET")
	r.HandleFunc("/output/{id}", s.handleOutput).Methods("GET")

	s.srv = httptest.NewServer(r)
	return s
}

// URL is the base URL of the fake service, suitable for
// casjobs.WithBaseURL.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the fake service down.
func (s *Server) Close() { s.srv.Close() }

// RequireAuth makes every operation check credentials and reply 401 on
// mismatch. Without it the fake accepts anything.
func (s *Server) RequireAuth(wsid int, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = true
	s.wsid = strconv.Itoa(wsid)
	s.password = password
}

// RejectSubmissions makes SubmitJob reply 400 with the given message,
// simulating the service refusing a query.
func (s *Server) RejectSubmissions(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSubmit = message
}

// SetQuickResult sets the payload ExecuteQuickJob returns.
func (s *Server) SetQuickResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quickResult = result
}

// SetOutput sets the bytes served for every job's output file.
func (s *Server) SetOutput(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = data
}

// CreateJob registers a job whose successive GetJobStatus calls walk the
// given status sequence, sticking at the last entry.
func (s *Server) CreateJob(statuses ...casjobs.Status) casjobs.JobID {
	if len(statuses) == 0 {
		statuses = []casjobs.Status{casjobs.StatusFinished}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return casjobs.JobID(s.newJobLocked("scripted", statuses))
}

// Submissions returns all queries submitted so far.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// StatusCalls reports how many GetJobStatus requests the fake has seen
// for a job.
func (s *Server) StatusCalls(id casjobs.JobID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[int64(id)]
	if !ok {
		return 0
	}
	return job.calls
}

func (s *Server) newJobLocked(taskName string, seq []casjobs.Status) int64 {
	id := s.nextID
	s.nextID++
	s.jobs[id] = &jobRecord{
		taskName:  taskName,
		seq:       seq,
		outputLoc: s.srv.URL + "/output/" + strconv.FormatInt(id, 10),
	}
	return id
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request, wsidKey, pwKey string) bool {
	if !s.requireAuth {
		return true
	}
	q := r.URL.Query()
	if q.Get(wsidKey) != s.wsid || q.Get(pwKey) != s.password {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return false
	}
	return true
}

func writeScalar(w http.ResponseWriter, tag, value string) {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(value))
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, "%s<%s xmlns=%q>%s</%s>", xml.Header, tag, xmlNamespace, escaped.String(), tag)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAuth(w, r, "wsid", "pw") {
		return
	}
	if s.rejectSubmit != "" {
		http.Error(w, s.rejectSubmit, http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	s.submissions = append(s.submissions, Submission{
		Op:       "SubmitJob",
		Query:    q.Get("qry"),
		Context:  q.Get("context"),
		TaskName: q.Get("taskname"),
	})
	id := s.newJobLocked(q.Get("taskname"), []casjobs.Status{casjobs.StatusFinished})
	writeScalar(w, "long", strconv.FormatInt(id, 10))
}

func (s *Server) handleQuick(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAuth(w, r, "wsid", "pw") {
		return
	}
	q := r.URL.Query()
	s.submissions = append(s.submissions, Submission{
		Op:       "ExecuteQuickJob",
		Query:    q.Get("qry"),
		Context:  q.Get("context"),
		TaskName: q.Get("taskname"),
	})
	writeScalar(w, "string", s.quickResult)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAuth(w, r, "wsid", "pw") {
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("jobid"), 10, 64)
	if err != nil {
		http.Error(w, "bad jobid", http.StatusBadRequest)
		return
	}
	job, ok := s.jobs[id]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown job %d", id), http.StatusNotFound)
		return
	}
	st := job.current()
	job.calls++
	writeScalar(w, "int", strconv.Itoa(int(st)))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAuth(w, r, "wsid", "pw") {
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("jobid"), 10, 64)
	if err != nil {
		http.Error(w, "bad jobid", http.StatusBadRequest)
		return
	}
	job, ok := s.jobs[id]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown job %d", id), http.StatusNotFound)
		return
	}
	job.seq = []casjobs.Status{casjobs.StatusCancelled}
	job.calls = 0
	writeScalar(w, "string", "")
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAuth(w, r, "wsid", "pw") {
		return
	}
	q := r.URL.Query()
	s.submissions = append(s.submissions, Submission{
		Op:      "SubmitExtractJob",
		Query:   q.Get("tableName"),
		Context: q.Get("type"),
	})
	id := s.newJobLocked("extract "+q.Get("tableName"), []casjobs.Status{casjobs.StatusFinished})
	writeScalar(w, "long", strconv.FormatInt(id, 10))
}

type cjJobXML struct {
	XMLName    xml.Name `xml:"CJJob"`
	JobID      int64    `xml:"JobID"`
	Status     int      `xml:"Status"`
	TaskName   string   `xml:"TaskName"`
	OutputLoc  string   `xml:"OutputLoc"`
	TimeSubmit string   `xml:"TimeSubmit"`
	Rows       int64    `xml:"Rows"`
}

type arrayOfCJJob struct {
	XMLName xml.Name   `xml:"ArrayOfCJJob"`
	Jobs    []cjJobXML `xml:"CJJob"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAuth(w, r, "owner_wsid", "owner_pw") {
		return
	}

	var filterID int64 = -1
	for _, cond := range strings.Split(r.URL.Query().Get("conditions"), ";") {
		parts := strings.SplitN(cond, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == "jobid" {
			if id, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64); err == nil {
				filterID = id
			}
		}
	}

	list := arrayOfCJJob{}
	for id, job := range s.jobs {
		if filterID >= 0 && id != filterID {
			continue
		}
		list.Jobs = append(list.Jobs, cjJobXML{
			JobID:      id,
			Status:     int(job.current()),
			TaskName:   job.taskName,
			OutputLoc:  job.outputLoc,
			TimeSubmit: "1/1/2012 12:00:00 AM",
		})
	}

	data, err := xml.Marshal(list)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprint(w, xml.Header)
	w.Write(data)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "bad job id", http.StatusBadRequest)
		return
	}
	if _, ok := s.jobs[id]; !ok {
		http.Error(w, fmt.Sprintf("unknown job %d", id), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(s.output)
}
