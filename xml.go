package casjobs

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The service speaks the bare XML dialect of classic .asmx endpoints:
// scalar results arrive as a single element like <long>123</long> and job
// listings as an <ArrayOfCJJob> of <CJJob> records. innerText pulls the
// character data out of the first element with the given local name,
// ignoring namespaces.
func innerText(body []byte, tag string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("element <%s> not found in response", tag)
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != tag {
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return "", fmt.Errorf("failed to decode <%s>: %w", tag, err)
		}
		return text, nil
	}
}

func innerInt64(body []byte, tag string) (int64, error) {
	text, err := innerText(body, tag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected <%s> payload %q: %w", tag, text, err)
	}
	return n, nil
}

// cjJob mirrors the wire layout of a CJJob record. Only the fields the
// client exposes are decoded; everything else is ignored.
type cjJob struct {
	JobID      int64  `xml:"JobID"`
	Status     int    `xml:"Status"`
	TaskName   string `xml:"TaskName"`
	Query      string `xml:"Query"`
	Context    string `xml:"Context"`
	Type       string `xml:"Type"`
	OutputLoc  string `xml:"OutputLoc"`
	TimeSubmit string `xml:"TimeSubmit"`
	TimeStart  string `xml:"TimeStart"`
	TimeEnd    string `xml:"TimeEnd"`
	Rows       int64  `xml:"Rows"`
	Error      string `xml:"Error"`
}

func parseJobList(body []byte) ([]JobInfo, error) {
	var list struct {
		Jobs []cjJob `xml:"CJJob"`
	}
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse job list: %w", err)
	}
	infos := make([]JobInfo, 0, len(list.Jobs))
	for _, j := range list.Jobs {
		infos = append(infos, JobInfo{
			JobID:      JobID(j.JobID),
			Status:     Status(j.Status),
			TaskName:   j.TaskName,
			Query:      j.Query,
			Context:    j.Context,
			Type:       j.Type,
			OutputLoc:  j.OutputLoc,
			TimeSubmit: j.TimeSubmit,
			TimeStart:  j.TimeStart,
			TimeEnd:    j.TimeEnd,
			Rows:       j.Rows,
			Error:      j.Error,
		})
	}
	return infos, nil
}
