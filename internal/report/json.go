package report

import (
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/advanced-computing/sleepy-narwhal/internal/pipeline"
)

// Document is the JSON report.
type Document struct {
	Job       string             `json:"job"`
	Generated time.Time          `json:"generated"`
	Results   []*pipeline.Result `json:"results"`
	Errors    []string           `json:"errors,omitempty"`
}

// JSON writes results as one indented Document. errs are the per-dataset
// failures, rendered as strings.
func JSON(w io.Writer, job string, results []*pipeline.Result, errs []error) error {
	doc := Document{Job: job, Generated: now().UTC(), Results: results}
	for _, err := range errs {
		if err != nil {
			doc.Errors = append(doc.Errors, err.Error())
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var now = time.Now
