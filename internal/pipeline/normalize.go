package pipeline

import (
	"encoding/json"
	"strconv"

	"github.com/carevault/reportflow/internal/models"
)

// Normalize reshapes candidate records into persistable reports under the
// given schema. An empty candidate sequence yields an empty output, never an
// error.
func Normalize(schema models.ReportSchema, candidates []models.CandidateRecord) []models.Report {
	reports := make([]models.Report, 0, len(candidates))
	for _, c := range candidates {
		reports = append(reports, normalizeOne(schema, c))
	}
	return reports
}

func normalizeOne(schema models.ReportSchema, c models.CandidateRecord) models.Report {
	r := models.Report{
		Schema:   schema,
		Doctor:   stringField(c, "doctor"),
		Hospital: stringField(c, "hospital"),
		Date:     stringField(c, "date"),
		Summary:  stringField(c, "summary"),
	}

	switch schema {
	case models.SchemaLab:
		r.ReportType = stringField(c, "report_type")
		r.SourceURI = stringField(c, "sourceURI")
		r.Tests = labTests(c["tests"])
	default:
		r.Title = stringField(c, "title")
		r.Category = stringField(c, "category")
		r.ImageURL = stringField(c, "imageUrl")
		r.AdditionalDetails = detailBag(c["additionalDetails"])
		PromoteNestedSummary(&r)
	}

	return r
}

// PromoteNestedSummary moves a "summary" key nested in the detail bag into
// the top-level Summary field and removes it from the bag. An existing
// top-level value wins. Idempotent: a second run finds no nested key left.
func PromoteNestedSummary(r *models.Report) {
	nested, ok := r.AdditionalDetails["summary"]
	if !ok {
		return
	}
	if r.Summary == "" {
		r.Summary = nested
	}
	delete(r.AdditionalDetails, "summary")
}

func stringField(c models.CandidateRecord, key string) string {
	return stringify(c[key])
}

// detailBag flattens an untyped detail object into string-to-string form.
// A missing or malformed bag becomes an empty one.
func detailBag(v any) map[string]string {
	bag := make(map[string]string)
	obj, ok := v.(map[string]any)
	if !ok {
		return bag
	}
	for k, val := range obj {
		bag[k] = stringify(val)
	}
	return bag
}

func labTests(v any) []models.LabTest {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	tests := make([]models.LabTest, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tests = append(tests, models.LabTest{
			Name:   stringify(obj["name"]),
			Value:  stringify(obj["value"]),
			Unit:   stringify(obj["unit"]),
			Range:  stringify(obj["range"]),
			Status: stringify(obj["status"]),
		})
	}
	return tests
}

// stringify renders a decoded JSON value as the plain string the record
// schema stores. Unknown and null values become empty strings.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
