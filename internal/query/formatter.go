package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/akumuli/akumulid-edge/internal/model"
)

// Formatter renders one sample as a self-contained textual record. The
// formatter is chosen once, when the pooler starts, by the
// ApiEndpoint tag the HTTP layer supplies — not re-dispatched per sample
// (spec.md's design note on formatter polymorphism).
type Formatter interface {
	Format(s model.Sample) []byte
}

// newFormatter returns the Formatter bound to endpoint.
func newFormatter(endpoint model.ApiEndpoint) Formatter {
	switch endpoint {
	case model.EndpointSuggest:
		return suggestFormatter{}
	case model.EndpointSearch:
		return searchFormatter{}
	default:
		return queryFormatter{}
	}
}

// queryFormatter renders the full sample as newline-delimited
// "series timestamp value" triples, for the default range-query endpoint.
type queryFormatter struct{}

func (queryFormatter) Format(s model.Sample) []byte {
	var b strings.Builder
	b.WriteString(s.Series)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(s.Timestamp, 10))
	b.WriteByte(' ')
	switch s.Kind {
	case model.PayloadTuple:
		parts := make([]string, len(s.Tuple))
		for i, v := range s.Tuple {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		b.WriteString(strings.Join(parts, ","))
	case model.PayloadBlob:
		b.WriteString(fmt.Sprintf("<%d bytes>", len(s.Blob)))
	default:
		b.WriteString(strconv.FormatFloat(s.Value, 'g', -1, 64))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// suggestFormatter renders only the series name, one per line, for
// autocomplete-style suggest requests.
type suggestFormatter struct{}

func (suggestFormatter) Format(s model.Sample) []byte {
	return []byte(s.Series + "\n")
}

// searchFormatter renders series name and timestamp, for metadata search
// requests that don't need the value payload.
type searchFormatter struct{}

func (searchFormatter) Format(s model.Sample) []byte {
	return []byte(fmt.Sprintf("%s %d\n", s.Series, s.Timestamp))
}
