package telemetry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ipPattern       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	userPattern     = regexp.MustCompile(`\buser\s+([\w.@-]+)`)
	durationPattern = regexp.MustCompile(`\blast\s+(\d+)\s*(minute|min|hour|hr)s?\b`)
)

const defaultQueryLimit = 200

// QueryTool answers free-text history requests from analysis agents.
// It extracts IPs, a user name and a time window from the query text
// and returns matching records as telemetry lines.
type QueryTool struct {
	sink *Sink
}

func NewQueryTool(sink *Sink) *QueryTool {
	return &QueryTool{sink: sink}
}

// Fetch resolves the query against stored records. An empty result is
// not an error; agents treat it as "no prior activity".
func (t *QueryTool) Fetch(query string) ([]string, error) {
	f := parseQuery(query)
	records, err := t.sink.Find(f)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, rec.CSVLine())
	}
	return lines, nil
}

func parseQuery(query string) Filter {
	f := Filter{Limit: defaultQueryLimit}
	lower := strings.ToLower(query)

	f.IPs = ipPattern.FindAllString(query, -1)

	if m := userPattern.FindStringSubmatch(lower); m != nil {
		f.User = m[1]
	}

	if m := durationPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := time.Minute
		if strings.HasPrefix(m[2], "h") {
			unit = time.Hour
		}
		f.Since = time.Now().Add(-time.Duration(n) * unit)
	}

	return f
}
