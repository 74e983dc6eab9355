package trace

import (
	"context"

	"github.com/sarchlab/pagesim/datarecording"
)

// Summary counts the events of a recorded run.
type Summary struct {
	Total    int
	ByPos    map[string]int
	ByDomain map[string]int
}

// Filter restricts the events that are read back. Empty fields match every
// event.
type Filter struct {
	Pos    string
	Domain string
}

func (f Filter) params() datarecording.QueryParams {
	var (
		where string
		args  []any
	)

	add := func(column, value string) {
		if value == "" {
			return
		}

		if where != "" {
			where += " AND "
		}

		where += column + " = ?"
		args = append(args, value)
	}

	add("Pos", f.Pos)
	add("Domain", f.Domain)

	return datarecording.QueryParams{Where: where, Args: args}
}

// Summarize counts the recorded events per hook position and per domain.
func Summarize(
	ctx context.Context,
	reader datarecording.DataReader,
	filter Filter,
) (Summary, error) {
	reader.MapTable(TableName, Event{})

	params := filter.params()

	byPos, err := reader.CountBy(ctx, TableName, "Pos", params)
	if err != nil {
		return Summary{}, err
	}

	byDomain, err := reader.CountBy(ctx, TableName, "Domain", params)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{ByPos: byPos, ByDomain: byDomain}
	for _, n := range byPos {
		s.Total += n
	}

	return s, nil
}

// Last returns the last n recorded events that match filter, oldest first.
func Last(
	ctx context.Context,
	reader datarecording.DataReader,
	filter Filter,
	n int,
) ([]Event, error) {
	reader.MapTable(TableName, Event{})

	params := filter.params()
	params.OrderBy = "Seq DESC"
	params.Limit = n

	results, _, err := reader.Query(ctx, TableName, params)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(results))
	for i, r := range results {
		events[len(results)-1-i] = *r.(*Event)
	}

	return events, nil
}
