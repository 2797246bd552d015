package docdb

// Lookup describes a join with a foreign collection. The joined documents
// are embedded under As; the subsequent unwind keeps only records with a
// matching foreign document, i.e. inner-join semantics.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// Plan is the result of BuildQuery. When Pipeline is nil the query runs as
// a plain find with Filter and Options; otherwise the pipeline runs as an
// aggregation. Single marks queries that want the first match only.
type Plan struct {
	Pipeline []Document
	Filter   Document
	Options  FindOptions
	Single   bool
}

// BuildQuery assembles a query plan from a filter, the requested joins, an
// optional grouping specification, sorting and pagination.
//
// Joins and grouping always come first so that the filter and the sort may
// reference joined or grouped fields. The stage order is fixed:
//
//	[$lookup + $unwind]* -> [$group] -> [$match] -> [$sort] -> [$limit] -> [$skip]
//
// Single-result queries get a limit of one regardless of the passed limit.
// A query without joins and grouping stays a plain find.
func BuildQuery(filter Document, lookups []Lookup, group Document, sort []SortField, skip, limit int64, single bool) Plan {
	var pipeline []Document

	for _, l := range lookups {
		pipeline = append(pipeline,
			Document{"$lookup": Document{
				"from":         l.From,
				"localField":   l.LocalField,
				"foreignField": l.ForeignField,
				"as":           l.As,
			}},
			Document{"$unwind": "$" + l.As},
		)
	}

	if len(group) > 0 {
		pipeline = append(pipeline, Document{"$group": group})
	}

	if len(pipeline) == 0 {
		return Plan{
			Filter: filter,
			Options: FindOptions{
				Sort:  sort,
				Limit: effectiveLimit(limit, single),
				Skip:  skip,
			},
			Single: single,
		}
	}

	if len(filter) > 0 {
		pipeline = append(pipeline, Document{"$match": filter})
	}
	if len(sort) > 0 {
		sortDoc := Document{}
		for _, s := range sort {
			sortDoc[s.Field] = s.Direction
		}
		pipeline = append(pipeline, Document{"$sort": sortDoc})
	}
	pipeline = append(pipeline, Document{"$limit": effectiveLimit(limit, single)})
	if skip > 0 {
		pipeline = append(pipeline, Document{"$skip": skip})
	}

	return Plan{Pipeline: pipeline, Single: single}
}

func effectiveLimit(limit int64, single bool) int64 {
	if single {
		return 1
	}
	return limit
}
