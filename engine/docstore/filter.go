package docstore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phisdata/phis-dal/engine/domain"
)

// Filter selects measurements. Zero fields do not constrain.
type Filter struct {
	Variable   domain.ResourceURI
	Object     domain.ResourceURI
	Provenance domain.ResourceURI
	Start, End time.Time
	// Descending sorts newest first.
	Descending bool
	Page       int
	PageSize   int
}

// Document renders the filter as a query document.
func (f Filter) Document() bson.D {
	doc := bson.D{}
	for _, eq := range []struct {
		field string
		value domain.ResourceURI
	}{
		{"variable", f.Variable},
		{"object", f.Object},
		{"provenance", f.Provenance},
	} {
		if !eq.value.IsZero() {
			doc = append(doc, bson.E{Key: eq.field, Value: string(eq.value)})
		}
	}
	var date bson.D
	if !f.Start.IsZero() {
		date = append(date, bson.E{Key: "$gte", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		date = append(date, bson.E{Key: "$lte", Value: f.End.UTC()})
	}
	if len(date) > 0 {
		doc = append(doc, bson.E{Key: "date", Value: date})
	}
	return doc
}

func (f Filter) findOptions() *options.FindOptions {
	dir := 1
	if f.Descending {
		dir = -1
	}
	o := options.Find().SetSort(bson.D{{Key: "date", Value: dir}})
	if f.PageSize > 0 {
		page := f.Page
		if page < 0 {
			page = 0
		}
		o.SetSkip(int64(page * f.PageSize)).SetLimit(int64(f.PageSize))
	}
	return o
}
