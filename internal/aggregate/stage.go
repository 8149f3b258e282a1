// Package aggregate builds the MongoDB aggregation pipelines used to read
// posts. Stages come from a closed set of typed values so callers cannot
// assemble arbitrary documents.
package aggregate

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Stage is one step of a pipeline. Only types in this package implement it.
type Stage interface {
	document() bson.D
}

// Match filters documents.
type Match struct {
	Filter bson.D
}

// Sort orders documents by Keys (1 ascending, -1 descending).
type Sort struct {
	Keys bson.D
}

// Skip drops the first N documents.
type Skip struct {
	N int64
}

// Limit keeps at most N documents.
type Limit struct {
	N int64
}

// Lookup joins documents from another collection by equality of fields.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// AddFields computes new fields or overwrites existing ones.
type AddFields struct {
	Fields bson.D
}

// Project excludes fields from the output.
type Project struct {
	Exclude []string
}

func (s Match) document() bson.D {
	filter := s.Filter
	if filter == nil {
		filter = bson.D{}
	}
	return bson.D{{Key: "$match", Value: filter}}
}

func (s Sort) document() bson.D {
	return bson.D{{Key: "$sort", Value: s.Keys}}
}

func (s Skip) document() bson.D {
	return bson.D{{Key: "$skip", Value: s.N}}
}

func (s Limit) document() bson.D {
	return bson.D{{Key: "$limit", Value: s.N}}
}

func (s Lookup) document() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: s.From},
		{Key: "localField", Value: s.LocalField},
		{Key: "foreignField", Value: s.ForeignField},
		{Key: "as", Value: s.As},
	}}}
}

func (s AddFields) document() bson.D {
	return bson.D{{Key: "$addFields", Value: s.Fields}}
}

func (s Project) document() bson.D {
	fields := make(bson.D, 0, len(s.Exclude))
	for _, f := range s.Exclude {
		fields = append(fields, bson.E{Key: f, Value: 0})
	}
	return bson.D{{Key: "$project", Value: fields}}
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// BSON renders the pipeline for the driver.
func (p Pipeline) BSON() mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(p))
	for _, s := range p {
		out = append(out, s.document())
	}
	return out
}
