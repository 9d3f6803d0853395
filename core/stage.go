package core

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// StageKind identifies a pipeline stage
type StageKind uint8

const (
	StageMatch StageKind = iota + 1
	StageLookup
	StageUnwind
	StageMerge
	StageSort
	StageSkip
	StageLimit
	StageCount
)

var stageNames = map[StageKind]string{
	StageMatch:  "match",
	StageLookup: "lookup",
	StageUnwind: "unwind",
	StageMerge:  "merge",
	StageSort:   "sort",
	StageSkip:   "skip",
	StageLimit:  "limit",
	StageCount:  "count",
}

func (k StageKind) String() string {
	if n, ok := stageNames[k]; ok {
		return n
	}
	return "unknown"
}

// Stage is one step of a compiled pipeline. Stages are immutable once built.
type Stage interface {
	Kind() StageKind
	// Render returns the driver documents for the stage, in order
	Render() []bson.D
}

type MatchStage struct {
	Filter bson.D
}

func (MatchStage) Kind() StageKind { return StageMatch }

func (s MatchStage) Render() []bson.D {
	return []bson.D{{{Key: "$match", Value: s.Filter}}}
}

type LookupStage struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

func (LookupStage) Kind() StageKind { return StageLookup }

func (s LookupStage) Render() []bson.D {
	return []bson.D{{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: s.From},
		{Key: "localField", Value: s.LocalField},
		{Key: "foreignField", Value: s.ForeignField},
		{Key: "as", Value: s.As},
	}}}}
}

// UnwindStage flattens a joined array. PreserveEmpty keeps rows whose
// array is missing or empty.
type UnwindStage struct {
	Path          string
	PreserveEmpty bool
}

func (UnwindStage) Kind() StageKind { return StageUnwind }

func (s UnwindStage) Render() []bson.D {
	return []bson.D{{{Key: "$unwind", Value: bson.D{
		{Key: "path", Value: "$" + s.Path},
		{Key: "preserveNullAndEmptyArrays", Value: s.PreserveEmpty},
	}}}}
}

// MergeStage folds the documents looked up into Temp back into the parent
// alias as field Alias, matching ForeignField against the parent's Local.
type MergeStage struct {
	Parent       string
	ParentCard   Cardinality
	Alias        string
	Card         Cardinality
	Temp         string
	Local        string
	ForeignField string
}

func (MergeStage) Kind() StageKind { return StageMerge }

func (s MergeStage) Render() []bson.D {
	var value any

	if s.ParentCard == CardMany {
		value = bson.D{{Key: "$map", Value: bson.D{
			{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + s.Parent, bson.A{}}}}},
			{Key: "as", Value: "el"},
			{Key: "in", Value: bson.D{{Key: "$mergeObjects", Value: bson.A{
				"$$el",
				bson.D{{Key: s.Alias, Value: s.pick("$$el." + s.Local)}},
			}}}},
		}}}
	} else {
		// leave a missing or null parent untouched
		value = bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$" + s.Parent}}, "object"}}},
			bson.D{{Key: "$mergeObjects", Value: bson.A{
				"$" + s.Parent,
				bson.D{{Key: s.Alias, Value: s.pick("$" + s.Parent + "." + s.Local)}},
			}}},
			"$" + s.Parent,
		}}}
	}

	return []bson.D{
		{{Key: "$addFields", Value: bson.D{{Key: s.Parent, Value: value}}}},
		{{Key: "$project", Value: bson.D{{Key: s.Temp, Value: 0}}}},
	}
}

// pick selects the joined documents whose foreign field equals key
func (s MergeStage) pick(key string) any {
	matched := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: "$" + s.Temp},
		{Key: "as", Value: "j"},
		{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$j." + s.ForeignField, key}}}},
	}}}
	if s.Card == CardMany {
		return matched
	}
	return bson.D{{Key: "$arrayElemAt", Value: bson.A{matched, 0}}}
}

type SortStage struct {
	Fields []SortField
}

func (SortStage) Kind() StageKind { return StageSort }

func (s SortStage) Render() []bson.D {
	// bson.D keeps key order, which decides sort precedence
	d := make(bson.D, 0, len(s.Fields))
	for _, f := range s.Fields {
		d = append(d, bson.E{Key: f.Field, Value: f.Dir})
	}
	return []bson.D{{{Key: "$sort", Value: d}}}
}

type SkipStage struct {
	N int64
}

func (SkipStage) Kind() StageKind { return StageSkip }

func (s SkipStage) Render() []bson.D {
	return []bson.D{{{Key: "$skip", Value: s.N}}}
}

type LimitStage struct {
	N int64
}

func (LimitStage) Kind() StageKind { return StageLimit }

func (s LimitStage) Render() []bson.D {
	return []bson.D{{{Key: "$limit", Value: s.N}}}
}

type CountStage struct {
	Field string
}

func (CountStage) Kind() StageKind { return StageCount }

func (s CountStage) Render() []bson.D {
	return []bson.D{{{Key: "$count", Value: s.Field}}}
}

// Pipeline is an ordered, immutable list of stages bound to a collection
type Pipeline struct {
	Collection string
	stages     []Stage
}

// Stages returns a copy of the stage list
func (p Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

func (p Pipeline) Len() int { return len(p.stages) }

// Kinds lists the stage kinds in order
func (p Pipeline) Kinds() []StageKind {
	kinds := make([]StageKind, len(p.stages))
	for i, s := range p.stages {
		kinds[i] = s.Kind()
	}
	return kinds
}

// BSON renders the pipeline as a list of stage documents
func (p Pipeline) BSON() bson.A {
	out := make(bson.A, 0, len(p.stages))
	for _, s := range p.stages {
		for _, d := range s.Render() {
			out = append(out, d)
		}
	}
	return out
}

// withTail returns a pipeline sharing the receiver's stages plus tail. The
// shared prefix is copied into a fresh slice so appends never alias.
func (p Pipeline) withTail(tail ...Stage) Pipeline {
	stages := make([]Stage, 0, len(p.stages)+len(tail))
	stages = append(stages, p.stages...)
	stages = append(stages, tail...)
	return Pipeline{Collection: p.Collection, stages: stages}
}
