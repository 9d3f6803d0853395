package core

import "strings"

// Cardinality tells whether a join resolves to at most one document or many
type Cardinality uint8

const (
	CardOne Cardinality = iota + 1
	CardMany
)

func (c Cardinality) String() string {
	if c == CardMany {
		return "many"
	}
	return "one"
}

// JoinSpec describes an equality join against another collection.
// When Into is set the joined documents are folded into the already joined
// alias Into instead of being left as a top-level field.
type JoinSpec struct {
	Collection   string
	LocalField   string
	ForeignField string
	Alias        string
	Card         Cardinality
	Into         string
}

// JoinOption configures a join
type JoinOption func(*JoinSpec)

// Into merges the join result into the element(s) of a previously joined
// alias. The local field may be given relative to the parent alias or as the
// full dotted path.
func Into(parentAlias string) JoinOption {
	return func(j *JoinSpec) {
		j.Into = parentAlias
	}
}

func (j JoinSpec) nested() bool {
	return j.Into != ""
}

// localPath returns the local field as a path from the root document
func (j JoinSpec) localPath() string {
	if !j.nested() || strings.HasPrefix(j.LocalField, j.Into+".") {
		return j.LocalField
	}
	return j.Into + "." + j.LocalField
}

// relLocal returns the local field relative to the parent alias
func (j JoinSpec) relLocal() string {
	return strings.TrimPrefix(j.localPath(), j.Into+".")
}

// tempAlias is where a nested lookup lands before being merged
func (j JoinSpec) tempAlias() string {
	return "__" + j.Into + "_" + j.Alias
}
