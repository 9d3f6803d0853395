package mongodriver

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// FieldInfo describes a field found in a collection.
type FieldInfo struct {
	Name     string `json:"name"`
	BSONType string `json:"bson_type"`
	Required bool   `json:"required"`
	IsArray  bool   `json:"is_array"`
	// Seen counts the sampled documents carrying the field.
	Seen int `json:"seen"`
}

// Fields describes the top-level fields of a collection. Fields declared by
// a $jsonSchema validator take precedence; the rest are discovered from a
// random sample of sampleSize documents. The result is sorted by name.
func (s *Store) Fields(ctx context.Context, collection string, sampleSize int) ([]FieldInfo, error) {
	if sampleSize <= 0 {
		sampleSize = 100
	}

	schema, err := s.validatorFields(ctx, collection)
	if err != nil {
		return nil, err
	}
	sampled, err := s.sampleFields(ctx, collection, sampleSize)
	if err != nil {
		return nil, err
	}

	merged := mergeFields(schema, sampled)
	out := make([]FieldInfo, 0, len(merged))
	for _, f := range merged {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// validatorFields reads the $jsonSchema validator of a collection, if any.
func (s *Store) validatorFields(ctx context.Context, collection string) (map[string]FieldInfo, error) {
	fields := make(map[string]FieldInfo)

	cursor, err := s.db.ListCollections(ctx, bson.D{{Key: "name", Value: s.Name(collection)}})
	if err != nil {
		return nil, fmt.Errorf("mongodriver: list collections: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	if !cursor.Next(ctx) {
		return fields, cursor.Err()
	}

	var info struct {
		Options struct {
			Validator struct {
				JSONSchema struct {
					Properties map[string]struct {
						BSONType any `bson:"bsonType"`
					} `bson:"properties"`
					Required []string `bson:"required"`
				} `bson:"$jsonSchema"`
			} `bson:"validator"`
		} `bson:"options"`
	}
	if err := cursor.Decode(&info); err != nil {
		return nil, fmt.Errorf("mongodriver: decode collection info: %w", err)
	}

	required := make(map[string]bool)
	for _, r := range info.Options.Validator.JSONSchema.Required {
		required[r] = true
	}

	for name, prop := range info.Options.Validator.JSONSchema.Properties {
		t := normalizeBSONType(prop.BSONType)
		fields[name] = FieldInfo{
			Name:     name,
			BSONType: t,
			Required: required[name],
			IsArray:  t == "array",
		}
	}
	return fields, nil
}

func (s *Store) sampleFields(ctx context.Context, collection string, size int) (map[string]FieldInfo, error) {
	fields := make(map[string]FieldInfo)

	pipeline := bson.A{bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: size}}}}}
	cursor, err := s.coll(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: sample %s: %w", collection, err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			s.log.Debug("sample: skipping document")
			continue
		}
		observeFields(fields, doc)
	}
	return fields, cursor.Err()
}

// observeFields records the fields of one document. The first non-null
// type seen for a field wins.
func observeFields(fields map[string]FieldInfo, doc bson.M) {
	for key, val := range doc {
		f, ok := fields[key]
		if !ok {
			f = FieldInfo{Name: key, Required: key == "_id"}
		}
		if f.BSONType == "" || f.BSONType == "null" {
			f.BSONType = inferBSONType(val)
			f.IsArray = f.BSONType == "array"
		}
		f.Seen++
		fields[key] = f
	}
}

// inferBSONType determines the BSON type name of a decoded value.
func inferBSONType(v any) string {
	if v == nil {
		return "null"
	}

	switch v.(type) {
	case bson.ObjectID:
		return "objectId"
	case string:
		return "string"
	case int32:
		return "int"
	case int, int64:
		return "long"
	case float32, float64:
		return "double"
	case bson.Decimal128:
		return "decimal"
	case bool:
		return "bool"
	case bson.DateTime:
		return "date"
	case bson.A, []any:
		return "array"
	case bson.M, bson.D, map[string]any:
		return "object"
	case bson.Binary:
		return "binData"
	default:
		rt := reflect.TypeOf(v)
		switch rt.Kind() {
		case reflect.Slice, reflect.Array:
			return "array"
		case reflect.Map, reflect.Struct:
			return "object"
		}
		return "string"
	}
}

// normalizeBSONType handles bsonType given as a string or a list of them.
func normalizeBSONType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bson.A:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return "string"
}

// mergeFields prefers schema fields and adds the sampled ones the schema
// does not declare.
func mergeFields(schema, sampled map[string]FieldInfo) map[string]FieldInfo {
	out := make(map[string]FieldInfo, len(schema)+len(sampled))
	for k, v := range schema {
		if sv, ok := sampled[k]; ok {
			v.Seen = sv.Seen
		}
		out[k] = v
	}
	for k, v := range sampled {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
