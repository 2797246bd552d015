package docdb

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process implementation of Store. It backs the package
// tests and lets the example service run without a database. It supports
// the query surface the framework generates: equality filters plus the
// $in and $exists operators, lookup joins with unwind, grouping with the
// $first and $sum accumulators, sorting and pagination.
type Memory struct {
	mutex       sync.RWMutex
	collections map[string][]Document
	uniques     map[string][][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]Document),
		uniques:     make(map[string][][]string),
	}
}

// Find implements Store.
func (m *Memory) Find(ctx context.Context, collection string, filter Document, opt FindOptions) ([]Document, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []Document
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			result = append(result, clone(doc))
		}
	}
	sortDocuments(result, opt.Sort)
	result = paginate(result, opt.Skip, opt.Limit)
	return result, nil
}

// FindOne implements Store.
func (m *Memory) FindOne(ctx context.Context, collection string, filter Document) (Document, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			return clone(doc), nil
		}
	}
	return nil, ErrNoDocuments
}

// InsertOne implements Store.
func (m *Memory) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, fields := range m.uniques[collection] {
		probe := Document{}
		for _, f := range fields {
			value, ok := doc[f]
			if !ok {
				probe = nil
				break
			}
			probe[f] = value
		}
		if len(probe) == 0 {
			continue
		}
		for _, existing := range m.collections[collection] {
			if matches(existing, probe) {
				return "", ErrDuplicateKey
			}
		}
	}

	m.collections[collection] = append(m.collections[collection], clone(doc))
	id, _ := doc["_id"].(string)
	return id, nil
}

// UpdateOne implements Store.
func (m *Memory) UpdateOne(ctx context.Context, collection string, filter Document, set Document) (int64, int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, doc := range m.collections[collection] {
		if !matches(doc, filter) {
			continue
		}
		updated := clone(doc)
		changed := false
		for key, value := range set {
			if !reflect.DeepEqual(updated[key], value) {
				updated[key] = value
				changed = true
			}
		}
		if changed {
			for _, fields := range m.uniques[collection] {
				probe := Document{}
				for _, f := range fields {
					if value, ok := updated[f]; ok {
						probe[f] = value
					}
				}
				if len(probe) == 0 {
					continue
				}
				for j, other := range m.collections[collection] {
					if j != i && matches(other, probe) {
						return 0, 0, ErrDuplicateKey
					}
				}
			}
			m.collections[collection][i] = updated
			return 1, 1, nil
		}
		return 1, 0, nil
	}
	return 0, 0, nil
}

// DeleteOne implements Store.
func (m *Memory) DeleteOne(ctx context.Context, collection string, filter Document) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	docs := m.collections[collection]
	for i, doc := range docs {
		if matches(doc, filter) {
			m.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// Aggregate implements Store.
func (m *Memory) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var docs []Document
	for _, doc := range m.collections[collection] {
		docs = append(docs, clone(doc))
	}

	for _, stage := range pipeline {
		var err error
		docs, err = m.applyStage(docs, stage)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// CreateIndex implements Store.
func (m *Memory) CreateIndex(ctx context.Context, collection string, fields []string, unique bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if unique {
		m.uniques[collection] = append(m.uniques[collection], fields)
	}
	return nil
}

func (m *Memory) applyStage(docs []Document, stage Document) ([]Document, error) {
	for name, spec := range stage {
		switch name {
		case "$lookup":
			return m.applyLookup(docs, spec)
		case "$unwind":
			return applyUnwind(docs, spec)
		case "$group":
			return applyGroup(docs, spec)
		case "$match":
			filter, _ := spec.(Document)
			var result []Document
			for _, doc := range docs {
				if matches(doc, filter) {
					result = append(result, doc)
				}
			}
			return result, nil
		case "$sort":
			sortSpec, _ := spec.(Document)
			var fields []SortField
			for field, direction := range sortSpec {
				fields = append(fields, SortField{Field: field, Direction: int(toInt64(direction))})
			}
			sortDocuments(docs, fields)
			return docs, nil
		case "$limit":
			limit := toInt64(spec)
			if int64(len(docs)) > limit {
				docs = docs[:limit]
			}
			return docs, nil
		case "$skip":
			skip := toInt64(spec)
			if int64(len(docs)) <= skip {
				return nil, nil
			}
			return docs[skip:], nil
		default:
			return nil, fmt.Errorf("unsupported pipeline stage %s", name)
		}
	}
	return docs, nil
}

func (m *Memory) applyLookup(docs []Document, spec interface{}) ([]Document, error) {
	lookup, ok := spec.(Document)
	if !ok {
		return nil, fmt.Errorf("malformed $lookup stage")
	}
	from, _ := lookup["from"].(string)
	localField, _ := lookup["localField"].(string)
	foreignField, _ := lookup["foreignField"].(string)
	as, _ := lookup["as"].(string)

	for _, doc := range docs {
		var joined []interface{}
		localValue, hasLocal := doc[localField]
		if hasLocal {
			for _, foreign := range m.collections[from] {
				if reflect.DeepEqual(foreign[foreignField], localValue) {
					joined = append(joined, clone(foreign))
				}
			}
		}
		doc[as] = joined
	}
	return docs, nil
}

func applyUnwind(docs []Document, spec interface{}) ([]Document, error) {
	path, ok := spec.(string)
	if !ok || len(path) < 2 || path[0] != '$' {
		return nil, fmt.Errorf("malformed $unwind stage")
	}
	field := path[1:]

	var result []Document
	for _, doc := range docs {
		elements, _ := doc[field].([]interface{})
		for _, element := range elements {
			unwound := clone(doc)
			unwound[field] = element
			result = append(result, unwound)
		}
	}
	return result, nil
}

func applyGroup(docs []Document, spec interface{}) ([]Document, error) {
	group, ok := spec.(Document)
	if !ok {
		return nil, fmt.Errorf("malformed $group stage")
	}

	keyed := map[string]Document{}
	var order []string
	for _, doc := range docs {
		key := fmt.Sprintf("%v", resolveExpression(doc, group["_id"]))
		bucket, exists := keyed[key]
		if !exists {
			bucket = Document{"_id": resolveExpression(doc, group["_id"])}
			keyed[key] = bucket
			order = append(order, key)
		}
		for field, accumulator := range group {
			if field == "_id" {
				continue
			}
			acc, _ := accumulator.(Document)
			for op, expr := range acc {
				switch op {
				case "$first":
					if _, ok := bucket[field]; !ok {
						bucket[field] = resolveExpression(doc, expr)
					}
				case "$sum":
					current, _ := bucket[field].(float64)
					bucket[field] = current + toFloat64(resolveExpression(doc, expr))
				default:
					return nil, fmt.Errorf("unsupported accumulator %s", op)
				}
			}
		}
	}

	result := make([]Document, 0, len(order))
	for _, key := range order {
		result = append(result, keyed[key])
	}
	return result, nil
}

func resolveExpression(doc Document, expr interface{}) interface{} {
	if path, ok := expr.(string); ok && len(path) > 1 && path[0] == '$' {
		return lookupPath(doc, path[1:])
	}
	return expr
}

// matches evaluates a filter against a document. Values compare by deep
// equality; the $in and $exists operators are supported, dotted paths
// descend into embedded documents.
func matches(doc Document, filter Document) bool {
	for field, condition := range filter {
		value := lookupPath(doc, field)
		if operators, ok := condition.(Document); ok && isOperatorDoc(operators) {
			for op, operand := range operators {
				switch op {
				case "$in":
					if !containsValue(operand, value) {
						return false
					}
				case "$exists":
					want, _ := operand.(bool)
					if (value != nil) != want {
						return false
					}
				default:
					return false
				}
			}
			continue
		}
		if !reflect.DeepEqual(value, condition) {
			return false
		}
	}
	return true
}

func isOperatorDoc(doc Document) bool {
	for key := range doc {
		return len(key) > 0 && key[0] == '$'
	}
	return false
}

func containsValue(list interface{}, value interface{}) bool {
	elements, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, element := range elements {
		if reflect.DeepEqual(element, value) {
			return true
		}
	}
	return false
}

func lookupPath(doc Document, path string) interface{} {
	for {
		i := strings.IndexByte(path, '.')
		if i < 0 {
			return doc[path]
		}
		next, ok := doc[path[:i]].(map[string]interface{})
		if !ok {
			return nil
		}
		doc = next
		path = path[i+1:]
	}
}

func sortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a := fmt.Sprintf("%v", lookupPath(docs[i], f.Field))
			b := fmt.Sprintf("%v", lookupPath(docs[j], f.Field))
			if a == b {
				continue
			}
			if f.Direction < 0 {
				return a > b
			}
			return a < b
		}
		return false
	})
}

func paginate(docs []Document, skip, limit int64) []Document {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs
}

func clone(doc Document) Document {
	copied := make(Document, len(doc))
	for key, value := range doc {
		if nested, ok := value.(Document); ok {
			copied[key] = clone(nested)
			continue
		}
		copied[key] = value
	}
	return copied
}

func toInt64(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func toFloat64(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
