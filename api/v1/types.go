// Package v1 holds the types exchanged between the feature-store runtime and
// the online store adapter.
package v1

import (
	"fmt"
	"strings"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// EntityKey identifies one entity instance as ordered (join key, value)
// pairs. JoinKeys[i] names EntityValues[i].
type EntityKey struct {
	JoinKeys     []string
	EntityValues []Value
}

// NewEntityKey builds an entity key from alternating join key names and
// values.
//
//	v1.NewEntityKey("driver_id", v1.StringValue("1004"))
func NewEntityKey(pairs ...any) EntityKey {
	var key EntityKey
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		val, _ := pairs[i+1].(Value)
		key.JoinKeys = append(key.JoinKeys, name)
		key.EntityValues = append(key.EntityValues, val)
	}
	return key
}

// Lookup returns the value bound to joinKey.
func (k EntityKey) Lookup(joinKey string) (Value, bool) {
	for i, name := range k.JoinKeys {
		if name == joinKey && i < len(k.EntityValues) {
			return k.EntityValues[i], true
		}
	}
	return Value{}, false
}

func (k EntityKey) String() string {
	parts := make([]string, 0, len(k.JoinKeys))
	for i, name := range k.JoinKeys {
		var val Value
		if i < len(k.EntityValues) {
			val = k.EntityValues[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, val.Interface()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Field declares one feature of a feature view.
type Field struct {
	Name string
	Type ValueType
}

// FeatureView describes the target of a write or read call. Features is
// optional; when present it is used to restore declared value types that the
// backing store widens (FLOAT stored as a double, INT32 stored as an int64).
type FeatureView struct {
	Name     string
	Features []Field
}

// Schema returns the declared feature types keyed by feature name.
func (fv FeatureView) Schema() map[string]ValueType {
	if len(fv.Features) == 0 {
		return nil
	}
	schema := make(map[string]ValueType, len(fv.Features))
	for _, f := range fv.Features {
		schema[f.Name] = f.Type
	}
	return schema
}

// WriteItem is one row of a batch write.
type WriteItem struct {
	EntityKey EntityKey
	Values    map[string]Value
	EventTime time.Time
	Created   *time.Time
}

// ReadStatus classifies one slot of a batch read.
type ReadStatus int

const (
	// ReadNotFound means the key has no record, or the record holds none of
	// the requested features.
	ReadNotFound ReadStatus = iota
	// ReadFound means Features holds at least one requested feature.
	ReadFound
	// ReadFailed means the storage key could not be derived or the store
	// call failed; Err holds the cause.
	ReadFailed
)

func (s ReadStatus) String() string {
	switch s {
	case ReadFound:
		return "found"
	case ReadNotFound:
		return "not_found"
	case ReadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReadResult is the slot for one requested entity key. Results are aligned
// with the request: slot i always answers key i.
type ReadResult struct {
	EventTime *time.Time
	Features  map[string]Value
	Status    ReadStatus
	Err       error
}

// WriteOutcome records what happened to one item of a batch write.
type WriteOutcome struct {
	Index int
	Key   string
	Err   error
}

// WriteReport summarizes a batch write. Outcomes are in input order.
type WriteReport struct {
	Outcomes []WriteOutcome
	Written  int
	Failed   int
}

// Record appends the outcome of the item at index.
func (r *WriteReport) Record(index int, key string, err error) {
	r.Outcomes = append(r.Outcomes, WriteOutcome{Index: index, Key: key, Err: err})
	if err != nil {
		r.Failed++
	} else {
		r.Written++
	}
}

// Err aggregates the per-item failures, nil when every item was written.
func (r *WriteReport) Err() error {
	if r == nil || r.Failed == 0 {
		return nil
	}
	errs := make([]error, 0, r.Failed)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("item %d (key %s): %w", o.Index, o.Key, o.Err))
		}
	}
	return utilerrors.NewAggregate(errs)
}
