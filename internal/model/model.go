// Package model defines the record kinds served by keywatch.
package model

import "encoding/json"

// Kind describes one resource: where its records live and how their
// fields are named on the wire and in each backend.
type Kind struct {
	// Name is the resource name used in URLs, logs and metric labels.
	Name string
	// Collection is the MongoDB collection and SQL table name.
	Collection string

	KeyField      string // JSON and BSON name of the unique text field
	CounterField  string // JSON and BSON name of the counter
	KeyColumn     string
	CounterColumn string

	MissingKeyMessage string
	DuplicateMessage  string
	NotFoundMessage   string
}

var (
	// Channels are monitored channel ids with an alert counter.
	Channels = Kind{
		Name:              "channels",
		Collection:        "channels",
		KeyField:          "channel_id",
		CounterField:      "alertCount",
		KeyColumn:         "channel_id",
		CounterColumn:     "alert_count",
		MissingKeyMessage: "Channel ID is required",
		DuplicateMessage:  "Channel ID already exists",
		NotFoundMessage:   "Channel not found",
	}

	// Keywords are watched keywords with a hit frequency.
	Keywords = Kind{
		Name:              "keywords",
		Collection:        "keywords",
		KeyField:          "keyword",
		CounterField:      "frequency",
		KeyColumn:         "keyword",
		CounterColumn:     "frequency",
		MissingKeyMessage: "Keyword is required",
		DuplicateMessage:  "Keyword already exists.",
		NotFoundMessage:   "Keyword not found.",
	}
)

// Kinds lists every kind a store must be prepared to hold.
var Kinds = []Kind{Channels, Keywords}

// MissingIDMessage is reported when a delete carries no identifier.
const MissingIDMessage = "ID is required"

// Record is a single stored channel or keyword.
type Record struct {
	ID    string
	Key   string
	Count int64
	Kind  Kind
}

// NewRecord returns a record of kind k with the counter at its default.
func NewRecord(k Kind, id, key string) Record {
	return Record{ID: id, Key: key, Kind: k}
}

// MarshalJSON renders the record with its kind's field names, e.g.
// {"_id":"...","keyword":"alpha","frequency":0}.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"_id":               r.ID,
		r.Kind.KeyField:     r.Key,
		r.Kind.CounterField: r.Count,
	})
}
