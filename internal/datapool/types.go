package datapool

import (
	"strings"
	"time"
)

// MainParameterPrefix marks the variable a source primarily measures.
const MainParameterPrefix = "Main measurement parameter"

type Source struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type Variable struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description,omitempty"`
}

// IsMain reports whether the variable is flagged as a main measurement parameter.
func (v Variable) IsMain() bool {
	return strings.HasPrefix(v.Description, MainParameterPrefix)
}

type SourceType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Record is a signal row joined with its source and variable.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Variable  string    `json:"variable"`
	Source    string    `json:"source"`
}

type SignalQuery struct {
	Source   string
	Variable string
	From     time.Time
	To       time.Time
}

type GroupQuery struct {
	// Group is the two-letter prefix of the source names, e.g. "bl".
	Group  string
	Units  []string
	Since  time.Time
	Hourly bool
}

type WeeklyCount struct {
	Week     time.Time `json:"week"`
	Source   string    `json:"source"`
	Variable string    `json:"variable"`
	Count    int64     `json:"count"`
}

// Duplicate is a row that occurs more than once.
type Duplicate struct {
	Record
	Occurrences int64 `json:"occurrences"`
}
