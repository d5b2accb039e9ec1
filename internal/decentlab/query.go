package decentlab

import (
	"fmt"
	"strings"
	"time"
)

const matchAll = "//"

// Query selects measurements from the Decentlab "measurements" series.
// Location, Sensor and Channel are InfluxQL regexes; Device is a node name and matched exactly.
type Query struct {
	TimeFilter            string
	Device                string
	Location              string
	Sensor                string
	Channel               string
	IncludeNetworkSensors bool
	AggFunc               string
	AggInterval           string
}

// TimeFilter returns an InfluxQL condition for the closed range [from, to].
func TimeFilter(from, to time.Time) string {
	const layout = "2006-01-02 15:04:05"
	return fmt.Sprintf("time >= '%s' AND time <= '%s'", from.UTC().Format(layout), to.UTC().Format(layout))
}

func BuildQuery(q Query) string {
	device := matchAll
	if q.Device != "" {
		device = "/^" + q.Device + "$/"
	}
	location := orMatchAll(q.Location)
	sensor := orMatchAll(q.Sensor)
	channel := orMatchAll(q.Channel)

	selectVar := "value"
	fill := ""
	if q.AggFunc != "" {
		selectVar = q.AggFunc + `("value") as value`
		fill = " fill(null)"
	}
	interval := ""
	if q.AggInterval != "" {
		interval = ", time(" + q.AggInterval + ")"
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectVar)
	b.WriteString(` FROM "measurements" WHERE location =~ `)
	b.WriteString(location)
	b.WriteString(" AND node =~ ")
	b.WriteString(device)
	b.WriteString(" AND sensor =~ ")
	b.WriteString(sensor)
	b.WriteString(" AND ((channel =~ ")
	b.WriteString(channel)
	b.WriteString(" OR channel !~ /.+/)")
	if !q.IncludeNetworkSensors {
		b.WriteString(" AND channel !~ /^link-/")
	}
	b.WriteString(")")
	if q.TimeFilter != "" {
		b.WriteString(" AND ")
		b.WriteString(q.TimeFilter)
	}
	b.WriteString(` GROUP BY "uqk"`)
	b.WriteString(interval)
	b.WriteString(fill)
	return b.String()
}

func orMatchAll(re string) string {
	if re == "" {
		return matchAll
	}
	return re
}
