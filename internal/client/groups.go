package client

import (
	"time"

	"nexus-chat/internal/models"

	"github.com/samber/lo"
)

const (
	dayKeyLayout   = "2006-01-02"
	dayLabelLayout = "Monday, January 2, 2006"
	timeLayout     = "Jan 2, 3:04 PM"
)

type Entry struct {
	models.Message
	// Time is CreatedAt formatted for display in the group's location.
	Time string
	// Mine marks messages authored by the session's own user.
	Mine bool
}

type DayGroup struct {
	Day      string
	Label    string
	Messages []Entry
}

// GroupByDay splits msgs into runs of consecutive messages that share a
// calendar date in loc. Groups follow list order and are not re-sorted.
func GroupByDay(msgs []models.Message, loc *time.Location, selfID string) []DayGroup {
	if loc == nil {
		loc = time.Local
	}

	var groups []DayGroup
	for _, m := range msgs {
		local := m.CreatedAt.In(loc)
		day := local.Format(dayKeyLayout)
		if len(groups) == 0 || groups[len(groups)-1].Day != day {
			groups = append(groups, DayGroup{Day: day, Label: local.Format(dayLabelLayout)})
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, Entry{
			Message: m,
			Time:    local.Format(timeLayout),
			Mine:    selfID != "" && m.UserID == selfID,
		})
	}
	return groups
}

// Days lists the group keys, mainly useful for assertions and headers.
func Days(groups []DayGroup) []string {
	return lo.Map(groups, func(g DayGroup, _ int) string { return g.Day })
}
