package messaging

import (
	"fmt"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
)

func metaString(event *events.BaseEvent, key string) string {
	v, _ := event.Metadata[key].(string)
	return v
}

// jobLabel renders "Name (ID)" or just the ID when no name was recorded.
func jobLabel(event *events.BaseEvent) string {
	if name := metaString(event, "job_name"); name != "" {
		return fmt.Sprintf("%s (%s)", name, event.AggregateID())
	}
	return event.AggregateID()
}

// formatMessage renders the plain text line shared by every adapter. emoji
// selects Slack-style shortcodes.
func formatMessage(event *events.BaseEvent, emoji bool) string {
	icon := func(code string) string {
		if !emoji {
			return ""
		}
		return code + " "
	}

	switch event.Type {
	case events.EventTypeHealthChanged:
		escalated, _ := event.Metadata["escalated"].(bool)
		code := ":white_check_mark:"
		if escalated {
			code = ":rotating_light:"
		}
		return fmt.Sprintf("%sHealth of %s moved %s -> %s (priority %s -> %s)",
			icon(code), jobLabel(event),
			metaString(event, "from_health"), metaString(event, "to_health"),
			metaString(event, "from_priority"), metaString(event, "to_priority"))
	case events.EventTypeHealthEvaluated:
		return fmt.Sprintf("%s%s evaluated: %s, priority %s",
			icon(":bar_chart:"), jobLabel(event), metaString(event, "health"), metaString(event, "priority"))
	case events.EventTypeFeedDegraded:
		return fmt.Sprintf("%sFeeds unavailable for %s: %v", icon(":warning:"), jobLabel(event), event.Metadata["feeds"])
	case events.EventTypePortfolioRefreshed:
		return fmt.Sprintf("%sPortfolio refreshed: %v jobs, %v critical, %v at risk",
			icon(":clipboard:"), event.Metadata["jobs"], event.Metadata["critical"], event.Metadata["at_risk"])
	default:
		return fmt.Sprintf("SitePulse event: %s", event.Type)
	}
}
