package bot

import (
	"fmt"
	"strings"
	"time"

	"court_bot/internal/model"
)

var (
	weekdays = [...]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"}
	months   = [...]string{
		"Januar", "Februar", "März", "April", "Mai", "Juni",
		"Juli", "August", "September", "Oktober", "November", "Dezember",
	}
)

// FormatDate renders an ISO date as e.g. "Mittwoch, 10. Januar 2024".
// Dates that do not parse are returned unchanged.
func FormatDate(iso string) string {
	d, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return fmt.Sprintf("%s, %d. %s %d", weekdays[d.Weekday()], d.Day(), months[d.Month()-1], d.Year())
}

// FormatSession formats one session as a message block.
func FormatSession(s model.Session) string {
	var b strings.Builder
	b.WriteString(FormatDate(s.Date))
	if s.Time != "" {
		b.WriteString(", ")
		b.WriteString(s.Time)
	}

	hall := s.Hall
	if hall == "" {
		hall = "unbekannt"
	}
	fmt.Fprintf(&b, "\nSitzungssaal %s\n", hall)

	if s.Lawsuit != "" {
		fmt.Fprintf(&b, "%s, %s", s.Lawsuit, s.Type)
	} else {
		b.WriteString(s.Type)
	}
	fmt.Fprintf(&b, "\nAktenzeichen: %s", s.Reference)
	if s.Note != "" {
		fmt.Fprintf(&b, "\nHinweis: %s", s.Note)
	}
	return b.String()
}

func writeSessions(b *strings.Builder, sessions []model.Session) {
	for _, s := range sessions {
		b.WriteString("\n\n")
		b.WriteString(FormatSession(s))
	}
}

// FormatNotification renders a queued notification as message text.
func FormatNotification(n model.Notification) string {
	court := n.CourtName
	if court == "" {
		court = n.Court
	}

	var b strings.Builder
	switch n.Kind {
	case model.KindConfirmation:
		fmt.Fprintf(&b, "Dein Abo „%s” (%s) wurde entgegengenommen. ", n.SubscriptionName, court)
		if len(n.Sessions) == 0 {
			b.WriteString("Zur Zeit gibt es nichts zu melden, aber ich halte dich auf dem Laufenden!")
			return b.String()
		}
		b.WriteString("Hier schon mal eine Liste der anstehenden Termine:")
		writeSessions(&b, n.Sessions)
		b.WriteString("\n\nBei neuen Terminen werde ich dich benachrichtigen!")
	default:
		fmt.Fprintf(&b, "🔔 Für dein Abo „%s” (%s) wurden neue Termine veröffentlicht!", n.SubscriptionName, court)
		writeSessions(&b, n.Sessions)
	}
	return b.String()
}

// FormatSessionList formats the sessions found for a /sessions query.
func FormatSessionList(courtName string, sessions []model.Session) string {
	var b strings.Builder
	switch len(sessions) {
	case 0:
		fmt.Fprintf(&b, "Leider wurden keine Termine für das %s, die zu deinem Filter passen, gefunden.", courtName)
		return b.String()
	case 1:
		fmt.Fprintf(&b, "Es wurde 1 Termin für das %s gefunden:", courtName)
	default:
		fmt.Fprintf(&b, "Es wurden %d Termine für das %s gefunden:", len(sessions), courtName)
	}
	writeSessions(&b, sessions)
	return b.String()
}

// FormatSubscriptionList formats the subscriptions of a chat.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "Du hast zur Zeit keine Abos am Laufen!"
	}
	var b strings.Builder
	b.WriteString("Hier ist eine Liste deiner Abos:")
	for _, s := range subs {
		fmt.Fprintf(&b, "\n\n#%d %s\nGericht: %s\nDatum: %s\nAktenzeichen: %s",
			s.ID, s.Name, s.Court, filterLabel(s.DateFilter), filterLabel(s.ReferenceFilter))
		if !s.ConfirmationSent {
			b.WriteString("\n(noch nicht bestätigt)")
		}
	}
	return b.String()
}

func filterLabel(f string) string {
	if f == "" {
		return "*"
	}
	return f
}
