// Package e2e provides end-to-end tests over a generated diary with many entries and queries.
package e2e

import (
	"fmt"
	"strings"
	"time"
)

// Entry is one dated diary entry of the generated corpus.
type Entry struct {
	Date string
	Text string
	// Phrase is the wording unique to this entry.
	Phrase string
}

// QueryTestCase defines a query and the entry date that must appear in the results.
type QueryTestCase struct {
	Query        string
	ExpectedDate string
	Description  string
}

// Corpus holds diary entries and query test cases for E2E tests.
type Corpus struct {
	Entries      []Entry
	TestCases    []QueryTestCase
	TotalEntries int
	TotalQueries int
}

var activities = []struct {
	phrase string
	body   string
}{
	{"pottery class", "Went to my first pottery class and made a lopsided bowl."},
	{"climbing gym", "Spent the evening at the climbing gym working on overhangs."},
	{"sourdough starter", "Fed the sourdough starter and baked a dense loaf."},
	{"dentist appointment", "Morning dentist appointment, no cavities this time."},
	{"chess tournament", "Played in a chess tournament and lost the final round."},
	{"violin lesson", "Today's violin lesson focused on vibrato, my wrist hurts."},
	{"birdwatching trip", "Went on a birdwatching trip by the lake and spotted a heron."},
	{"tax paperwork", "Finally finished the tax paperwork that was overdue."},
	{"marathon training", "Long marathon training run of eighteen kilometres in the rain."},
	{"grandmother birthday", "Celebrated grandmother birthday with a big family lunch."},
	{"job interview", "The job interview at the design studio went better than expected."},
	{"moving boxes", "Packed moving boxes all afternoon, the kitchen is chaos."},
	{"camping weekend", "Our camping weekend in the mountains, the tent leaked."},
	{"book club", "The book club discussed the novel about lighthouse keepers."},
	{"flu symptoms", "Woke up with flu symptoms and stayed in bed all day."},
	{"garden tomatoes", "Harvested the garden tomatoes and made sauce."},
	{"concert tickets", "Bought concert tickets for the jazz festival next month."},
	{"car repair", "The car repair took longer than promised, the clutch was worn."},
	{"wedding rehearsal", "At the wedding rehearsal for my cousin I kept forgetting my cue."},
	{"photography walk", "Took a photography walk through the old town at golden hour."},
	{"volunteer shift", "Did a volunteer shift at the food bank sorting donations."},
	{"kayak rental", "Took a kayak rental on the river with Sam, we capsized once."},
	{"piano recital", "Attended the piano recital of my niece, she was brilliant."},
	{"yoga retreat", "First day of the yoga retreat, everything aches."},
	{"museum exhibit", "Visited the museum exhibit on ancient maps."},
	{"knitting project", "Finished the knitting project, a scarf for winter."},
	{"team offsite", "Two-day team offsite with workshops about the new roadmap."},
	{"ferry crossing", "The ferry crossing to the island was rough but beautiful."},
	{"cooking course", "Joined a cooking course on handmade pasta and sauces."},
	{"astronomy night", "Went to an astronomy night at the observatory and saw the rings of Saturn."},
}

// BuildCorpus returns a diary of n entries on consecutive days. Each entry holds one activity
// phrase that no other entry shares, so queries can assert the correct entry is returned.
func BuildCorpus(n int) *Corpus {
	if n > len(activities) {
		n = len(activities)
	}
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	entries := make([]Entry, 0, n)
	cases := make([]QueryTestCase, 0, n)
	for i := 0; i < n; i++ {
		a := activities[i]
		date := day.AddDate(0, 0, i).Format("Monday, 2 January, 2006")
		entries = append(entries, Entry{Date: date, Text: a.body, Phrase: a.phrase})
		cases = append(cases, QueryTestCase{
			Query:        a.phrase,
			ExpectedDate: date,
			Description:  fmt.Sprintf("query %q should return entry %s", a.phrase, date),
		})
	}
	return &Corpus{Entries: entries, TestCases: cases, TotalEntries: len(entries), TotalQueries: len(cases)}
}

// Diary renders the corpus as diary text: each entry is a date line followed by its body.
func (c *Corpus) Diary() string {
	var b strings.Builder
	for i, e := range c.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(e.Date)
		b.WriteString("\n")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}
