package provider

import (
	"strconv"
	"strings"
)

// Record is the unified metadata schema every provider response is normalized
// into before indexing.
type Record struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Artist      string   `json:"artist,omitempty"`
	Year        int      `json:"year,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	Popularity  float64  `json:"popularity,omitempty"`
	Source      string   `json:"source"`
}

const (
	KindTitle  = "title"
	KindArtist = "artist"
)

// titlePayload is the raw shape providers return for a single title.
type titlePayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	ArtistName  string   `json:"artist_name"`
	ReleaseDate string   `json:"release_date"`
	Genres      []string `json:"genres"`
	DurationMs  int      `json:"duration_ms"`
	Popularity  float64  `json:"popularity"`
}

// artistPayload is the raw shape providers return for an artist search hit.
type artistPayload struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity float64  `json:"popularity"`
}

// normalizeTitle maps a raw provider title onto the unified schema. Whitespace
// is trimmed, the release year is taken from the date prefix, and durations
// are rounded down to whole seconds.
func normalizeTitle(source string, p titlePayload) Record {
	return Record{
		ID:          strings.TrimSpace(p.ID),
		Kind:        KindTitle,
		Name:        strings.TrimSpace(p.Title),
		Artist:      strings.TrimSpace(p.ArtistName),
		Year:        releaseYear(p.ReleaseDate),
		Genres:      normalizeGenres(p.Genres),
		DurationSec: p.DurationMs / 1000,
		Popularity:  p.Popularity,
		Source:      source,
	}
}

func normalizeArtist(source string, p artistPayload) Record {
	return Record{
		ID:         strings.TrimSpace(p.ID),
		Kind:       KindArtist,
		Name:       strings.TrimSpace(p.Name),
		Genres:     normalizeGenres(p.Genres),
		Popularity: p.Popularity,
		Source:     source,
	}
}

// releaseYear extracts the year from a provider release date. Providers send
// either a full date or a bare year.
func releaseYear(date string) int {
	date = strings.TrimSpace(date)
	if len(date) > 4 {
		date = date[:4]
	}
	year, err := strconv.Atoi(date)
	if err != nil || year < 1000 {
		return 0
	}
	return year
}

// normalizeGenres lowercases, trims, and deduplicates genre tags while
// preserving first-seen order.
func normalizeGenres(genres []string) []string {
	if len(genres) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
