// Package movies provides the record model for reelgraph.
//
// A MovieRecord is the normalized shape of one entry in the movie details
// document. Rating fields are kept exactly as received so they can be
// exported unchanged; numeric extraction happens in the ranking package.
package movies

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ActorSeparator is the literal delimiter between actor names.
const ActorSeparator = ", "

// Field names of the persisted record shape.
const (
	FieldTitle                = "title"
	FieldYear                 = "year"
	FieldGenre                = "genre"
	FieldCountry              = "country"
	FieldDirector             = "director"
	FieldActors               = "actors"
	FieldRating               = "rating"
	FieldURL                  = "url"
	FieldPlot                 = "plot"
	FieldIMDbRating           = "imdb_rating"
	FieldRottenTomatoesRating = "rotten_tomatoes_rating"
	FieldMetacriticRating     = "metacritic_rating"
)

// MovieRecord is one movie entry.
type MovieRecord struct {
	// Title is the unique key of the record within a collection.
	Title string

	Year     int
	Genre    string
	Country  string
	Director string

	// Actors is the ordered list of actor names.
	Actors []string

	// Rating is the chart rating, if the source carried one.
	Rating *float64

	URL  string
	Plot string

	// Rating strings as received, e.g. "8.5/10", "95%", "74/100".
	// Nil means the source had no value for the field.
	IMDbRating           *string
	RottenTomatoesRating *string
	MetacriticRating     *string
}

// ParseActors splits a comma-and-space delimited actor string.
// Empty input yields an empty slice.
func ParseActors(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}

	parts := strings.Split(s, ActorSeparator)
	actors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		actors = append(actors, p)
	}
	return actors
}

// FromRaw builds a MovieRecord from its flat persisted shape.
//
// Only a missing title is fatal; every other malformed field degrades to
// its zero value.
func FromRaw(raw map[string]any) (MovieRecord, error) {
	title, _ := raw[FieldTitle].(string)
	if strings.TrimSpace(title) == "" {
		return MovieRecord{}, &RecordError{Field: FieldTitle, Err: ErrMissingTitle}
	}

	rec := MovieRecord{
		Title:                title,
		Year:                 intField(raw[FieldYear]),
		Genre:                stringField(raw[FieldGenre]),
		Country:              stringField(raw[FieldCountry]),
		Director:             stringField(raw[FieldDirector]),
		Actors:               ParseActors(stringField(raw[FieldActors])),
		Rating:               floatField(raw[FieldRating]),
		URL:                  stringField(raw[FieldURL]),
		Plot:                 stringField(raw[FieldPlot]),
		IMDbRating:           optionalString(raw[FieldIMDbRating]),
		RottenTomatoesRating: optionalString(raw[FieldRottenTomatoesRating]),
		MetacriticRating:     optionalString(raw[FieldMetacriticRating]),
	}
	return rec, nil
}

// Raw returns the record in its flat persisted shape.
func (r MovieRecord) Raw() map[string]any {
	raw := map[string]any{
		FieldTitle:                r.Title,
		FieldYear:                 r.Year,
		FieldGenre:                r.Genre,
		FieldCountry:              r.Country,
		FieldDirector:             r.Director,
		FieldActors:               strings.Join(r.Actors, ActorSeparator),
		FieldURL:                  r.URL,
		FieldPlot:                 r.Plot,
		FieldIMDbRating:           nil,
		FieldRottenTomatoesRating: nil,
		FieldMetacriticRating:     nil,
		FieldRating:               nil,
	}
	if r.Rating != nil {
		raw[FieldRating] = *r.Rating
	}
	if r.IMDbRating != nil {
		raw[FieldIMDbRating] = *r.IMDbRating
	}
	if r.RottenTomatoesRating != nil {
		raw[FieldRottenTomatoesRating] = *r.RottenTomatoesRating
	}
	if r.MetacriticRating != nil {
		raw[FieldMetacriticRating] = *r.MetacriticRating
	}
	return raw
}

// MarshalJSON encodes the record in its persisted shape.
func (r MovieRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Raw())
}

// UnmarshalJSON decodes a record from its persisted shape.
func (r *MovieRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec, err := FromRaw(raw)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func intField(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func floatField(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case int:
		f := float64(val)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
