// Package ranking orders movie records by one of several sort keys.
//
// Keys are a closed strategy table: each key maps to a value extractor and
// a direction. Rating keys parse the numeric prefix of a format-specific
// string and sort descending; text keys compare bytes and sort ascending.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/Benny93/reelgraph/internal/movies"
)

// Key names a sort order.
type Key string

const (
	KeyIMDbRating           Key = "imdb_rating"
	KeyRottenTomatoesRating Key = "rotten_tomatoes_rating"
	KeyMetacriticRating     Key = "metacritic_rating"
	KeyGenre                Key = "genre"
	KeyDirector             Key = "director"
)

// ErrUnknownKey is returned for a key outside the strategy table.
var ErrUnknownKey = errors.New("unknown ranking key")

// value is a sort value: numeric for ratings, text otherwise.
type value struct {
	num  float64
	text string
}

type strategy struct {
	extract    func(movies.MovieRecord) value
	descending bool
	numeric    bool
}

var strategies = map[Key]strategy{
	KeyIMDbRating: {
		extract:    ratingExtractor(func(r movies.MovieRecord) *string { return r.IMDbRating }, "/"),
		descending: true,
		numeric:    true,
	},
	KeyRottenTomatoesRating: {
		extract:    ratingExtractor(func(r movies.MovieRecord) *string { return r.RottenTomatoesRating }, "%"),
		descending: true,
		numeric:    true,
	},
	KeyMetacriticRating: {
		extract:    ratingExtractor(func(r movies.MovieRecord) *string { return r.MetacriticRating }, "/"),
		descending: true,
		numeric:    true,
	},
	KeyGenre: {
		extract: func(r movies.MovieRecord) value { return value{text: r.Genre} },
	},
	KeyDirector: {
		extract: func(r movies.MovieRecord) value { return value{text: r.Director} },
	},
}

// order is the stable listing order of Keys.
var order = []Key{KeyIMDbRating, KeyRottenTomatoesRating, KeyMetacriticRating, KeyGenre, KeyDirector}

// Keys returns every supported key.
func Keys() []Key {
	return slices.Clone(order)
}

// ParseKey validates a key name.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := strategies[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
	}
	return k, nil
}

// IsNumeric reports whether the key ranks by a rating value.
func (k Key) IsNumeric() bool {
	return strategies[k].numeric
}

// Rank returns a reordered copy of records. The sort is stable and never
// drops records; the input slice is left untouched.
func Rank(records []movies.MovieRecord, key Key) ([]movies.MovieRecord, error) {
	s, ok := strategies[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	type keyed struct {
		rec movies.MovieRecord
		val value
	}

	items := make([]keyed, len(records))
	for i, rec := range records {
		items[i] = keyed{rec: rec, val: s.extract(rec)}
	}

	slices.SortStableFunc(items, func(a, b keyed) int {
		c := compare(a.val, b.val, s.numeric)
		if s.descending {
			return -c
		}
		return c
	})

	ranked := make([]movies.MovieRecord, len(items))
	for i, it := range items {
		ranked[i] = it.rec
	}
	return ranked, nil
}

// Value returns the display form of the sort value of rec under key.
func Value(rec movies.MovieRecord, key Key) string {
	s, ok := strategies[key]
	if !ok {
		return ""
	}
	v := s.extract(rec)
	if s.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.text
}

// ParseRating extracts the numeric portion of a rating string before delim.
// Absent, unparseable or non-finite values are zero.
func ParseRating(raw *string, delim string) float64 {
	if raw == nil {
		return 0
	}

	head, _, _ := strings.Cut(*raw, delim)
	f, err := strconv.ParseFloat(strings.TrimSpace(head), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func ratingExtractor(field func(movies.MovieRecord) *string, delim string) func(movies.MovieRecord) value {
	return func(r movies.MovieRecord) value {
		return value{num: ParseRating(field(r), delim)}
	}
}

func compare(a, b value, numeric bool) int {
	if numeric {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	}
	return strings.Compare(a.text, b.text)
}
