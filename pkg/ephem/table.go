package ephem

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/motion-stack/pkg/wcs"
)

// A Table holds precomputed positions for one or more objects, as
// written out by an ephemeris service. Positions between rows are
// linearly interpolated; times outside the rows are unavailable.
//
//	objects:
//	  2024 AB1:
//	    - {time: "2024-03-01T02:00:00Z", ra: 150.12, dec: 20.25}
//	    - {time: "2024-03-01T03:00:00Z", ra: 150.31, dec: 20.19}
type Table struct {
	rows map[string][]row
}

type row struct {
	t   time.Time
	pos wcs.SkyCoord
}

type tableFile struct {
	Objects map[string][]struct {
		Time string  `yaml:"time"`
		RA   float64 `yaml:"ra"`
		Dec  float64 `yaml:"dec"`
	} `yaml:"objects"`
}

var tableTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTableTime(s string) (time.Time, error) {
	for _, f := range tableTimeFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func LoadTable(filename string) (*Table, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read ephemeris table %s: %w", filename, err)
	}
	t, err := ParseTable(contents)
	if err != nil {
		return nil, fmt.Errorf("ephemeris table %s: %w", filename, err)
	}
	return t, nil
}

func ParseTable(contents []byte) (*Table, error) {
	tf := tableFile{}
	if err := yaml.Unmarshal(contents, &tf); err != nil {
		return nil, err
	}

	t := &Table{rows: map[string][]row{}}
	for name, in := range tf.Objects {
		rows := make([]row, 0, len(in))
		for i, r := range in {
			when, err := parseTableTime(r.Time)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", name, i, err)
			}
			if math.IsNaN(r.RA) || math.IsNaN(r.Dec) || r.Dec < -90 || r.Dec > 90 {
				return nil, fmt.Errorf("%s row %d: bad position (%f, %f)", name, i, r.RA, r.Dec)
			}
			rows = append(rows, row{t: when, pos: wcs.SkyCoord{RA: wcs.NormalizeRA(r.RA), Dec: r.Dec}})
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })
		t.rows[normName(name)] = rows
	}
	return t, nil
}

// Objects lists the names the table knows about, sorted.
func (tb *Table) Objects() []string {
	names := make([]string, 0, len(tb.rows))
	for name := range tb.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (tb *Table) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	if err := ctx.Err(); err != nil {
		return wcs.SkyCoord{}, unavailable(err)
	}

	rows, exists := tb.rows[normName(object)]
	if !exists || len(rows) == 0 {
		return wcs.SkyCoord{}, fmt.Errorf("%w: %q not in table", ErrUnavailable, object)
	}

	t = t.UTC()
	first, last := rows[0].t, rows[len(rows)-1].t
	if t.Before(first) || t.After(last) {
		return wcs.SkyCoord{}, fmt.Errorf("%w: %s is outside table range [%s, %s] for %q",
			ErrUnavailable, t.Format(time.RFC3339), first.Format(time.RFC3339), last.Format(time.RFC3339), object)
	}

	// First row at or after t
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].t.Before(t) })
	if rows[i].t.Equal(t) {
		return rows[i].pos, nil
	}
	return interpolate(rows[i-1], rows[i], t), nil
}

func interpolate(r0, r1 row, t time.Time) wcs.SkyCoord {
	span := r1.t.Sub(r0.t).Seconds()
	if span <= 0 {
		return r0.pos
	}
	f := t.Sub(r0.t).Seconds() / span

	// Take the short way round when the object crosses RA 0
	dRA := r1.pos.RA - r0.pos.RA
	if dRA > 180 {
		dRA -= 360
	} else if dRA < -180 {
		dRA += 360
	}

	return wcs.SkyCoord{
		RA:  wcs.NormalizeRA(r0.pos.RA + f*dRA),
		Dec: r0.pos.Dec + f*(r1.pos.Dec-r0.pos.Dec),
	}
}
