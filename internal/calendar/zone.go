package calendar

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultZone is used for users that never picked a timezone.
const DefaultZone = "UTC"

var (
	zoneCache sync.Map // name -> *time.Location
	zoneGroup singleflight.Group
)

// LoadLocation resolves an IANA zone name, caching results for the process.
// Concurrent first loads of the same zone share a single lookup.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	if loc, ok := zoneCache.Load(name); ok {
		return loc.(*time.Location), nil
	}
	v, err, _ := zoneGroup.Do(name, func() (any, error) {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", name, err)
		}
		zoneCache.Store(name, loc)
		return loc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*time.Location), nil
}

// TodayIn returns the current date in the named zone.
func TodayIn(now time.Time, zone string) (Date, error) {
	loc, err := LoadLocation(zone)
	if err != nil {
		return Date{}, err
	}
	return Today(now, loc), nil
}
