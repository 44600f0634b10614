package fraud

import (
	"math"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/veridata/surveyguard/internal/store"
)

// Location is the IP-derived position used by the consistency checks.
type Location struct {
	Country   string
	Region    string
	Latitude  float64
	Longitude float64
}

// GeoResolver maps an IP to a location. The production implementation reads
// a MaxMind database; tests substitute a fixed table.
type GeoResolver interface {
	Locate(ip string) (Location, bool)
}

// MaxMindResolver resolves IPs against a GeoLite2-City database file.
type MaxMindResolver struct {
	db *geoip2.Reader
}

// NewMaxMindResolver opens the database at path. An empty path yields a
// resolver that never resolves, which degrades the geo component to 0.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	if path == "" {
		return &MaxMindResolver{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindResolver{db: db}, nil
}

// Close releases the database handle.
func (r *MaxMindResolver) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Locate returns the country, first subdivision, and coordinates of ip.
func (r *MaxMindResolver) Locate(ipStr string) (Location, bool) {
	if r.db == nil {
		return Location{}, false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return Location{}, false
	}
	record, err := r.db.City(ip)
	if err != nil || record.Country.IsoCode == "" {
		return Location{}, false
	}
	loc := Location{
		Country:   record.Country.IsoCode,
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	return loc, true
}

// StaticResolver resolves from a fixed map. Test helper.
type StaticResolver map[string]Location

func (s StaticResolver) Locate(ip string) (Location, bool) {
	loc, ok := s[ip]
	return loc, ok
}

// geoScore checks the respondent's IP trail over the past 24 h for movement
// no traveler could produce. Speeds are great-circle estimates between
// consecutive observations.
//
//	above 900 km/h (faster than airline cruise) -> 0.90
//	two countries inside an hour                -> 0.80
//	two regions of one country inside an hour   -> 0.50
func geoScore(resolver GeoResolver, observations []store.IPObservation) float64 {
	type fix struct {
		loc Location
		at  time.Time
	}
	fixes := make([]fix, 0, len(observations))
	for _, o := range observations {
		if loc, ok := resolver.Locate(o.IP); ok {
			fixes = append(fixes, fix{loc: loc, at: o.CreatedAt})
		}
	}

	var score float64
	for i := 1; i < len(fixes); i++ {
		prev, cur := fixes[i-1], fixes[i]
		elapsed := cur.at.Sub(prev.at)
		if elapsed <= 0 {
			elapsed = time.Second
		}

		km := haversineKm(prev.loc.Latitude, prev.loc.Longitude, cur.loc.Latitude, cur.loc.Longitude)
		kmh := km / elapsed.Hours()
		switch {
		case km > 50 && kmh > 900:
			score = math.Max(score, 0.90)
		case prev.loc.Country != cur.loc.Country && elapsed < time.Hour:
			score = math.Max(score, 0.80)
		case prev.loc.Country == cur.loc.Country && prev.loc.Region != cur.loc.Region && elapsed < time.Hour:
			score = math.Max(score, 0.50)
		}
	}
	return score
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
