package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GeoPoint is a WGS84 coordinate pair in degrees.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Valid reports whether the point is inside the representable range.
func (p GeoPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// NullGeoPoint is a GeoPoint stored in a nullable jsonb column. A participant
// has no location until their first fix arrives.
type NullGeoPoint struct {
	Point GeoPoint
	Valid bool
}

func (p NullGeoPoint) Value() (driver.Value, error) {
	if !p.Valid {
		return nil, nil
	}
	return json.Marshal(p.Point)
}

func (p *NullGeoPoint) Scan(src any) error {
	if src == nil {
		*p = NullGeoPoint{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan NullGeoPoint: unsupported type %T", src)
	}
	if err := json.Unmarshal(data, &p.Point); err != nil {
		return fmt.Errorf("scan NullGeoPoint: %w", err)
	}
	p.Valid = true
	return nil
}

func (p NullGeoPoint) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Point)
}

func (p *NullGeoPoint) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = NullGeoPoint{}
		return nil
	}
	p.Valid = true
	return json.Unmarshal(data, &p.Point)
}

// LocationMap holds the last-known position per member id for group
// sessions. Freshest-wins per key; no ordering across keys.
type LocationMap map[string]GeoPoint

func (m LocationMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(LocationMap{})
	}
	return json.Marshal(m)
}

func (m *LocationMap) Scan(src any) error {
	if src == nil {
		*m = LocationMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan LocationMap: unsupported type %T", src)
	}
	return json.Unmarshal(data, m)
}

// Member is one group participant. Insertion order is join order.
type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type MemberList []Member

func (l MemberList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(MemberList{})
	}
	return json.Marshal(l)
}

func (l *MemberList) Scan(src any) error {
	if src == nil {
		*l = MemberList{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan MemberList: unsupported type %T", src)
	}
	return json.Unmarshal(data, l)
}

// Contains reports whether id is already a member.
func (l MemberList) Contains(id string) bool {
	for _, m := range l {
		if m.ID == id {
			return true
		}
	}
	return false
}
