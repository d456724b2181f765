package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/geo"

	"github.com/spf13/cast"
)

const (
	UnknownAddress = "Unknown"
	DefaultArea    = "unassigned"

	// MaxClockSkew is how far a client timestamp may run ahead of the server.
	MaxClockSkew = time.Minute
)

// AlertID is the process-unique alert identifier. It decodes from a JSON
// number or a numeric string so transport coercion never leaks past the boundary.
type AlertID int64

func (id *AlertID) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseAlertID(raw)
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id AlertID) String() string { return cast.ToString(int64(id)) }

// ParseAlertID accepts int, float without fraction, or decimal string.
func ParseAlertID(v interface{}) (AlertID, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	if f, ok := v.(float64); ok && f != float64(int64(f)) {
		return 0, errors.Validationf("invalid alert id %v", v)
	}
	n, err := cast.ToInt64E(v)
	if err != nil || n <= 0 {
		return 0, errors.Validationf("invalid alert id %v", v)
	}
	return AlertID(n), nil
}

type AlertStatus string

const (
	StatusPending      AlertStatus = "pending"
	StatusAcknowledged AlertStatus = "acknowledged"
)

// NormalizeStatus folds the legacy "responded" and "cleared" values into acknowledged.
func NormalizeStatus(s string) AlertStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "acknowledged", "responded", "cleared":
		return StatusAcknowledged
	default:
		return StatusPending
	}
}

func (s AlertStatus) Terminal() bool { return NormalizeStatus(string(s)) == StatusAcknowledged }

type TrafficStatus string

const (
	TrafficUnset    TrafficStatus = ""
	TrafficAccepted TrafficStatus = "accepted"
	TrafficRejected TrafficStatus = "rejected"
)

// ParseTrafficStatus accepts the current values and the legacy clear/busy synonyms.
func ParseTrafficStatus(s string) (TrafficStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TrafficUnset, nil
	case "accepted", "clear":
		return TrafficAccepted, nil
	case "rejected", "busy":
		return TrafficRejected, nil
	}
	return TrafficUnset, errors.Validationf("invalid trafficStatus %q", s)
}

func (t TrafficStatus) Decided() bool { return t == TrafficAccepted || t == TrafficRejected }

// Alert is one ambulance proximity report addressed to a responder.
type Alert struct {
	ID               AlertID       `json:"id"`
	DriverName       string        `json:"driverName"`
	PoliceID         string        `json:"policeId,omitempty"`   // routing hint, not an ACL
	PoliceName       string        `json:"policeName,omitempty"` // routing hint, not an ACL
	ForAllPolice     bool          `json:"forAllPolice"`
	Area             string        `json:"area"`
	RouteCoordinates []geo.Point   `json:"routeCoordinates,omitempty"`
	StartLocation    *geo.Point    `json:"startLocation,omitempty"`
	EndLocation      *geo.Point    `json:"endLocation,omitempty"`
	StartAddress     string        `json:"startAddress"`
	EndAddress       string        `json:"endAddress"`
	DistanceMeters   float64       `json:"distanceMeters"`
	Timestamp        string        `json:"timestamp"`  // client clock, ISO-8601
	ReceivedAt       time.Time     `json:"receivedAt"` // server clock
	Status           AlertStatus   `json:"status"`
	TrafficStatus    TrafficStatus `json:"trafficStatus,omitempty"`
	PoliceResponse   string        `json:"policeResponse,omitempty"`
	PoliceOfficer    string        `json:"policeOfficer,omitempty"`
	RespondedAt      *time.Time    `json:"respondedAt,omitempty"`
	AcknowledgedAt   *time.Time    `json:"acknowledgedAt,omitempty"`
}

// EffectiveTime is the client timestamp when it parses, else the server receive
// time. A client clock more than MaxClockSkew ahead of ReceivedAt is not trusted.
func (a Alert) EffectiveTime() time.Time {
	if a.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, a.Timestamp); err == nil {
			if !a.ReceivedAt.IsZero() && t.After(a.ReceivedAt.Add(MaxClockSkew)) {
				return a.ReceivedAt
			}
			return t
		}
	}
	return a.ReceivedAt
}

func (a Alert) IsPending() bool { return !a.Status.Terminal() }

// Clone returns a deep copy; the store never hands out its own pointers.
func (a Alert) Clone() Alert {
	c := a
	if a.RouteCoordinates != nil {
		c.RouteCoordinates = append([]geo.Point(nil), a.RouteCoordinates...)
	}
	c.StartLocation = clonePoint(a.StartLocation)
	c.EndLocation = clonePoint(a.EndLocation)
	c.RespondedAt = cloneTime(a.RespondedAt)
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	return c
}

// HasRouteContext reports whether the alert carries what a responder needs to act on it.
func (a Alert) HasRouteContext() bool {
	return KnownAddress(a.StartAddress) && KnownAddress(a.EndAddress) && len(a.RouteCoordinates) > 0
}

func KnownAddress(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, UnknownAddress)
}

// SameDriver compares correlation keys case-insensitively.
func SameDriver(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AlertInput is the create payload.
type AlertInput struct {
	DriverName        string      `json:"driverName"`
	PoliceID          string      `json:"policeId"`
	PoliceName        string      `json:"policeName"`
	Area              string      `json:"area"`
	RouteCoordinates  []geo.Point `json:"routeCoordinates"`
	EncodedRoute      string      `json:"encodedRoute"`
	StartLocation     *geo.Point  `json:"startLocation"`
	EndLocation       *geo.Point  `json:"endLocation"`
	AmbulanceLocation *geo.Point  `json:"ambulanceLocation"`
	StartAddress      string      `json:"startAddress"`
	EndAddress        string      `json:"endAddress"`
	DistanceMeters    float64     `json:"distanceMeters"`
	Timestamp         string      `json:"timestamp"`
}

// Normalize validates the input, decodes an encoded route and fills defaults.
// A driver name and at least one usable location are required.
func (in *AlertInput) Normalize() error {
	in.DriverName = strings.TrimSpace(in.DriverName)
	if in.DriverName == "" {
		return errors.Validationf("driverName is required")
	}
	if len(in.RouteCoordinates) == 0 && in.EncodedRoute != "" {
		pts, err := geo.DecodePolyline(in.EncodedRoute)
		if err != nil {
			return errors.Validationf("invalid encodedRoute: %v", err)
		}
		in.RouteCoordinates = pts
	}
	for i, p := range in.RouteCoordinates {
		if !p.Valid() {
			return errors.Validationf("invalid route coordinate at index %d", i)
		}
	}
	for name, p := range map[string]*geo.Point{"startLocation": in.StartLocation, "endLocation": in.EndLocation, "ambulanceLocation": in.AmbulanceLocation} {
		if p != nil && !p.Valid() {
			return errors.Validationf("invalid %s", name)
		}
	}
	if in.StartLocation == nil {
		switch {
		case in.AmbulanceLocation != nil:
			in.StartLocation = clonePoint(in.AmbulanceLocation)
		case len(in.RouteCoordinates) > 0:
			first := in.RouteCoordinates[0]
			in.StartLocation = &first
		default:
			return errors.Validationf("a start or ambulance location is required")
		}
	}
	if in.EndLocation == nil && len(in.RouteCoordinates) > 1 {
		last := in.RouteCoordinates[len(in.RouteCoordinates)-1]
		in.EndLocation = &last
	}
	if !KnownAddress(in.StartAddress) {
		in.StartAddress = UnknownAddress
	}
	if !KnownAddress(in.EndAddress) {
		in.EndAddress = UnknownAddress
	}
	if strings.TrimSpace(in.Area) == "" {
		in.Area = DefaultArea
	}
	if in.DistanceMeters < 0 {
		return errors.Validationf("distanceMeters must not be negative")
	}
	return nil
}

// RespondRequest is a responder's decision on one alert.
type RespondRequest struct {
	AlertID       AlertID `json:"alertId"`
	TrafficStatus string  `json:"trafficStatus"`
	Message       string  `json:"message"`
	OfficerName   string  `json:"officerName"`
}

// Decision is the validated form of RespondRequest.
type Decision struct {
	TrafficStatus TrafficStatus
	Message       string
	Officer       string
}

func (r RespondRequest) Decision() (Decision, error) {
	if r.AlertID <= 0 {
		return Decision{}, errors.Validationf("alertId is required")
	}
	ts, err := ParseTrafficStatus(r.TrafficStatus)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		TrafficStatus: ts,
		Message:       strings.TrimSpace(r.Message),
		Officer:       strings.TrimSpace(r.OfficerName),
	}, nil
}

func (d Decision) String() string {
	return fmt.Sprintf("%s by %q", orUnset(string(d.TrafficStatus)), d.Officer)
}

func orUnset(s string) string {
	if s == "" {
		return "unset"
	}
	return s
}

func clonePoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
