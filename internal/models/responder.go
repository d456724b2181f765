package models

import (
	"strings"
	"time"

	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/geo"

	"gorm.io/gorm"
)

const (
	RoleResponder = "responder"
	RoleDriver    = "driver"
)

// Responder is the last known position of a police officer or toll operator.
type Responder struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Name      string    `json:"name" gorm:"size:128"`
	Area      string    `json:"area" gorm:"size:64;index"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Active    bool      `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (r Responder) Position() geo.Point { return geo.Point{Lat: r.Lat, Lng: r.Lng} }

// LocationUpdate is the body of a responder location report.
type LocationUpdate struct {
	Name string  `json:"name"`
	Area string  `json:"area"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (u *LocationUpdate) Validate() error {
	u.Name = strings.TrimSpace(u.Name)
	u.Area = strings.TrimSpace(u.Area)
	if !(geo.Point{Lat: u.Lat, Lng: u.Lng}).Valid() {
		return errors.Validationf("invalid responder location")
	}
	return nil
}

// ProximityRequest asks the server to run matching for a moving ambulance.
type ProximityRequest struct {
	AlertInput
	// History is the driver's locally cached alert list; when empty the server uses its own store.
	History []Alert `json:"history"`
}

// UpsertResponderLocation records the latest position of a responder, creating it on first report.
// Empty name or area keep the stored values.
func UpsertResponderLocation(db *gorm.DB, id string, u LocationUpdate) (*Responder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.Validationf("responder id is required")
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	var out Responder
	err := db.Transaction(func(tx *gorm.DB) error {
		found, err := findResponder(tx, id, &out)
		if err != nil {
			return err
		}
		if !found {
			out = Responder{ID: id, Name: u.Name, Area: u.Area, Lat: u.Lat, Lng: u.Lng, Active: true}
			if out.Area == "" {
				out.Area = DefaultArea
			}
			return tx.Create(&out).Error
		}
		updates := map[string]interface{}{"lat": u.Lat, "lng": u.Lng, "active": true}
		if u.Name != "" {
			updates["name"] = u.Name
		}
		if u.Area != "" {
			updates["area"] = u.Area
		}
		if err := tx.Model(&out).Updates(updates).Error; err != nil {
			return err
		}
		_, err = findResponder(tx, id, &out)
		return err
	})
	if err != nil {
		if errors.IsValidation(err) {
			return nil, err
		}
		return nil, errors.Transient(err, "upsert responder")
	}
	return &out, nil
}

// ListActiveResponders returns active responders seen since the given time; zero since means no limit.
func ListActiveResponders(db *gorm.DB, area string, since time.Time) ([]Responder, error) {
	var list []Responder
	q := db.Where("active = ?", true)
	if area != "" {
		q = q.Where("area = ?", area)
	}
	if !since.IsZero() {
		q = q.Where("updated_at >= ?", since.UTC())
	}
	if err := q.Order("id").Find(&list).Error; err != nil {
		return nil, errors.Transient(err, "list responders")
	}
	return list, nil
}

func GetResponder(db *gorm.DB, id string) (*Responder, error) {
	var r Responder
	found, err := findResponder(db, strings.TrimSpace(id), &r)
	if err != nil {
		return nil, errors.Transient(err, "get responder")
	}
	if !found {
		return nil, errors.NotFoundf("responder %s not found", id)
	}
	return &r, nil
}

// findResponder loads id into out. A missing row is not an error, so first
// reports do not show up as failed queries in the gorm log.
func findResponder(db *gorm.DB, id string, out *Responder) (bool, error) {
	res := db.Where("id = ?", id).Limit(1).Find(out)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeactivateResponder takes a responder off duty; it stops receiving alerts.
func DeactivateResponder(db *gorm.DB, id string) error {
	res := db.Model(&Responder{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return errors.Transient(res.Error, "deactivate responder")
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundf("responder %s not found", id)
	}
	return nil
}
