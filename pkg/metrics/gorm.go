package metrics

import (
	"time"

	"gorm.io/gorm"
)

const startKey = "metrics:start"

// GormPlugin times every gorm operation into db_query_duration_seconds.
type GormPlugin struct {
	m *Metrics
}

func NewGormPlugin(m *Metrics) *GormPlugin { return &GormPlugin{m: m} }

func (p *GormPlugin) Name() string { return "greencorridor:metrics" }

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	type hook struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}
	hooks := []hook{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		op := h.op
		if err := h.before("metrics:before_"+op, p.before); err != nil {
			return err
		}
		if err := h.after("metrics:after_"+op, func(db *gorm.DB) { p.after(db, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormPlugin) before(db *gorm.DB) {
	db.InstanceSet(startKey, time.Now())
}

func (p *GormPlugin) after(db *gorm.DB, op string) {
	v, ok := db.InstanceGet(startKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}
	p.m.RecordDBQuery(op, table, time.Since(start))
}
