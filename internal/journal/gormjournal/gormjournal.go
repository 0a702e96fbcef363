// Package gormjournal stores guidance sessions in a SQL database through
// GORM. It backs both the SQLite and the Postgres journal.
package gormjournal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/touchfly/internal/database"
	"github.com/OCAP2/touchfly/internal/geo"
	"github.com/OCAP2/touchfly/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session is one row of the guidance_sessions table. Positions are stored
// as EPSG:3857 points.
type Session struct {
	ID            uint       `gorm:"primarykey"`
	SessionID     uint64     `gorm:"index"`
	Target        geom.Point `json:"target"`
	StartPosition geom.Point `json:"startPosition"`
	HasStart      bool
	Directive     datatypes.JSON `json:"directive"`
	StartedAt     time.Time      `gorm:"index"`
	EndedAt       *time.Time
	Outcome       string `gorm:"size:16"`
}

func (*Session) TableName() string {
	return "guidance_sessions"
}

// Directive is the JSON payload stored with each session.
type Directive struct {
	Altitude float64 `json:"altitude"`
	Speed    float64 `json:"speed"`
}

// Options controls the periodic dump of an in-memory SQLite database.
type Options struct {
	DumpPath     string
	DumpInterval time.Duration
}

// Backend is a GORM journal.
type Backend struct {
	db     *gorm.DB
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	rows     map[uint64]uint // session ID -> row ID of the active row
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a journal on db. Call Init before use.
func New(db *gorm.DB, opts Options, log zerolog.Logger) *Backend {
	return &Backend{
		db:       db,
		opts:     opts,
		logger:   log,
		rows:     make(map[uint64]uint),
		stopChan: make(chan struct{}),
	}
}

// Init migrates the schema and starts the dump loop when configured.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(&Session{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if b.opts.DumpPath != "" && b.opts.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump loop, writes a final dump and closes the database.
func (b *Backend) Close() error {
	close(b.stopChan)
	b.wg.Wait()
	if b.opts.DumpPath != "" && b.opts.DumpInterval > 0 {
		if err := database.DumpToDisk(b.db, b.opts.DumpPath, b.logger); err != nil {
			b.logger.Error().Err(err).Msg("Final journal dump failed")
		}
	}
	return database.Close(b.db)
}

func (b *Backend) SessionStarted(r core.SessionRecord) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	if err := b.db.Create(row).Error; err != nil {
		return fmt.Errorf("inserting session %d: %w", r.ID, err)
	}
	b.mu.Lock()
	b.rows[r.ID] = row.ID
	b.mu.Unlock()
	return nil
}

func (b *Backend) SessionEnded(r core.SessionRecord) error {
	b.mu.Lock()
	rowID, ok := b.rows[r.ID]
	delete(b.rows, r.ID)
	b.mu.Unlock()

	if !ok {
		row, err := toRow(r)
		if err != nil {
			return err
		}
		if err := b.db.Create(row).Error; err != nil {
			return fmt.Errorf("inserting ended session %d: %w", r.ID, err)
		}
		return nil
	}

	endedAt := r.EndedAt
	err := b.db.Model(&Session{ID: rowID}).Updates(map[string]any{
		"ended_at": &endedAt,
		"outcome":  string(r.Outcome),
	}).Error
	if err != nil {
		return fmt.Errorf("updating session %d: %w", r.ID, err)
	}
	return nil
}

// Sessions returns every stored session, oldest first.
func (b *Backend) Sessions() ([]core.SessionRecord, error) {
	var rows []Session
	if err := b.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]core.SessionRecord, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := database.DumpToDisk(b.db, b.opts.DumpPath, b.logger); err != nil {
				b.logger.Error().Err(err).Msg("Error dumping journal to disk")
			}
		}
	}
}

func toRow(r core.SessionRecord) (*Session, error) {
	target, err := geo.Coords3857From4326(r.Target.Longitude, r.Target.Latitude)
	if err != nil {
		return nil, fmt.Errorf("session %d target: %w", r.ID, err)
	}
	directive, err := json.Marshal(Directive{Altitude: r.Altitude, Speed: r.Speed})
	if err != nil {
		return nil, err
	}
	row := &Session{
		SessionID:     r.ID,
		Target:        target,
		StartPosition: geom.NewEmptyPoint(geom.DimXY),
		Directive:     datatypes.JSON(directive),
		StartedAt:     r.StartedAt,
		Outcome:       string(r.Outcome),
	}
	if r.Start != nil {
		if start, err := geo.Coords3857From4326(r.Start.Longitude, r.Start.Latitude); err == nil {
			row.StartPosition = start
			row.HasStart = true
		}
	}
	if r.Ended() {
		endedAt := r.EndedAt
		row.EndedAt = &endedAt
	}
	return row, nil
}

func fromRow(row Session) (core.SessionRecord, error) {
	target, err := geo.LocationFrom3857(row.Target)
	if err != nil {
		return core.SessionRecord{}, fmt.Errorf("row %d target: %w", row.ID, err)
	}
	var d Directive
	if len(row.Directive) > 0 {
		if err := json.Unmarshal(row.Directive, &d); err != nil {
			return core.SessionRecord{}, fmt.Errorf("row %d directive: %w", row.ID, err)
		}
	}
	r := core.SessionRecord{
		ID:        row.SessionID,
		Target:    target,
		Altitude:  d.Altitude,
		Speed:     d.Speed,
		StartedAt: row.StartedAt,
		Outcome:   core.Outcome(row.Outcome),
	}
	if row.HasStart {
		if start, err := geo.LocationFrom3857(row.StartPosition); err == nil {
			r.Start = &start
		}
	}
	if row.EndedAt != nil {
		r.EndedAt = *row.EndedAt
	}
	return r, nil
}
