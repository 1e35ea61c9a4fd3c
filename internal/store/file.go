package store

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/rs/zerolog/log"
)

// fileLayout is the on-disk JSON document. The layout keeps one object per
// session keyed by code, with never-claimed seats simply absent.
type fileLayout struct {
	CurrentGameCode string                                    `json:"current_game_code"`
	Sessions        map[string]map[session.SeatID]*SeatRecord `json:"sessions"`
}

// FileStore persists session state as a single JSON document. Reads degrade
// to an empty document on a missing or corrupt file so a bad disk never turns
// into a registry decision error.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store writing to path. The file is created on first
// write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) load() fileLayout {
	doc := fileLayout{Sessions: make(map[string]map[session.SeatID]*SeatRecord)}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", f.path).Msg("session file unreadable, treating as empty")
		}
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("session file corrupt, treating as empty")
		return fileLayout{Sessions: make(map[string]map[session.SeatID]*SeatRecord)}
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]map[session.SeatID]*SeatRecord)
	}
	return doc
}

func (f *FileStore) save(doc fileLayout) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}

func (f *FileStore) CurrentCode(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	if doc.CurrentGameCode == "" {
		return "", ErrNotFound
	}
	return doc.CurrentGameCode, nil
}

func (f *FileStore) SetCurrentCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	doc.CurrentGameCode = code
	return f.save(doc)
}

func (f *FileStore) Seat(ctx context.Context, code string, seat session.SeatID) (SeatRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	rec, ok := doc.Sessions[code][seat]
	if !ok || rec == nil {
		return SeatRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (f *FileStore) PutSeat(ctx context.Context, code string, seat session.SeatID, rec SeatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	if doc.Sessions[code] == nil {
		doc.Sessions[code] = make(map[session.SeatID]*SeatRecord)
	}
	r := rec
	doc.Sessions[code][seat] = &r
	return f.save(doc)
}

func (f *FileStore) SessionSeats(ctx context.Context, code string) (map[session.SeatID]SeatRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	out := make(map[session.SeatID]SeatRecord)
	for id, rec := range doc.Sessions[code] {
		if rec != nil {
			out[id] = *rec
		}
	}
	return out, nil
}

func (f *FileStore) ResetSession(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	delete(doc.Sessions, code)
	return f.save(doc)
}

func (f *FileStore) Close() error {
	return nil
}
